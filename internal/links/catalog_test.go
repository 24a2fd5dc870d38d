package links

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDProvider struct {
	ids   []string
	index int
}

func (p *staticIDProvider) NewID() (string, error) {
	if p.index >= len(p.ids) {
		return "", errors.New("exhausted ids")
	}
	id := p.ids[p.index]
	p.index++
	return id, nil
}

func TestNewLinkIDValidation(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    LinkID
		wantErr bool
	}{
		{name: "uuid", input: "0190f3c2-7a4e-7c1b-9a64-1f2d3e4c5b6a", want: "0190f3c2-7a4e-7c1b-9a64-1f2d3e4c5b6a"},
		{name: "trimmed", input: "  link-1 ", want: "link-1"},
		{name: "empty", input: "   ", wantErr: true},
		{name: "whitespace-inside", input: "link 1", wantErr: true},
		{name: "slash", input: "../etc", wantErr: true},
		{name: "too-long", input: strings.Repeat("a", maxIdentifierLength+1), wantErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			id, err := NewLinkID(testCase.input)
			if testCase.wantErr {
				if !errors.Is(err, ErrInvalidLinkID) {
					t.Fatalf("expected invalid link id error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != testCase.want {
				t.Fatalf("unexpected id: got %q want %q", id, testCase.want)
			}
		})
	}
}

func TestCatalogCreateAndExists(t *testing.T) {
	catalog, _ := newTestCatalog(t, []string{"link-1"})

	link, err := catalog.Create(context.Background(), NewLink{
		OwnerID:   "owner-1",
		Title:     " Portfolio ",
		TargetURL: "https://example.com/portfolio",
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if link.LinkID != "link-1" || link.Title != "Portfolio" || !link.Active || link.ClickCount != 0 {
		t.Fatalf("unexpected link: %#v", link)
	}
	if link.CreatedAtSeconds != 1700000000 {
		t.Fatalf("expected clock timestamp, got %d", link.CreatedAtSeconds)
	}

	exists, err := catalog.Exists(context.Background(), LinkID("link-1"))
	if err != nil || !exists {
		t.Fatalf("expected link to exist, got %v %v", exists, err)
	}
	exists, err = catalog.Exists(context.Background(), LinkID("missing"))
	if err != nil || exists {
		t.Fatalf("expected missing link, got %v %v", exists, err)
	}
}

func TestCatalogCreateRejectsInvalidTarget(t *testing.T) {
	catalog, _ := newTestCatalog(t, []string{"link-1"})

	for _, target := range []string{"", "ftp://example.com", "https://", "not a url"} {
		_, err := catalog.Create(context.Background(), NewLink{OwnerID: "owner-1", TargetURL: target})
		if !errors.Is(err, ErrInvalidTargetURL) {
			t.Fatalf("expected invalid target for %q, got %v", target, err)
		}
	}
}

func TestCatalogDeletePurgesMemberships(t *testing.T) {
	catalog, db := newTestCatalog(t, []string{"link-1"})
	ctx := context.Background()

	if _, err := catalog.Create(ctx, NewLink{OwnerID: "owner-1", TargetURL: "https://example.com"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if err := db.Create(&LikeMembership{LinkID: "link-1", ViewerID: "viewer-1", CreatedAtSeconds: 1}).Error; err != nil {
		t.Fatalf("failed to seed membership: %v", err)
	}

	if err := catalog.Delete(ctx, LinkID("link-1")); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}

	var remaining int64
	if err := db.Model(&LikeMembership{}).Count(&remaining).Error; err != nil {
		t.Fatalf("failed to count memberships: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected memberships to be purged, got %d", remaining)
	}
	if _, err := catalog.Get(ctx, LinkID("link-1")); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := catalog.Delete(ctx, LinkID("link-1")); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

type recordingLifecycle struct {
	created   []LinkID
	deleted   []LinkID
	createErr error
	deleteErr error
}

func (l *recordingLifecycle) LinkCreated(_ context.Context, linkID LinkID) error {
	if l.createErr != nil {
		return l.createErr
	}
	l.created = append(l.created, linkID)
	return nil
}

func (l *recordingLifecycle) LinkDeleted(_ context.Context, linkID LinkID) error {
	if l.deleteErr != nil {
		return l.deleteErr
	}
	l.deleted = append(l.deleted, linkID)
	return nil
}

func TestCatalogNotifiesLifecycle(t *testing.T) {
	lifecycle := &recordingLifecycle{}
	catalog, _ := newTestCatalogWithLifecycle(t, []string{"link-1", "link-2"}, lifecycle)
	ctx := context.Background()

	for range 2 {
		if _, err := catalog.Create(ctx, NewLink{OwnerID: "owner-1", TargetURL: "https://example.com"}); err != nil {
			t.Fatalf("unexpected create error: %v", err)
		}
	}
	ids, err := catalog.IDs(ctx)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "link-1" || ids[1] != "link-2" {
		t.Fatalf("unexpected ids: %v", ids)
	}

	if err := catalog.Delete(ctx, LinkID("link-1")); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if len(lifecycle.created) != 2 || len(lifecycle.deleted) != 1 || lifecycle.deleted[0] != "link-1" {
		t.Fatalf("unexpected lifecycle calls: created=%v deleted=%v", lifecycle.created, lifecycle.deleted)
	}
	if err := catalog.Delete(ctx, LinkID("link-1")); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if len(lifecycle.deleted) != 1 {
		t.Fatalf("expected no lifecycle call for a missing link, got %v", lifecycle.deleted)
	}
}

func TestCatalogLifecycleFailureAbortsChange(t *testing.T) {
	lifecycle := &recordingLifecycle{createErr: errors.New("redis down")}
	catalog, _ := newTestCatalogWithLifecycle(t, []string{"link-1", "link-2"}, lifecycle)
	ctx := context.Background()

	if _, err := catalog.Create(ctx, NewLink{OwnerID: "owner-1", TargetURL: "https://example.com"}); err == nil {
		t.Fatalf("expected create to fail when registration fails")
	}
	if exists, err := catalog.Exists(ctx, LinkID("link-1")); err != nil || exists {
		t.Fatalf("expected failed create to leave no row, got %v %v", exists, err)
	}

	lifecycle.createErr = nil
	lifecycle.deleteErr = errors.New("redis down")
	if _, err := catalog.Create(ctx, NewLink{OwnerID: "owner-1", TargetURL: "https://example.com"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if err := catalog.Delete(ctx, LinkID("link-2")); err == nil {
		t.Fatalf("expected delete to fail when purge fails")
	}
	if exists, err := catalog.Exists(ctx, LinkID("link-2")); err != nil || !exists {
		t.Fatalf("expected failed delete to keep the row, got %v %v", exists, err)
	}
}

func newTestCatalog(t *testing.T, ids []string) (*Catalog, *gorm.DB) {
	t.Helper()
	return newTestCatalogWithLifecycle(t, ids, nil)
}

func newTestCatalogWithLifecycle(t *testing.T, ids []string, lifecycle Lifecycle) (*Catalog, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:links_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Link{}, &LikeMembership{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	catalog, err := NewCatalog(CatalogConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000000, 0).UTC() },
		IDProvider: &staticIDProvider{ids: ids},
		Lifecycle:  lifecycle,
	})
	if err != nil {
		t.Fatalf("failed to construct catalog: %v", err)
	}
	return catalog, db
}
