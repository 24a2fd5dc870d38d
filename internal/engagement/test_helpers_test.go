package engagement

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/YO3CODER/yolinkify-sub000/internal/links"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:engagement_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&links.Link{}, &links.LikeMembership{}), "migrate")
	return db
}

func newTestSQLStore(t *testing.T) (*SQLStore, *gorm.DB) {
	t.Helper()

	db := newTestDatabase(t)
	store, err := NewSQLStore(SQLStoreConfig{
		Database: db,
		Clock:    func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	require.NoError(t, err)
	return store, db
}

func seedLink(t *testing.T, db *gorm.DB, linkID string, clicks int64) links.LinkID {
	t.Helper()

	link := links.Link{
		LinkID:           linkID,
		OwnerID:          "owner-1",
		Title:            "Example",
		TargetURL:        "https://example.com/" + linkID,
		Active:           true,
		ClickCount:       clicks,
		CreatedAtSeconds: 1700000000,
	}
	require.NoError(t, db.Create(&link).Error, "seed link")
	return links.LinkID(linkID)
}

func countMembershipRows(t *testing.T, db *gorm.DB, linkID links.LinkID) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&links.LikeMembership{}).Where("link_id = ?", linkID.String()).Count(&count).Error)
	return count
}

// blockingStore waits for the context before failing every call, emulating a
// persistence layer that stopped answering.
type blockingStore struct{}

func (blockingStore) wait(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s blockingStore) IncrementClicks(ctx context.Context, _ links.LinkID) (int64, error) {
	return 0, s.wait(ctx)
}

func (s blockingStore) ClickCount(ctx context.Context, _ links.LinkID) (int64, error) {
	return 0, s.wait(ctx)
}

func (s blockingStore) HasLike(ctx context.Context, _ links.LinkID, _ ViewerID) (bool, error) {
	return false, s.wait(ctx)
}

func (s blockingStore) LikeCount(ctx context.Context, _ links.LinkID) (int64, error) {
	return 0, s.wait(ctx)
}

func (s blockingStore) AddLike(ctx context.Context, _ links.LinkID, _ ViewerID) (bool, error) {
	return false, s.wait(ctx)
}

func (s blockingStore) RemoveLike(ctx context.Context, _ links.LinkID, _ ViewerID) (bool, error) {
	return false, s.wait(ctx)
}

func (s blockingStore) ToggleLike(ctx context.Context, _ links.LinkID, _ ViewerID) (bool, error) {
	return false, s.wait(ctx)
}

// staticIDs hands out its first identifier to every new link.
type staticIDs []string

func (ids staticIDs) NewID() (string, error) {
	return ids[0], nil
}
