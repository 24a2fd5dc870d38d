package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YO3CODER/yolinkify-sub000/internal/links"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	columnClickCount = "click_count"
	queryLinkID      = "link_id = ?"
	queryLinkViewer  = "link_id = ? AND viewer_id = ?"
)

// SQLStoreConfig describes the dependencies of the relational counter store.
type SQLStoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// SQLStore keeps click counters on the links table and like memberships in
// link_likes. Atomicity comes from single-statement increments, conflict-free
// inserts and database transactions.
type SQLStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewSQLStore constructs a SQLStore.
func NewSQLStore(cfg SQLStoreConfig) (*SQLStore, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SQLStore{db: cfg.Database, clock: clock}, nil
}

// IncrementClicks bumps click_count and reads it back in one transaction.
func (s *SQLStore) IncrementClicks(ctx context.Context, linkID links.LinkID) (int64, error) {
	var clicks int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&links.Link{}).
			Where(queryLinkID, linkID.String()).
			UpdateColumn(columnClickCount, gorm.Expr(columnClickCount+" + ?", 1))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return linkNotFound(linkID)
		}
		value, err := readClickCount(tx, linkID)
		if err != nil {
			return err
		}
		clicks = value
		return nil
	})
	if err != nil {
		return 0, err
	}
	return clicks, nil
}

// ClickCount reads click_count from the link row.
func (s *SQLStore) ClickCount(ctx context.Context, linkID links.LinkID) (int64, error) {
	return readClickCount(s.db.WithContext(ctx), linkID)
}

// HasLike reports whether a membership row exists for the pair.
func (s *SQLStore) HasLike(ctx context.Context, linkID links.LinkID, viewerID ViewerID) (bool, error) {
	db := s.db.WithContext(ctx)
	if err := requireLink(db, linkID); err != nil {
		return false, err
	}
	return membershipExists(db, linkID, viewerID)
}

// LikeCount counts the membership rows of the link.
func (s *SQLStore) LikeCount(ctx context.Context, linkID links.LinkID) (int64, error) {
	db := s.db.WithContext(ctx)
	if err := requireLink(db, linkID); err != nil {
		return 0, err
	}
	return countMemberships(db, linkID)
}

// AddLike inserts the membership row, ignoring a duplicate.
func (s *SQLStore) AddLike(ctx context.Context, linkID links.LinkID, viewerID ViewerID) (bool, error) {
	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireLink(tx, linkID); err != nil {
			return err
		}
		value, err := s.insertMembership(tx, linkID, viewerID)
		created = value
		return err
	})
	return created, err
}

// RemoveLike deletes the membership row.
func (s *SQLStore) RemoveLike(ctx context.Context, linkID links.LinkID, viewerID ViewerID) (bool, error) {
	var removed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireLink(tx, linkID); err != nil {
			return err
		}
		value, err := deleteMembership(tx, linkID, viewerID)
		removed = value
		return err
	})
	return removed, err
}

// ToggleLike reads the membership and applies the opposite mutation in one
// transaction. A false result from the insert or delete means a concurrent
// identical request already reached the target state; that state is reported
// without an error.
func (s *SQLStore) ToggleLike(ctx context.Context, linkID links.LinkID, viewerID ViewerID) (bool, error) {
	var liked bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireLink(tx, linkID); err != nil {
			return err
		}
		present, err := membershipExists(tx, linkID, viewerID)
		if err != nil {
			return err
		}
		if present {
			if _, err := deleteMembership(tx, linkID, viewerID); err != nil {
				return err
			}
			liked = false
			return nil
		}
		if _, err := s.insertMembership(tx, linkID, viewerID); err != nil {
			return err
		}
		liked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return liked, nil
}

func (s *SQLStore) insertMembership(db *gorm.DB, linkID links.LinkID, viewerID ViewerID) (bool, error) {
	membership := links.LikeMembership{
		LinkID:           linkID.String(),
		ViewerID:         viewerID.String(),
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&membership)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func deleteMembership(db *gorm.DB, linkID links.LinkID, viewerID ViewerID) (bool, error) {
	result := db.Where(queryLinkViewer, linkID.String(), viewerID.String()).Delete(&links.LikeMembership{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func membershipExists(db *gorm.DB, linkID links.LinkID, viewerID ViewerID) (bool, error) {
	var count int64
	err := db.Model(&links.LikeMembership{}).
		Where(queryLinkViewer, linkID.String(), viewerID.String()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func countMemberships(db *gorm.DB, linkID links.LinkID) (int64, error) {
	var count int64
	if err := db.Model(&links.LikeMembership{}).Where(queryLinkID, linkID.String()).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func readClickCount(db *gorm.DB, linkID links.LinkID) (int64, error) {
	var link links.Link
	err := db.Select(columnClickCount).Where(queryLinkID, linkID.String()).Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, linkNotFound(linkID)
	}
	if err != nil {
		return 0, err
	}
	return link.ClickCount, nil
}

func requireLink(db *gorm.DB, linkID links.LinkID) error {
	var count int64
	if err := db.Model(&links.Link{}).Where(queryLinkID, linkID.String()).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return linkNotFound(linkID)
	}
	return nil
}

func linkNotFound(linkID links.LinkID) error {
	return fmt.Errorf("%w: %s", ErrLinkNotFound, linkID)
}
