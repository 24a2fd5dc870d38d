package links

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidLinkID indicates that a link identifier is empty, too long, or malformed.
	ErrInvalidLinkID = errors.New("links: invalid link id")
	// ErrInvalidTargetURL indicates that a link target is empty or not an absolute http(s) URL.
	ErrInvalidTargetURL = errors.New("links: invalid target url")
	// ErrLinkNotFound indicates that no link exists for the identifier.
	ErrLinkNotFound = errors.New("links: link not found")
)

// LinkID represents a validated link identifier.
type LinkID string

// NewLinkID validates raw input and returns a LinkID.
func NewLinkID(rawInput string) (LinkID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidLinkID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidLinkID, maxIdentifierLength)
	}
	for _, r := range trimmed {
		if !isIdentifierRune(r) {
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidLinkID, r)
		}
	}
	return LinkID(trimmed), nil
}

// String returns the underlying string identifier.
func (id LinkID) String() string {
	return string(id)
}

func isIdentifierRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.', r == ':':
		return true
	default:
		return false
	}
}

// Link is a published external link with its aggregate click counter.
// ClickCount is maintained by the sqlite counter store only; with the redis
// backend the count is read through the engagement snapshot.
type Link struct {
	LinkID           string `gorm:"column:link_id;primaryKey;size:190;not null"`
	OwnerID          string `gorm:"column:owner_id;size:190;not null;index:idx_links_owner"`
	Title            string `gorm:"column:title;size:320;not null;default:''"`
	TargetURL        string `gorm:"column:target_url;size:2048;not null"`
	Active           bool   `gorm:"column:active;not null;default:true"`
	ClickCount       int64  `gorm:"column:click_count;not null;default:0"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Link) TableName() string {
	return "links"
}

// LikeMembership records that a viewer likes a link. The composite primary key
// allows at most one row per (link, viewer) pair.
type LikeMembership struct {
	LinkID           string `gorm:"column:link_id;primaryKey;size:190;not null;index:idx_link_likes_link"`
	ViewerID         string `gorm:"column:viewer_id;primaryKey;size:190;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (LikeMembership) TableName() string {
	return "link_likes"
}
