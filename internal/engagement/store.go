package engagement

import (
	"context"

	"github.com/YO3CODER/yolinkify-sub000/internal/links"
)

// CounterStore is the single owner of persisted engagement state. Implementations
// must return an error wrapping ErrLinkNotFound for unknown links and must get
// their atomicity from the persistence layer rather than from in-process locks.
type CounterStore interface {
	// IncrementClicks atomically adds one to the link's click counter and returns the new value.
	IncrementClicks(ctx context.Context, linkID links.LinkID) (int64, error)
	// ClickCount reads the link's click counter.
	ClickCount(ctx context.Context, linkID links.LinkID) (int64, error)
	// HasLike reports whether the viewer currently likes the link.
	HasLike(ctx context.Context, linkID links.LinkID, viewerID ViewerID) (bool, error)
	// LikeCount returns the number of memberships stored for the link.
	LikeCount(ctx context.Context, linkID links.LinkID) (int64, error)
	// AddLike creates the membership; false means it already existed.
	AddLike(ctx context.Context, linkID links.LinkID, viewerID ViewerID) (bool, error)
	// RemoveLike deletes the membership; false means none existed.
	RemoveLike(ctx context.Context, linkID links.LinkID, viewerID ViewerID) (bool, error)
	// ToggleLike flips the membership as one atomic unit and returns whether the
	// viewer likes the link afterwards.
	ToggleLike(ctx context.Context, linkID links.LinkID, viewerID ViewerID) (bool, error)
}
