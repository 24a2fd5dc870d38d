package client

import "context"

// ToggleOutcome is the authoritative post-toggle state reported by the server.
type ToggleOutcome struct {
	Liked      bool
	LikesCount int64
	Message    string
}

// ServerSnapshot is the engagement state of a link as read from the server.
type ServerSnapshot struct {
	LinkID        string
	LikesCount    int64
	LikedByViewer bool
	Clicks        int64
}

// Gateway is one transport to the engagement API.
type Gateway interface {
	ToggleLike(ctx context.Context, linkID string) (ToggleOutcome, error)
	RecordClick(ctx context.Context, linkID string) (int64, error)
	Snapshot(ctx context.Context, linkID string) (ServerSnapshot, error)
}
