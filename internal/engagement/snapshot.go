package engagement

import (
	"context"
	"time"

	"github.com/YO3CODER/yolinkify-sub000/internal/links"
	"go.uber.org/zap"
)

// SnapshotReader builds engagement snapshots straight from the counter store.
type SnapshotReader struct {
	component
}

// NewSnapshotReader constructs a SnapshotReader.
func NewSnapshotReader(cfg Config) (*SnapshotReader, error) {
	base, err := newComponent(opNewSnapshots, cfg)
	if err != nil {
		return nil, err
	}
	return &SnapshotReader{component: base}, nil
}

// Snapshot reads the like count, the click count and, for identified viewers,
// the viewer's membership. Anonymous viewers never like anything.
func (r *SnapshotReader) Snapshot(ctx context.Context, linkID links.LinkID, viewerID ViewerID) (Snapshot, error) {
	startedAt := time.Now()
	defer r.metrics.observeDuration(opSnapshot, startedAt)

	if err := r.ready(opSnapshot); err != nil {
		return Snapshot{}, err
	}
	linkID, err := r.checkLinkID(opSnapshot, linkID)
	if err != nil {
		return Snapshot{}, err
	}
	fields := []zap.Field{zap.String(fieldLinkID, linkID.String())}

	likeCount, err := r.store.LikeCount(ctx, linkID)
	if err != nil {
		return Snapshot{}, r.storeFailure(opSnapshot, reasonCountFailed, err, fields...)
	}
	clickCount, err := r.store.ClickCount(ctx, linkID)
	if err != nil {
		return Snapshot{}, r.storeFailure(opSnapshot, reasonClickReadFail, err, fields...)
	}

	snapshot := Snapshot{LinkID: linkID, LikeCount: likeCount, ClickCount: clickCount}
	if viewerID.IsAnonymous() {
		return snapshot, nil
	}
	viewerID, err = NewViewerID(viewerID.String())
	if err != nil {
		return snapshot, nil
	}
	liked, err := r.store.HasLike(ctx, linkID, viewerID)
	if err != nil {
		return Snapshot{}, r.storeFailure(opSnapshot, reasonMembershipRead, err,
			append(fields, zap.String(fieldViewerID, viewerID.String()))...)
	}
	snapshot.LikedByViewer = liked
	return snapshot, nil
}

// LikeCount reads the current like count. The gateway uses it to attach the
// best-known count to error responses.
func (r *SnapshotReader) LikeCount(ctx context.Context, linkID links.LinkID) (int64, error) {
	if err := r.ready(opSnapshot); err != nil {
		return 0, err
	}
	linkID, err := r.checkLinkID(opSnapshot, linkID)
	if err != nil {
		return 0, err
	}
	count, err := r.store.LikeCount(ctx, linkID)
	if err != nil {
		return 0, r.storeFailure(opSnapshot, reasonCountFailed, err, zap.String(fieldLinkID, linkID.String()))
	}
	return count, nil
}
