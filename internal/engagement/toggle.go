package engagement

import (
	"context"
	"time"

	"github.com/YO3CODER/yolinkify-sub000/internal/links"
	"go.uber.org/zap"
)

// ToggleEngine flips a viewer's like on a link and reports the authoritative
// post-state.
type ToggleEngine struct {
	component
}

// NewToggleEngine constructs a ToggleEngine.
func NewToggleEngine(cfg Config) (*ToggleEngine, error) {
	base, err := newComponent(opNewEngine, cfg)
	if err != nil {
		return nil, err
	}
	return &ToggleEngine{component: base}, nil
}

// Toggle likes the link when the viewer does not like it yet and unlikes it
// otherwise. The returned count is read after the mutation committed, so it
// includes concurrent toggles by other viewers that committed before the read.
func (e *ToggleEngine) Toggle(ctx context.Context, linkID links.LinkID, viewerID ViewerID) (ToggleResult, error) {
	startedAt := time.Now()
	defer e.metrics.observeDuration(opToggle, startedAt)

	if err := e.ready(opToggle); err != nil {
		return ToggleResult{}, err
	}
	if viewerID.IsAnonymous() {
		e.metrics.observeToggle(outcomeRejected)
		return ToggleResult{}, newServiceError(opToggle, reasonMissingViewer, ErrUnauthenticated, nil)
	}
	viewerID, err := NewViewerID(viewerID.String())
	if err != nil {
		e.metrics.observeToggle(outcomeRejected)
		return ToggleResult{}, newServiceError(opToggle, reasonInvalidViewer, ErrUnauthenticated, err)
	}
	linkID, err = e.checkLinkID(opToggle, linkID)
	if err != nil {
		e.metrics.observeToggle(outcomeRejected)
		return ToggleResult{}, err
	}

	fields := []zap.Field{zap.String(fieldLinkID, linkID.String()), zap.String(fieldViewerID, viewerID.String())}

	liked, err := e.store.ToggleLike(ctx, linkID, viewerID)
	if err != nil {
		e.observeFailure(err)
		return ToggleResult{}, e.storeFailure(opToggle, reasonStoreFailed, err, fields...)
	}

	likeCount, err := e.store.LikeCount(ctx, linkID)
	if err != nil {
		e.observeFailure(err)
		return ToggleResult{}, e.storeFailure(opToggle, reasonCountFailed, err, fields...)
	}

	if liked {
		e.metrics.observeToggle(outcomeLiked)
	} else {
		e.metrics.observeToggle(outcomeUnliked)
	}
	e.loggerOrDefault().Debug("like toggled",
		append(fields, zap.Bool("liked", liked), zap.Int64("like_count", likeCount))...)

	return ToggleResult{LinkID: linkID, Liked: liked, LikeCount: likeCount}, nil
}

func (e *ToggleEngine) observeFailure(err error) {
	if isLinkNotFound(err) {
		e.metrics.observeToggle(outcomeNotFound)
		return
	}
	e.metrics.observeToggle(outcomeFailed)
}
