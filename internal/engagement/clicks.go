package engagement

import (
	"context"
	"errors"
	"time"

	"github.com/YO3CODER/yolinkify-sub000/internal/links"
	"go.uber.org/zap"
)

// ClickRecorder counts link visits. Anonymous viewers may click.
type ClickRecorder struct {
	component
}

// NewClickRecorder constructs a ClickRecorder.
func NewClickRecorder(cfg Config) (*ClickRecorder, error) {
	base, err := newComponent(opNewRecorder, cfg)
	if err != nil {
		return nil, err
	}
	return &ClickRecorder{component: base}, nil
}

// RecordClick increments the link's click counter by exactly one.
func (r *ClickRecorder) RecordClick(ctx context.Context, linkID links.LinkID) (ClickResult, error) {
	startedAt := time.Now()
	defer r.metrics.observeDuration(opRecordClick, startedAt)

	if err := r.ready(opRecordClick); err != nil {
		return ClickResult{}, err
	}
	linkID, err := r.checkLinkID(opRecordClick, linkID)
	if err != nil {
		r.metrics.observeClick(outcomeRejected)
		return ClickResult{}, err
	}

	clicks, err := r.store.IncrementClicks(ctx, linkID)
	if err != nil {
		if isLinkNotFound(err) {
			r.metrics.observeClick(outcomeNotFound)
		} else {
			r.metrics.observeClick(outcomeFailed)
		}
		return ClickResult{}, r.storeFailure(opRecordClick, reasonStoreFailed, err, zap.String(fieldLinkID, linkID.String()))
	}

	r.metrics.observeClick(outcomeRecorded)
	return ClickResult{LinkID: linkID, ClickCount: clicks}, nil
}

func isLinkNotFound(err error) bool {
	return errors.Is(err, ErrLinkNotFound)
}
