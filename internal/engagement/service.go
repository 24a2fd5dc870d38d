package engagement

import (
	"context"
	"errors"

	"github.com/YO3CODER/yolinkify-sub000/internal/links"
	"go.uber.org/zap"
)

var noOpLogger = zap.NewNop()

const (
	fieldLinkID   = "link_id"
	fieldViewerID = "viewer_id"
)

// Config describes the dependencies shared by the toggle engine, the click
// recorder and the snapshot reader.
type Config struct {
	Store   CounterStore
	Logger  *zap.Logger
	Metrics *Metrics
}

type component struct {
	store   CounterStore
	logger  *zap.Logger
	metrics *Metrics
}

func newComponent(operation string, cfg Config) (component, error) {
	if cfg.Store == nil {
		return component{}, newServiceError(operation, reasonMissingStore, nil, errMissingStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return component{store: cfg.Store, logger: logger, metrics: cfg.Metrics}, nil
}

func (c component) ready(operation string) error {
	if c.store == nil {
		c.logError(operation, reasonMissingStore, errMissingStore)
		return newServiceError(operation, reasonMissingStore, ErrTransient, errMissingStore)
	}
	return nil
}

// checkLinkID returns the normalized identifier the store must be called with.
func (c component) checkLinkID(operation string, linkID links.LinkID) (links.LinkID, error) {
	normalized, err := links.NewLinkID(linkID.String())
	if err != nil {
		return "", newServiceError(operation, reasonInvalidLinkID, ErrInvalidInput, err)
	}
	return normalized, nil
}

// storeFailure classifies a store error. Unknown links become ErrNotFound;
// everything else, timeouts included, is transient.
func (c component) storeFailure(operation, reason string, err error, fields ...zap.Field) error {
	if errors.Is(err, ErrLinkNotFound) {
		c.loggerOrDefault().Debug("link not found",
			append([]zap.Field{zap.String("operation", operation)}, fields...)...)
		return newServiceError(operation, reasonLinkNotFound, ErrNotFound, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		reason = reasonStoreTimeout
	}
	c.metrics.observeStoreFailure(operation, reason)
	c.logError(operation, reason, err, fields...)
	return newServiceError(operation, reason, ErrTransient, err)
}

func (c component) loggerOrDefault() *zap.Logger {
	if c.logger == nil {
		return noOpLogger
	}
	return c.logger
}

func (c component) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.loggerOrDefault().Error("engagement service error", attrs...)
}
