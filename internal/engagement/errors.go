package engagement

import (
	"errors"
	"fmt"

	"github.com/YO3CODER/yolinkify-sub000/internal/links"
)

// Error kinds. Every error returned by the engine, recorder and snapshot reader
// matches exactly one of these with errors.Is.
var (
	// ErrNotFound means the link does not exist. Callers should not retry.
	ErrNotFound = errors.New("engagement: link does not exist")
	// ErrUnauthenticated means a viewer identity is required. Callers should prompt sign-in.
	ErrUnauthenticated = errors.New("engagement: viewer identity required")
	// ErrInvalidInput means an identifier was malformed.
	ErrInvalidInput = errors.New("engagement: invalid input")
	// ErrTransient covers timeouts, connectivity and persistence failures. Callers may retry.
	ErrTransient = errors.New("engagement: transient failure")
)

// ErrLinkNotFound is returned by CounterStore implementations for unknown links.
var ErrLinkNotFound = links.ErrLinkNotFound

var (
	errMissingStore    = errors.New("counter store is required")
	errMissingClient   = errors.New("redis client is required")
	errMissingDatabase = errors.New("database handle is required")
)

// ServiceError carries a dotted code alongside the error kind and the underlying cause.
type ServiceError struct {
	code string
	kind error
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is and errors.As.
func (e *ServiceError) Unwrap() []error {
	unwrapped := make([]error, 0, 2)
	if e.kind != nil {
		unwrapped = append(unwrapped, e.kind)
	}
	if e.err != nil {
		unwrapped = append(unwrapped, e.err)
	}
	return unwrapped
}

// Code returns the dotted error code, for example "engagement.toggle.store_failed".
func (e *ServiceError) Code() string {
	return e.code
}

// Kind returns the sentinel classifying the failure.
func (e *ServiceError) Kind() error {
	return e.kind
}

const (
	opToggle       = "engagement.toggle"
	opRecordClick  = "engagement.record_click"
	opSnapshot     = "engagement.snapshot"
	opNewEngine    = "engagement.engine.new"
	opNewRecorder  = "engagement.recorder.new"
	opNewSnapshots = "engagement.snapshots.new"
)

const (
	reasonMissingStore   = "missing_store"
	reasonMissingViewer  = "missing_viewer"
	reasonInvalidLinkID  = "invalid_link_id"
	reasonInvalidViewer  = "invalid_viewer_id"
	reasonLinkNotFound   = "link_not_found"
	reasonStoreFailed    = "store_failed"
	reasonStoreTimeout   = "store_timeout"
	reasonCountFailed    = "count_failed"
	reasonClickReadFail  = "click_read_failed"
	reasonMembershipRead = "membership_read_failed"
)

func newServiceError(operation, reason string, kind, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, kind: kind, err: cause}
}
