package engagement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/YO3CODER/yolinkify-sub000/internal/links"
)

const maxViewerIDLength = 190

// ErrInvalidViewerID indicates that a viewer identifier is empty or exceeds storage bounds.
var ErrInvalidViewerID = errors.New("engagement: invalid viewer id")

// ViewerID represents a validated, authenticated viewer identifier.
type ViewerID string

// NewViewerID validates raw input and returns a ViewerID.
func NewViewerID(rawInput string) (ViewerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidViewerID)
	}
	if len(trimmed) > maxViewerIDLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidViewerID, maxViewerIDLength)
	}
	return ViewerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ViewerID) String() string {
	return string(id)
}

// IsAnonymous reports whether the identifier is absent.
func (id ViewerID) IsAnonymous() bool {
	return id == ""
}

// Snapshot is the engagement state of one link as seen by one viewer. It is
// always computed from the store and never cached.
type Snapshot struct {
	LinkID        links.LinkID
	LikeCount     int64
	LikedByViewer bool
	ClickCount    int64
}

// ToggleResult is the authoritative post-state of a toggle call.
type ToggleResult struct {
	LinkID    links.LinkID
	Liked     bool
	LikeCount int64
}

// ClickResult is the authoritative click counter after a recorded click.
type ClickResult struct {
	LinkID     links.LinkID
	ClickCount int64
}
