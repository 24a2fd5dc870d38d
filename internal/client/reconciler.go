package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase is the lifecycle position of one link on the viewer's page.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOptimistic
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseOptimistic:
		return "optimistic"
	case PhaseError:
		return "error"
	default:
		return "idle"
	}
}

// Snapshot is the displayed engagement state of a link. Authoritative is false
// while the values come from an optimistic flip or a local override.
type Snapshot struct {
	Liked         bool
	LikesCount    int64
	Clicks        int64
	PendingClicks int64
	Authoritative bool
}

// LinkState pairs the phase of a link with what is displayed for it.
type LinkState struct {
	Phase    Phase
	Snapshot Snapshot
	Err      error
}

// Navigator follows the outbound link of a click.
type Navigator interface {
	Navigate(ctx context.Context, targetURL string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, targetURL string) error

func (f NavigatorFunc) Navigate(ctx context.Context, targetURL string) error {
	return f(ctx, targetURL)
}

var (
	errMissingPrimaryGateway = errors.New("client: primary gateway is required")
	errMissingNavigator      = errors.New("client: navigator is required")
	errMissingLinkID         = errors.New("client: link id is required")
)

// ReconcilerConfig wires a Reconciler.
type ReconcilerConfig struct {
	Primary       Gateway
	Fallback      Gateway
	Cache         LikeCache
	Navigator     Navigator
	ViewerID      string
	DegradedLikes bool
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Reconciler keeps the viewer's displayed engagement in step with the server.
type Reconciler struct {
	primary       Gateway
	fallback      Gateway
	cache         LikeCache
	navigator     Navigator
	viewerID      string
	degradedLikes bool
	clock         func() time.Time
	logger        *zap.Logger

	mu    sync.Mutex
	links map[string]*LinkState
	// deferred holds server snapshots that arrived while a toggle was in flight.
	deferred map[string]ServerSnapshot
}

// NewReconciler constructs a Reconciler.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Primary == nil {
		return nil, errMissingPrimaryGateway
	}
	if cfg.Navigator == nil {
		return nil, errMissingNavigator
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		primary:       cfg.Primary,
		fallback:      cfg.Fallback,
		cache:         cfg.Cache,
		navigator:     cfg.Navigator,
		viewerID:      strings.TrimSpace(cfg.ViewerID),
		degradedLikes: cfg.DegradedLikes && cfg.Cache != nil,
		clock:         clock,
		logger:        logger,
		links:         make(map[string]*LinkState),
		deferred:      make(map[string]ServerSnapshot),
	}, nil
}

// State returns the current state of a link.
func (r *Reconciler) State(linkID string) LinkState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.entry(linkID)
}

// Seed applies a server snapshot, superseding any local override. While a
// toggle on the link is unresolved only the click count is taken; the like
// fields are kept for the toggle to reconcile against.
func (r *Reconciler) Seed(snapshot ServerSnapshot) {
	r.mu.Lock()
	state := r.entry(snapshot.LinkID)
	if state.Phase == PhaseOptimistic {
		state.Snapshot.Clicks = snapshot.Clicks
		state.Snapshot.PendingClicks = 0
		r.deferred[snapshot.LinkID] = snapshot
		r.mu.Unlock()
		return
	}
	delete(r.deferred, snapshot.LinkID)
	state.Phase = PhaseIdle
	state.Err = nil
	state.Snapshot = Snapshot{
		Liked:         snapshot.LikedByViewer,
		LikesCount:    snapshot.LikesCount,
		Clicks:        snapshot.Clicks,
		Authoritative: true,
	}
	r.mu.Unlock()

	r.forgetOverride(snapshot.LinkID)
}

// DismissError returns a link in the error phase to idle, keeping what is displayed.
func (r *Reconciler) DismissError(linkID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.entry(linkID)
	if state.Phase == PhaseError {
		state.Phase = PhaseIdle
		state.Err = nil
	}
}

// Refresh fetches the server snapshot of a link. When neither transport can
// reach the server, a cached local override is shown instead and ErrDegraded
// is returned.
func (r *Reconciler) Refresh(ctx context.Context, linkID string) (LinkState, error) {
	if strings.TrimSpace(linkID) == "" {
		return LinkState{}, errMissingLinkID
	}
	snapshot, err := r.primary.Snapshot(ctx, linkID)
	if err != nil && IsRetryable(err) && r.fallback != nil {
		r.logger.Debug("retrying snapshot via fallback", zap.String("link_id", linkID), zap.Error(err))
		snapshot, err = r.fallback.Snapshot(ctx, linkID)
	}
	if err == nil {
		snapshot.LinkID = linkID
		r.Seed(snapshot)
		return r.State(linkID), nil
	}
	if IsRetryable(err) {
		if override, ok := r.loadOverride(linkID); ok {
			r.mu.Lock()
			state := r.entry(linkID)
			state.Snapshot.Liked = override.Liked
			state.Snapshot.LikesCount = override.LikesCount
			state.Snapshot.Authoritative = false
			result := *state
			r.mu.Unlock()
			return result, ErrDegraded
		}
	}
	return r.State(linkID), err
}

// ToggleLike flips the viewer's like optimistically, then reconciles with the
// server's answer. A toggle on a link that is still waiting for its previous
// answer is ignored with ErrToggleInFlight.
func (r *Reconciler) ToggleLike(ctx context.Context, linkID string) (LinkState, error) {
	if strings.TrimSpace(linkID) == "" {
		return LinkState{}, errMissingLinkID
	}

	r.mu.Lock()
	state := r.entry(linkID)
	if state.Phase == PhaseOptimistic {
		result := *state
		r.mu.Unlock()
		return result, ErrToggleInFlight
	}
	previous := state.Snapshot
	optimistic := previous
	optimistic.Liked = !previous.Liked
	if optimistic.Liked {
		optimistic.LikesCount++
	} else if optimistic.LikesCount > 0 {
		optimistic.LikesCount--
	}
	optimistic.Authoritative = false
	state.Phase = PhaseOptimistic
	state.Err = nil
	state.Snapshot = optimistic
	delete(r.deferred, linkID)
	r.mu.Unlock()

	outcome, err := r.primary.ToggleLike(ctx, linkID)
	if err != nil && IsRetryable(err) && r.fallback != nil {
		r.logger.Info("retrying like toggle via fallback", zap.String("link_id", linkID), zap.Error(err))
		outcome, err = r.fallback.ToggleLike(ctx, linkID)
	}

	if err == nil {
		r.mu.Lock()
		delete(r.deferred, linkID)
		state := r.entry(linkID)
		state.Phase = PhaseIdle
		state.Err = nil
		state.Snapshot.Liked = outcome.Liked
		state.Snapshot.LikesCount = outcome.LikesCount
		state.Snapshot.Authoritative = true
		result := *state
		r.mu.Unlock()

		r.forgetOverride(linkID)
		return result, nil
	}

	if r.degradedLikes && IsRetryable(err) {
		override := LocalLike{Liked: optimistic.Liked, LikesCount: optimistic.LikesCount, SavedAt: r.clock()}
		if storeErr := r.cache.Store(r.viewerID, linkID, override); storeErr != nil {
			r.logger.Warn("like cache store failed", zap.String("link_id", linkID), zap.Error(storeErr))
		} else {
			r.logger.Warn("like kept locally", zap.String("link_id", linkID), zap.Error(err))
			r.mu.Lock()
			delete(r.deferred, linkID)
			state := r.entry(linkID)
			state.Phase = PhaseError
			state.Err = ErrDegraded
			result := *state
			r.mu.Unlock()
			return result, ErrDegraded
		}
	}

	r.mu.Lock()
	state = r.entry(linkID)
	state.Phase = PhaseError
	state.Err = err
	state.Snapshot.Liked = previous.Liked
	state.Snapshot.LikesCount = previous.LikesCount
	state.Snapshot.Authoritative = previous.Authoritative
	if snapshot, ok := r.deferred[linkID]; ok {
		delete(r.deferred, linkID)
		state.Snapshot.Liked = snapshot.LikedByViewer
		state.Snapshot.LikesCount = snapshot.LikesCount
		state.Snapshot.Authoritative = true
	}
	if likes, ok := BestKnownLikes(err); ok {
		state.Snapshot.LikesCount = likes
	}
	result := *state
	r.mu.Unlock()
	return result, err
}

// Click follows targetURL and then records the click. Navigation is never
// held back or undone by a failed record. When both transports fail
// transiently the displayed count is still incremented locally.
func (r *Reconciler) Click(ctx context.Context, linkID, targetURL string) (LinkState, error) {
	if strings.TrimSpace(linkID) == "" {
		return LinkState{}, errMissingLinkID
	}
	navigateErr := r.navigator.Navigate(ctx, targetURL)
	if navigateErr != nil {
		r.logger.Warn("navigation failed", zap.String("link_id", linkID), zap.String("target", targetURL), zap.Error(navigateErr))
	}

	clicks, err := r.primary.RecordClick(ctx, linkID)
	if err != nil && IsRetryable(err) && r.fallback != nil {
		r.logger.Info("retrying click via fallback", zap.String("link_id", linkID), zap.Error(err))
		clicks, err = r.fallback.RecordClick(ctx, linkID)
	}

	r.mu.Lock()
	state := r.entry(linkID)
	switch {
	case err == nil:
		state.Snapshot.Clicks = clicks
		state.Snapshot.PendingClicks = 0
	case IsRetryable(err):
		r.logger.Warn("click recorded locally only", zap.String("link_id", linkID), zap.Error(err))
		state.Snapshot.Clicks++
		state.Snapshot.PendingClicks++
		err = nil
	}
	result := *state
	r.mu.Unlock()

	if err != nil {
		return result, err
	}
	return result, navigateErr
}

func (r *Reconciler) entry(linkID string) *LinkState {
	state, ok := r.links[linkID]
	if !ok {
		state = &LinkState{Phase: PhaseIdle}
		r.links[linkID] = state
	}
	return state
}

func (r *Reconciler) loadOverride(linkID string) (LocalLike, bool) {
	if r.cache == nil {
		return LocalLike{}, false
	}
	override, ok, err := r.cache.Load(r.viewerID, linkID)
	if err != nil {
		r.logger.Warn("like cache load failed", zap.String("link_id", linkID), zap.Error(err))
		return LocalLike{}, false
	}
	return override, ok
}

func (r *Reconciler) forgetOverride(linkID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(r.viewerID, linkID); err != nil {
		r.logger.Warn("like cache delete failed", zap.String("link_id", linkID), zap.Error(err))
	}
}
