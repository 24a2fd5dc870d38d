package client

import (
	"context"
	"sync"
)

type toggleReply struct {
	outcome ToggleOutcome
	err     error
}

type clickReply struct {
	clicks int64
	err    error
}

type snapshotReply struct {
	snapshot ServerSnapshot
	err      error
}

// scriptedGateway replays queued replies in order and repeats the last one.
type scriptedGateway struct {
	mu        sync.Mutex
	toggles   []toggleReply
	clicks    []clickReply
	snapshots []snapshotReply
	calls     map[string]int
	// release, when set, holds ToggleLike until it is closed.
	release chan struct{}
	entered chan struct{}
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{calls: make(map[string]int)}
}

func (g *scriptedGateway) callCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

func (g *scriptedGateway) ToggleLike(ctx context.Context, linkID string) (ToggleOutcome, error) {
	g.mu.Lock()
	g.calls["toggle"]++
	reply := toggleReply{err: transientError()}
	if len(g.toggles) > 0 {
		reply = g.toggles[0]
		if len(g.toggles) > 1 {
			g.toggles = g.toggles[1:]
		}
	}
	release, entered := g.release, g.entered
	g.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ToggleOutcome{}, ctx.Err()
		}
	}
	return reply.outcome, reply.err
}

func (g *scriptedGateway) RecordClick(_ context.Context, _ string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["click"]++
	reply := clickReply{err: transientError()}
	if len(g.clicks) > 0 {
		reply = g.clicks[0]
		if len(g.clicks) > 1 {
			g.clicks = g.clicks[1:]
		}
	}
	return reply.clicks, reply.err
}

func (g *scriptedGateway) Snapshot(_ context.Context, _ string) (ServerSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["snapshot"]++
	reply := snapshotReply{err: transientError()}
	if len(g.snapshots) > 0 {
		reply = g.snapshots[0]
		if len(g.snapshots) > 1 {
			g.snapshots = g.snapshots[1:]
		}
	}
	return reply.snapshot, reply.err
}

func transientError() error {
	return &GatewayError{Kind: ErrTransient, Status: 503, Message: "engagement temporarily unavailable"}
}

func transientErrorWithLikes(likes int64) error {
	return &GatewayError{Kind: ErrTransient, Status: 503, Message: "engagement temporarily unavailable", LikesCount: &likes}
}

type recordingNavigator struct {
	mu      sync.Mutex
	visited []string
	err     error
	// onNavigate observes gateway call counts at navigation time.
	onNavigate func()
}

func (n *recordingNavigator) Navigate(_ context.Context, targetURL string) error {
	if n.onNavigate != nil {
		n.onNavigate()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visited = append(n.visited, targetURL)
	return n.err
}
