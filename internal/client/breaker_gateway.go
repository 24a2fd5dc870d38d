package client

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var errMissingGateway = errors.New("client: gateway is required")

// BreakerConfig tunes the circuit breaker guarding a gateway.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns breaker settings suited to an interactive page.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      3,
	}
}

// BreakerGateway stops calling a failing transport for a while so the
// reconciler moves to its fallback without waiting on timeouts.
type BreakerGateway struct {
	next    Gateway
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerGateway wraps next in a circuit breaker. Caller errors such as an
// unknown link or a missing session do not count as failures.
func NewBreakerGateway(next Gateway, cfg BreakerConfig, logger *zap.Logger) (*BreakerGateway, error) {
	if next == nil {
		return nil, errMissingGateway
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("gateway breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isCallerError(err)
		},
	})
	return &BreakerGateway{next: next, breaker: breaker}, nil
}

// State exposes the breaker state.
func (g *BreakerGateway) State() gobreaker.State {
	return g.breaker.State()
}

func (g *BreakerGateway) ToggleLike(ctx context.Context, linkID string) (ToggleOutcome, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.ToggleLike(ctx, linkID)
	})
	if err != nil {
		return ToggleOutcome{}, translateBreakerError(err)
	}
	return result.(ToggleOutcome), nil
}

func (g *BreakerGateway) RecordClick(ctx context.Context, linkID string) (int64, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.RecordClick(ctx, linkID)
	})
	if err != nil {
		return 0, translateBreakerError(err)
	}
	return result.(int64), nil
}

func (g *BreakerGateway) Snapshot(ctx context.Context, linkID string) (ServerSnapshot, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Snapshot(ctx, linkID)
	})
	if err != nil {
		return ServerSnapshot{}, translateBreakerError(err)
	}
	return result.(ServerSnapshot), nil
}

func translateBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &GatewayError{Kind: ErrTransient, Message: err.Error()}
	}
	return err
}
