package viewers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/YO3CODER/yolinkify-sub000/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultProvider = "default"

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("viewers: invalid identity")

// ResolverConfig describes the dependencies required for viewer resolution.
type ResolverConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Resolver turns validated session claims into canonical viewer ids.
type Resolver struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

// NewResolver constructs the identity resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("viewers: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// ResolveViewerID returns the canonical viewer id for the session claims,
// recording the identity the first time a provider and subject pair is seen.
func (r *Resolver) ResolveViewerID(ctx context.Context, claims auth.SessionClaims) (string, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return "", ErrInvalidIdentity
	}

	cacheKey := provider + ":" + subject
	if cached, ok := r.cache.Load(cacheKey); ok {
		if viewerID, ok := cached.(string); ok {
			return viewerID, nil
		}
	}

	now := r.now().UTC()
	candidate := Identity{
		Provider:    provider,
		Subject:     subject,
		ViewerID:    subject,
		Email:       normalize(claims.UserEmail),
		DisplayName: normalize(claims.UserDisplayName),
		LastSeenAt:  now,
	}
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate).Error; err != nil {
		return "", fmt.Errorf("viewers: record identity: %w", err)
	}

	var identity Identity
	if err := db.Where("provider = ? AND subject = ?", provider, subject).Take(&identity).Error; err != nil {
		return "", fmt.Errorf("viewers: load identity: %w", err)
	}
	r.touch(ctx, identity, candidate)

	r.cache.Store(cacheKey, identity.ViewerID)
	return identity.ViewerID, nil
}

// touch refreshes profile fields that changed since the identity was stored.
func (r *Resolver) touch(ctx context.Context, stored, observed Identity) {
	updates := map[string]interface{}{"last_seen_at": observed.LastSeenAt}
	if observed.Email != "" && observed.Email != stored.Email {
		updates["viewer_email"] = observed.Email
	}
	if observed.DisplayName != "" && observed.DisplayName != stored.DisplayName {
		updates["viewer_display_name"] = observed.DisplayName
	}
	err := r.db.WithContext(ctx).Model(&Identity{}).
		Where("provider = ? AND subject = ?", stored.Provider, stored.Subject).
		Updates(updates).
		Error
	if err != nil {
		r.logger.Warn("viewer identity refresh failed",
			zap.String("provider", stored.Provider),
			zap.String("viewer_id", stored.ViewerID),
			zap.Error(err))
	}
}

func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := defaultProvider
	subject := normalize(claims.Subject)

	raw := normalize(claims.UserID)
	if raw != "" {
		if strings.Contains(raw, ":") {
			segments := strings.SplitN(raw, ":", 2)
			if normalize(segments[0]) != "" && normalize(segments[1]) != "" {
				provider = normalize(segments[0])
				subject = normalize(segments[1])
			}
		} else if subject == "" {
			subject = raw
		}
	}

	if subject == "" {
		subject = normalize(claims.UserEmail)
	}

	return provider, subject
}
