package links

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("links: database handle is required")
	errMissingOwnerID  = errors.New("links: owner id is required")
)

// IDProvider issues identifiers for new links.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return uuidProvider{}
}

func (uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// Lifecycle is told about links entering and leaving the catalog. A failing
// callback aborts the create or delete that triggered it.
type Lifecycle interface {
	LinkCreated(ctx context.Context, linkID LinkID) error
	LinkDeleted(ctx context.Context, linkID LinkID) error
}

// CatalogConfig describes the dependencies of the link catalog.
type CatalogConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	// Lifecycle is optional.
	Lifecycle Lifecycle
}

// Catalog answers link existence questions for the engagement core and offers
// the minimal create/delete needed to seed and retire links.
type Catalog struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	lifecycle  Lifecycle
}

// NewCatalog validates the configuration and returns a Catalog.
func NewCatalog(cfg CatalogConfig) (*Catalog, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		db:         cfg.Database,
		clock:      clock,
		idProvider: idProvider,
		logger:     logger,
		lifecycle:  cfg.Lifecycle,
	}, nil
}

// NewLink describes a link to publish.
type NewLink struct {
	OwnerID   string
	Title     string
	TargetURL string
}

// Create stores a new active link with a zero click counter.
func (c *Catalog) Create(ctx context.Context, input NewLink) (Link, error) {
	ownerID := strings.TrimSpace(input.OwnerID)
	if ownerID == "" {
		return Link{}, errMissingOwnerID
	}
	target, err := normalizeTargetURL(input.TargetURL)
	if err != nil {
		return Link{}, err
	}
	rawID, err := c.idProvider.NewID()
	if err != nil {
		return Link{}, fmt.Errorf("links: generate id: %w", err)
	}
	linkID, err := NewLinkID(rawID)
	if err != nil {
		return Link{}, err
	}

	link := Link{
		LinkID:           linkID.String(),
		OwnerID:          ownerID,
		Title:            strings.TrimSpace(input.Title),
		TargetURL:        target,
		Active:           true,
		CreatedAtSeconds: c.clock().UTC().Unix(),
	}
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&link).Error; err != nil {
			return fmt.Errorf("links: insert: %w", err)
		}
		if c.lifecycle != nil {
			if err := c.lifecycle.LinkCreated(ctx, linkID); err != nil {
				return fmt.Errorf("links: register: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Error("link insert failed", zap.String("link_id", link.LinkID), zap.Error(err))
		return Link{}, err
	}
	c.logger.Info("link created", zap.String("link_id", link.LinkID), zap.String("owner_id", ownerID))
	return link, nil
}

// Get loads a link by identifier.
func (c *Catalog) Get(ctx context.Context, linkID LinkID) (Link, error) {
	var link Link
	err := c.db.WithContext(ctx).Where("link_id = ?", linkID.String()).Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Link{}, fmt.Errorf("%w: %s", ErrLinkNotFound, linkID)
	}
	if err != nil {
		return Link{}, fmt.Errorf("links: get: %w", err)
	}
	return link, nil
}

// Exists reports whether a link with the identifier is stored.
func (c *Catalog) Exists(ctx context.Context, linkID LinkID) (bool, error) {
	var count int64
	if err := c.db.WithContext(ctx).Model(&Link{}).Where("link_id = ?", linkID.String()).Count(&count).Error; err != nil {
		return false, fmt.Errorf("links: exists: %w", err)
	}
	return count > 0, nil
}

// IDs lists the identifiers of every stored link.
func (c *Catalog) IDs(ctx context.Context) ([]LinkID, error) {
	var raw []string
	if err := c.db.WithContext(ctx).Model(&Link{}).Order("link_id").Pluck("link_id", &raw).Error; err != nil {
		return nil, fmt.Errorf("links: list ids: %w", err)
	}
	ids := make([]LinkID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, LinkID(id))
	}
	return ids, nil
}

// Delete removes a link together with its like memberships and, through the
// lifecycle, any engagement state kept outside the database.
func (c *Catalog) Delete(ctx context.Context, linkID LinkID) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("link_id = ?", linkID.String()).Delete(&Link{})
		if result.Error != nil {
			return fmt.Errorf("links: delete: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrLinkNotFound, linkID)
		}
		if err := tx.Where("link_id = ?", linkID.String()).Delete(&LikeMembership{}).Error; err != nil {
			return fmt.Errorf("links: purge likes: %w", err)
		}
		if c.lifecycle != nil {
			if err := c.lifecycle.LinkDeleted(ctx, linkID); err != nil {
				return fmt.Errorf("links: purge engagement: %w", err)
			}
		}
		return nil
	})
}

func normalizeTargetURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTargetURL)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTargetURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTargetURL, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidTargetURL)
	}
	return parsed.String(), nil
}
