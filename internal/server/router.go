package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/YO3CODER/yolinkify-sub000/internal/auth"
	"github.com/YO3CODER/yolinkify-sub000/internal/engagement"
	"github.com/YO3CODER/yolinkify-sub000/internal/links"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	viewerIDContextKey       = "yolinkify_viewer_id"
	viewerErrorContextKey    = "yolinkify_viewer_error"
	defaultStoreTimeout      = 2 * time.Second
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingToggleEngine     = errors.New("toggle engine dependency required")
	errMissingClickRecorder    = errors.New("click recorder dependency required")
	errMissingSnapshotReader   = errors.New("snapshot reader dependency required")
)

// SessionValidator authenticates the viewer behind a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// ViewerResolver maps validated claims to a canonical viewer id.
type ViewerResolver interface {
	ResolveViewerID(ctx context.Context, claims auth.SessionClaims) (string, error)
}

// LikeToggler flips a viewer's like on a link.
type LikeToggler interface {
	Toggle(ctx context.Context, linkID links.LinkID, viewerID engagement.ViewerID) (engagement.ToggleResult, error)
}

// ClickCounter records link visits.
type ClickCounter interface {
	RecordClick(ctx context.Context, linkID links.LinkID) (engagement.ClickResult, error)
}

// SnapshotReader reads fresh engagement state.
type SnapshotReader interface {
	Snapshot(ctx context.Context, linkID links.LinkID, viewerID engagement.ViewerID) (engagement.Snapshot, error)
	LikeCount(ctx context.Context, linkID links.LinkID) (int64, error)
}

type Dependencies struct {
	Sessions          SessionValidator
	Viewers           ViewerResolver
	Toggles           LikeToggler
	Clicks            ClickCounter
	Snapshots         SnapshotReader
	Realtime          *RealtimeDispatcher
	MetricsHandler    http.Handler
	AllowedOrigins    []string
	StoreTimeout      time.Duration
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Toggles == nil {
		return nil, errMissingToggleEngine
	}
	if deps.Clicks == nil {
		return nil, errMissingClickRecorder
	}
	if deps.Snapshots == nil {
		return nil, errMissingSnapshotReader
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	storeTimeout := deps.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	heartbeatInterval := deps.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.Use(requestLogger(logger))

	handler := &httpHandler{
		sessions:          deps.Sessions,
		viewers:           deps.Viewers,
		toggles:           deps.Toggles,
		clicks:            deps.Clicks,
		snapshots:         deps.Snapshots,
		realtime:          realtime,
		storeTimeout:      storeTimeout,
		heartbeatInterval: heartbeatInterval,
		logger:            logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	api := router.Group("/api")
	api.Use(handler.resolveViewer)
	api.POST("/likes/toggle", handler.handleToggleLike)
	api.POST("/likes/toggle/fallback", handler.handleToggleLike)
	api.POST("/clicks", handler.handleRecordClick)
	api.POST("/clicks/beacon", handler.handleClickBeacon)
	api.GET("/links/:linkId/engagement", handler.handleSnapshot)
	api.GET("/links/:linkId/engagement/stream", handler.handleEngagementStream)

	return router, nil
}

type httpHandler struct {
	sessions          SessionValidator
	viewers           ViewerResolver
	toggles           LikeToggler
	clicks            ClickCounter
	snapshots         SnapshotReader
	realtime          *RealtimeDispatcher
	storeTimeout      time.Duration
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

// corsMiddleware answers any origin without credentials unless origins are
// configured; only configured origins may send credentials.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(startedAt)))
	}
}

// resolveViewer attaches the viewer id when the request carries a valid
// session. Requests without one continue as anonymous.
func (h *httpHandler) resolveViewer(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session validation failed", zap.Error(err))
		default:
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.Next()
		return
	}

	viewerID := claims.UserID
	if h.viewers != nil {
		resolved, resolveErr := h.viewers.ResolveViewerID(c.Request.Context(), claims)
		if resolveErr != nil {
			h.logger.Error("viewer resolution failed", zap.String("subject", claims.Subject), zap.Error(resolveErr))
			c.Set(viewerErrorContextKey, resolveErr)
			c.Next()
			return
		}
		viewerID = resolved
	}
	c.Set(viewerIDContextKey, viewerID)
	c.Next()
}

func (h *httpHandler) storeContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, h.storeTimeout)
}
