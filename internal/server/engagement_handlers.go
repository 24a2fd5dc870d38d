package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/YO3CODER/yolinkify-sub000/internal/engagement"
	"github.com/YO3CODER/yolinkify-sub000/internal/links"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	messageLiked          = "link liked"
	messageUnliked        = "like removed"
	errorMessageSignIn    = "sign in to like"
	errorMessageNotFound  = "link does not exist"
	errorMessageTransient = "engagement temporarily unavailable, please retry"
	errorMessageMissingID = "linkId is required"
	errorMessageInvalidID = "linkId is invalid"
	maxBeaconBodyBytes    = 4 << 10
)

type linkRequestPayload struct {
	LinkID string `json:"linkId"`
}

type toggleResponsePayload struct {
	Liked      bool   `json:"liked"`
	LikesCount int64  `json:"likesCount"`
	Message    string `json:"message"`
}

type clickResponsePayload struct {
	Clicks int64 `json:"clicks"`
}

type snapshotResponsePayload struct {
	LinkID        string `json:"linkId"`
	LikesCount    int64  `json:"likesCount"`
	LikedByViewer bool   `json:"likedByViewer"`
	Clicks        int64  `json:"clicks"`
}

func (h *httpHandler) handleToggleLike(c *gin.Context) {
	var request linkRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorMessageMissingID})
		return
	}
	linkID, ok := parseLinkID(c, request.LinkID)
	if !ok {
		return
	}

	if resolveErr, failed := c.Get(viewerErrorContextKey); failed {
		err, _ := resolveErr.(error)
		h.respondEngagementError(c, linkID, errors.Join(engagement.ErrTransient, err), true)
		return
	}

	viewerID := engagement.ViewerID(c.GetString(viewerIDContextKey))
	ctx, cancel := h.storeContext(c.Request.Context())
	result, err := h.toggles.Toggle(ctx, linkID, viewerID)
	cancel()
	if err != nil {
		h.respondEngagementError(c, linkID, err, true)
		return
	}

	message := messageUnliked
	if result.Liked {
		message = messageLiked
	}
	c.JSON(http.StatusOK, toggleResponsePayload{
		Liked:      result.Liked,
		LikesCount: result.LikeCount,
		Message:    message,
	})
	h.publishChange(c.Request.Context(), linkID, RealtimeEventLikeChanged)
}

func (h *httpHandler) handleRecordClick(c *gin.Context) {
	var request linkRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorMessageMissingID})
		return
	}
	linkID, ok := parseLinkID(c, request.LinkID)
	if !ok {
		return
	}
	h.recordClick(c, linkID)
}

// handleClickBeacon accepts clicks sent while the page unloads. Beacons may
// carry the link in the query string or as a JSON body of any content type.
func (h *httpHandler) handleClickBeacon(c *gin.Context) {
	rawLinkID := c.Query("linkId")
	if strings.TrimSpace(rawLinkID) == "" {
		body, err := readLimitedBody(c, maxBeaconBodyBytes)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errorMessageMissingID})
			return
		}
		var request linkRequestPayload
		if len(body) > 0 {
			if err := json.Unmarshal(body, &request); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": errorMessageMissingID})
				return
			}
		}
		rawLinkID = request.LinkID
	}
	linkID, ok := parseLinkID(c, rawLinkID)
	if !ok {
		return
	}
	h.recordClick(c, linkID)
}

func (h *httpHandler) recordClick(c *gin.Context, linkID links.LinkID) {
	ctx, cancel := h.storeContext(c.Request.Context())
	result, err := h.clicks.RecordClick(ctx, linkID)
	cancel()
	if err != nil {
		h.respondEngagementError(c, linkID, err, false)
		return
	}
	c.JSON(http.StatusOK, clickResponsePayload{Clicks: result.ClickCount})
	h.publishChange(c.Request.Context(), linkID, RealtimeEventClickChanged)
}

func (h *httpHandler) handleSnapshot(c *gin.Context) {
	linkID, ok := parseLinkID(c, c.Param("linkId"))
	if !ok {
		return
	}
	viewerID := engagement.ViewerID(c.GetString(viewerIDContextKey))

	ctx, cancel := h.storeContext(c.Request.Context())
	snapshot, err := h.snapshots.Snapshot(ctx, linkID, viewerID)
	cancel()
	if err != nil {
		h.respondEngagementError(c, linkID, err, false)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, snapshotResponsePayload{
		LinkID:        snapshot.LinkID.String(),
		LikesCount:    snapshot.LikeCount,
		LikedByViewer: snapshot.LikedByViewer,
		Clicks:        snapshot.ClickCount,
	})
}

// respondEngagementError maps the engagement error kinds onto HTTP statuses.
// Like failures carry the best-known count when a fresh read succeeds.
func (h *httpHandler) respondEngagementError(c *gin.Context, linkID links.LinkID, err error, withLikes bool) {
	var (
		status int
		body   gin.H
	)
	switch {
	case errors.Is(err, engagement.ErrInvalidInput):
		status, body = http.StatusBadRequest, gin.H{"error": errorMessageInvalidID}
	case errors.Is(err, engagement.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errorMessageNotFound})
		return
	case errors.Is(err, engagement.ErrUnauthenticated):
		status, body = http.StatusUnauthorized, gin.H{"error": errorMessageSignIn}
	default:
		h.logger.Warn("engagement request failed",
			zap.String("link_id", linkID.String()),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		status, body = http.StatusServiceUnavailable, gin.H{"error": errorMessageTransient}
	}
	if withLikes {
		if likes, ok := h.bestKnownLikes(c.Request.Context(), linkID); ok {
			body["likesCount"] = likes
		}
	}
	c.JSON(status, body)
}

func (h *httpHandler) bestKnownLikes(parent context.Context, linkID links.LinkID) (int64, bool) {
	ctx, cancel := h.storeContext(parent)
	defer cancel()
	likes, err := h.snapshots.LikeCount(ctx, linkID)
	if err != nil {
		return 0, false
	}
	return likes, true
}

// publishChange broadcasts fresh aggregate counts to the link's stream
// subscribers after a committed mutation.
func (h *httpHandler) publishChange(parent context.Context, linkID links.LinkID, eventType string) {
	if h.realtime == nil || h.realtime.SubscriberCount(linkID.String()) == 0 {
		return
	}
	ctx, cancel := h.storeContext(parent)
	defer cancel()
	snapshot, err := h.snapshots.Snapshot(ctx, linkID, engagement.ViewerID(""))
	if err != nil {
		h.logger.Debug("realtime snapshot failed", zap.String("link_id", linkID.String()), zap.Error(err))
		return
	}
	h.realtime.Publish(RealtimeMessage{
		LinkID:     linkID.String(),
		EventType:  eventType,
		LikesCount: snapshot.LikeCount,
		Clicks:     snapshot.ClickCount,
		Timestamp:  time.Now().UTC(),
	})
}

func parseLinkID(c *gin.Context, raw string) (links.LinkID, bool) {
	if strings.TrimSpace(raw) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorMessageMissingID})
		return "", false
	}
	linkID, err := links.NewLinkID(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorMessageInvalidID})
		return "", false
	}
	return linkID, true
}

func readLimitedBody(c *gin.Context, limit int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	return c.GetRawData()
}
