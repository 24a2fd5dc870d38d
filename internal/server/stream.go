package server

import (
	"io"
	"time"

	"github.com/YO3CODER/yolinkify-sub000/internal/engagement"
	"github.com/gin-gonic/gin"
)

const realtimeEventSnapshot = "snapshot"

type realtimeEventPayload struct {
	LinkID     string `json:"linkId"`
	LikesCount int64  `json:"likesCount"`
	Clicks     int64  `json:"clicks"`
	Source     string `json:"source"`
	Timestamp  int64  `json:"timestamp"`
}

type heartbeatPayload struct {
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
}

// handleEngagementStream sends the current counts, then one event per
// committed change on the link until the client disconnects.
func (h *httpHandler) handleEngagementStream(c *gin.Context) {
	linkID, ok := parseLinkID(c, c.Param("linkId"))
	if !ok {
		return
	}

	ctx, cancel := h.storeContext(c.Request.Context())
	snapshot, err := h.snapshots.Snapshot(ctx, linkID, engagement.ViewerID(""))
	cancel()
	if err != nil {
		h.respondEngagementError(c, linkID, err, false)
		return
	}

	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), linkID.String())
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent(realtimeEventSnapshot, realtimeEventPayload{
		LinkID:     linkID.String(),
		LikesCount: snapshot.LikeCount,
		Clicks:     snapshot.ClickCount,
		Source:     realtimeSourceBackend,
		Timestamp:  time.Now().UTC().Unix(),
	})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				LinkID:     message.LinkID,
				LikesCount: message.LikesCount,
				Clicks:     message.Clicks,
				Source:     realtimeSourceBackend,
				Timestamp:  message.Timestamp.Unix(),
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{
				Source:    realtimeSourceBackend,
				Timestamp: tick.UTC().Unix(),
			})
			return true
		}
	})
}
