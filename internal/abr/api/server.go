// Package api is the demo host's HTTP/WebSocket façade onto a
// session.CoreSession, grounded on the teacher's
// pluginmodule/dashboard_api.go: a gin router, a gorilla/websocket
// broadcaster fanning every core event out to connected clients, and a
// small set of POST endpoints translating HTTP requests into the five
// external commands of spec §6. It is a demonstration harness, not a
// feature of the core itself — CoreSession has no dependency on this
// package.
package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/dashabr/internal/abr/events"
	"github.com/mantonx/dashabr/internal/abr/model"
	"github.com/mantonx/dashabr/internal/abr/session"
)

// eventKindNames mirrors spec §6's published event names; the sealed
// events.Kind enum has no String() of its own (no runtime lookup by
// name inside the core), so the host-facing name table lives here.
var eventKindNames = map[events.Kind]string{
	events.VideoBitrateChanged:      "video_bitrate_changed",
	events.AudioBitrateChanged:      "audio_bitrate_changed",
	events.FragmentLoadingStarted:   "fragment_loading_started",
	events.FragmentLoadingCompleted: "fragment_loading_completed",
	events.BufferLevelUpdated:       "buffer_level_updated",
	events.BufferTargetChanged:      "buffer_target_changed",
	events.ManifestParsed:           "manifest_parsed",
	events.RepresentationsChanged:   "representations_changed",
	events.PlaybackError:            "playback_error",
}

// wsMessage is the envelope broadcast to every connected client, shaped
// after the teacher's WebSocketMessage (Type/Data/Timestamp).
type wsMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Server wires a CoreSession's event bus to a broadcasting WebSocket
// endpoint and exposes the external commands of §6 as POST handlers.
type Server struct {
	log      hclog.Logger
	session  *session.CoreSession
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*websocket.Conn

	nowFn func() int64
}

// NewServer constructs a Server subscribed to sess's event bus. Call
// Router to obtain the gin.Engine to serve.
func NewServer(logger hclog.Logger, sess *session.CoreSession) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &Server{
		log:     logger.Named("api"),
		session: sess,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*websocket.Conn),
		nowFn:   func() int64 { return time.Now().UnixMilli() },
	}
	sess.Events().Subscribe(events.VideoBitrateChanged, 0, s.forward(events.VideoBitrateChanged))
	sess.Events().Subscribe(events.AudioBitrateChanged, 0, s.forward(events.AudioBitrateChanged))
	sess.Events().Subscribe(events.FragmentLoadingStarted, 0, s.forward(events.FragmentLoadingStarted))
	sess.Events().Subscribe(events.FragmentLoadingCompleted, 0, s.forward(events.FragmentLoadingCompleted))
	sess.Events().Subscribe(events.BufferLevelUpdated, 0, s.forward(events.BufferLevelUpdated))
	sess.Events().Subscribe(events.BufferTargetChanged, 0, s.forward(events.BufferTargetChanged))
	sess.Events().Subscribe(events.ManifestParsed, 0, s.forward(events.ManifestParsed))
	sess.Events().Subscribe(events.RepresentationsChanged, 0, s.forward(events.RepresentationsChanged))
	sess.Events().Subscribe(events.PlaybackError, 0, s.forward(events.PlaybackError))
	return s
}

func (s *Server) forward(kind events.Kind) events.Handler {
	name := eventKindNames[kind]
	return func(ev events.Event) {
		s.broadcast(wsMessage{Type: name, Data: ev.Payload, Timestamp: s.nowFn()})
	}
}

// Router builds the gin.Engine serving the WebSocket feed and command
// endpoints, grounded on DashboardAPIHandlers.RegisterRoutes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/events", s.handleWebSocket)
	r.POST("/seek", s.handleSeek)
	r.POST("/quality", s.handleQuality)
	r.POST("/abr", s.handleABR)
	r.POST("/dimensions", s.handleDimensions)
	r.POST("/playback", s.handlePlayback)
	return r
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to upgrade connection: %v", err)})
		return
	}
	defer conn.Close()

	clientID := fmt.Sprintf("client_%d", s.nowFn())
	s.mu.Lock()
	s.clients[clientID] = conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, clientID)
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) broadcast(msg wsMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, conn := range s.clients {
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Debug("dropping unresponsive client", "client", id, "error", err)
		}
	}
}

// seekRequest backs POST /seek.
type seekRequest struct {
	SeekTo float64 `json:"seekTo" binding:"required"`
}

func (s *Server) handleSeek(c *gin.Context) {
	var req seekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.session.RequestSeek(req.SeekTo)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// qualityRequest backs POST /quality, carrying the minimal Representation
// fields a caller needs to identify the target rung.
type qualityRequest struct {
	RepresentationID string `json:"representationId" binding:"required"`
	Bitrate          int64  `json:"bitrate"`
	Codecs           string `json:"codecs"`
	MimeType         string `json:"mimeType"`
	SwitchReason     string `json:"switchReason"`
}

func (s *Server) handleQuality(c *gin.Context) {
	var req qualityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rep := &model.Representation{
		ID:       req.RepresentationID,
		Bitrate:  req.Bitrate,
		Codecs:   req.Codecs,
		MimeType: req.MimeType,
	}
	s.session.RequestQualityChange(rep, req.SwitchReason)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// abrRequest backs POST /abr: {"enabled": true} re-enables ABR autonomy,
// {"enabled": false, "representationId": "..."} forces a rung and
// disables it, per force_video_bitrate_change/enable_abr in §6.
type abrRequest struct {
	Enabled          bool   `json:"enabled"`
	RepresentationID string `json:"representationId"`
	Bitrate          int64  `json:"bitrate"`
}

func (s *Server) handleABR(c *gin.Context) {
	var req abrRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Enabled {
		s.session.EnableABR()
		c.JSON(http.StatusAccepted, gin.H{"status": "abr_enabled"})
		return
	}
	s.session.ForceVideoBitrateChange(&model.Representation{ID: req.RepresentationID, Bitrate: req.Bitrate})
	c.JSON(http.StatusAccepted, gin.H{"status": "abr_disabled"})
}

// dimensionsRequest backs POST /dimensions.
type dimensionsRequest struct {
	ScreenWidth      int     `json:"screenWidth" binding:"required"`
	ScreenHeight     int     `json:"screenHeight" binding:"required"`
	DisplayWidth     int     `json:"displayWidth"`
	DisplayHeight    int     `json:"displayHeight"`
	DevicePixelRatio float64 `json:"devicePixelRatio"`
}

func (s *Server) handleDimensions(c *gin.Context) {
	var req dimensionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DevicePixelRatio <= 0 {
		req.DevicePixelRatio = 1
	}
	s.session.DimensionsChanged(req.ScreenWidth, req.ScreenHeight, req.DisplayWidth, req.DisplayHeight, req.DevicePixelRatio)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// playbackRequest backs POST /playback: action is one of
// "started"/"paused"/"ended"/"seeked"/"progress".
type playbackRequest struct {
	Action   string  `json:"action" binding:"required,oneof=started paused ended seeked progress"`
	Position float64 `json:"position"`
}

func (s *Server) handlePlayback(c *gin.Context) {
	var req playbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Action {
	case "started":
		s.session.PlaybackStarted()
	case "paused":
		s.session.PlaybackPaused()
	case "ended":
		s.session.PlaybackEnded()
	case "seeked":
		s.session.NotifySeeked(req.Position)
	case "progress":
		// playback_progress is informational only: the core samples
		// playhead() directly off the PlaybackEngine on its own 10 Hz
		// stall-check timer (§4.6), so there is nothing further to do
		// here beyond acknowledging receipt.
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
