package signaling

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/1ureka/duocall/internal/protocol"
)

const pingPeriod = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes a Channel over HTTP for commands and WebSocket for
// subscriptions:
//
//	POST /calls                      create a record
//	GET  /calls/:id                  fetch a record
//	PUT  /calls/:id/:field           write offer or answer
//	POST /calls/:id/:sub             append a candidate
//	GET  /calls/:id/watch[?sub=...]  stream record or candidate changes
type Server struct {
	store  Channel
	engine *gin.Engine
}

// NewServer builds the router over store. mode is a gin mode
// ("release", "debug" or "test").
func NewServer(store Channel, mode string) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}

	r := gin.New()
	if mode == gin.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	s := &Server{store: store, engine: r}

	calls := r.Group("/calls")
	calls.POST("", s.handleCreate)
	calls.GET("/:id", s.handleGet)
	calls.GET("/:id/watch", s.handleWatch)
	calls.PUT("/:id/:field", s.handleSetField)
	calls.POST("/:id/:sub", s.handleAppend)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

type idResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// abort maps store errors onto HTTP statuses.
func abort(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrFieldExists):
		status = http.StatusConflict
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

func (s *Server) handleCreate(c *gin.Context) {
	id, err := s.store.CreateRecord(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	log.Debug().Str("module", "signaling.server").Str("call", string(id)).Msg("call created")
	c.JSON(http.StatusCreated, idResponse{ID: string(id)})
}

func (s *Server) handleGet(c *gin.Context) {
	rec, err := s.store.GetRecord(c.Request.Context(), protocol.CallID(c.Param("id")))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleSetField(c *gin.Context) {
	field, err := protocol.ParseField(c.Param("field"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var desc webrtc.SessionDescription
	if err := c.ShouldBindJSON(&desc); err != nil || desc.SDP == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid session description"})
		return
	}

	id := protocol.CallID(c.Param("id"))
	if err := s.store.SetField(c.Request.Context(), id, field, desc); err != nil {
		abort(c, err)
		return
	}
	log.Debug().Str("module", "signaling.server").Str("call", string(id)).Str("field", string(field)).Msg("field set")
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAppend(c *gin.Context) {
	sub, err := protocol.ParseSubcollection(c.Param("sub"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var cand webrtc.ICECandidateInit
	if err := c.ShouldBindJSON(&cand); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid candidate"})
		return
	}

	docID, err := s.store.AppendCandidate(c.Request.Context(), protocol.CallID(c.Param("id")), sub, cand)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, idResponse{ID: docID})
}

// handleWatch upgrades to a WebSocket and streams the record (no sub query)
// or the named candidate sub-collection until either side closes.
func (s *Server) handleWatch(c *gin.Context) {
	id := protocol.CallID(c.Param("id"))

	var sub protocol.Subcollection
	if raw := c.Query("sub"); raw != "" {
		parsed, err := protocol.ParseSubcollection(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		sub = parsed
	}

	// Reject unknown ids before upgrading so clients see a plain 404.
	if _, err := s.store.GetRecord(c.Request.Context(), id); err != nil {
		abort(c, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Str("module", "signaling.server").Err(err).Msg("ws upgrade failed")
		return
	}
	defer ws.Close()

	out := &sender{conn: ws}
	fail := func(err error) {
		log.Debug().Str("module", "signaling.server").Str("call", string(id)).Err(err).Msg("watch write failed")
		_ = ws.Close()
	}

	var unsubscribe Unsubscribe
	if sub == "" {
		unsubscribe, err = s.store.SubscribeRecord(c.Request.Context(), id, func(r protocol.CallRecord) {
			if err := out.sendRecord(r); err != nil {
				fail(err)
			}
		})
	} else {
		unsubscribe, err = s.store.SubscribeCandidates(c.Request.Context(), id, sub, func(changes []protocol.Change) {
			if err := out.sendChanges(changes); err != nil {
				fail(err)
			}
		})
	}
	if err != nil {
		out.sendError(err.Error())
		return
	}
	defer unsubscribe()

	log.Debug().Str("module", "signaling.server").Str("call", string(id)).Str("sub", string(sub)).Msg("watcher attached")
	watchUntilClosed(ws, out)
	log.Debug().Str("module", "signaling.server").Str("call", string(id)).Str("sub", string(sub)).Msg("watcher detached")
}

// watchUntilClosed drains inbound messages (watchers never send any) and
// keeps the connection alive with pings until the peer goes away.
func watchUntilClosed(ws *websocket.Conn, out *sender) {
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-readErr:
			return
		case <-ticker.C:
			if err := out.ping(); err != nil {
				return
			}
		}
	}
}
