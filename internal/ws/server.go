package ws

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Server struct {
	hub      *Hub
	upgrader *websocket.Upgrader
	log      *zap.Logger
}

func NewServer(hub *Hub, log *zap.Logger) *Server {
	return &Server{
		hub: hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Origin policy belongs to the fronting proxy
			},
		},
		log: log,
	}
}

// HandleConnections upgrades the client and runs the connection until
// it drops. The handshake must carry a numeric userId; anything else
// is rejected before the upgrade and nothing is registered.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil || userID <= 0 {
		s.log.Warn("rejecting handshake without valid userId",
			zap.String("remote_addr", r.RemoteAddr))
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := NewConnection(s.hub, conn, userID, uuid.NewString())
	if err := c.Handle(r.Context()); err != nil {
		s.log.Debug("connection closed with error",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}
