package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/repochat/repochat/internal/models"
)

// watchInterval is how often the run state is polled for watchers.
const watchInterval = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleConversationWatch streams a thread's run state over a websocket
// until the active turn reaches a terminal status.
func (s *Server) handleConversationWatch(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		s.writeError(w, http.StatusBadRequest, "thread_id is required")
		return
	}

	// Reject unknown threads before upgrading.
	if _, err := s.converser.Result(r.Context(), threadID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	var last models.RunStatus
	for {
		thread, err := s.converser.Result(r.Context(), threadID)
		if err != nil {
			s.logger.Warn("watch read failed", "thread_id", threadID, "error", err)
			return
		}

		if thread.RunStatus != last {
			last = thread.RunStatus
			if err := conn.WriteJSON(newResultResponse(threadID, thread)); err != nil {
				return
			}
		}
		if thread.RunStatus.Terminal() {
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteMessage(websocket.CloseMessage, closeMsg)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
