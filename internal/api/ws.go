package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"autosub/internal/logging"
	"autosub/internal/progress"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The daemon binds to loopback; cross-origin dashboards are allowed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is the frame sent over progress sockets. Snapshot frames carry the
// stored job or batch view; event frames carry a live bus event.
type wsMessage struct {
	Kind  string          `json:"kind"`
	Job   *JobView        `json:"job,omitempty"`
	Batch *BatchView      `json:"batch,omitempty"`
	Event *progress.Event `json:"event,omitempty"`
}

// handleJobSocket streams progress for one job: a snapshot frame first, then
// bus events until the job reaches a terminal status or the client leaves.
func (s *Server) handleJobSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.deps.Store.GetJob(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if job == nil {
		s.writeErrorMessage(w, http.StatusNotFound, "job not found")
		return
	}

	// Subscribe before the snapshot so no event can fall between them.
	var sub *progress.Subscription
	if s.deps.Bus != nil && !job.Status.IsTerminal() {
		sub = s.deps.Bus.Subscribe(id)
		defer sub.Close()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	go discardReads(conn)

	view := FromJob(job)
	if !s.writeFrame(conn, wsMessage{Kind: "snapshot", Job: &view}) {
		return
	}
	if job.Status.IsTerminal() || sub == nil {
		return
	}
	s.streamEvents(r, conn, sub)
}

// handleBatchSocket streams progress for a batch: a snapshot with all members,
// then every member's bus events. The stream ends when the batch goes terminal.
func (s *Server) handleBatchSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, err := s.deps.Store.GetBatch(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if b == nil {
		s.writeErrorMessage(w, http.StatusNotFound, "batch not found")
		return
	}
	jobs, err := s.deps.Store.ListBatchJobs(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var subs []*progress.Subscription
	if s.deps.Bus != nil && !b.IsTerminal() {
		for _, job := range jobs {
			if job.Status.IsTerminal() {
				continue
			}
			sub := s.deps.Bus.Subscribe(job.ID)
			defer sub.Close()
			subs = append(subs, sub)
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	go discardReads(conn)

	view := FromBatch(b, jobs)
	if !s.writeFrame(conn, wsMessage{Kind: "snapshot", Batch: &view}) {
		return
	}
	if b.IsTerminal() || len(subs) == 0 {
		return
	}

	merged := make(chan progress.Event, 64)
	done := make(chan struct{})
	defer close(done)
	for _, sub := range subs {
		go func(sub *progress.Subscription) {
			for ev := range sub.Events() {
				select {
				case merged <- ev:
				case <-done:
					return
				}
			}
		}(sub)
	}

	remaining := len(subs)
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for remaining > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !s.writePing(conn) {
				return
			}
		case ev := <-merged:
			if !s.writeFrame(conn, wsMessage{Kind: "event", Event: &ev}) {
				return
			}
			if ev.Type == progress.EventTerminal {
				remaining--
			}
		}
	}
}

// streamEvents forwards one subscription until it closes or a terminal event
// arrives.
func (s *Server) streamEvents(r *http.Request, conn *websocket.Conn, sub *progress.Subscription) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !s.writePing(conn) {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if !s.writeFrame(conn, wsMessage{Kind: "event", Event: &ev}) {
				return
			}
			if ev.Type == progress.EventTerminal && ev.Status.IsTerminal() {
				return
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, msg wsMessage) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debug("websocket write failed", logging.Error(err))
		return false
	}
	return true
}

func (s *Server) writePing(conn *websocket.Conn) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.PingMessage, nil) == nil
}

// discardReads drains client frames so control messages are processed. The
// stream is one-way; any read error just ends the pump.
func discardReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
