package daemon

import (
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"clovis/internal/logging"
	"clovis/internal/progress"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const socketWriteTimeout = 10 * time.Second

// handleProgressSocket upgrades the connection and relays the project's
// progress events. Inbound {"type":"ping"} frames get a pong event back.
func (s *apiServer) handleProgressSocket(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/ws/progress/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if _, err := s.projectSvc.Describe(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log().Warn("websocket upgrade failed", logging.Error(err))
		return
	}

	sub := s.daemon.hub.Subscribe(id)
	socket := &progressSocket{
		conn:      conn,
		sub:       sub,
		projectID: id,
		logger:    s.log(),
	}
	socket.run(r.Context().Done())
}

type progressSocket struct {
	conn      *websocket.Conn
	sub       *progress.Subscriber
	projectID string
	logger    *slog.Logger
}

func (p *progressSocket) run(cancel <-chan struct{}) {
	defer p.sub.Close()
	defer p.conn.Close()

	pings := make(chan struct{}, 4)
	done := make(chan struct{})
	go p.readLoop(pings, done)

	for {
		select {
		case evt, ok := <-p.sub.Events():
			if !ok {
				return
			}
			if !p.write(evt) {
				return
			}
		case <-pings:
			pong := progress.Event{Type: progress.TypePong, ProjectID: p.projectID}
			if !p.write(pong) {
				return
			}
		case <-done:
			return
		case <-cancel:
			return
		}
	}
}

// readLoop drains inbound frames so close frames are processed and ping
// requests reach the writer.
func (p *progressSocket) readLoop(pings chan<- struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := p.conn.ReadJSON(&msg); err != nil {
			return
		}
		if strings.EqualFold(msg.Type, "ping") {
			select {
			case pings <- struct{}{}:
			default:
			}
		}
	}
}

func (p *progressSocket) write(evt progress.Event) bool {
	_ = p.conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
	if err := p.conn.WriteJSON(evt); err != nil {
		p.logger.Debug("progress socket write failed",
			logging.String(logging.FieldProjectID, p.projectID),
			logging.Error(err))
		return false
	}
	return true
}
