package actor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/sirupsen/logrus"
)

const (
	defaultResultsLimit = 100
	maxSubmissionSize   = 1 << 20
)

type Config struct {
	Addr    string
	Network *Network
	Logger  *logrus.Logger
}

// Server exposes a Network over HTTP: POST / accepts submissions and
// GET /results/{process} pages through a process's output.
type Server struct {
	config   Config
	network  *Network
	logger   *logrus.Logger
	listener net.Listener
	http     *http.Server
}

func NewServer(cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}
	network := cfg.Network
	if network == nil {
		network = NewNetwork(log)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:   cfg,
		network:  network,
		logger:   log,
		listener: ln,
	}
	s.http = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) URL() string {
	return "http://" + s.Addr()
}

func (s *Server) Network() *Network { return s.network }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{$}", s.handleSubmit)
	mux.HandleFunc("GET /results/{process}", s.handleResults)
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.Addr()).Info("Actor server started")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		_ = s.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down actor server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	// Shutdown does not close a listener that was never served.
	_ = s.listener.Close()
	return nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub protocol.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionSize)).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ack, err := s.network.Submit(r.Context(), sub.Envelope, sub.Target)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrUnknownProcess) {
			status = http.StatusNotFound
		}
		s.logger.WithField("target", sub.Target).WithError(err).Warn("Rejected submission")
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusAccepted, ack)
}

type resultMessage struct {
	Target string         `json:"Target"`
	Tags   []protocol.Tag `json:"Tags"`
	Data   string         `json:"Data"`
}

type resultEdge struct {
	Cursor string `json:"cursor"`
	Node   struct {
		Messages []resultMessage `json:"Messages"`
	} `json:"node"`
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	process := r.PathValue("process")
	q := r.URL.Query()

	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultResultsLimit
	}

	events, _, err := s.network.Results(r.Context(), process, q.Get("from"), limit)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrUnknownProcess) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}

	edges := make([]resultEdge, 0, len(events))
	for _, ev := range events {
		var edge resultEdge
		edge.Cursor = cursorOf(ev.ID)
		tags := []protocol.Tag{{Name: protocol.TagAction, Value: ev.Action.String()}}
		if ev.Reference != "" {
			tags = append(tags, protocol.Tag{Name: protocol.TagReference, Value: ev.Reference})
		}
		edge.Node.Messages = []resultMessage{{Target: ev.Target, Tags: tags, Data: string(ev.Data)}}
		edges = append(edges, edge)
	}

	writeJSON(w, http.StatusOK, map[string]any{"edges": edges})
}

// cursorOf strips the process prefix from an event id.
func cursorOf(id string) string {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == ':' {
			return id[i+1:]
		}
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
