package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Faultbox/bimstream/internal/logger"
)

const writeWait = 10 * time.Second

// Source produces the messages replayed to each client.
type Source interface {
	Messages() ([]Message, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() ([]Message, error)

func (f SourceFunc) Messages() ([]Message, error) { return f() }

// Server replays a scene over websocket at /stream and describes it at
// /scene.
type Server struct {
	source   Source
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewServer creates a server replaying source.
func NewServer(source Source) *Server {
	return &Server{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 << 10,
		},
		log: logger.Named("stream"),
	}
}

// Handler returns the routed handler with request logging and panic
// recovery.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/stream", s.handleStream)
	r.HandleFunc("/scene", s.handleScene).Methods(http.MethodGet)

	access := zap.NewStdLog(s.log.Named("http")).Writer()
	return handlers.RecoveryHandler()(handlers.LoggingHandler(access, r))
}

// ListenAndServe serves Handler on addr until ctx is done, then shuts the
// listener down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	s.log.Info("serving scene", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.source.Messages()
	if err != nil {
		s.log.Error("loading scene", zap.Error(err))
		http.Error(w, "scene unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for _, m := range msgs {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := conn.WriteJSON(m); err != nil {
			s.log.Warn("write failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
	}

	closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "scene complete")
	if err := conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(writeWait)); err != nil {
		s.log.Debug("close failed", zap.Error(err))
	}
	s.log.Debug("scene sent", zap.String("remote", r.RemoteAddr), zap.Int("messages", len(msgs)))
}

// Summary counts the messages of a scene by kind.
type Summary struct {
	Messages int          `json:"messages"`
	Kinds    map[Kind]int `json:"kinds"`
}

// Summarize counts msgs by kind.
func Summarize(msgs []Message) Summary {
	s := Summary{Messages: len(msgs), Kinds: make(map[Kind]int)}
	for _, m := range msgs {
		s.Kinds[m.Kind]++
	}
	return s
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.source.Messages()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(Summarize(msgs)); err != nil {
		s.log.Debug("encoding summary", zap.Error(err))
	}
}
