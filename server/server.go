// Package server exposes an engine over HTTP: a JSON reply endpoint, a
// WebSocket chat endpoint and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nathoo/rivecore/engine"
	"github.com/nathoo/rivecore/types"
)

// maxMessage bounds a single request body or WebSocket frame.
const maxMessage = 64 << 10

// ReplyRequest is the body of POST /reply and of every WebSocket message.
// An empty User gets a fresh anonymous id.
type ReplyRequest struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

// ReplyResponse is what a turn returns to the client.
type ReplyResponse struct {
	User    string   `json:"user"`
	Reply   string   `json:"reply"`
	Chunks  []string `json:"chunks"`
	Topic   string   `json:"topic"`
	Matched bool     `json:"matched"`
	Errors  []string `json:"errors,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves one engine. Turns for the same user never overlap.
type Server struct {
	eng      *engine.Engine
	log      *zap.Logger
	metrics  *Metrics
	locks    *userLocks
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// New creates a server for eng with its own metrics registry.
func New(eng *engine.Engine) *Server {
	reg := prometheus.NewRegistry()
	s := &Server{
		eng:     eng,
		log:     eng.Logger().Named("server"),
		metrics: NewMetrics(reg),
		locks:   newUserLocks(),
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.mux.HandleFunc("POST /reply", s.handleReply)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// turn answers one message for user while holding the user's lock.
func (s *Server) turn(ctx context.Context, req ReplyRequest) (ReplyResponse, error) {
	if req.User == "" {
		req.User = uuid.NewString()
	}
	unlock := s.locks.lock(req.User)
	defer unlock()

	start := time.Now()
	res, err := s.eng.ProcessTurn(ctx, req.User, req.Message)
	s.metrics.observe(res, err, time.Since(start))
	if err != nil {
		return ReplyResponse{}, err
	}
	return newResponse(req.User, res), nil
}

func newResponse(user string, res types.TurnResult) ReplyResponse {
	resp := ReplyResponse{
		User:    user,
		Reply:   strings.Join(res.ReplyChunks, " "),
		Chunks:  res.ReplyChunks,
		Topic:   res.Topic,
		Matched: res.Matched,
	}
	if resp.Chunks == nil {
		resp.Chunks = []string{}
	}
	for _, e := range res.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	return resp
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req ReplyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessage)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	resp, err := s.turn(r.Context(), req)
	if err != nil {
		s.log.Error("turn failed", zap.String("user", req.User), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWS runs a chat over one WebSocket. The user comes from the "user"
// query parameter, or a fresh id is assigned for the connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessage)

	s.metrics.wsConnections.Inc()
	defer s.metrics.wsConnections.Dec()

	user := r.URL.Query().Get("user")
	if user == "" {
		user = uuid.NewString()
	}
	log := s.log.With(zap.String("user", user))
	log.Debug("websocket open")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read", zap.Error(err))
			}
			return
		}

		var req ReplyRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if err := conn.WriteJSON(errorResponse{Error: "invalid message: " + err.Error()}); err != nil {
				return
			}
			continue
		}
		req.User = user

		resp, err := s.turn(r.Context(), req)
		if err != nil {
			log.Error("turn failed", zap.Error(err))
			if err := conn.WriteJSON(errorResponse{Error: err.Error()}); err != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(resp); err != nil {
			log.Debug("websocket write", zap.Error(err))
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
