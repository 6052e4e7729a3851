// Package api exposes a small read-only status surface: the compiled rules,
// the last cycle outcome, and a WebSocket stream of cycle outcomes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/scenewatch/scenewatch/internal/logger"
	"github.com/scenewatch/scenewatch/internal/rules"
	"github.com/scenewatch/scenewatch/internal/scheduler"
)

// Server is the HTTP status server.
type Server struct {
	router    *mux.Router
	sched     *scheduler.Scheduler
	ruleSet   rules.Set
	upgrader  websocket.Upgrader
	httpServe *http.Server
}

type ruleView struct {
	Display int    `json:"display"`
	Pattern string `json:"pattern"`
	Scene   string `json:"scene"`
}

// NewServer creates a status server over the given scheduler and rule set.
func NewServer(sched *scheduler.Scheduler, ruleSet rules.Set) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		sched:   sched,
		ruleSet: ruleSet,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/rules", s.handleRules).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/stream", s.handleStream)
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start(port int) error {
	s.httpServe = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	logger.WithComponent("api").Info().
		Int("port", port).
		Msg("Status server listening")
	if err := s.httpServe.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the router, for serving through an external listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServe == nil {
		return nil
	}
	return s.httpServe.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	compiled := s.ruleSet.Rules()
	views := make([]ruleView, 0, len(compiled))
	for _, rule := range compiled {
		views = append(views, ruleView{
			Display: rule.Display,
			Pattern: rule.Pattern.String(),
			Scene:   rule.Scene,
		})
	}
	writeJSON(w, views)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := s.sched.LastStatus()
	if !ok {
		http.Error(w, "no cycle completed yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, status)
}

// handleStream pushes every cycle outcome over a WebSocket until the client
// disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := s.sched.Subscribe()
	defer s.sched.Unsubscribe(updates)

	// Send the current status immediately so clients need not wait a cycle.
	if status, ok := s.sched.LastStatus(); ok {
		if err := conn.WriteJSON(status); err != nil {
			return
		}
	}

	// Drain reads so a client close is noticed even between updates.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-disconnected:
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(status); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
