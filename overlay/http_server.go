package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/portal-overlay/overlay/audit"
	"github.com/gosuda/portal-overlay/overlay/control"
	"github.com/gosuda/portal-overlay/overlay/protocol"
	"github.com/gosuda/portal-overlay/overlay/registry"
)

const adminKeyHeader = "X-Overlay-Key"

// HTTPServer wires HTTP routes to the control hub.
type HTTPServer struct {
	hub      *control.Hub
	journal  *audit.Journal
	adminKey string
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
}

func NewHTTPServer(hub *control.Hub, journal *audit.Journal, adminKey string, gatherer prometheus.Gatherer) *HTTPServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &HTTPServer{
		hub:      hub,
		journal:  journal,
		adminKey: adminKey,
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router exposes the handler used for both relay listeners and the local port.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/ws", s.handleSession)
	r.With(s.requireAdmin).Get("/ws/admin", s.handleAdmin)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/sessions", s.handleSessions)
		r.Get("/state", s.handleState)
		r.Get("/audit", s.handleAudit)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

func (s *HTTPServer) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey != "" {
			key := r.Header.Get(adminKeyHeader)
			if key == "" {
				key = r.URL.Query().Get("key")
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.adminKey)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	client := NewClient(s.hub, false)
	id, err := s.hub.Connect(client)
	if err != nil {
		if errors.Is(err, registry.ErrCapacityExceeded) {
			log.Warn().Str("remote", r.RemoteAddr).Msg("[overlay] session refused; registry full")
		}
		http.Error(w, "server unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.Disconnect(id)
		client.Close()
		log.Error().Err(err).Msg("upgrade websocket")
		return
	}
	client.attach(id, conn)

	go client.writeLoop()
	client.readLoop()
}

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("upgrade websocket")
		return
	}
	client := NewClient(s.hub, true)
	client.attach("admin", conn)
	if err := s.hub.Observe(client); err != nil {
		_ = conn.Close()
		return
	}
	log.Info().Str("remote", r.RemoteAddr).Msg("[overlay] controller connected")

	go client.writeLoop()
	client.readLoop()
}

func (s *HTTPServer) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.hub.Sessions()
	if sessions == nil {
		sessions = []registry.Session{}
	}
	respondJSON(w, sessions)
}

func (s *HTTPServer) handleState(w http.ResponseWriter, _ *http.Request) {
	st := s.hub.State()
	respondJSON(w, protocol.AdminState{Effects: st, ChatEnabled: st.ChatEnabled})
}

func (s *HTTPServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "audit journal disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, 1000)
	}
	entries, err := s.journal.Recent(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	respondJSON(w, entries)
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		log.Debug().Err(err).Msg("encode response")
	}
}
