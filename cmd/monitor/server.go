package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"token-buy-monitor/internal/broadcast"
	"token-buy-monitor/internal/ingestion"
	"token-buy-monitor/internal/observability"
	"token-buy-monitor/internal/storage"
)

// Server exposes the monitor over HTTP: webhook intake, status, recent
// buys, live push, health, and metrics.
type Server struct {
	mint        string
	minSpend    float64
	pipeline    *ingestion.Pipeline
	store       storage.BuyEventStore
	broadcaster *broadcast.Broadcaster
	logger      *log.Logger
	startedAt   time.Time

	source atomic.Pointer[ingestion.WSSource]
}

// setSource records the subscription source for status reporting.
func (s *Server) setSource(source *ingestion.WSSource) {
	s.source.Store(source)
}

// run serves HTTP until the context is cancelled.
func (s *Server) run(ctx context.Context, addr string) error {
	mux := http.NewServeMux()

	mux.Handle("/webhook", ingestion.NewWebhookHandler(s.pipeline, s.logger))
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/recent-buys", s.handleRecentBuys)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("HTTP server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status       string          `json:"status"`
	Mint         string          `json:"mint"`
	MinSpend     float64         `json:"minSpend"`
	Uptime       string          `json:"uptime"`
	Subscription string          `json:"subscription"`
	Subscribers  int             `json:"subscribers"`
	TotalBuys    uint64          `json:"totalBuys"`
	Pipeline     ingestion.Stats `json:"pipeline"`
}

// handleStatus returns monitor status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	subscription := "disabled"
	if source := s.source.Load(); source != nil {
		subscription = source.State().String()
	}

	resp := StatusResponse{
		Status:       "running",
		Mint:         s.mint,
		MinSpend:     s.minSpend,
		Uptime:       time.Since(s.startedAt).String(),
		Subscription: subscription,
		Subscribers:  s.broadcaster.Len(),
		TotalBuys:    s.store.Count(),
		Pipeline:     s.pipeline.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleRecentBuys returns retained buy events, newest first. An optional
// limit query parameter caps the result.
func (s *Server) handleRecentBuys(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events := s.store.Snapshot(limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"count": len(events),
		"buys":  events,
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Push is public read-only data; any origin may subscribe.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades the connection and streams buy events until the client
// disconnects or falls behind.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	id, events := s.broadcaster.Register()
	observability.UpdateSubscribers(s.broadcaster.Len())
	s.logger.Printf("Push subscriber %d connected from %s", id, r.RemoteAddr)

	defer func() {
		s.broadcaster.Deregister(id)
		observability.UpdateSubscribers(s.broadcaster.Len())
		conn.Close()
		s.logger.Printf("Push subscriber %d disconnected", id)
	}()

	// Reader only detects client close; subscribers never send data.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				// Dropped by the broadcaster for falling behind.
				observability.RecordSubscriberDropped()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
