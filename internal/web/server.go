// Package web serves local readiness and Prometheus endpoints.
// Responses carry flags and counts only; balances are never served.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/services/startup"
)

type stateReader interface {
	State() startup.State
	Subscribe() (<-chan startup.State, func())
}

type feedStatus interface {
	Connected(symbol string) bool
}

// Server exposes /status, /status/stream and /metrics.
type Server struct {
	addr     string
	states   stateReader
	feed     feedStatus
	symbols  []string
	gatherer prometheus.Gatherer
	l        *zap.Logger
}

// NewServer creates a server. feed and gatherer may be nil.
func NewServer(addr string, states stateReader, feed feedStatus, symbols []string, gatherer prometheus.Gatherer, l *zap.Logger) *Server {
	return &Server{
		addr:     addr,
		states:   states,
		feed:     feed,
		symbols:  append([]string(nil), symbols...),
		gatherer: gatherer,
		l:        l,
	}
}

// Handler returns the routing mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/status/stream", s.handleStatusStream)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("status server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "status server")
	}
	return nil
}

type statusResponse struct {
	Phase      string          `json:"phase"`
	WalletOK   bool            `json:"wallet_ok"`
	PricesOK   bool            `json:"prices_ok"`
	POIsOK     bool            `json:"pois_ok"`
	Errors     []string        `json:"errors"`
	PriceCount int             `json:"price_count"`
	POICount   int             `json:"poi_count"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Feed       map[string]bool `json:"feed,omitempty"`
}

func (s *Server) status(state startup.State) statusResponse {
	resp := statusResponse{
		Phase:      state.Phase.String(),
		WalletOK:   state.WalletOK,
		PricesOK:   state.PricesOK,
		POIsOK:     state.POIsOK,
		Errors:     state.Errors,
		PriceCount: len(state.Prices),
		POICount:   len(state.POIs),
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	if !state.FinishedAt.IsZero() {
		finished := state.FinishedAt
		resp.FinishedAt = &finished
	}
	if s.feed != nil && len(s.symbols) > 0 {
		resp.Feed = make(map[string]bool, len(s.symbols))
		for _, symbol := range s.symbols {
			resp.Feed[symbol] = s.feed.Connected(symbol)
		}
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.status(s.states.State())); err != nil {
		s.l.Warn("encode status", zap.Error(err))
	}
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	states, unsubscribe := s.states.Subscribe()
	defer unsubscribe()

	// comment heartbeat so proxies keep the connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	send := func(state startup.State) error {
		payload, err := json.Marshal(s.status(state))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(s.states.State()); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case state, ok := <-states:
			if !ok {
				return
			}
			if err := send(state); err != nil {
				return
			}
		}
	}
}
