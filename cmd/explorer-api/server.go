package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/brewgator/block-explorer/internal/db"
	"github.com/brewgator/block-explorer/internal/explorer"
	"github.com/brewgator/block-explorer/internal/metrics"
	"github.com/brewgator/block-explorer/internal/rpc"
	"github.com/brewgator/block-explorer/internal/web"
)

const (
	sessionCookie = "explorer_session"
	// MaxSearchHistory is the maximum number of history rows a single request may ask for
	MaxSearchHistory = 200
	pageSearches     = 10
)

type Server struct {
	db       *db.Database
	router   *mux.Router
	env      explorer.Env
	feed     *explorer.Feed
	sessions *explorer.SessionStore
	renderer *web.Renderer
	metrics  *metrics.Store
	logger   *zap.SugaredLogger
	network  string
	version  string
}

type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind rpc.Kind    `json:"error_kind,omitempty"`
}

func (s *Server) setupRoutes() {
	s.router.Use(s.observeRequests)

	// API routes
	api := s.router.PathPrefix("/api").Subrouter()

	// Stateless lookups
	api.HandleFunc("/tx/{txid}", s.handleTransaction).Methods("GET")
	api.HandleFunc("/block/{locator}", s.handleBlock).Methods("GET")
	api.HandleFunc("/balance/{address}", s.handleBalance).Methods("GET")
	api.HandleFunc("/search", s.handleAPISearch).Methods("GET")

	// Browser session view state
	api.HandleFunc("/state", s.handleState).Methods("GET")

	// Feed endpoints
	api.HandleFunc("/blocks/latest", s.handleLatestBlocks).Methods("GET")
	api.HandleFunc("/transactions/latest", s.handleLatestTransactions).Methods("GET")

	// Search history
	api.HandleFunc("/searches", s.handleSearchHistory).Methods("GET")
	api.HandleFunc("/searches/stats", s.handleSearchStats).Methods("GET")
	api.HandleFunc("/searches/{id:[0-9]+}", s.handleSearchByID).Methods("GET")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Version info
	api.HandleFunc("/version", s.handleVersion).Methods("GET")

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	// Server-rendered pages
	s.router.HandleFunc("/search", s.handleSearchSubmit).Methods("GET")
	s.router.HandleFunc("/reset", s.handleReset).Methods("GET")
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)

	searches, err := s.db.GetRecentSearches(r.Context(), pageSearches)
	if err != nil {
		s.logger.Warnw("handleIndex: failed to load recent searches", "error", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.renderer.Render(w, web.Page{
		Network:  s.network,
		State:    session.State(),
		Feed:     s.feed.Latest(),
		Searches: searches,
	}); err != nil {
		s.logger.Errorw("handleIndex: failed to render page", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// handleSearchSubmit runs a lookup into the caller's session and redirects
// back to the page, which then shows the outcome.
func (s *Server) handleSearchSubmit(w http.ResponseWriter, r *http.Request) {
	query, err := explorer.NewQuery(explorer.Kind(r.URL.Query().Get("kind")), r.URL.Query().Get("q"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	session := s.session(w, r)
	session.Submit(r.Context(), query)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleReset clears the caller's result and drops any lookup still in flight.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.session(w, r).Reset()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	s.lookup(w, r, explorer.TransactionQuery{TxID: mux.Vars(r)["txid"]})
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	s.lookup(w, r, explorer.BlockQuery{Locator: mux.Vars(r)["locator"]})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	s.lookup(w, r, explorer.BalanceQuery{Address: mux.Vars(r)["address"]})
}

func (s *Server) handleAPISearch(w http.ResponseWriter, r *http.Request) {
	s.lookup(w, r, explorer.SearchQuery{Text: r.URL.Query().Get("q")})
}

// lookup runs q on a throwaway session so API callers get the same error
// collapsing, metrics and history as the page.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request, q explorer.Query) {
	if explorer.IsBlank(q) {
		s.writeError(w, http.StatusBadRequest, "Query is required", rpc.KindInvalidInput)
		return
	}

	state := s.newSession().Submit(r.Context(), q)
	if state.Status == explorer.StatusError {
		s.writeError(w, statusFor(state.ErrorKind), state.Error, state.ErrorKind)
		return
	}

	var data interface{}
	switch {
	case state.Transaction != nil:
		data = state.Transaction
	case state.Block != nil:
		data = state.Block
	case state.Balance != nil:
		data = state.Balance
	}
	s.writeJSON(w, APIResponse{Success: true, Data: data})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	s.writeJSON(w, APIResponse{Success: true, Data: session.State()})
}

func (s *Server) handleLatestBlocks(w http.ResponseWriter, r *http.Request) {
	snap := s.feed.Latest()
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"height":     snap.Height,
			"blocks":     snap.Blocks,
			"updated_at": snap.UpdatedAt,
			"error":      snap.Error,
		},
	})
}

func (s *Server) handleLatestTransactions(w http.ResponseWriter, r *http.Request) {
	snap := s.feed.Latest()
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"wallet":       s.env.Node.Wallet(),
			"transactions": snap.Transactions,
			"updated_at":   snap.UpdatedAt,
		},
	})
}

func (s *Server) handleSearchHistory(w http.ResponseWriter, r *http.Request) {
	limit := pageSearches
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > MaxSearchHistory {
			s.writeError(w, http.StatusBadRequest, "Invalid limit parameter", rpc.KindInvalidInput)
			return
		}
		limit = parsed
	}

	entries, err := s.db.GetRecentSearches(r.Context(), limit)
	if err != nil {
		s.logger.Errorw("handleSearchHistory: failed to get recent searches", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to get search history", "")
		return
	}

	s.writeJSON(w, APIResponse{Success: true, Data: entries})
}

func (s *Server) handleSearchByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid search id", rpc.KindInvalidInput)
		return
	}

	entry, err := s.db.GetSearchByID(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Search not found", rpc.KindNotFound)
		return
	}
	if err != nil {
		s.logger.Errorw("handleSearchByID: failed to get search", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to get search", "")
		return
	}

	s.writeJSON(w, APIResponse{Success: true, Data: entry})
}

func (s *Server) handleSearchStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.db.CountSearchesByKind(r.Context())
	if err != nil {
		s.logger.Errorw("handleSearchStats: failed to count searches", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to get search stats", "")
		return
	}
	s.writeJSON(w, APIResponse{Success: true, Data: counts})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "ok"
	if err := s.db.Ping(ctx); err != nil {
		status = "degraded"
		dbStatus = err.Error()
	}

	snap := s.feed.Latest()
	if snap.Error != "" {
		status = "degraded"
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":     status,
			"timestamp":  time.Now(),
			"database":   dbStatus,
			"height":     snap.Height,
			"feed_error": snap.Error,
			"mock_mode":  s.db.IsMockMode(),
		},
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"version": s.version,
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorw("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, kind rpc.Kind) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIResponse{
		Success:   false,
		Error:     message,
		ErrorKind: kind,
	}); err != nil {
		s.logger.Errorw("Failed to encode error response", "status", status, "message", message, "error", err)
	}
}

// session returns the caller's session, issuing a cookie for a new one.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *explorer.Session {
	var id string
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		id = cookie.Value
	}

	newID, session := s.sessions.Acquire(id)
	if newID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    newID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return session
}

func (s *Server) newSession() *explorer.Session {
	return explorer.NewSession(s.env,
		explorer.WithRecorder(s.db),
		explorer.WithMetrics(s.metrics),
		explorer.WithLogger(s.logger),
	)
}

func statusFor(kind rpc.Kind) int {
	switch kind {
	case rpc.KindNotFound:
		return http.StatusNotFound
	case rpc.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		if !strings.HasPrefix(route, "/metrics") {
			s.metrics.ObserveHTTP(route, rec.status)
		}
		s.logger.Debugw("http request", "method", r.Method, "route", route, "status", rec.status, "elapsed", time.Since(start))
	})
}
