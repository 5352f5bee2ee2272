package explorer

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brewgator/block-explorer/internal/metrics"
	"github.com/brewgator/block-explorer/internal/rpc"
)

// Status tags the ViewState union.
type Status string

const (
	StatusNone        Status = "none"
	StatusLoading     Status = "loading"
	StatusError       Status = "error"
	StatusTransaction Status = "transaction"
	StatusBlock       Status = "block"
	StatusBalance     Status = "balance"
)

// ViewState is what the page currently shows. At most one of Transaction,
// Block and Balance is set, and only when Status names it.
type ViewState struct {
	Status      Status           `json:"status"`
	Lookup      Kind             `json:"lookup,omitempty"`
	Query       string           `json:"query,omitempty"`
	Error       string           `json:"error,omitempty"`
	ErrorKind   rpc.Kind         `json:"error_kind,omitempty"`
	Transaction *TransactionView `json:"transaction,omitempty"`
	Block       *BlockView       `json:"block,omitempty"`
	Balance     *BalanceView     `json:"balance,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Loading reports whether a lookup is in flight.
func (v ViewState) Loading() bool { return v.Status == StatusLoading }

// HasResult reports whether a result payload is being shown.
func (v ViewState) HasResult() bool {
	return v.Transaction != nil || v.Block != nil || v.Balance != nil
}

// Recorder receives one entry per completed lookup.
type Recorder interface {
	RecordSearch(ctx context.Context, kind, input, status, errorKind string) error
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLastResolvedWins lets whichever lookup finishes last write the state,
// even if a newer one was submitted after it.
func WithLastResolvedWins() SessionOption {
	return func(s *Session) { s.lastResolvedWins = true }
}

func WithRecorder(r Recorder) SessionOption {
	return func(s *Session) { s.recorder = r }
}

func WithMetrics(m *metrics.Store) SessionOption {
	return func(s *Session) { s.metrics = m }
}

func WithLogger(l *zap.SugaredLogger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// Session owns one ViewState and is its only writer.
//
// Every Submit bumps a generation counter. By default a lookup may only
// publish its outcome if no newer lookup was submitted meanwhile, so a slow
// stale reply can never overwrite a fresher one.
type Session struct {
	env Env

	mu         sync.Mutex
	state      ViewState
	generation uint64

	lastResolvedWins bool
	recorder         Recorder
	metrics          *metrics.Store
	logger           *zap.SugaredLogger
	now              func() time.Time
}

func NewSession(env Env, opts ...SessionOption) *Session {
	s := &Session{
		env:    env,
		state:  ViewState{Status: StatusNone},
		logger: zap.NewNop().Sugar(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a copy of the current view state.
func (s *Session) State() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Submit runs q and returns the resulting state. Blank input is a no-op:
// no node call is made and the current state is returned untouched.
// Otherwise the previous result is cleared at once, before the node answers.
func (s *Session) Submit(ctx context.Context, q Query) ViewState {
	if IsBlank(q) {
		return s.State()
	}
	input := strings.TrimSpace(q.Input())

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.state = ViewState{
		Status:    StatusLoading,
		Lookup:    q.Kind(),
		Query:     input,
		UpdatedAt: s.now(),
	}
	s.mu.Unlock()

	result, err := q.Run(ctx, s.env)
	next := s.outcome(q, input, result, err)
	s.observe(ctx, q, input, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastResolvedWins && gen != s.generation {
		s.logger.Debugw("dropping stale lookup result", "lookup", q.Kind(), "query", input)
		return s.state
	}
	s.state = next
	return next
}

// Reset returns the session to StatusNone and fences any in-flight lookup.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.state = ViewState{Status: StatusNone, UpdatedAt: s.now()}
}

func (s *Session) outcome(q Query, input string, result Result, err error) ViewState {
	state := ViewState{Lookup: q.Kind(), Query: input, UpdatedAt: s.now()}
	if err != nil {
		state.Status = StatusError
		state.Error = UserMessage(q, err)
		state.ErrorKind = rpc.Classify(err)
		return state
	}

	switch v := result.(type) {
	case *TransactionView:
		state.Status = StatusTransaction
		state.Transaction = v
	case *BlockView:
		state.Status = StatusBlock
		state.Block = v
	case *BalanceView:
		state.Status = StatusBalance
		state.Balance = v
	default:
		state.Status = StatusNone
	}
	return state
}

func (s *Session) observe(ctx context.Context, q Query, input string, err error) {
	status := metrics.StatusOK
	errKind := ""
	if err != nil {
		errKind = string(rpc.Classify(err))
		status = errKind
		s.logger.Infow("lookup failed", "lookup", q.Kind(), "query", input, "kind", errKind, "error", err)
	}
	s.metrics.ObserveQuery(string(q.Kind()), status)

	if s.recorder == nil {
		return
	}
	if recErr := s.recorder.RecordSearch(ctx, string(q.Kind()), input, status, errKind); recErr != nil {
		s.logger.Warnw("failed to record search", "error", recErr)
	}
}
