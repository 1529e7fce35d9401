// Package session keeps the open checkout sessions of a server process. Each
// session owns its own cart and settlement processor; nothing is shared
// between sessions except the bill service they settle against.
package session

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/contribution"
	"salonpos/backend/internal/metrics"
	"salonpos/backend/internal/settlement"
	"salonpos/backend/internal/xid"
)

var ErrNotFound = apperr.New(apperr.CodeNotFound, "checkout session not found")

// SplitterSource builds a contribution splitter over the current roster of a
// store.
type SplitterSource interface {
	Splitter(ctx context.Context, storeID string) (*contribution.Splitter, error)
}

type Config struct {
	DefaultStoreID string
	Unit           int64
	// IdleTTL closes sessions untouched for longer than this. Zero keeps them
	// until closed explicitly.
	IdleTTL time.Duration
	Guard   settlement.Guard
	Metrics *metrics.Settlement
	Logger  *slog.Logger
}

type entry struct {
	processor *settlement.Processor
	storeID   string
	terminal  string
	openedBy  string
	createdAt time.Time
	lastUsed  time.Time
}

// Info describes an open session.
type Info struct {
	ID         string    `json:"id"`
	StoreID    string    `json:"store_id"`
	TerminalID string    `json:"terminal_id"`
	OpenedBy   string    `json:"opened_by"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

type Registry struct {
	remote   settlement.Remote
	splitter SplitterSource
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewRegistry(remote settlement.Remote, splitters SplitterSource, cfg Config) *Registry {
	if cfg.DefaultStoreID == "" {
		cfg.DefaultStoreID = "main-store"
	}
	if cfg.Guard == nil {
		cfg.Guard = settlement.NewLocalGuard()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		remote:   remote,
		splitter: splitters,
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "session"),
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*entry),
	}
}

// Open starts a session for a terminal. The splitter snapshot is taken now;
// later roster edits apply to sessions opened afterwards.
func (r *Registry) Open(ctx context.Context, storeID string, terminalID string, openedBy string) (*settlement.Processor, Info, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		storeID = r.cfg.DefaultStoreID
	}
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return nil, Info{}, apperr.New(apperr.CodeValidation, "terminal_id is required")
	}

	splitter, err := r.splitter.Splitter(ctx, storeID)
	if err != nil {
		return nil, Info{}, err
	}

	id := xid.New("sess")
	processor := settlement.NewProcessor(id, r.remote, splitter, settlement.Options{
		StoreID:    storeID,
		TerminalID: terminalID,
		Unit:       r.cfg.Unit,
		Guard:      r.cfg.Guard,
		Metrics:    r.cfg.Metrics,
		Logger:     r.cfg.Logger,
	})
	now := r.now()
	e := &entry{
		processor: processor,
		storeID:   storeID,
		terminal:  terminalID,
		openedBy:  openedBy,
		createdAt: now,
		lastUsed:  now,
	}

	r.mu.Lock()
	r.sessions[id] = e
	r.mu.Unlock()

	r.logger.Info("session opened", "session", id, "store_id", storeID, "terminal_id", terminalID)
	return processor, e.info(id), nil
}

// Get returns the processor of an open session and marks it used.
func (r *Registry) Get(id string) (*settlement.Processor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastUsed = r.now()
	return e.processor, nil
}

func (r *Registry) Info(id string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return Info{}, ErrNotFound
	}
	return e.info(id), nil
}

// List returns the open sessions of a store, oldest first. An empty store id
// lists every store.
func (r *Registry) List(storeID string) []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.sessions))
	for id, e := range r.sessions {
		if storeID != "" && e.storeID != storeID {
			continue
		}
		out = append(out, e.info(id))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close closes the session and forgets it. Calls still in flight finish but
// their results are discarded by the processor.
func (r *Registry) Close(id string) (settlement.State, error) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return settlement.State{}, ErrNotFound
	}
	state := e.processor.Close()
	r.logger.Info("session closed", "session", id, "bill_id", state.BillID, "status", state.Status)
	return state, nil
}

// Sweep closes sessions idle for longer than the configured TTL and returns
// how many were closed.
func (r *Registry) Sweep() int {
	if r.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	var stale []*entry
	for id, e := range r.sessions {
		if e.lastUsed.Before(cutoff) {
			stale = append(stale, e)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, e := range stale {
		e.processor.Close()
	}
	if len(stale) > 0 {
		r.logger.Info("idle sessions closed", "count", len(stale))
	}
	return len(stale)
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.cfg.IdleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// CloseAll closes every open session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range all {
		e.processor.Close()
	}
}

func (e *entry) info(id string) Info {
	return Info{
		ID:         id,
		StoreID:    e.storeID,
		TerminalID: e.terminal,
		OpenedBy:   e.openedBy,
		CreatedAt:  e.createdAt,
		LastUsedAt: e.lastUsed,
	}
}
