// Package dashboard keeps the live state of mounted dashboard views.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fixora/dashboard/internal/coordinator"
	"github.com/fixora/dashboard/internal/domain"
	"github.com/fixora/dashboard/internal/logger"
	"github.com/fixora/dashboard/internal/metrics"
	"github.com/fixora/dashboard/internal/ports"
	"github.com/fixora/dashboard/internal/usecase"
)

// Status is the load state of a session
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Load triggers, also used as metric labels
const (
	TriggerMount   = "mount"
	TriggerTimer   = "timer"
	TriggerFilters = "filters"
	TriggerManual  = "manual"
)

// Loader reads the data shown on a dashboard
type Loader interface {
	GetMetrics(ctx context.Context, params domain.FilterParams) (usecase.Result[domain.MetricsSnapshot], error)
	GetRanking(ctx context.Context, params domain.FilterParams) (usecase.Result[[]domain.TechnicianRankingEntry], error)
	GetStatus(ctx context.Context) (usecase.Result[domain.SystemStatus], error)
	GetNewTickets(ctx context.Context, params domain.FilterParams) (usecase.Result[[]domain.NewTicket], error)
	CheckConsistency(ctx context.Context, snap domain.MetricsSnapshot, ranking []domain.TechnicianRankingEntry) domain.ConsistencyReport
}

// Config tunes a session
type Config struct {
	RefreshInterval   time.Duration
	InteractionWindow time.Duration
	FilterDebounce    time.Duration
	RankingLimit      int
	TicketsLimit      int
	DefaultRangeDays  int
}

// DefaultConfig returns the dashboard defaults
func DefaultConfig() Config {
	return Config{
		RefreshInterval:   5 * time.Minute,
		InteractionWindow: 30 * time.Second,
		FilterDebounce:    300 * time.Millisecond,
		RankingLimit:      10,
		TicketsLimit:      10,
		DefaultRangeDays:  30,
	}
}

// State is a copy of what a session currently shows
type State struct {
	ID           string                          `json:"id"`
	Status       Status                          `json:"status"`
	Metrics      domain.MetricsSnapshot          `json:"metrics"`
	Cards        []domain.KPICard                `json:"cards"`
	Ranking      []domain.TechnicianRankingEntry `json:"ranking"`
	SystemStatus domain.SystemStatus             `json:"system_status"`
	NewTickets   []domain.NewTicket              `json:"new_tickets"`
	Error        *domain.AppError                `json:"error,omitempty"`
	Diagnostics  []domain.Diagnostic             `json:"diagnostics,omitempty"`
	Filters      domain.FilterParams             `json:"filters"`
	Preferences  domain.Preferences              `json:"preferences"`
	FromCache    bool                            `json:"from_cache"`
	LastUpdated  time.Time                       `json:"last_updated"`
	Generation   uint64                          `json:"generation"`
}

func (s State) clone() State {
	out := s
	out.Metrics = s.Metrics.Clone()
	out.Cards = append([]domain.KPICard(nil), s.Cards...)
	out.Ranking = append([]domain.TechnicianRankingEntry(nil), s.Ranking...)
	out.NewTickets = append([]domain.NewTicket(nil), s.NewTickets...)
	out.Diagnostics = append([]domain.Diagnostic(nil), s.Diagnostics...)
	out.Filters = s.Filters.Clone()
	return out
}

// Session is one mounted dashboard view. All methods are safe for concurrent use.
type Session struct {
	id     string
	cfg    Config
	loader Loader
	coord  *coordinator.Coordinator
	prefs  ports.PreferenceStore
	log    logger.Logger
	now    func() time.Time

	root       context.Context
	rootCancel context.CancelFunc

	mu              sync.Mutex
	state           State
	generation      uint64
	cancelLoad      context.CancelFunc
	hasData         bool
	lastInteraction time.Time
	lastSeen        time.Time
	started         bool
	stopped         bool
	task            *Task
	subs            map[int]chan State
	nextSub         int
}

// NewSession creates an idle session. coord is shared by all sessions of a process; prefs may
// be nil.
func NewSession(id string, cfg Config, filters domain.FilterParams, loader Loader, coord *coordinator.Coordinator, prefs ports.PreferenceStore, log logger.Logger) *Session {
	if coord == nil {
		coord = coordinator.New()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	root, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         id,
		cfg:        cfg,
		loader:     loader,
		coord:      coord,
		prefs:      prefs,
		log:        log.WithFields(map[string]interface{}{"session_id": id}),
		now:        time.Now,
		root:       root,
		rootCancel: cancel,
		subs:       make(map[int]chan State),
	}
	s.state = State{
		ID:          id,
		Status:      StatusIdle,
		Metrics:     domain.FallbackSnapshot(),
		Cards:       domain.FallbackSnapshot().KPICards(),
		Filters:     filters.Clone(),
		Preferences: domain.DefaultPreferences(),
	}
	s.lastSeen = s.now()
	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Start mounts the session: it reads stored preferences, performs the first load and starts the
// refresh task.
func (s *Session) Start(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return State{}, domain.ErrSessionClosed(s.id)
	}
	if s.started {
		st := s.state.clone()
		s.mu.Unlock()
		return st, nil
	}
	s.started = true
	metrics.ActiveSessions.Inc()
	s.task = NewTask(s.cfg.RefreshInterval, s.tick)
	task := s.task
	s.mu.Unlock()

	if s.prefs != nil {
		p, err := s.prefs.Get(ctx, s.id)
		if err != nil {
			s.log.Warn(ctx, "Failed to read stored preferences, using defaults", map[string]interface{}{"error": err.Error()})
		} else {
			s.mu.Lock()
			s.state.Preferences = p
			s.lastInteraction = p.LastInteraction
			s.mu.Unlock()
		}
	}

	task.Start(s.root)
	return s.load(TriggerMount)
}

// Stop unmounts the session. The in-flight load is canceled, the refresh task and any pending
// filter change are dropped, and no further state changes happen.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	wasStarted := s.started
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	task := s.task
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	s.rootCancel()
	if task != nil {
		task.Stop()
	}
	if wasStarted {
		metrics.ActiveSessions.Dec()
	}
	s.log.Debug(context.Background(), "Dashboard session stopped", nil)
}

// Stopped reports whether Stop was called
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// State returns a copy of the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// UpdateFilters replaces the filters and reloads once the debounce window has passed without a
// newer change. The in-flight load is superseded immediately. It returns the state produced by
// the load that finally ran.
func (s *Session) UpdateFilters(ctx context.Context, params domain.FilterParams) (State, error) {
	if err := params.Validate(); err != nil {
		return State{}, domain.ErrInvalidRequest(err.Error(), err)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return State{}, domain.ErrSessionClosed(s.id)
	}
	s.state.Filters = params.Clone()
	s.supersedeLocked()
	s.mu.Unlock()

	return s.debouncedLoad(ctx)
}

// UpdateDateRange keeps the other filters and replaces the range
func (s *Session) UpdateDateRange(ctx context.Context, r domain.DateRange) (State, error) {
	s.mu.Lock()
	params := s.state.Filters.WithDateRange(r)
	s.mu.Unlock()
	return s.UpdateFilters(ctx, params)
}

// Refresh reloads immediately, regardless of recent interaction
func (s *Session) Refresh(ctx context.Context) (State, error) {
	s.touch()
	return s.load(TriggerManual)
}

// RecordInteraction marks user activity. Timer refreshes are skipped while it is recent.
func (s *Session) RecordInteraction(ctx context.Context) {
	s.mu.Lock()
	now := s.now()
	s.lastInteraction = now
	s.lastSeen = now
	s.state.Preferences.LastInteraction = now
	s.mu.Unlock()

	if s.prefs != nil {
		if err := s.prefs.Touch(ctx, s.id); err != nil {
			s.log.Warn(ctx, "Failed to store last interaction", map[string]interface{}{"error": err.Error()})
		}
	}
}

// SetAutoRefresh toggles the timer refresh and stores the preference
func (s *Session) SetAutoRefresh(ctx context.Context, enabled bool) (State, error) {
	s.mu.Lock()
	p := s.state.Preferences
	s.mu.Unlock()
	p.AutoRefresh = enabled
	return s.SetPreferences(ctx, p)
}

// SetPreferences replaces the preferences and stores them
func (s *Session) SetPreferences(ctx context.Context, p domain.Preferences) (State, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return State{}, domain.ErrSessionClosed(s.id)
	}
	if p.Theme == "" {
		p.Theme = s.state.Preferences.Theme
	}
	if p.LastInteraction.IsZero() {
		p.LastInteraction = s.lastInteraction
	}
	s.state.Preferences = p
	s.lastSeen = s.now()
	s.publishLocked()
	st := s.state.clone()
	s.mu.Unlock()

	if s.prefs != nil {
		if err := s.prefs.Save(ctx, s.id, p); err != nil {
			s.log.Warn(ctx, "Failed to store preferences", map[string]interface{}{"error": err.Error()})
		}
	}
	return st, nil
}

// Subscribe returns a channel receiving every state change. The channel keeps only the newest
// state when the reader falls behind, and is closed by Stop or by the returned cancel func.
func (s *Session) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.state.clone()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
			s.lastSeen = s.now()
		})
	}
}

// idleSince returns the last activity time, or false while a subscriber is attached
func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) > 0 {
		return time.Time{}, false
	}
	return s.lastSeen, true
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *Session) loadKey() string {
	return "session/" + s.id + "/load"
}

func (s *Session) debouncedLoad(ctx context.Context) (State, error) {
	type outcome struct {
		st  State
		err error
	}
	done := make(chan outcome, 1)

	// the window is tied to the session, not to the caller, so a caller that goes away does not
	// drop the change; Stop does
	go func() {
		st, err := coordinator.Do(s.root, s.coord, s.loadKey(), coordinator.Options{Debounce: s.cfg.FilterDebounce}, func(context.Context) (State, error) {
			return s.load(TriggerFilters)
		})
		done <- outcome{st, err}
	}()

	select {
	case o := <-done:
		switch {
		case o.err == nil:
			return o.st, nil
		case s.Stopped():
			return State{}, domain.ErrSessionClosed(s.id)
		case errors.Is(o.err, context.Canceled):
			// a newer change took over; it will publish its own result
			return s.State(), nil
		}
		return o.st, o.err
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// tick is the refresh task body
func (s *Session) tick(ctx context.Context) {
	s.mu.Lock()
	auto := s.state.Preferences.AutoRefresh
	recent := s.cfg.InteractionWindow > 0 && !s.lastInteraction.IsZero() &&
		s.now().Sub(s.lastInteraction) < s.cfg.InteractionWindow
	s.mu.Unlock()

	switch {
	case !auto:
		metrics.SessionRefreshes.WithLabelValues(TriggerTimer, "disabled").Inc()
		return
	case recent:
		metrics.SessionRefreshes.WithLabelValues(TriggerTimer, "suppressed").Inc()
		s.log.Debug(ctx, "Timer refresh skipped after recent interaction", nil)
		return
	case s.coord.Pending(s.loadKey()):
		// a filter change is about to reload anyway
		return
	}

	if _, err := s.load(TriggerTimer); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug(ctx, "Timer refresh did not apply", map[string]interface{}{"error": err.Error()})
	}
}

// supersedeLocked invalidates the in-flight load so its result is discarded on arrival
func (s *Session) supersedeLocked() {
	s.generation++
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
}

type loadResult struct {
	metrics usecase.Result[domain.MetricsSnapshot]
	ranking usecase.Result[[]domain.TechnicianRankingEntry]
	status  usecase.Result[domain.SystemStatus]
	tickets usecase.Result[[]domain.NewTicket]
}

// load runs one Loading transition and applies its outcome unless a newer load or Stop
// superseded it
func (s *Session) load(trigger string) (State, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return State{}, domain.ErrSessionClosed(s.id)
	}
	s.supersedeLocked()
	gen := s.generation
	ctx, cancel := context.WithCancel(s.root)
	s.cancelLoad = cancel
	params := s.state.Filters.Clone()
	s.state.Status = StatusLoading
	s.state.Generation = gen
	s.publishLocked()
	s.mu.Unlock()
	defer cancel()

	ctx = logger.WithCorrelationID(ctx, uuid.NewString())
	start := time.Now()
	res, err := s.fetch(ctx, params)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || gen != s.generation {
		metrics.SessionRefreshes.WithLabelValues(trigger, "discarded").Inc()
		s.log.Debug(ctx, "Discarded stale load", map[string]interface{}{
			"trigger":    trigger,
			"generation": gen,
			"current":    s.generation,
		})
		if s.stopped {
			return State{}, domain.ErrSessionClosed(s.id)
		}
		return s.state.clone(), context.Canceled
	}
	s.cancelLoad = nil

	if err != nil {
		// only invalid filters get here; cancellation always comes with a newer generation
		appErr := domain.AsAppError(err)
		s.state.Status = StatusError
		s.state.Error = appErr
		metrics.SessionRefreshes.WithLabelValues(trigger, "error").Inc()
		s.publishLocked()
		return s.state.clone(), nil
	}

	s.applyLocked(ctx, res)

	result := "ready"
	if s.state.Status == StatusError {
		result = "error"
	}
	metrics.SessionRefreshes.WithLabelValues(trigger, result).Inc()
	logger.LogPerformance(ctx, s.log, "dashboard_load", time.Since(start), map[string]interface{}{
		"trigger":    trigger,
		"status":     string(s.state.Status),
		"generation": gen,
		"from_cache": res.metrics.FromCache,
	})

	s.publishLocked()
	return s.state.clone(), nil
}

func (s *Session) fetch(ctx context.Context, params domain.FilterParams) (loadResult, error) {
	var res loadResult
	g, gctx := errgroup.WithContext(ctx)

	rankingParams := params.Clone()
	if rankingParams.Limit == 0 {
		rankingParams.Limit = s.cfg.RankingLimit
	}
	ticketParams := domain.FilterParams{Limit: s.cfg.TicketsLimit}

	g.Go(func() (err error) {
		res.metrics, err = s.loader.GetMetrics(gctx, params)
		return err
	})
	g.Go(func() (err error) {
		res.ranking, err = s.loader.GetRanking(gctx, rankingParams)
		return err
	})
	g.Go(func() (err error) {
		res.status, err = s.loader.GetStatus(gctx)
		return err
	})
	g.Go(func() (err error) {
		res.tickets, err = s.loader.GetNewTickets(gctx, ticketParams)
		return err
	})

	err := g.Wait()
	return res, err
}

// applyLocked moves to Ready or Error. Each panel keeps its last good value when its read
// failed, and only falls back when it never had one.
func (s *Session) applyLocked(ctx context.Context, res loadResult) {
	var firstErr *domain.AppError
	note := func(e *domain.AppError) {
		if e != nil && firstErr == nil {
			firstErr = e
		}
	}

	if res.metrics.OK() || !s.hasData {
		s.state.Metrics = res.metrics.Data
		s.state.Cards = res.metrics.Data.KPICards()
	}
	if res.metrics.OK() {
		s.hasData = true
		s.state.LastUpdated = s.now()
		s.state.FromCache = res.metrics.FromCache
	}
	note(res.metrics.Err)

	if res.ranking.OK() || s.state.Ranking == nil {
		s.state.Ranking = res.ranking.Data
	}
	note(res.ranking.Err)

	if res.tickets.OK() || s.state.NewTickets == nil {
		s.state.NewTickets = res.tickets.Data
	}
	note(res.tickets.Err)

	// the status panel shows its own failure as "unknown" and does not fail the load
	if res.status.OK() || s.state.SystemStatus.Status == "" {
		s.state.SystemStatus = res.status.Data
	}

	s.state.Diagnostics = nil
	if res.metrics.OK() && res.ranking.OK() {
		s.state.Diagnostics = s.loader.CheckConsistency(ctx, res.metrics.Data, res.ranking.Data).Diagnostics
	}

	if firstErr != nil {
		s.state.Status = StatusError
		s.state.Error = firstErr
		return
	}
	s.state.Status = StatusReady
	s.state.Error = nil
}

// publishLocked hands the current state to every subscriber, replacing an unread older state
func (s *Session) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	st := s.state.clone()
	for _, ch := range s.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}
