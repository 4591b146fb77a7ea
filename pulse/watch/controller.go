// Package watch composes the poller, the shared store and admission control
// into one controller per remote job queue.
//
// Data flow:
//
//	ticker / RefreshNow ──> Poller.Refresh ──> Store ──> observer goroutine
//	                             ^                            │
//	                             └── TriggerRefresh <── admit.Controller.Observe
package watch

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/jobpulse/am"
	"github.com/teranos/jobpulse/logger"
	"github.com/teranos/jobpulse/pulse/admit"
	"github.com/teranos/jobpulse/pulse/jobs"
	"github.com/teranos/jobpulse/pulse/poll"
)

// API is the remote job API as the controller needs it
type API interface {
	poll.Source
	admit.Starter
}

// Config configures a Controller
type Config struct {
	OnlyActive         bool          // Keep only running jobs in the Snapshot
	ReloadInterval     time.Duration // 0 polls once
	Admission          bool          // Start the next queued job when none is running
	MaxStartsPerMinute int           // 0 = unlimited
	StartTimeout       time.Duration // 0 leaves it to the API client
}

// DefaultConfig returns the configuration a bare controller uses
func DefaultConfig() Config {
	return Config{
		OnlyActive:     false,
		ReloadInterval: 0,
		Admission:      true,
	}
}

// ConfigFromAM converts the watch section of am.toml
func ConfigFromAM(w am.WatchConfig) Config {
	return Config{
		OnlyActive:         w.OnlyActive,
		ReloadInterval:     w.ReloadInterval(),
		Admission:          w.Admission,
		MaxStartsPerMinute: w.MaxStartsPerMinute,
	}
}

// Stats aggregates poller and admission statistics
type Stats struct {
	Poller    poll.Stats  `json:"poller"`
	Admission admit.Stats `json:"admission"`
	Version   uint64      `json:"version"`
	Breaker   string      `json:"breaker,omitempty"` // circuit breaker state, when the API has one
}

// breakerReporter is implemented by API clients with a circuit breaker
type breakerReporter interface {
	BreakerState() string
}

// Controller keeps a local Snapshot of the remote queue fresh and, when
// admission is enabled, keeps exactly one job running.
type Controller struct {
	api      API
	cfg      Config
	store    *poll.Store
	poller   *poll.Poller
	admitter *admit.Controller // nil when admission is disabled
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	running  bool
	closed   bool
	observer sync.WaitGroup
}

// New creates a controller. Nothing happens until Run.
func New(api API, cfg Config, log *zap.SugaredLogger) *Controller {
	log = logger.OrNop(log)

	store := poll.NewStore()
	poller := poll.NewPoller(api, store, poll.Options{OnlyActive: cfg.OnlyActive}, log.Named("poll"))

	c := &Controller{
		api:    api,
		cfg:    cfg,
		store:  store,
		poller: poller,
		logger: log,
	}
	if cfg.Admission {
		c.admitter = admit.New(api, poller, admit.Options{
			Limiter:      admit.NewStartLimiter(cfg.MaxStartsPerMinute),
			StartTimeout: cfg.StartTimeout,
		}, log.Named("admit"))
	}
	return c
}

// Run starts polling and, with admission enabled, the decision loop.
// Calling Run twice or after Close does nothing.
func (c *Controller) Run() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running || c.closed {
		return
	}
	c.running = true

	if c.admitter != nil {
		events, _ := c.store.Subscribe() // closed by store.Close
		c.observer.Add(1)
		go c.observe(events)
	}

	c.poller.Start(c.cfg.ReloadInterval)
	logger.AddPulseOpenSymbol(c.logger).Infow("Job controller running",
		logger.FieldInterval, c.cfg.ReloadInterval,
		"only_active", c.cfg.OnlyActive,
		"admission", c.cfg.Admission)
}

// observe is the single goroutine making admission decisions. A decision is
// made for every new Snapshot version; status-only events are skipped.
func (c *Controller) observe(events <-chan poll.Event) {
	defer c.observer.Done()

	var seen uint64
	for ev := range events {
		if ev.State.Version == seen {
			continue
		}
		seen = ev.State.Version
		c.admitter.Observe(ev.State.Snapshot)
	}
}

// Snapshot returns the current job list
func (c *Controller) Snapshot() jobs.Snapshot {
	return c.store.Snapshot()
}

// Status returns the status of the latest refresh
func (c *Controller) Status() jobs.RefreshStatus {
	return c.store.Status()
}

// State returns Snapshot, status and version in one consistent read
func (c *Controller) State() poll.State {
	return c.store.State()
}

// Subscribe registers for state change events
func (c *Controller) Subscribe() (<-chan poll.Event, func()) {
	return c.store.Subscribe()
}

// RefreshNow polls immediately without waiting for the timer. After Close
// it does nothing.
func (c *Controller) RefreshNow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.poller.TriggerRefresh()
}

// SetInterval restarts the polling schedule. The new schedule begins with an
// immediate refresh.
func (c *Controller) SetInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.cfg.ReloadInterval
	c.cfg.ReloadInterval = d
	if !c.running || c.closed {
		return
	}
	if d <= 0 && previous > 0 {
		c.logger.Warnw("Recurring refresh stopped, polling once",
			logger.FieldInterval, previous)
	}
	c.poller.Start(d)
}

// SetOnlyActive switches running-only filtering and refreshes
func (c *Controller) SetOnlyActive(onlyActive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.OnlyActive == onlyActive {
		return
	}
	c.cfg.OnlyActive = onlyActive
	c.poller.SetOnlyActive(onlyActive)
	if c.running && !c.closed {
		c.poller.TriggerRefresh()
	}
}

// Apply reconfigures a running controller from reloaded settings. Admission
// and the start limit are fixed at construction.
func (c *Controller) Apply(cfg Config) {
	c.SetOnlyActive(cfg.OnlyActive)

	c.mu.Lock()
	changed := c.cfg.ReloadInterval != cfg.ReloadInterval
	c.mu.Unlock()
	if changed {
		c.SetInterval(cfg.ReloadInterval)
	}
}

// Config returns the active configuration
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Stats returns poller and admission statistics
func (c *Controller) Stats() Stats {
	s := Stats{
		Poller:  c.poller.Stats(),
		Version: c.store.State().Version,
	}
	if c.admitter != nil {
		s.Admission = c.admitter.Stats()
	}
	if b, ok := c.api.(breakerReporter); ok {
		s.Breaker = b.BreakerState()
	}
	return s
}

// Close stops polling, disposes the store so late results are dropped, and
// waits for background work to finish. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.poller.Stop()
	c.store.Close()
	c.observer.Wait()

	// Start requests nudge the poller when they finish, so drain them first
	if c.admitter != nil {
		c.admitter.Wait()
	}
	c.poller.Wait()
	logger.AddPulseCloseSymbol(c.logger).Infow("Job controller stopped")
}
