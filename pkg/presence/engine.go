// Package presence keeps per-player presence state (status, deaths, country) and projects it onto
// the roster, header/footer and name label surfaces.
//
// One goroutine, the one running Engine.Run, owns every mutation: the attribute store's write
// path, render-group membership and everything sent to the surface. Public methods post closures
// onto its task queue. API calls wait for their reply while events are fire-and-forget, and the
// single queue keeps each player's events in arrival order. Country lookups and debounced saves
// run on worker goroutines and hand their results back through the same queue.
package presence

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/argus-labs/presence/pkg/presence/attribute"
	"github.com/argus-labs/presence/pkg/presence/config"
	"github.com/argus-labs/presence/pkg/presence/enrich"
	"github.com/argus-labs/presence/pkg/presence/environment"
	"github.com/argus-labs/presence/pkg/presence/group"
	"github.com/argus-labs/presence/pkg/presence/host"
	"github.com/argus-labs/presence/pkg/presence/render"
	"github.com/argus-labs/presence/pkg/presence/schedule"
	"github.com/argus-labs/presence/pkg/presence/sortkey"
	"github.com/argus-labs/presence/pkg/statsd"
	"github.com/argus-labs/presence/pkg/storage"
	"github.com/argus-labs/presence/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	otelattr "go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const saveTimeout = 10 * time.Second

type Engine struct {
	host    host.Host
	surface host.Surface
	stats   host.DeathStatistic // nil when the host keeps no death statistic
	store   *attribute.Store
	sampler *environment.Sampler
	groups  *group.Reconciler
	sched   *schedule.Scheduler

	tasks   chan func()
	done    chan struct{}
	started chan struct{}
	ran     atomic.Bool

	tel     telemetry.Telemetry
	log     zerolog.Logger
	tracer  trace.Tracer
	limiter *telemetry.Limiter
	opts    options

	// Owned by the main loop.
	ctx        context.Context //nolint:containedctx // the loop's context, used for lookups it starts
	cfg        config.Config
	statuses   map[string]config.StatusDefinition
	resolver   *sortkey.Resolver
	renderer   *render.Renderer
	fetcher    *enrich.Fetcher
	rotation   schedule.Rotation
	enabled    bool
	env        environment.Snapshot
	population map[string]int
	lastFast   time.Time
}

// New builds an engine over h and surface, persisting to backend. Nothing happens until Run.
func New(cfg config.Config, h host.Host, surface host.Surface, backend storage.Store, opts ...Option) (*Engine, error) {
	options := newDefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid config")
	}

	sampler, err := environment.NewSampler(h, options.now)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create performance sampler")
	}

	e := &Engine{
		host:       h,
		surface:    surface,
		sampler:    sampler,
		tasks:      make(chan func(), options.queueSize),
		done:       make(chan struct{}),
		started:    make(chan struct{}),
		tel:        options.tel,
		log:        options.tel.GetLogger("engine"),
		tracer:     options.tel.Tracer,
		opts:       options,
		ctx:        context.Background(),
		enabled:    cfg.Tablist.Enabled,
		population: make(map[string]int),
	}
	e.limiter = telemetry.NewLimiter(e.log, time.Minute)
	logConfigWarnings(e.log, cfg)
	if stats, ok := h.(host.DeathStatistic); ok {
		e.stats = stats
	}

	storeOpts := []attribute.Option{
		attribute.WithSaveDelay(cfg.Deaths.SaveDelay),
		attribute.WithPost(func(f func()) { e.post(f) }),
		attribute.WithLogger(options.tel.GetLogger("store")),
	}
	if options.afterFunc != nil {
		storeOpts = append(storeOpts, attribute.WithAfterFunc(options.afterFunc))
	}
	e.store = attribute.New(backend, storeOpts...)

	var schedOpts []schedule.Option
	if options.newTicker != nil {
		schedOpts = append(schedOpts, schedule.WithTicker(options.newTicker))
	}
	e.sched = schedule.New(schedOpts...)
	e.groups = group.New(surface, group.WithLogger(options.tel.GetLogger("group")))

	e.applyConfig(cfg)
	e.log.Info().Stringer("capabilities", sampler.Capabilities()).Msg("negotiated host capabilities")
	return e, nil
}

// applyConfig swaps every config-derived input. Main loop only, or before Run.
func (e *Engine) applyConfig(cfg config.Config) {
	e.cfg = cfg
	e.statuses = make(map[string]config.StatusDefinition, len(cfg.Statuses))
	for _, s := range cfg.Statuses {
		e.statuses[s.Key] = s
	}
	e.resolver = cfg.Resolver()
	e.renderer = render.New(cfg.RenderOptions(), e.opts.providers, e.tel.GetLogger("render"))

	fetcherOpts := []enrich.Option{
		enrich.WithSources(cfg.Country.PrimaryURL, cfg.Country.FallbackURL),
		enrich.WithTTL(cfg.Country.CacheDuration),
		enrich.WithFailureTTL(cfg.Country.FailureCacheDuration),
		enrich.WithTimeout(cfg.Country.Timeout),
		enrich.WithClock(e.opts.now),
		enrich.WithLogger(e.tel.GetLogger("enrich")),
		enrich.WithTracer(e.tracer),
	}
	if e.opts.httpClient != nil {
		fetcherOpts = append(fetcherOpts, enrich.WithHTTPClient(e.opts.httpClient))
	}
	e.fetcher = enrich.New(fetcherOpts...)

	e.rotation.Reset(cfg.Tablist.Rotating.Interval)
	e.store.SetSaveDelay(cfg.Deaths.SaveDelay)
}

// Run loads persisted attributes and runs the main loop until ctx is done, then saves
// synchronously. It may only be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.ran.CompareAndSwap(false, true) {
		return eris.New("engine has already run")
	}
	close(e.started)
	defer close(e.done)

	e.ctx = ctx
	if err := e.store.LoadAll(ctx); err != nil {
		return eris.Wrap(err, "failed to load attributes")
	}

	players := e.host.OnlinePlayers()
	e.slowCycle(ctx)
	e.env = e.snapshot(e.sampler.Sample(), players)
	if e.enabled {
		if err := e.start(); err != nil {
			return err
		}
	}
	e.log.Info().Bool("enabled", e.enabled).Int("players", e.store.Len()).Msg("presence engine running")

	for {
		select {
		case <-ctx.Done():
			return e.shutdown()
		case task := <-e.tasks:
			task()
		case t := <-e.sched.FastC():
			e.fastCycle(ctx, t)
		case <-e.sched.SlowC():
			e.slowCycle(ctx)
		}
	}
}

// Running reports whether the main loop is accepting work.
func (e *Engine) Running() bool {
	select {
	case <-e.started:
	default:
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Refreshing reports whether the periodic refresh cycles are running.
func (e *Engine) Refreshing() bool {
	return e.sched.Running()
}

func (e *Engine) shutdown() error {
	e.sched.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := e.store.ForceSave(ctx); err != nil {
		return eris.Wrap(err, "failed to save attributes on shutdown")
	}
	e.log.Info().Msg("presence engine stopped")
	return nil
}

// post queues f for the main loop. It reports false once the loop has exited.
func (e *Engine) post(f func()) bool {
	select {
	case e.tasks <- f:
		return true
	case <-e.done:
		return false
	}
}

// start (re)arms both refresh timers from zero elapsed time and refreshes everyone.
func (e *Engine) start() error {
	refresh := e.cfg.Tablist.Refresh
	if err := e.sched.Restart(refresh.Fast, refresh.Slow); err != nil {
		return eris.Wrap(err, "failed to start refresh cycles")
	}
	e.lastFast = time.Time{}
	e.rotation.Reset(e.cfg.Tablist.Rotating.Interval)
	e.refreshAll()
	return nil
}

// -------------------------------------------------------------------------------------------------
// Refresh cycles
// -------------------------------------------------------------------------------------------------

func (e *Engine) fastCycle(ctx context.Context, t time.Time) {
	start := time.Now()
	defer statsd.EmitCycleStat(start, "fast")
	_, span := e.tracer.Start(ctx, "presence.fast_cycle")
	defer span.End()

	sample := e.sampler.Sample()
	if !e.lastFast.IsZero() {
		e.rotation.Advance(t.Sub(e.lastFast))
	}
	e.lastFast = t

	players := e.host.OnlinePlayers()
	e.env = e.snapshot(sample, players)
	e.groups.ReassignAll(e.groupKeys(players))
	for _, p := range players {
		e.apply(p)
	}
	e.store.CheckPending()

	span.SetAttributes(otelattr.Int("players", len(players)))
}

// slowCycle recomputes population by region. Vanished players are not counted.
func (e *Engine) slowCycle(ctx context.Context) {
	start := time.Now()
	defer statsd.EmitCycleStat(start, "slow")
	_, span := e.tracer.Start(ctx, "presence.slow_cycle")
	defer span.End()

	population := make(map[string]int)
	visible := 0
	for _, p := range e.host.OnlinePlayers() {
		if p.Vanished {
			continue
		}
		visible++
		if p.Region != "" {
			population[p.Region]++
		}
	}
	e.population = population
	statsd.Gauge("online", float64(visible))
	span.SetAttributes(otelattr.Int("visible", visible))
}

func (e *Engine) snapshot(sample environment.Sample, players []host.Player) environment.Snapshot {
	online := 0
	for _, p := range players {
		if !p.Vanished {
			online++
		}
	}
	return environment.Builder{
		Time:           e.opts.now(),
		Population:     e.population,
		TotalOnline:    online,
		MaxCapacity:    e.host.MaxPlayers(),
		Performance:    sample,
		RotatingCursor: e.rotation.Cursor(),
		TotalDeaths:    e.store.TotalDeaths(),
	}.Build()
}

// refreshAll reassigns and renders every online player against the current snapshot.
func (e *Engine) refreshAll() {
	players := e.host.OnlinePlayers()
	e.groups.ReassignAll(e.groupKeys(players))
	for _, p := range players {
		e.apply(p)
	}
}

// refreshPlayer is the event path: one player, last snapshot. It does nothing while the display
// is disabled or the player is offline.
func (e *Engine) refreshPlayer(id uuid.UUID) {
	if !e.enabled {
		return
	}
	p, ok := e.host.Player(id)
	if !ok {
		return
	}
	e.groups.Assign(id, e.groupKey(id))
	e.apply(p)
}

func (e *Engine) apply(p host.Player) {
	view := e.view(p)
	if err := e.surface.SetRosterLine(p.ID, e.renderer.RosterLine(view, e.env)); err != nil {
		e.surfaceError(host.OpRosterLine, err)
	}
	header, footer := e.renderer.HeaderFooter(view, e.env)
	if err := e.surface.SetHeaderFooter(p.ID, header, footer); err != nil {
		e.surfaceError(host.OpHeaderFooter, err)
	}
	if e.cfg.Nametag.Enabled {
		if err := e.surface.SetNameLabel(p.ID, e.renderer.NameLabel(view, e.env)); err != nil {
			e.surfaceError(host.OpNameLabel, err)
		}
	}
}

func (e *Engine) surfaceError(op string, err error) {
	statsd.Count("surface.error", 1, "op:"+op)
	e.limiter.Error(op, err).Msg("render surface rejected update, will retry next cycle")
}

// -------------------------------------------------------------------------------------------------
// Derived per-player values
// -------------------------------------------------------------------------------------------------

// status returns the definition of a stored key. Keys removed by a reload count as no status.
func (e *Engine) status(key string) (config.StatusDefinition, bool) {
	if key == "" {
		return config.StatusDefinition{}, false
	}
	def, ok := e.statuses[key]
	return def, ok
}

func (e *Engine) groupKey(id uuid.UUID) string {
	def, _ := e.status(e.store.Get(id).Status)
	return e.resolver.Resolve(id, def.Key).Group()
}

func (e *Engine) groupKeys(players []host.Player) map[uuid.UUID]string {
	keys := make(map[uuid.UUID]string, len(players))
	for _, p := range players {
		keys[p.ID] = e.groupKey(p.ID)
	}
	return keys
}

func (e *Engine) view(p host.Player) render.PlayerView {
	rec := e.store.Get(p.ID)
	v := render.PlayerView{ID: p.ID, Name: p.Name}
	if def, ok := e.status(rec.Status); ok {
		v.StatusDisplay = def.Display
		v.NameColor = def.NameColor
	}
	if e.cfg.Deaths.Enabled {
		v.HasDeaths = true
		v.Deaths = rec.Deaths
	}
	if e.cfg.Country.Enabled && rec.Country != nil {
		v.Country = rec.Country.Name
		v.CountryCode = rec.Country.Code
	}
	return v
}

// logConfigWarnings reports the fallbacks a config load applied. Each load logs them once.
func logConfigWarnings(log zerolog.Logger, cfg config.Config) {
	for _, w := range cfg.Warnings {
		log.Warn().Str("fallback", w).Msg("display config fallback applied")
	}
}
