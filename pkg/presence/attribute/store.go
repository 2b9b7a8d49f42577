// Package attribute holds the authoritative per-player presence records and their persistence.
//
// Mutations only touch memory. Persistence is debounced: the first mutation after a save arms a
// single timer, and when it fires the flush is handed to the owner's main context (see WithPost),
// which snapshots the records and writes them from a worker goroutine. ForceSave bypasses the
// debounce and is used on shutdown, reload and disable.
package attribute

import (
	"context"
	"sync"
	"time"

	"github.com/argus-labs/presence/pkg/storage"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

const DefaultSaveDelay = 30 * time.Second

// Timer is the part of *time.Timer the store needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. It matches time.AfterFunc so tests can substitute a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

type Store struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
	total   int64
	dirty   bool
	pending Timer
	armed   uint64 // identifies the pending timer so stale callbacks are ignored

	backend   storage.Store
	delay     time.Duration
	afterFunc AfterFunc
	post      func(func())
	log       zerolog.Logger

	snapshots uint64 // guarded by mu
	written   uint64 // guarded by ioMu, last snapshot persisted

	ioMu sync.Mutex // serializes backend writes and bulk loads
	wg   sync.WaitGroup
}

func New(backend storage.Store, opts ...Option) *Store {
	s := &Store{
		records: make(map[uuid.UUID]Record),
		backend: backend,
		delay:   DefaultSaveDelay,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		post: func(f func()) { f() },
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the player's record, or the zero record if the player is unknown.
func (s *Store) Get(id uuid.UUID) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].clone()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) TotalDeaths() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// SetStatus overwrites the status key. An empty key clears the status.
func (s *Store) SetStatus(id uuid.UUID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.records[id]
	r.Status = key
	s.records[id] = r
	s.markDirtyLocked()
}

// SetCountry overwrites the country. A nil country clears it.
func (s *Store) SetCountry(id uuid.UUID, country *Country) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.records[id]
	if country != nil {
		c := *country
		r.Country = &c
	} else {
		r.Country = nil
	}
	s.records[id] = r
	s.markDirtyLocked()
}

// SetDeaths overwrites the death count, clamped at zero, and returns the stored value.
func (s *Store) SetDeaths(id uuid.UUID, count int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	count = max(count, 0)
	r := s.records[id]
	delta := count - r.Deaths
	r.Deaths = count
	s.records[id] = r
	s.adjustTotalLocked(delta)
	s.markDirtyLocked()
	return count
}

// AddDeaths adds delta (which may be negative) to the death count, clamped at zero, and returns
// the stored value.
func (s *Store) AddDeaths(id uuid.UUID, delta int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.records[id]
	next := max(r.Deaths+delta, 0)
	applied := next - r.Deaths
	r.Deaths = next
	s.records[id] = r
	s.adjustTotalLocked(applied)
	s.markDirtyLocked()
	return next
}

// adjustTotalLocked applies delta to the aggregate. If that would take it below zero the aggregate
// is rebuilt from the per-player counts instead.
func (s *Store) adjustTotalLocked(delta int64) {
	if s.total+delta >= 0 {
		s.total += delta
		return
	}
	var sum int64
	for _, r := range s.records {
		sum += r.Deaths
	}
	s.log.Warn().Int64("total", s.total).Int64("delta", delta).Int64("recomputed", sum).
		Msg("total deaths would go negative, recomputed from players")
	s.total = max(sum, 0)
}

// -------------------------------------------------------------------------------------------------
// Debounced persistence
// -------------------------------------------------------------------------------------------------

func (s *Store) markDirtyLocked() {
	s.dirty = true
	s.armLocked()
}

func (s *Store) armLocked() {
	if s.pending != nil || s.backend == nil {
		return
	}
	s.armed++
	armed := s.armed
	s.pending = s.afterFunc(s.delay, func() {
		s.post(func() { s.flush(armed) })
	})
}

// SetSaveDelay changes the debounce window for saves armed from now on. Non-positive values are
// ignored.
func (s *Store) SetSaveDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Dirty reports whether there are mutations not yet handed to a save.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// CheckPending re-arms the debounced save when the store is dirty and nothing is scheduled. This
// is how a failed write gets retried.
func (s *Store) CheckPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		s.armLocked()
	}
}

// CancelPending stops the scheduled save, if any. The dirty flag is kept.
func (s *Store) CancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *Store) cancelLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

// flush runs on the owner's main context. It snapshots state and writes it in the background.
func (s *Store) flush(armed uint64) {
	s.mu.Lock()
	if s.pending == nil || armed != s.armed {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	if !s.dirty {
		s.mu.Unlock()
		return
	}
	snap, err := s.snapshotLocked()
	if err != nil {
		s.mu.Unlock()
		s.log.Error().Err(err).Msg("failed to snapshot attributes")
		return
	}
	s.dirty = false
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.ioMu.Lock()
		defer s.ioMu.Unlock()

		if err := s.write(context.Background(), snap); err != nil {
			s.log.Error().Err(err).Msg("debounced save failed, will retry")
			s.mu.Lock()
			s.dirty = true
			s.mu.Unlock()
			return
		}
		s.log.Debug().Int("players", len(snap.players)).Msg("saved attributes")
	}()
}

// Wait blocks until background writes started so far have finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

// ForceSave cancels any scheduled save, waits for in-flight writes and saves the current state
// synchronously, regardless of the debounce window.
func (s *Store) ForceSave(ctx context.Context) error {
	s.CancelPending()
	s.wg.Wait()
	return s.SaveAll(ctx)
}

// SaveAll writes the current state synchronously. On failure the store stays dirty.
func (s *Store) SaveAll(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	s.mu.Lock()
	snap, err := s.snapshotLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.dirty = false
	s.mu.Unlock()

	if err := s.write(ctx, snap); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}
	return nil
}

type snapshot struct {
	seq     uint64
	players map[string][]byte
	server  map[string][]byte
}

func (s *Store) snapshotLocked() (snapshot, error) {
	players := make(map[string][]byte, len(s.records))
	for id, r := range s.records {
		if r.isZero() {
			continue
		}
		data, err := encodeRecord(r)
		if err != nil {
			return snapshot{}, eris.Wrapf(err, "player %s", id)
		}
		players[id.String()] = data
	}
	stats, err := json.Marshal(serverStatsJSON{TotalDeaths: s.total})
	if err != nil {
		return snapshot{}, eris.Wrap(err, "failed to encode server stats")
	}
	s.snapshots++
	return snapshot{
		seq:     s.snapshots,
		players: players,
		server:  map[string][]byte{serverStatsKey: stats},
	}, nil
}

// write persists snap unless a newer snapshot already landed. Callers hold ioMu.
func (s *Store) write(ctx context.Context, snap snapshot) error {
	if snap.seq <= s.written {
		return nil
	}
	if err := s.backend.Save(ctx, collectionPlayers, snap.players); err != nil {
		return eris.Wrap(err, "failed to save players")
	}
	if err := s.backend.Save(ctx, collectionServer, snap.server); err != nil {
		return eris.Wrap(err, "failed to save server stats")
	}
	s.written = snap.seq
	return nil
}

// LoadAll replaces the in-memory state with the persisted one. Malformed entries are skipped.
func (s *Store) LoadAll(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	players, err := s.backend.Load(ctx, collectionPlayers)
	if err != nil {
		return eris.Wrap(err, "failed to load players")
	}
	server, err := s.backend.Load(ctx, collectionServer)
	if err != nil {
		return eris.Wrap(err, "failed to load server stats")
	}

	records := make(map[uuid.UUID]Record, len(players))
	for key, data := range players {
		id, err := uuid.Parse(key)
		if err != nil {
			s.log.Warn().Str("key", key).Msg("skipping record with invalid player id")
			continue
		}
		r, err := decodeRecord(data)
		if err != nil {
			s.log.Warn().Err(err).Str("player", key).Msg("skipping malformed record")
			continue
		}
		records[id] = r
	}

	var stats serverStatsJSON
	recompute := true
	if data, ok := server[serverStatsKey]; ok {
		if err := json.Unmarshal(data, &stats); err != nil {
			s.log.Warn().Err(err).Msg("malformed server stats, recomputing total deaths")
		} else {
			recompute = false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.total = max(stats.TotalDeaths, 0)
	if recompute {
		s.total = 0
		for _, r := range records {
			s.total += r.Deaths
		}
	}
	s.dirty = false
	s.cancelLocked()

	s.log.Info().Int("players", len(records)).Int64("total_deaths", s.total).Msg("loaded attributes")
	return nil
}

// -------------------------------------------------------------------------------------------------
// Options
// -------------------------------------------------------------------------------------------------

type Option func(*Store)

// WithSaveDelay sets the debounce window. Non-positive values keep the default.
func WithSaveDelay(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithAfterFunc replaces time.AfterFunc.
func WithAfterFunc(f AfterFunc) Option {
	return func(s *Store) {
		s.afterFunc = f
	}
}

// WithPost sets how a due flush is handed to the owner's main context. The default runs it on the
// timer goroutine.
func WithPost(post func(func())) Option {
	return func(s *Store) {
		s.post = post
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}
