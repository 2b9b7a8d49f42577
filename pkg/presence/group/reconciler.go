// Package group keeps render-group membership on the surface in line with each player's sort key.
//
// The Reconciler is the only owner of the group namespace. Surface failures are never returned:
// they are logged once per kind and window, counted, and the affected state is left so the next
// call converges. A failed remove keeps the old membership, a failed add leaves the player
// unassigned, and a group whose destroy failed is retried before any other work.
package group

import (
	"time"

	"github.com/argus-labs/presence/pkg/assert"
	"github.com/argus-labs/presence/pkg/presence/host"
	"github.com/argus-labs/presence/pkg/statsd"
	"github.com/argus-labs/presence/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultLogPeriod = time.Minute

type renderGroup struct {
	handle  host.GroupHandle
	members map[uuid.UUID]struct{}
}

// Reconciler is not safe for concurrent use. The engine calls it from its main loop only.
type Reconciler struct {
	surface host.GroupSurface
	groups  map[string]*renderGroup
	members map[uuid.UUID]string

	// Groups emptied on our side whose destroy failed on the surface.
	pendingDestroy map[string]host.GroupHandle
	// Players whose unassign failed and who are no longer expected in any group.
	orphans map[uuid.UUID]struct{}

	limiter *telemetry.Limiter
}

func New(surface host.GroupSurface, opts ...Option) *Reconciler {
	options := options{log: zerolog.Nop(), logPeriod: defaultLogPeriod}
	for _, opt := range opts {
		opt(&options)
	}
	return &Reconciler{
		surface:        surface,
		groups:         make(map[string]*renderGroup),
		members:        make(map[uuid.UUID]string),
		pendingDestroy: make(map[string]host.GroupHandle),
		orphans:        make(map[uuid.UUID]struct{}),
		limiter:        telemetry.NewLimiter(options.log, options.logPeriod),
	}
}

// Assign moves id into the group keyed key, creating it if needed, and out of its previous group,
// destroying that one if it ends up empty. Assigning the current key does nothing.
func (r *Reconciler) Assign(id uuid.UUID, key string) {
	r.Retry()
	delete(r.orphans, id)
	r.assign(id, key)
}

func (r *Reconciler) assign(id uuid.UUID, key string) {
	current, ok := r.members[id]
	if ok && current == key {
		return
	}
	if ok && !r.remove(id, current) {
		return
	}
	r.add(id, key)
}

// Unassign removes id from its group without touching anything else. If the surface refuses, the
// removal is retried on later calls.
func (r *Reconciler) Unassign(id uuid.UUID) {
	r.Retry()
	r.unassign(id)
}

func (r *Reconciler) unassign(id uuid.UUID) {
	current, ok := r.members[id]
	if !ok {
		delete(r.orphans, id)
		return
	}
	if r.remove(id, current) {
		delete(r.orphans, id)
		return
	}
	r.orphans[id] = struct{}{}
}

// ReassignAll brings every player's membership in line with keys. Tracked players missing from
// keys are unassigned.
func (r *Reconciler) ReassignAll(keys map[uuid.UUID]string) {
	r.Retry()
	for id := range r.members {
		if _, ok := keys[id]; !ok {
			r.unassign(id)
		}
	}
	for id, key := range keys {
		delete(r.orphans, id)
		r.assign(id, key)
	}
}

// Retry re-attempts failed destroys and unassigns.
func (r *Reconciler) Retry() {
	for key, h := range r.pendingDestroy {
		if err := r.surface.DestroyGroup(h); err != nil {
			r.fail(host.OpDestroyGroup, err, key)
			continue
		}
		delete(r.pendingDestroy, key)
	}
	for id := range r.orphans {
		r.unassign(id)
	}
}

// GroupOf returns the key of the group id belongs to.
func (r *Reconciler) GroupOf(id uuid.UUID) (string, bool) {
	key, ok := r.members[id]
	return key, ok
}

// Len returns the number of live groups.
func (r *Reconciler) Len() int {
	return len(r.groups)
}

func (r *Reconciler) remove(id uuid.UUID, key string) bool {
	g, ok := r.groups[key]
	assert.That(ok, "member of a group that does not exist")

	if err := r.surface.RemoveMember(g.handle, id); err != nil {
		r.fail(host.OpRemoveMember, err, key)
		return false
	}
	delete(g.members, id)
	delete(r.members, id)
	if len(g.members) == 0 {
		r.destroy(key, g)
	}
	return true
}

func (r *Reconciler) add(id uuid.UUID, key string) bool {
	g, ok := r.groups[key]
	if !ok {
		if h, pending := r.pendingDestroy[key]; pending {
			// The surface still has it, take it back instead of creating a duplicate.
			delete(r.pendingDestroy, key)
			g = &renderGroup{handle: h, members: make(map[uuid.UUID]struct{})}
		} else {
			h, err := r.surface.CreateGroup(key)
			if err != nil {
				r.fail(host.OpCreateGroup, err, key)
				return false
			}
			g = &renderGroup{handle: h, members: make(map[uuid.UUID]struct{})}
		}
		r.groups[key] = g
	}

	if err := r.surface.AddMember(g.handle, id); err != nil {
		r.fail(host.OpAddMember, err, key)
		if len(g.members) == 0 {
			r.destroy(key, g)
		}
		return false
	}
	g.members[id] = struct{}{}
	r.members[id] = key
	return true
}

func (r *Reconciler) destroy(key string, g *renderGroup) {
	delete(r.groups, key)
	if err := r.surface.DestroyGroup(g.handle); err != nil {
		r.fail(host.OpDestroyGroup, err, key)
		r.pendingDestroy[key] = g.handle
	}
}

func (r *Reconciler) fail(op string, err error, key string) {
	statsd.Count("group.surface_error", 1, "op:"+op)
	r.limiter.Error(op, err).Str("group", key).Msg("render surface rejected group mutation, will retry")
}

// -------------------------------------------------------------------------------------------------
// Options
// -------------------------------------------------------------------------------------------------

type options struct {
	log       zerolog.Logger
	logPeriod time.Duration
}

type Option func(*options)

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithLogPeriod sets how often each kind of surface error may be logged.
func WithLogPeriod(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.logPeriod = d
		}
	}
}
