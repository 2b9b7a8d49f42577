package group

import (
	"bytes"
	"errors"
	"testing"

	"github.com/argus-labs/presence/pkg/presence/host"
	"github.com/argus-labs/presence/pkg/presence/sortkey"
	"github.com/argus-labs/presence/pkg/testutils"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSurface = errors.New("surface unavailable")

func groupKey(priority int, name string) string {
	return sortkey.SortKey{Priority: priority, Name: name}.Group()
}

func TestReconciler_AssignCreatesAndShares(t *testing.T) {
	t.Parallel()

	surface := host.NewMemorySurface()
	r := New(surface)
	alice, bob := uuid.New(), uuid.New()
	builders := groupKey(1, "BUILDER")

	r.Assign(alice, builders)
	r.Assign(bob, builders)

	assert.Equal(t, []host.GroupHandle{host.GroupHandle(builders)}, surface.Groups())
	assert.Len(t, surface.Members(host.GroupHandle(builders)), 2)
	assert.Equal(t, 1, r.Len())

	// Property: one leaving a shared group leaves it intact for the other.
	r.Unassign(alice)
	assert.Equal(t, []host.GroupHandle{host.GroupHandle(builders)}, surface.Groups())
	assert.Equal(t, []uuid.UUID{bob}, surface.Members(host.GroupHandle(builders)))

	// Property: the last one leaving destroys it.
	r.Unassign(bob)
	assert.Empty(t, surface.Groups())
	assert.Equal(t, 0, r.Len())
}

func TestReconciler_AssignIsIdempotent(t *testing.T) {
	t.Parallel()

	surface := host.NewMemorySurface()
	r := New(surface)
	id := uuid.New()
	key := groupKey(sortkey.NoStatusPriority, "")

	r.Assign(id, key)
	before := surface.Mutations()
	for range 10 {
		r.Assign(id, key)
	}
	assert.Equal(t, before, surface.Mutations(), "assigning the current group must not touch the surface")
}

func TestReconciler_MoveDestroysEmptiedGroup(t *testing.T) {
	t.Parallel()

	surface := host.NewMemorySurface()
	r := New(surface)
	id := uuid.New()
	afk, builder := groupKey(0, "AFK"), groupKey(1, "BUILDER")

	r.Assign(id, afk)
	r.Assign(id, builder)

	assert.Equal(t, []host.GroupHandle{host.GroupHandle(builder)}, surface.GroupsOf(id))
	assert.Equal(t, []host.GroupHandle{host.GroupHandle(builder)}, surface.Groups())
	got, ok := r.GroupOf(id)
	require.True(t, ok)
	assert.Equal(t, builder, got)
}

func TestReconciler_FailedRemoveKeepsOldMembership(t *testing.T) {
	t.Parallel()

	surface := host.NewMemorySurface()
	r := New(surface)
	id := uuid.New()
	afk, builder := groupKey(0, "AFK"), groupKey(1, "BUILDER")
	r.Assign(id, afk)

	surface.SetFail(func(op string) error {
		if op == host.OpRemoveMember {
			return errSurface
		}
		return nil
	})
	r.Assign(id, builder)

	got, _ := r.GroupOf(id)
	assert.Equal(t, afk, got)
	assert.Equal(t, []host.GroupHandle{host.GroupHandle(afk)}, surface.GroupsOf(id))

	surface.SetFail(nil)
	r.Assign(id, builder)
	assert.Equal(t, []host.GroupHandle{host.GroupHandle(builder)}, surface.Groups())
}

func TestReconciler_FailedDestroyIsRetried(t *testing.T) {
	t.Parallel()

	surface := host.NewMemorySurface()
	r := New(surface)
	id := uuid.New()
	key := groupKey(0, "AFK")
	r.Assign(id, key)

	surface.SetFail(func(op string) error {
		if op == host.OpDestroyGroup {
			return errSurface
		}
		return nil
	})
	r.Unassign(id)
	assert.Equal(t, []host.GroupHandle{host.GroupHandle(key)}, surface.Groups(), "destroy failed, group lingers")
	assert.Equal(t, 0, r.Len())

	surface.SetFail(nil)
	r.Retry()
	assert.Empty(t, surface.Groups())
}

func TestReconciler_PendingDestroyIsRevived(t *testing.T) {
	t.Parallel()

	surface := host.NewMemorySurface()
	r := New(surface)
	alice, bob := uuid.New(), uuid.New()
	key := groupKey(0, "AFK")
	r.Assign(alice, key)

	surface.SetFail(func(op string) error {
		if op == host.OpDestroyGroup {
			return errSurface
		}
		return nil
	})
	r.Unassign(alice)
	r.Assign(bob, key) // retry fails again, so the lingering group is taken back

	surface.SetFail(nil)
	assert.Equal(t, []host.GroupHandle{host.GroupHandle(key)}, surface.Groups())
	assert.Equal(t, []uuid.UUID{bob}, surface.Members(host.GroupHandle(key)))
	r.Retry()
	assert.Equal(t, []host.GroupHandle{host.GroupHandle(key)}, surface.Groups())
}

func TestReconciler_ReassignAllDropsMissing(t *testing.T) {
	t.Parallel()

	surface := host.NewMemorySurface()
	r := New(surface)
	alice, bob := uuid.New(), uuid.New()
	r.Assign(alice, groupKey(0, "AFK"))
	r.Assign(bob, groupKey(0, "AFK"))

	r.ReassignAll(map[uuid.UUID]string{bob: groupKey(1, "BUILDER")})

	_, ok := r.GroupOf(alice)
	assert.False(t, ok)
	assert.Equal(t, []host.GroupHandle{host.GroupHandle(groupKey(1, "BUILDER"))}, surface.Groups())
}

// -------------------------------------------------------------------------------------------------
// Model-based fuzzing against a flaky surface
// -------------------------------------------------------------------------------------------------
// Random assign/unassign/reassign sequences run while the surface rejects a fraction of calls. After
// every step the surface must mirror the reconciler's own view, nobody may sit in two groups, and no
// group the reconciler considers live may be empty. Once failures stop, one full reassign must
// converge the surface to the model exactly.
// -------------------------------------------------------------------------------------------------

func TestReconciler_ModelFuzz(t *testing.T) {
	t.Parallel()
	prng := testutils.NewRand()

	const (
		opsMax      = 1 << 13
		playersMax  = 24
		failPercent = 20
	)

	players := make([]uuid.UUID, playersMax)
	for i := range players {
		players[i] = testutils.RandPlayerID(prng)
	}
	keys := []string{
		groupKey(0, "AFK"),
		groupKey(1, "BUILDER"),
		groupKey(2, "STREAMING"),
		groupKey(sortkey.NoStatusPriority, ""),
	}

	surface := host.NewMemorySurface()
	surface.SetFail(func(string) error {
		if prng.IntN(100) < failPercent {
			return errSurface
		}
		return nil
	})
	impl := New(surface)
	model := make(map[uuid.UUID]string)

	for range opsMax {
		switch testutils.RandWeightedOp(prng, reconcilerOps) {
		case r_assign:
			id, key := players[prng.IntN(len(players))], keys[prng.IntN(len(keys))]
			impl.Assign(id, key)
			model[id] = key

		case r_unassign:
			id := players[prng.IntN(len(players))]
			impl.Unassign(id)
			delete(model, id)

		case r_reassignAll:
			next := make(map[uuid.UUID]string)
			for _, id := range players {
				if prng.IntN(2) == 0 {
					next[id] = keys[prng.IntN(len(keys))]
				}
			}
			impl.ReassignAll(next)
			model = next

		case r_retry:
			impl.Retry()

		default:
			panic("unreachable")
		}

		assertMirrors(t, impl, surface, players)
		if t.Failed() {
			return
		}
	}

	surface.SetFail(nil)
	impl.ReassignAll(model)
	assertMirrors(t, impl, surface, players)

	// Property: without failures the surface converges to the model.
	want := make(map[host.GroupHandle][]uuid.UUID)
	for id, key := range model {
		want[host.GroupHandle(key)] = append(want[host.GroupHandle(key)], id)
	}
	got := make(map[host.GroupHandle][]uuid.UUID)
	for _, h := range surface.Groups() {
		got[h] = surface.Members(h)
	}
	byID := cmpopts.SortSlices(func(a, b uuid.UUID) bool { return bytes.Compare(a[:], b[:]) < 0 })
	assert.Empty(t, cmp.Diff(want, got, byID), "surface groups differ from the model (-want +got)")
	assert.Empty(t, impl.pendingDestroy)
	assert.Empty(t, impl.orphans)
}

func assertMirrors(t *testing.T, impl *Reconciler, surface *host.MemorySurface, players []uuid.UUID) {
	t.Helper()

	// Property: a live group is never empty.
	for key, g := range impl.groups {
		assert.NotEmpty(t, g.members, "group %s is live but empty", key)
	}

	// Property: a player sits in at most one group, the one the reconciler recorded.
	for _, id := range players {
		groups := surface.GroupsOf(id)
		key, ok := impl.members[id]
		if !ok {
			assert.Empty(t, groups, "untracked player %s is in a group", id)
			continue
		}
		assert.Equal(t, []host.GroupHandle{host.GroupHandle(key)}, groups)
	}

	// Property: every surface group is either live with identical members or awaiting destroy.
	for _, h := range surface.Groups() {
		if g, ok := impl.groups[string(h)]; ok {
			assert.Len(t, surface.Members(h), len(g.members), "group %s member count mismatch", h)
			continue
		}
		_, pending := impl.pendingDestroy[string(h)]
		assert.True(t, pending, "surface group %s is unknown to the reconciler", h)
		assert.Empty(t, surface.Members(h), "lingering group %s still has members", h)
	}
}

type reconcilerOp uint8

const (
	r_assign      reconcilerOp = 50
	r_unassign    reconcilerOp = 25
	r_reassignAll reconcilerOp = 10
	r_retry       reconcilerOp = 15
)

var reconcilerOps = []reconcilerOp{r_assign, r_unassign, r_reassignAll, r_retry}
