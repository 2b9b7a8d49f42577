// Package sortkey derives the roster ordering of a player from its status key.
//
// Ordering is, in turn: the status's index in the configured priority list (unlisted statuses take
// the wildcard slot if one is configured, else sort after every listed entry), the status key
// reduced to upper-cased ASCII letters and digits, the raw key and finally the player ID. Players
// without a status sort after everyone else.
package sortkey

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

const (
	// NoStatusPriority is the priority of players without a status.
	NoStatusPriority = 9999

	// Wildcard is the priority list entry that places every unlisted status.
	Wildcard = "_OTHER_"

	groupPrefix = "sp_sort_"
)

type SortKey struct {
	Priority int
	Name     string // normalized status key
	Status   string // raw status key, empty for no status
	Player   uuid.UUID
}

// Group returns the render group key. Players sharing a status share a group.
func (k SortKey) Group() string {
	return fmt.Sprintf("%s%04d_%s", groupPrefix, k.Priority, k.Name)
}

// Compare orders a before b when it returns a negative number. It is a strict total order over
// distinct players.
func Compare(a, b SortKey) int {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if c := strings.Compare(a.Status, b.Status); c != 0 {
		return c
	}
	return bytes.Compare(a.Player[:], b.Player[:])
}

// Normalize strips everything but ASCII letters and digits from key and upper-cases the rest.
func Normalize(key string) string {
	stripped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return -1
		}
	}, key)
	return strings.ToUpper(stripped)
}

// fold is the matching form of a priority entry or status key. A Caser is stateful, so each call
// gets its own.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Resolver maps status keys to sort keys for one priority list. It is immutable and safe for
// concurrent use.
type Resolver struct {
	index    map[string]int
	wildcard int // -1 when no wildcard is configured
	unlisted int
}

// NewResolver builds a resolver from an ordered priority list. Entries are matched under Unicode
// case folding, duplicates keep their first position and the list is truncated so that no
// priority reaches NoStatusPriority.
func NewResolver(priority []string) *Resolver {
	if len(priority) >= NoStatusPriority {
		priority = priority[:NoStatusPriority-1]
	}
	r := &Resolver{
		index:    make(map[string]int, len(priority)),
		wildcard: -1,
		unlisted: len(priority),
	}
	for i, entry := range priority {
		if strings.EqualFold(entry, Wildcard) {
			if r.wildcard < 0 {
				r.wildcard = i
			}
			continue
		}
		key := fold(entry)
		if _, ok := r.index[key]; !ok && key != "" {
			r.index[key] = i
		}
	}
	return r
}

// Resolve returns the sort key of a player holding statusKey. An empty key means no status.
func (r *Resolver) Resolve(id uuid.UUID, statusKey string) SortKey {
	if statusKey == "" {
		return SortKey{Priority: NoStatusPriority, Player: id}
	}
	return SortKey{
		Priority: r.Priority(statusKey),
		Name:     Normalize(statusKey),
		Status:   statusKey,
		Player:   id,
	}
}

// Priority returns the primary ordering component of a non-empty status key.
func (r *Resolver) Priority(statusKey string) int {
	if i, ok := r.index[fold(statusKey)]; ok {
		return i
	}
	if r.wildcard >= 0 {
		return r.wildcard
	}
	return r.unlisted
}
