package host

import (
	"bytes"
	"slices"
	"sync"

	"github.com/argus-labs/presence/pkg/presence/render"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Surface operation names passed to the MemorySurface failure hook.
const (
	OpRosterLine   = "roster_line"
	OpHeaderFooter = "header_footer"
	OpNameLabel    = "name_label"
	OpCreateGroup  = "create_group"
	OpDestroyGroup = "destroy_group"
	OpAddMember    = "add_member"
	OpRemoveMember = "remove_member"
)

// MemorySurface keeps the latest state of every surface in memory. It is strict about group
// handles so misuse shows up as errors, and SetFail can inject transient failures.
type MemorySurface struct {
	mu        sync.Mutex
	lines     map[uuid.UUID]render.StyledText
	labels    map[uuid.UUID]render.StyledText
	headers   map[uuid.UUID][2]render.StyledText
	groups    map[GroupHandle]map[uuid.UUID]struct{}
	mutations int
	failFn    func(op string) error
}

var _ Surface = (*MemorySurface)(nil)

func NewMemorySurface() *MemorySurface {
	return &MemorySurface{
		lines:   make(map[uuid.UUID]render.StyledText),
		labels:  make(map[uuid.UUID]render.StyledText),
		headers: make(map[uuid.UUID][2]render.StyledText),
		groups:  make(map[GroupHandle]map[uuid.UUID]struct{}),
	}
}

// SetFail installs fn to be consulted before every operation. A non-nil error aborts it. nil
// removes the hook.
func (s *MemorySurface) SetFail(fn func(op string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFn = fn
}

func (s *MemorySurface) fail(op string) error {
	if s.failFn == nil {
		return nil
	}
	return s.failFn(op)
}

func (s *MemorySurface) SetRosterLine(id uuid.UUID, line render.StyledText) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpRosterLine); err != nil {
		return err
	}
	s.lines[id] = line
	return nil
}

func (s *MemorySurface) SetHeaderFooter(id uuid.UUID, header, footer render.StyledText) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpHeaderFooter); err != nil {
		return err
	}
	s.headers[id] = [2]render.StyledText{header, footer}
	return nil
}

func (s *MemorySurface) SetNameLabel(id uuid.UUID, label render.StyledText) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpNameLabel); err != nil {
		return err
	}
	s.labels[id] = label
	return nil
}

func (s *MemorySurface) CreateGroup(key string) (GroupHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpCreateGroup); err != nil {
		return "", err
	}
	h := GroupHandle(key)
	if _, ok := s.groups[h]; ok {
		return "", eris.Errorf("group %q already exists", key)
	}
	s.groups[h] = make(map[uuid.UUID]struct{})
	s.mutations++
	return h, nil
}

func (s *MemorySurface) DestroyGroup(h GroupHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpDestroyGroup); err != nil {
		return err
	}
	if _, ok := s.groups[h]; !ok {
		return eris.Errorf("group %q does not exist", h)
	}
	delete(s.groups, h)
	s.mutations++
	return nil
}

func (s *MemorySurface) AddMember(h GroupHandle, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpAddMember); err != nil {
		return err
	}
	members, ok := s.groups[h]
	if !ok {
		return eris.Errorf("group %q does not exist", h)
	}
	members[id] = struct{}{}
	s.mutations++
	return nil
}

func (s *MemorySurface) RemoveMember(h GroupHandle, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpRemoveMember); err != nil {
		return err
	}
	members, ok := s.groups[h]
	if !ok {
		return eris.Errorf("group %q does not exist", h)
	}
	if _, ok := members[id]; !ok {
		return eris.Errorf("player %s is not in group %q", id, h)
	}
	delete(members, id)
	s.mutations++
	return nil
}

// -------------------------------------------------------------------------------------------------
// Inspection
// -------------------------------------------------------------------------------------------------

func (s *MemorySurface) RosterLine(id uuid.UUID) (render.StyledText, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.lines[id]
	return line, ok
}

func (s *MemorySurface) NameLabel(id uuid.UUID) (render.StyledText, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	label, ok := s.labels[id]
	return label, ok
}

func (s *MemorySurface) HeaderFooter(id uuid.UUID) (header, footer render.StyledText, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hf, ok := s.headers[id]
	return hf[0], hf[1], ok
}

// Groups returns the existing group handles in sorted order.
func (s *MemorySurface) Groups() []GroupHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	handles := make([]GroupHandle, 0, len(s.groups))
	for h := range s.groups {
		handles = append(handles, h)
	}
	slices.Sort(handles)
	return handles
}

// Members returns the members of h ordered by ID, or nil if h does not exist.
func (s *MemorySurface) Members(h GroupHandle) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.groups[h]
	if !ok {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return ids
}

// GroupsOf returns every group the player is a member of.
func (s *MemorySurface) GroupsOf(id uuid.UUID) []GroupHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var handles []GroupHandle
	for h, members := range s.groups {
		if _, ok := members[id]; ok {
			handles = append(handles, h)
		}
	}
	slices.Sort(handles)
	return handles
}

// Mutations counts successful group operations.
func (s *MemorySurface) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}
