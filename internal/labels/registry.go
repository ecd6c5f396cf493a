// Package labels assigns dense integer labels to enrolled identities for one training session.
//
// An identity is normally keyed by its id alone. When the store holds more than one
// distinct name for the same id (a conflict), that id is split into one label per
// (id, name) pair so differently named people are never merged.
package labels

import (
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Label is a dense identifier, starting at 1, valid only within one training session.
// The zero value means "no label".
type Label int

// Identity is one stored (id, name) observation.
type Identity struct {
	ID   int
	Name string
}

// ConflictSet holds identity ids observed with two or more distinct names.
type ConflictSet map[int]struct{}

// Contains reports whether id is conflicted.
func (c ConflictSet) Contains(id int) bool {
	_, ok := c[id]
	return ok
}

// IDs returns the conflicted ids in ascending order.
func (c ConflictSet) IDs() []int {
	ids := make([]int, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// CleanName trims surrounding whitespace and composes the name to NFC so that
// visually identical spellings compare equal.
func CleanName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// DetectConflicts scans every observation and returns the ids carrying more than one distinct name.
// It must see the full snapshot before any label is assigned.
func DetectConflicts(identities []Identity) ConflictSet {
	namesPerID := make(map[int]map[string]struct{})
	for _, ident := range identities {
		names, ok := namesPerID[ident.ID]
		if !ok {
			names = make(map[string]struct{})
			namesPerID[ident.ID] = names
		}
		names[CleanName(ident.Name)] = struct{}{}
	}

	conflicts := make(ConflictSet)
	for id, names := range namesPerID {
		if len(names) > 1 {
			conflicts[id] = struct{}{}
		}
	}
	return conflicts
}

type key struct {
	id   int
	name string
}

// Registry memoizes (id, effective name) -> Label. It is not safe for concurrent use;
// one Registry is built per training pass and then frozen with Snapshot.
type Registry struct {
	conflicts ConflictSet
	byKey     map[key]Label
	names     map[Label]string
	next      Label
}

// NewRegistry creates an empty registry keyed according to conflicts.
func NewRegistry(conflicts ConflictSet) *Registry {
	if conflicts == nil {
		conflicts = make(ConflictSet)
	}
	return &Registry{
		conflicts: conflicts,
		byKey:     make(map[key]Label),
		names:     make(map[Label]string),
		next:      1,
	}
}

// Resolve returns the label for an observed identity, allocating the next one on first sight.
func (r *Registry) Resolve(identityID int, identityName string) Label {
	name := CleanName(identityName)
	display := name
	if display == "" {
		display = strconv.Itoa(identityID)
	}

	k := key{id: identityID, name: name}
	if !r.conflicts.Contains(identityID) {
		k.name = display
	}

	if label, ok := r.byKey[k]; ok {
		return label
	}

	label := r.next
	r.next++
	r.byKey[k] = label
	r.names[label] = display
	return label
}

// Len returns the number of labels allocated so far.
func (r *Registry) Len() int {
	return len(r.names)
}

// Snapshot freezes the current mappings into an immutable view.
func (r *Registry) Snapshot() *Snapshot {
	names := make(map[Label]string, len(r.names))
	for label, name := range r.names {
		names[label] = name
	}
	conflicts := make(ConflictSet, len(r.conflicts))
	for id := range r.conflicts {
		conflicts[id] = struct{}{}
	}
	return &Snapshot{names: names, conflicts: conflicts}
}

// Snapshot is the read-only label table shared with the frame loop.
type Snapshot struct {
	names     map[Label]string
	conflicts ConflictSet
}

// Name returns the display name for label.
func (s *Snapshot) Name(label Label) (string, bool) {
	if s == nil {
		return "", false
	}
	name, ok := s.names[label]
	return name, ok
}

// Len returns the number of labels in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Conflicts returns the conflicted identity ids in ascending order.
func (s *Snapshot) Conflicts() []int {
	if s == nil {
		return nil
	}
	return s.conflicts.IDs()
}
