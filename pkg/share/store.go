// Package share implements per-node share storage: a mapping from secret ID
// to (Share, lifetime), per spec.md §4.2.
package share

import (
	"strconv"

	"github.com/luxfi/mpc/pkg/field"
)

// Lifetime is the storage discipline for a share record.
type Lifetime struct {
	sticky bool
	tag    string
}

// Sticky records are retained across bulk cleanups; used for long-lived
// setup material (the multiplication mask and comparison bit shares).
func Sticky() Lifetime { return Lifetime{sticky: true} }

// Tagged records are associated with a caller-supplied tag so callers can
// purge a whole working set by tag, or by "all non-sticky", in one call.
func Tagged(tag string) Lifetime { return Lifetime{sticky: false, tag: tag} }

// LifetimeFromTag implements the spec.md §6 tag convention: storageTag ==
// nil means sticky, a non-nil string means Tagged(*storageTag).
func LifetimeFromTag(storageTag *string) Lifetime {
	if storageTag == nil {
		return Sticky()
	}
	return Tagged(*storageTag)
}

// IsSticky reports whether l is the sticky lifetime.
func (l Lifetime) IsSticky() bool { return l.sticky }

// Tag returns the tag associated with a tagged lifetime ("" for sticky).
func (l Lifetime) Tag() string { return l.tag }

// Record is a stored share plus its lifetime.
type Record struct {
	Share    *field.Share
	Lifetime Lifetime
}

// Store is a per-node, single-threaded keyed container of Records. It is
// never accessed concurrently: spec.md §5 guarantees share storage is
// touched only from the owning node's single execution stream.
type Store struct {
	records map[string]Record
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]Record)}
}

// Put inserts or overwrites the record for id, always replacing any existing
// lifetime with life. Use PutPreserving to keep an existing record's
// lifetime instead.
func (s *Store) Put(id string, sh *field.Share, life Lifetime) {
	s.records[id] = Record{Share: sh, Lifetime: life}
}

// PutPreserving inserts sh under id, keeping the existing lifetime if id is
// already present, or falling back to def otherwise. This implements the
// "overwrite MUST preserve the old lifetime attribute if the new call did
// not specify one" clause of spec.md §4.2.
func (s *Store) PutPreserving(id string, sh *field.Share, def Lifetime) {
	if existing, ok := s.records[id]; ok {
		s.records[id] = Record{Share: sh, Lifetime: existing.Lifetime}
		return
	}
	s.records[id] = Record{Share: sh, Lifetime: def}
}

// Get returns the share for id, and whether it was present.
func (s *Store) Get(id string) (*field.Share, bool) {
	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return rec.Share, true
}

// GetInfo returns the full record for id, and whether it was present.
func (s *Store) GetInfo(id string) (Record, bool) {
	rec, ok := s.records[id]
	return rec, ok
}

// Remove deletes the record for id, if any.
func (s *Store) Remove(id string) {
	delete(s.records, id)
}

// ClearNonSticky removes every record whose lifetime is Tagged(_),
// regardless of tag value, leaving sticky records untouched.
func (s *Store) ClearNonSticky() {
	for id, rec := range s.records {
		if !rec.Lifetime.IsSticky() {
			delete(s.records, id)
		}
	}
}

// ClearByTag removes every record tagged exactly tag.
func (s *Store) ClearByTag(tag string) {
	for id, rec := range s.records {
		if !rec.Lifetime.IsSticky() && rec.Lifetime.Tag() == tag {
			delete(s.records, id)
		}
	}
}

// ClearAll removes every record, including sticky ones.
func (s *Store) ClearAll() {
	s.records = make(map[string]Record)
}

// Count returns the total number of records, sticky and tagged alike.
func (s *Store) Count() int {
	return len(s.records)
}

// String renders a short diagnostic summary, mirroring the teacher's
// MultiHandler.String() debug helper.
func (s *Store) String() string {
	return "share.Store{records: " + strconv.Itoa(len(s.records)) + "}"
}
