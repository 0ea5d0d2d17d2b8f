// Package party defines node identity and participant-set helpers shared by
// the transport, runtime, and protocol catalogue.
package party

import "sort"

// ID identifies a node. By convention it also serves as the node's Shamir
// evaluation index, so it is always >= 1 (see spec.md §3, Share.index).
type ID int

// IDSlice is an ordered participant set: the initiator plus every
// responder, per spec.md §3 "Participant set".
type IDSlice []ID

// Contains reports whether id is a member of the set.
func (ids IDSlice) Contains(id ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// Len, Less, Swap implement sort.Interface so participant sets have a
// canonical ordering (used by internal/xhash to fingerprint a set
// independent of the order it was supplied in).
func (ids IDSlice) Len() int           { return len(ids) }
func (ids IDSlice) Less(i, j int) bool { return ids[i] < ids[j] }
func (ids IDSlice) Swap(i, j int)      { ids[i], ids[j] = ids[j], ids[i] }

// Sorted returns a sorted copy of ids.
func (ids IDSlice) Sorted() IDSlice {
	out := make(IDSlice, len(ids))
	copy(out, ids)
	sort.Sort(out)
	return out
}

// Remove returns a copy of ids with id removed (if present).
func (ids IDSlice) Remove(id ID) IDSlice {
	out := make(IDSlice, 0, len(ids))
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// Other returns every ID in ids that is not self.
func (ids IDSlice) Other(self ID) IDSlice {
	return ids.Remove(self)
}
