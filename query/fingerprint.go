package query

import (
	"hash/maphash"
)

// fingerprintSeed is fixed per process; fingerprints are only ever
// compared against entries of the same in-memory cache.
var fingerprintSeed = maphash.MakeSeed()

// Fingerprint returns a structural hash of the query: namespace,
// predicates, sorting and joined sub-queries, but not pagination or
// aggregation. Two executions that differ only in start/count share
// the same fingerprint and therefore the same cached total.
func (q *Query) Fingerprint() uint64 {
	var h maphash.Hash
	h.SetSeed(fingerprintSeed)
	q.hashInto(&h)
	return h.Sum64()
}

func (q *Query) hashInto(h *maphash.Hash) {
	h.WriteString(q.Namespace)
	h.WriteByte(0)
	for _, e := range q.Entries {
		h.WriteByte(byte(e.Op))
		h.WriteByte(byte(e.Cond))
		h.WriteString(e.Index)
		h.WriteByte(0)
		if e.Distinct {
			h.WriteByte(1)
		}
		for _, v := range e.Values {
			v.Hash(h)
		}
		h.WriteByte(0xFE)
	}
	h.WriteString(q.SortBy)
	if q.SortDesc {
		h.WriteByte(1)
	}
	for _, v := range q.ForcedSortOrder {
		v.Hash(h)
	}
	for _, j := range q.Joined {
		h.WriteByte(0xFD)
		h.WriteByte(byte(j.Type))
		for _, on := range j.On {
			h.WriteString(on.LeftField)
			h.WriteByte(byte(on.Cond))
			h.WriteString(on.RightField)
		}
		if j.Query != nil {
			j.Query.hashInto(h)
		}
	}
	for _, m := range q.Merged {
		h.WriteByte(0xFC)
		m.hashInto(h)
	}
}
