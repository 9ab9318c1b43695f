package index

import (
	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/payload"
)

// Comparator evaluates one predicate directly against stored
// documents. The planner falls back to it for unindexed (JSON path)
// fields, sparse indexes, and conditions an index cannot answer from
// its keys; the selection loop invokes Match per candidate.
type Comparator struct {
	cond    model.CondType
	values  []keyvalue.Value
	collate keyvalue.CollateMode

	field    int
	jsonPath string

	// valueSet accelerates CondSet membership for long value lists.
	valueSet map[string]struct{}

	distinct bool
	seen     map[string]struct{}
}

// NewFieldComparator creates a comparator over a dense field.
func NewFieldComparator(field int, cond model.CondType, values []keyvalue.Value, collate keyvalue.CollateMode) *Comparator {
	c := &Comparator{cond: cond, values: values, collate: collate, field: field}
	c.init()
	return c
}

// NewJSONPathComparator creates a comparator over a dynamic field
// addressed by dotted path.
func NewJSONPathComparator(path string, cond model.CondType, values []keyvalue.Value) *Comparator {
	c := &Comparator{cond: cond, values: values, field: model.IndexByJSONPath, jsonPath: path}
	c.init()
	return c
}

func (c *Comparator) init() {
	if c.cond == model.CondSet && len(c.values) > 4 && c.collate == keyvalue.CollateNone {
		c.valueSet = make(map[string]struct{}, len(c.values))
		for _, v := range c.values {
			c.valueSet[string(v.AppendBinary(nil))] = struct{}{}
		}
	}
}

// SetDistinct makes the comparator accept only the first document per
// matched value.
func (c *Comparator) SetDistinct() {
	c.distinct = true
	c.seen = make(map[string]struct{})
}

// Match evaluates the predicate against a document.
func (c *Comparator) Match(v *payload.Value) bool {
	var candidates []keyvalue.Value
	if c.field == model.IndexByJSONPath {
		candidates = v.GetByPath(c.jsonPath)
	} else {
		candidates = v.Get(c.field)
	}

	switch c.cond {
	case model.CondAny:
		return c.matchDistinct(candidates, len(candidates) > 0)
	case model.CondEmpty:
		return len(candidates) == 0
	case model.CondAllSet:
		return c.matchAllSet(candidates)
	}

	for _, cand := range candidates {
		if c.matchOne(cand) {
			return c.matchDistinct([]keyvalue.Value{cand}, true)
		}
	}
	return false
}

func (c *Comparator) matchOne(cand keyvalue.Value) bool {
	switch c.cond {
	case model.CondEq:
		return len(c.values) > 0 && cand.Equal(c.values[0], c.collate)
	case model.CondSet:
		if c.valueSet != nil {
			_, ok := c.valueSet[string(cand.AppendBinary(nil))]
			return ok
		}
		for _, qv := range c.values {
			if cand.Equal(qv, c.collate) {
				return true
			}
		}
		return false
	case model.CondLt:
		return len(c.values) > 0 && cand.Compare(c.values[0], c.collate) < 0
	case model.CondLe:
		return len(c.values) > 0 && cand.Compare(c.values[0], c.collate) <= 0
	case model.CondGt:
		return len(c.values) > 0 && cand.Compare(c.values[0], c.collate) > 0
	case model.CondGe:
		return len(c.values) > 0 && cand.Compare(c.values[0], c.collate) >= 0
	case model.CondRange:
		return len(c.values) >= 2 &&
			cand.Compare(c.values[0], c.collate) >= 0 &&
			cand.Compare(c.values[1], c.collate) <= 0
	default:
		return false
	}
}

func (c *Comparator) matchAllSet(candidates []keyvalue.Value) bool {
	for _, qv := range c.values {
		found := false
		for _, cand := range candidates {
			if cand.Equal(qv, c.collate) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return len(c.values) > 0
}

func (c *Comparator) matchDistinct(matched []keyvalue.Value, ok bool) bool {
	if !ok || !c.distinct {
		return ok
	}
	for _, m := range matched {
		key := string(m.AppendBinary(nil))
		if _, dup := c.seen[key]; dup {
			return false
		}
		c.seen[key] = struct{}{}
	}
	return true
}
