package namespace

import (
	"sort"

	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/payload"
	"github.com/hupe1980/rexdb/query"
)

// aggregator folds the values of one document field across the
// accepted rows of a selection.
type aggregator struct {
	typ    query.AggType
	field  string
	fieldNo int
	sum    float64
	count  int
	min    float64
	max    float64
	seen   bool
	facets map[string]int
}

func newAggregator(pt *payload.Type, ae query.AggregateEntry) *aggregator {
	a := &aggregator{typ: ae.Type, field: ae.Field, fieldNo: -1}
	if no, ok := pt.FieldByName(ae.Field); ok {
		a.fieldNo = no
	}
	if ae.Type == query.AggFacet {
		a.facets = make(map[string]int)
	}
	return a
}

func (a *aggregator) aggregate(pv *payload.Value) {
	var vals []keyvalue.Value
	if a.fieldNo >= 0 {
		vals = pv.Get(a.fieldNo)
	} else {
		vals = pv.GetByPath(a.field)
	}
	for _, v := range vals {
		if a.typ == query.AggFacet {
			a.facets[v.Text()]++
			continue
		}
		f := v.Double()
		a.sum += f
		a.count++
		if !a.seen || f < a.min {
			a.min = f
		}
		if !a.seen || f > a.max {
			a.max = f
		}
		a.seen = true
	}
}

func (a *aggregator) result() AggregationResult {
	res := AggregationResult{Type: a.typ, Field: a.field}
	switch a.typ {
	case query.AggSum:
		res.Value = a.sum
	case query.AggAvg:
		if a.count > 0 {
			res.Value = a.sum / float64(a.count)
		}
	case query.AggMin:
		res.Value = a.min
	case query.AggMax:
		res.Value = a.max
	case query.AggFacet:
		res.Facets = make([]FacetResult, 0, len(a.facets))
		for k, n := range a.facets {
			res.Facets = append(res.Facets, FacetResult{Value: k, Count: n})
		}
		sort.Slice(res.Facets, func(i, j int) bool {
			if res.Facets[i].Count != res.Facets[j].Count {
				return res.Facets[i].Count > res.Facets[j].Count
			}
			return res.Facets[i].Value < res.Facets[j].Value
		})
	}
	return res
}
