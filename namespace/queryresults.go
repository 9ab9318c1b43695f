package namespace

import (
	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/payload"
	"github.com/hupe1980/rexdb/query"
)

// Item is one selected document together with its reference and any
// joined sub-results, grouped per joined query in declaration order.
type Item struct {
	Ref    model.ItemRef
	Value  *payload.Value
	Joined [][]Item
}

// NsContext describes one namespace that contributed rows to a result
// set, so callers can decode fields of merged results per source.
type NsContext struct {
	Name         string
	Type         *payload.Type
	Tags         *payload.TagsMatcher
	SelectFilter []string
}

// AggregationResult is the computed value of one aggregation request.
// Facet results carry per-key counts instead of a single value.
type AggregationResult struct {
	Type   query.AggType
	Field  string
	Value  float64
	Facets []FacetResult
}

// FacetResult is one key bucket of a facet aggregation.
type FacetResult struct {
	Value string
	Count int
}

// QueryResults collects the output of a Select call.
type QueryResults struct {
	Items        []Item
	TotalCount   int
	Aggregations []AggregationResult
	Contexts     []NsContext
}

func (qr *QueryResults) Len() int { return len(qr.Items) }
