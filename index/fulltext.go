package index

import (
	"math"
	"strings"

	"github.com/hupe1980/rexdb/idset"
	"github.com/hupe1980/rexdb/keyvalue"
	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/payload"
)

// BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// rankScale converts BM25 scores to the integer relevance carried by
// result rows.
const rankScale = 100

type ftPosting struct {
	id    model.IdType
	count int
}

// FullTextIndex is an inverted BM25 index. The planner treats it as
// an opaque iterator provider: SelectKey scores the whole match set
// for a query string and returns it as one posting list plus per-id
// relevance.
type FullTextIndex struct {
	name   string
	opts   Opts
	fields payload.FieldsSet

	inverted    map[string][]ftPosting
	docTerms    map[model.IdType]map[string]int
	totalLength int64
}

// NewFullText creates a full-text index over a string field.
func NewFullText(name string, opts Opts, fields payload.FieldsSet) *FullTextIndex {
	return &FullTextIndex{
		name:     name,
		opts:     opts,
		fields:   fields,
		inverted: make(map[string][]ftPosting),
		docTerms: make(map[model.IdType]map[string]int),
	}
}

func (f *FullTextIndex) Name() string              { return f.name }
func (f *FullTextIndex) Kind() Kind                { return KindFullText }
func (f *FullTextIndex) KeyType() keyvalue.Type    { return keyvalue.TypeString }
func (f *FullTextIndex) Opts() Opts                { return f.opts }
func (f *FullTextIndex) Fields() payload.FieldsSet { return f.fields }
func (f *FullTextIndex) Size() int                 { return len(f.inverted) }
func (f *FullTextIndex) ClearCache()               {}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r > 127)
	})
}

// Upsert indexes the document text under id, replacing any previous
// text for that id.
func (f *FullTextIndex) Upsert(key keyvalue.Value, id model.IdType) {
	f.Delete(key, id)

	tokens := tokenize(key.Text())
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	f.docTerms[id] = tf
	f.totalLength += int64(len(tokens))

	for t, count := range tf {
		postings := f.inverted[t]
		pos := len(postings)
		for pos > 0 && postings[pos-1].id > id {
			pos--
		}
		postings = append(postings, ftPosting{})
		copy(postings[pos+1:], postings[pos:])
		postings[pos] = ftPosting{id: id, count: count}
		f.inverted[t] = postings
	}
}

// Delete removes the document from the inverted lists.
func (f *FullTextIndex) Delete(_ keyvalue.Value, id model.IdType) {
	tf, ok := f.docTerms[id]
	if !ok {
		return
	}
	length := 0
	for t, count := range tf {
		length += count
		postings := f.inverted[t]
		for i, p := range postings {
			if p.id == id {
				f.inverted[t] = append(postings[:i], postings[i+1:]...)
				break
			}
		}
		if len(f.inverted[t]) == 0 {
			delete(f.inverted, t)
		}
	}
	f.totalLength -= int64(length)
	delete(f.docTerms, id)
}

func (f *FullTextIndex) docLength(id model.IdType) int {
	n := 0
	for _, c := range f.docTerms[id] {
		n += c
	}
	return n
}

// SelectKey scores the query string against the index and returns all
// matching ids with BM25 relevance. Only equality (match) conditions
// are meaningful for text.
func (f *FullTextIndex) SelectKey(values []keyvalue.Value, cond model.CondType, _ int, _ SelectHint) (*SelectKeyResults, error) {
	if cond != model.CondEq && cond != model.CondSet && cond != model.CondAny {
		return nil, model.ErrQueryExec("condition %s is not supported by fulltext index %q", cond, f.name)
	}

	docCount := len(f.docTerms)
	res := &SelectKeyResults{Ranks: make(map[model.IdType]int32)}
	ids := idset.New()

	if cond == model.CondAny {
		for id := range f.docTerms {
			ids.AddUnordered(id)
			res.Ranks[id] = rankScale
		}
		res.Results = append(res.Results, SingleKeyResult{IDs: ids})
		return res, nil
	}

	avgLen := 1.0
	if docCount > 0 {
		avgLen = float64(f.totalLength) / float64(docCount)
	}

	scores := make(map[model.IdType]float64)
	for _, v := range values {
		for _, term := range tokenize(v.Text()) {
			postings := f.inverted[term]
			if len(postings) == 0 {
				continue
			}
			idf := math.Log(1 + (float64(docCount)-float64(len(postings))+0.5)/(float64(len(postings))+0.5))
			for _, p := range postings {
				tf := float64(p.count)
				norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(f.docLength(p.id))/avgLen))
				scores[p.id] += idf * norm
			}
		}
	}

	for id, score := range scores {
		ids.AddUnordered(id)
		res.Ranks[id] = int32(score * rankScale)
	}
	res.Results = append(res.Results, SingleKeyResult{IDs: ids})
	return res, nil
}

// SortOrders always returns nils: text relevance is not a key order.
func (f *FullTextIndex) SortOrders() ([]model.SortType, []model.IdType) { return nil, nil }

// BuildSortOrders is a no-op for full-text indexes.
func (f *FullTextIndex) BuildSortOrders(int) {}

// SortID always returns 0 for full-text indexes.
func (f *FullTextIndex) SortID() int { return 0 }

// MemBytes reports the approximate heap footprint.
func (f *FullTextIndex) MemBytes() int {
	n := 0
	for t, p := range f.inverted {
		n += len(t) + len(p)*12 + 48
	}
	return n
}
