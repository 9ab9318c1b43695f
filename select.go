package rexdb

import (
	"sort"

	"github.com/hupe1980/rexdb/model"
	"github.com/hupe1980/rexdb/namespace"
	"github.com/hupe1980/rexdb/query"
)

// Select executes a query. Plain single-namespace queries go straight
// to the namespace; queries with joins or merged sub-queries are
// coordinated here, with every involved namespace read-locked in name
// order for the whole execution.
func (db *DB) Select(q *query.Query) (*namespace.QueryResults, error) {
	outer, err := db.Namespace(q.Namespace)
	if err != nil {
		return nil, err
	}
	if len(q.Joined) == 0 && len(q.Merged) == 0 {
		return outer.Select(q)
	}

	type part struct {
		ns *namespace.Namespace
		q  *query.Query
	}
	parts := []part{{ns: outer, q: q}}
	if len(q.Merged) > 0 {
		if q.SortBy != "" {
			return nil, model.ErrLogic("sort is not supported on merged queries")
		}
		for _, mq := range q.Merged {
			if mq.SortBy != "" {
				return nil, model.ErrLogic("sort is not supported on merged queries")
			}
			mns, err := db.Namespace(mq.Namespace)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part{ns: mns, q: mq})
		}
	}

	involved := map[string]*namespace.Namespace{}
	for _, p := range parts {
		involved[p.ns.Name()] = p.ns
		for i := range p.q.Joined {
			jns, err := db.Namespace(p.q.Joined[i].Query.Namespace)
			if err != nil {
				return nil, err
			}
			involved[jns.Name()] = jns
		}
	}

	// Sort permutations are built before the read locks are taken.
	for _, p := range parts {
		p.ns.PrepareSort(p.q, len(p.q.Joined) > 0)
	}

	names := make([]string, 0, len(involved))
	for name := range involved {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		involved[name].RLock()
	}
	defer func() {
		for _, name := range names {
			involved[name].RUnlock()
		}
	}()

	merged := len(q.Merged) > 0
	out := &namespace.QueryResults{}
	for _, p := range parts {
		joins := make([]*namespace.JoinedSelector, 0, len(p.q.Joined))
		for i := range p.q.Joined {
			jq := &p.q.Joined[i]
			js, err := namespace.NewJoinedSelector(p.ns, involved[jq.Query.Namespace], jq)
			if err != nil {
				return nil, err
			}
			if err := js.BuildPreResult(); err != nil {
				return nil, err
			}
			joins = append(joins, js)
		}
		pq := p.q
		if merged {
			// Parts run unpaginated; the window is applied over the
			// concatenation below.
			cp := *p.q
			cp.Start, cp.Count, cp.Merged = 0, 0, nil
			cp.CalcTotal = q.CalcTotal
			pq = &cp
		}
		qr, err := p.ns.SelectWithJoins(pq, joins, true)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, qr.Items...)
		out.TotalCount += qr.TotalCount
		out.Aggregations = append(out.Aggregations, qr.Aggregations...)
		out.Contexts = append(out.Contexts, qr.Contexts...)
	}

	if merged {
		start, end := q.Start, len(out.Items)
		if start > end {
			start = end
		}
		if q.Count > 0 && start+q.Count < end {
			end = start + q.Count
		}
		out.Items = out.Items[start:end]
	}
	return out, nil
}

// DeleteQuery removes every document the query matches and returns
// the number deleted. Joins and merges are not supported here.
func (db *DB) DeleteQuery(q *query.Query) (int, error) {
	if len(q.Joined) > 0 || len(q.Merged) > 0 {
		return 0, model.ErrLogic("delete query can't have joins or merges")
	}
	ns, err := db.Namespace(q.Namespace)
	if err != nil {
		return 0, err
	}
	return ns.DeleteQuery(q)
}
