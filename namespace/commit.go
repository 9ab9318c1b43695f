package namespace

import "sync"

// sortedQueriesThreshold is how many times queries must ask for an
// index sort before the permutation is considered worth building.
const sortedQueriesThreshold = 5

// lockUpgrader swaps a held read lock for the write lock and back.
// The lock is released in between, so the caller must re-validate any
// state derived under the read lock after Upgrade.
type lockUpgrader struct {
	mtx      *sync.RWMutex
	upgraded bool
}

func (u *lockUpgrader) Upgrade() {
	if !u.upgraded {
		u.mtx.RUnlock()
		u.mtx.Lock()
		u.upgraded = true
	}
}

func (u *lockUpgrader) Downgrade() {
	if u.upgraded {
		u.mtx.Unlock()
		u.mtx.RLock()
		u.upgraded = false
	}
}

// commitSortOrders materializes the sort permutation of one ordered
// index. Posting lists are maintained incrementally by writes, so the
// permutation is the only derived structure commits build.
func (ns *Namespace) commitSortOrders(indexNo int) {
	idx := ns.indexes[indexNo]
	if !idx.Kind().IsOrdered() || idx.SortID() != 0 {
		return
	}
	idx.BuildSortOrders(len(ns.items))
	ns.commitCount.Add(1)
	ns.logger.Debug("sort orders built",
		"index", idx.Name(), "items", len(ns.items))
}
