package payload

import (
	"strings"
	"sync"
)

// TagsMatcher interns document field names into stable numeric tags.
// Serialized documents carry tags instead of names, so the matcher is
// persisted alongside the namespace schema and must only ever grow.
type TagsMatcher struct {
	mu      sync.RWMutex
	names   []string
	name2id map[string]int
	version int
}

// NewTagsMatcher creates an empty matcher.
func NewTagsMatcher() *TagsMatcher {
	return &TagsMatcher{name2id: make(map[string]int)}
}

// Version returns the matcher's monotonic version. It bumps whenever
// a new name is interned; storage uses it to decide whether the
// persisted copy is stale.
func (tm *TagsMatcher) Version() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.version
}

// NameToTag interns name and returns its tag.
func (tm *TagsMatcher) NameToTag(name string) int {
	tm.mu.RLock()
	if id, ok := tm.name2id[name]; ok {
		tm.mu.RUnlock()
		return id
	}
	tm.mu.RUnlock()

	tm.mu.Lock()
	defer tm.mu.Unlock()
	if id, ok := tm.name2id[name]; ok {
		return id
	}
	id := len(tm.names) + 1
	tm.names = append(tm.names, name)
	tm.name2id[name] = id
	tm.version++
	return id
}

// TagToName resolves a tag back to its name, or "" if unknown.
func (tm *TagsMatcher) TagToName(tag int) string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if tag < 1 || tag > len(tm.names) {
		return ""
	}
	return tm.names[tag-1]
}

// PathToTags interns each segment of a dotted path.
func (tm *TagsMatcher) PathToTags(path string) []int {
	segs := strings.Split(path, ".")
	tags := make([]int, len(segs))
	for i, s := range segs {
		tags[i] = tm.NameToTag(s)
	}
	return tags
}

// Names returns a snapshot of all interned names in tag order.
func (tm *TagsMatcher) Names() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return append([]string(nil), tm.names...)
}

// Load replaces the matcher content from a persisted name list.
func (tm *TagsMatcher) Load(names []string, version int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.names = append([]string(nil), names...)
	tm.name2id = make(map[string]int, len(names))
	for i, n := range names {
		tm.name2id[n] = i + 1
	}
	tm.version = version
}
