package cells

import "sync"

// Record is a finished pass or node invocation kept in the Trace
type Record struct {
	ID       string
	ParentID string
	Tags     map[any]any
}

func (r *Record) GetTag(tag any) (any, bool) {
	v, ok := r.Tags[tag]
	return v, ok
}

func (r *Record) SetTag(tag any, val any) {
	r.Tags[tag] = val
}

// Trace keeps the most recent passes and their node records. When more than
// limit records are held, whole passes are evicted oldest first.
type Trace struct {
	mu       sync.RWMutex
	records  map[string]*Record
	byParent map[string][]string
	roots    []string
	limit    int
}

func newTrace(limit int) *Trace {
	return &Trace{
		records:  make(map[string]*Record),
		byParent: make(map[string][]string),
		roots:    []string{},
		limit:    limit,
	}
}

func (t *Trace) addPass(root *Record, children []*Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[root.ID] = root
	t.roots = append(t.roots, root.ID)
	for _, child := range children {
		child.ParentID = root.ID
		t.records[child.ID] = child
		t.byParent[root.ID] = append(t.byParent[root.ID], child.ID)
	}

	for len(t.records) > t.limit && len(t.roots) > 1 {
		t.evictOldest()
	}
}

func (t *Trace) evictOldest() {
	oldestRoot := t.roots[0]
	t.roots = t.roots[1:]
	t.removeSubtree(oldestRoot)
}

func (t *Trace) removeSubtree(id string) {
	delete(t.records, id)

	children := t.byParent[id]
	delete(t.byParent, id)

	for _, childID := range children {
		t.removeSubtree(childID)
	}
}

// Len returns the number of records held
func (t *Trace) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

func (t *Trace) Get(id string) *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[id]
}

func (t *Trace) Children(id string) []*Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	childIDs := t.byParent[id]
	children := make([]*Record, 0, len(childIDs))
	for _, childID := range childIDs {
		if rec := t.records[childID]; rec != nil {
			children = append(children, rec)
		}
	}
	return children
}

// Roots returns the pass records, oldest first
func (t *Trace) Roots() []*Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	roots := make([]*Record, 0, len(t.roots))
	for _, id := range t.roots {
		if rec := t.records[id]; rec != nil {
			roots = append(roots, rec)
		}
	}
	return roots
}

// Last returns the most recent pass record
func (t *Trace) Last() *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.roots) == 0 {
		return nil
	}
	return t.records[t.roots[len(t.roots)-1]]
}

func (t *Trace) Filter(predicate func(*Record) bool) []*Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []*Record
	for _, rec := range t.records {
		if predicate(rec) {
			result = append(result, rec)
		}
	}
	return result
}

// Walk visits id and its descendants depth first. Returning false from
// visitor skips the children of that record.
func (t *Trace) Walk(id string, visitor func(*Record) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.walkLocked(id, visitor)
}

func (t *Trace) walkLocked(id string, visitor func(*Record) bool) {
	rec := t.records[id]
	if rec == nil {
		return
	}
	if !visitor(rec) {
		return
	}
	for _, childID := range t.byParent[id] {
		t.walkLocked(childID, visitor)
	}
}
