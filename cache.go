package cells

import (
	"sync"
)

// statsTable maps nodes to their running statistics. Entries are created on
// first use and live until the runner is disposed.
type statsTable struct {
	entries sync.Map
}

func newStatsTable() *statsTable {
	return &statsTable{}
}

func (t *statsTable) load(n *Node) (*nodeStats, bool) {
	v, ok := t.entries.Load(n)
	if !ok {
		return nil, false
	}
	return v.(*nodeStats), true
}

func (t *statsTable) entry(n *Node) *nodeStats {
	if s, ok := t.load(n); ok {
		return s
	}
	v, _ := t.entries.LoadOrStore(n, &nodeStats{})
	return v.(*nodeStats)
}

func (t *statsTable) each(fn func(n *Node, s *nodeStats) bool) {
	t.entries.Range(func(key, value any) bool {
		return fn(key.(*Node), value.(*nodeStats))
	})
}

func (t *statsTable) clear() {
	t.entries.Clear()
}
