package sourcing

import "sync"

// ledger remembers answered exercise ids, evicting the oldest past capacity.
type ledger struct {
	mu    sync.Mutex
	cap   int
	order []string
	seen  map[string]struct{}
}

func newLedger(capacity int) *ledger {
	return &ledger{
		cap:  capacity,
		seen: make(map[string]struct{}, capacity),
	}
}

// mark records id and returns false if it was already present.
func (l *ledger) mark(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[id]; ok {
		return false
	}
	l.seen[id] = struct{}{}
	l.order = append(l.order, id)

	if len(l.order) > l.cap {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.seen, oldest)
	}
	return true
}

func (l *ledger) contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[id]
	return ok
}
