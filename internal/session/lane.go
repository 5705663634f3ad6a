package session

import "sync"

// laneLock serializes turns within a session while letting different
// sessions run in parallel. A global mutex guards the lane map; each lane
// has its own mutex. Lanes are removed once nobody holds or waits on them.
type laneLock struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	mu   sync.Mutex
	refs int
}

func newLaneLock() *laneLock {
	return &laneLock{lanes: make(map[string]*lane)}
}

func (l *laneLock) acquire(key string) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{}
		l.lanes[key] = ln
	}
	ln.refs++
	l.mu.Unlock()

	// Lock outside the global mutex so other sessions are not blocked.
	ln.mu.Lock()
}

func (l *laneLock) release(key string) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		l.mu.Unlock()
		return
	}
	ln.refs--
	if ln.refs == 0 {
		delete(l.lanes, key)
	}
	l.mu.Unlock()

	ln.mu.Unlock()
}

func (l *laneLock) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
