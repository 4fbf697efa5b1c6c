package api

import "sync"

// keyedLock is a set of non-blocking locks, one per key
type keyedLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyedLock() *keyedLock {
	return &keyedLock{held: make(map[string]struct{})}
}

// tryLock takes key if nobody holds it
func (l *keyedLock) tryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

func (l *keyedLock) unlock(key string) {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
}

func (l *keyedLock) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
