package workspace

import "sync"

func NewLockMap[K comparable]() *LockMap[K] {
	return &LockMap[K]{
		locks: make(map[K]*sync.Mutex),
	}
}

// LockMap hands out one mutex per key. It backs the at-most-one-in-flight-run
// rule: two runs sharing a workspace would race on the tree.
type LockMap[K comparable] struct {
	m     sync.Mutex
	locks map[K]*sync.Mutex
}

func (m *LockMap[K]) Get(key K) *sync.Mutex {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.locks[key]; !ok {
		m.locks[key] = &sync.Mutex{}
	}
	return m.locks[key]
}
