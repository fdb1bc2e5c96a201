package pipeline

import "sync"

// UserLocks serializes pipeline work per author. Two posts by the same author
// arriving close together, or a post racing a reply, must not interleave
// their read-modify-write of the shared user record. One instance is shared
// by both pipelines.
//
// Entries are never evicted: each costs one mutex, and the key space is the
// set of distinct authors the process has seen, which the daily DM cap keeps
// small over any realistic uptime.
type UserLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewUserLocks creates an empty lock table.
func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for the given user and returns its unlock func.
func (l *UserLocks) Lock(userID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
