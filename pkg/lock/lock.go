// Package lock provides the feature lock managers consulted by transactions
// before deleting or updating a feature.
package lock

import (
	"fmt"
	"sync"
	"time"
)

// Manager decides whether a feature may be modified under a lock id.
type Manager interface {
	// IsFeatureModifiable reports whether the feature may be modified by a
	// caller holding lockID. An empty lockID means no lock was supplied.
	IsFeatureModifiable(fid, lockID string) bool

	// Release drops any lock held on the feature.
	Release(fid string)
}

// NoLocks is a Manager for stores without locking: every feature is
// modifiable.
type NoLocks struct{}

func (NoLocks) IsFeatureModifiable(string, string) bool { return true }
func (NoLocks) Release(string)                           {}

// Lock is a reservation over a set of features.
type Lock struct {
	ID      string
	Expires time.Time // Zero for no expiry
}

// ErrAlreadyLocked indicates a feature held by another lock
type ErrAlreadyLocked struct {
	FeatureID string
	LockID    string
}

func (e *ErrAlreadyLocked) Error() string {
	return fmt.Sprintf("feature %s is locked by %s", e.FeatureID, e.LockID)
}

// MemoryManager is an in-memory Manager with lock expiry.
type MemoryManager struct {
	mu       sync.Mutex
	locks    map[string]*Lock // lock id -> lock
	features map[string]*Lock // feature id -> lock
	now      func() time.Time
}

// NewMemoryManager creates an empty lock manager. A nil clock uses time.Now.
func NewMemoryManager(now func() time.Time) *MemoryManager {
	if now == nil {
		now = time.Now
	}
	return &MemoryManager{
		locks:    make(map[string]*Lock),
		features: make(map[string]*Lock),
		now:      now,
	}
}

// Acquire locks the given features under lockID for the given duration (zero
// for no expiry). Either every feature is locked or none is.
func (m *MemoryManager) Acquire(lockID string, expiry time.Duration, fids ...string) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, fid := range fids {
		if held := m.heldLocked(fid, now); held != nil && held.ID != lockID {
			return nil, &ErrAlreadyLocked{FeatureID: fid, LockID: held.ID}
		}
	}

	l, ok := m.locks[lockID]
	if !ok {
		l = &Lock{ID: lockID}
		m.locks[lockID] = l
	}
	if expiry > 0 {
		l.Expires = now.Add(expiry)
	} else {
		l.Expires = time.Time{}
	}
	for _, fid := range fids {
		m.features[fid] = l
	}
	return &Lock{ID: l.ID, Expires: l.Expires}, nil
}

// ReleaseLock drops a lock and every feature it holds.
func (m *MemoryManager) ReleaseLock(lockID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[lockID]
	if !ok {
		return
	}
	for fid, held := range m.features {
		if held == l {
			delete(m.features, fid)
		}
	}
	delete(m.locks, lockID)
}

// IsFeatureModifiable reports whether the feature is unlocked or locked under
// lockID.
func (m *MemoryManager) IsFeatureModifiable(fid, lockID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	held := m.heldLocked(fid, m.now())
	return held == nil || held.ID == lockID
}

// IsLocked reports whether the feature holds an unexpired lock.
func (m *MemoryManager) IsLocked(fid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.heldLocked(fid, m.now()) != nil
}

// Release drops the feature from whichever lock holds it.
func (m *MemoryManager) Release(fid string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.features, fid)
}

// Locked returns the ids of features currently held by lockID.
func (m *MemoryManager) Locked(lockID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var fids []string
	for fid := range m.features {
		if held := m.heldLocked(fid, now); held != nil && held.ID == lockID {
			fids = append(fids, fid)
		}
	}
	return fids
}

// heldLocked returns the unexpired lock on fid, purging an expired one.
// Callers must hold m.mu.
func (m *MemoryManager) heldLocked(fid string, now time.Time) *Lock {
	l, ok := m.features[fid]
	if !ok {
		return nil
	}
	if !l.Expires.IsZero() && !now.Before(l.Expires) {
		delete(m.features, fid)
		return nil
	}
	return l
}
