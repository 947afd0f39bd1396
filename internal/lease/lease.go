// Package lease is the thin policy layer over taskstore's lease
// primitives: the TTL and renewal-limit defaults the Scheduler applies
// during dispatch and during lease-expiry recovery. The three-strikes
// rule itself lives in taskstore.Store.RecoverExpiredLease, since
// enforcing it requires the same atomic write as the status move; this
// package only supplies the policy knobs.
package lease

import (
	"time"

	"github.com/Seldon-Engine/aof/internal/taskstore"
)

// Policy is the lease configuration the scheduler applies uniformly.
type Policy struct {
	DefaultTTL  time.Duration
	MaxRenewals int
}

// DefaultPolicy returns the spec's defaults: a conservative TTL and two
// renewal attempts before giving up a lease.
func DefaultPolicy() Policy {
	return Policy{DefaultTTL: 10 * time.Minute, MaxRenewals: 2}
}

// Manager applies Policy over a taskstore.Store.
type Manager struct {
	store  *taskstore.Store
	policy Policy
}

// New creates a Manager over store using policy.
func New(store *taskstore.Store, policy Policy) *Manager {
	return &Manager{store: store, policy: policy}
}

// AcquireForDispatch acquires a lease for agentID using the policy's
// default TTL, called by the scheduler when a ready task is dispatched.
func (m *Manager) AcquireForDispatch(taskID, agentID string) (*taskstore.Lease, error) {
	return m.store.LeaseAcquire(taskID, agentID, m.policy.DefaultTTL)
}

// RecoverExpired runs the store's lease-expiry recovery for taskID using
// the manager's policy TTL and renewal limit.
func (m *Manager) RecoverExpired(taskID string) (taskstore.LeaseRecoveryAction, error) {
	return m.store.RecoverExpiredLease(taskID, m.policy.DefaultTTL, m.policy.MaxRenewals)
}
