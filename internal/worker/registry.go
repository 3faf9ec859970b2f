package worker

import "sync"

// ClaimRegistry tracks which in-process worker owns each claimed task id.
// The task store itself records only that a task is current, not whose it
// is; the registry lets a worker's orphan sweep skip ids another live
// worker claimed during the same cycle.
type ClaimRegistry struct {
	mu    sync.Mutex
	owner map[string]string
}

// NewClaimRegistry returns an empty registry.
func NewClaimRegistry() *ClaimRegistry {
	return &ClaimRegistry{owner: make(map[string]string)}
}

// Claim records workerID as the owner of id.
func (r *ClaimRegistry) Claim(id, workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owner[id] = workerID
}

// Release forgets the ownership of id.
func (r *ClaimRegistry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owner, id)
}

// Owner returns the worker owning id, if any.
func (r *ClaimRegistry) Owner(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.owner[id]
	return w, ok
}

// OwnedByOther reports whether id belongs to a worker other than workerID.
func (r *ClaimRegistry) OwnedByOther(id, workerID string) bool {
	w, ok := r.Owner(id)
	return ok && w != workerID
}
