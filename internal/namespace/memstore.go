package namespace

import (
	"context"
	"sync"
)

// MemoryAssignmentStore is an in-memory AssignmentStore for testing and
// single-instance deployments. A single mutex serializes claims, which
// satisfies the atomicity requirement.
type MemoryAssignmentStore struct {
	mu       sync.Mutex
	byTenant map[string]Assignment
	bySlot   map[[2]int]string // (bucket, slot) -> tenantID
}

// NewMemoryAssignmentStore creates an empty in-memory assignment store.
func NewMemoryAssignmentStore() *MemoryAssignmentStore {
	return &MemoryAssignmentStore{
		byTenant: make(map[string]Assignment),
		bySlot:   make(map[[2]int]string),
	}
}

// GetAssignment returns the tenant's assignment, or found=false.
func (s *MemoryAssignmentStore) GetAssignment(_ context.Context, tenantID string) (Assignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byTenant[tenantID]
	return a, ok, nil
}

// ClaimSlot atomically claims the slot for the tenant.
func (s *MemoryAssignmentStore) ClaimSlot(_ context.Context, tenantID string, bucketID, slotID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]int{bucketID, slotID}
	if holder, held := s.bySlot[key]; held && holder != tenantID {
		return false, nil
	}
	a := Assignment{TenantID: tenantID, BucketID: bucketID, SlotID: slotID}
	s.bySlot[key] = tenantID
	s.byTenant[tenantID] = a
	return true, nil
}

// ReleaseAssignment frees the tenant's slot, if any.
func (s *MemoryAssignmentStore) ReleaseAssignment(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byTenant[tenantID]
	if !ok {
		return nil
	}
	delete(s.byTenant, tenantID)
	delete(s.bySlot, [2]int{a.BucketID, a.SlotID})
	return nil
}

// CountAssigned returns the number of slots currently held.
func (s *MemoryAssignmentStore) CountAssigned(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bySlot), nil
}
