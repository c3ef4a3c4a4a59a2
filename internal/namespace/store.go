// Package namespace assigns each tenant a stable (bucket, slot) pair from a
// fixed-size pool and derives the deterministic naming prefix that tags every
// artifact the tenant creates on the shared engine. Capacity is finite by
// design; exhaustion is a capacity error, not a bug.
package namespace

import "context"

// AssignmentStore persists tenant namespace assignments. ClaimSlot must be
// atomic with respect to concurrent claims for different tenants: at most one
// tenant ever holds a given (bucket, slot) pair.
type AssignmentStore interface {
	// GetAssignment returns the tenant's assignment, or found=false.
	GetAssignment(ctx context.Context, tenantID string) (Assignment, bool, error)

	// ClaimSlot atomically claims (bucketID, slotID) for the tenant.
	// Returns claimed=false without error when the slot is already held,
	// in which case the caller rescans.
	ClaimSlot(ctx context.Context, tenantID string, bucketID, slotID int) (claimed bool, err error)

	// ReleaseAssignment frees the tenant's slot. A no-op when the tenant
	// holds none.
	ReleaseAssignment(ctx context.Context, tenantID string) error

	// CountAssigned returns the number of slots currently held.
	CountAssigned(ctx context.Context) (int, error)
}

// Assignment mirrors model.NamespaceAssignment at the store layer.
type Assignment struct {
	TenantID string
	BucketID int
	SlotID   int
}
