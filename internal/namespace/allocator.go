package namespace

import (
	"context"
	"fmt"

	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/config"
	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// Metrics is the subset of observability hooks the allocator reports to.
type Metrics interface {
	SetNamespaceSlotsAssigned(count float64)
	RecordCapacityError()
}

// Allocator hands out (bucket, slot) pairs from the configured pool.
// Assignment is idempotent and monotonic: a tenant keeps its first assignment
// for the lifetime of the tenant record.
type Allocator struct {
	store   AssignmentStore
	buckets int
	slots   int
	metrics Metrics
}

// NewAllocator creates an Allocator over the given store and pool dimensions.
func NewAllocator(store AssignmentStore, cfg config.NamespaceConfig, metrics Metrics) *Allocator {
	return &Allocator{
		store:   store,
		buckets: cfg.Buckets,
		slots:   cfg.Slots,
		metrics: metrics,
	}
}

// Capacity returns the total number of slots in the pool.
func (a *Allocator) Capacity() int {
	return a.buckets * a.slots
}

// Assign returns the tenant's namespace assignment, claiming the first
// available slot in fixed scan order (bucket ascending, then slot ascending)
// when the tenant has none. A lost claim race moves on to the next slot.
// An exhausted pool is a capacity error: fatal for this tenant until an
// operator intervenes.
func (a *Allocator) Assign(ctx context.Context, tenantID string) (*model.NamespaceAssignment, error) {
	if existing, found, err := a.store.GetAssignment(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("namespace lookup for %s: %w", tenantID, err)
	} else if found {
		return toModel(existing), nil
	}

	for bucket := 0; bucket < a.buckets; bucket++ {
		for slot := 0; slot < a.slots; slot++ {
			claimed, err := a.store.ClaimSlot(ctx, tenantID, bucket, slot)
			if err != nil {
				return nil, fmt.Errorf("namespace claim b%d/s%d for %s: %w", bucket, slot, tenantID, err)
			}
			if claimed {
				a.reportAssigned(ctx)
				return toModel(Assignment{TenantID: tenantID, BucketID: bucket, SlotID: slot}), nil
			}
		}
	}

	// The scan can race a concurrent claim by this same tenant through
	// another instance; re-check before declaring the pool exhausted.
	if existing, found, err := a.store.GetAssignment(ctx, tenantID); err == nil && found {
		return toModel(existing), nil
	}

	if a.metrics != nil {
		a.metrics.RecordCapacityError()
	}
	return nil, model.NewCapacityError(fmt.Sprintf(
		"namespace pool exhausted: all %d slots are assigned", a.Capacity()))
}

// Release frees the tenant's slot. Safe to call when no assignment exists.
func (a *Allocator) Release(ctx context.Context, tenantID string) error {
	if err := a.store.ReleaseAssignment(ctx, tenantID); err != nil {
		return fmt.Errorf("namespace release for %s: %w", tenantID, err)
	}
	a.reportAssigned(ctx)
	return nil
}

func (a *Allocator) reportAssigned(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	if count, err := a.store.CountAssigned(ctx); err == nil {
		a.metrics.SetNamespaceSlotsAssigned(float64(count))
	}
}

func toModel(a Assignment) *model.NamespaceAssignment {
	return &model.NamespaceAssignment{
		TenantID: a.TenantID,
		BucketID: a.BucketID,
		SlotID:   a.SlotID,
		Prefix:   model.NamespacePrefix(a.BucketID, a.SlotID),
	}
}
