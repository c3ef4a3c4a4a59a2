package namespace

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgAssignmentStore is a PostgreSQL-backed AssignmentStore using pgx/v5.
// Claim atomicity comes from a unique constraint on (bucket_id, slot_id) and
// INSERT ... ON CONFLICT DO NOTHING.
type PgAssignmentStore struct {
	pool *pgxpool.Pool
}

// NewPgAssignmentStore creates a new PostgreSQL assignment store.
func NewPgAssignmentStore(pool *pgxpool.Pool) *PgAssignmentStore {
	return &PgAssignmentStore{pool: pool}
}

// GetAssignment returns the tenant's assignment, or found=false.
func (s *PgAssignmentStore) GetAssignment(ctx context.Context, tenantID string) (Assignment, bool, error) {
	var a Assignment
	err := s.pool.QueryRow(ctx, `
		SELECT tenant_id, bucket_id, slot_id
		FROM namespace_assignments
		WHERE tenant_id = $1`,
		tenantID,
	).Scan(&a.TenantID, &a.BucketID, &a.SlotID)
	if err == pgx.ErrNoRows {
		return Assignment{}, false, nil
	}
	if err != nil {
		return Assignment{}, false, fmt.Errorf("query namespace assignment: %w", err)
	}
	return a, true, nil
}

// ClaimSlot atomically claims the slot for the tenant. The unique constraint
// on (bucket_id, slot_id) makes concurrent claims lose cleanly.
func (s *PgAssignmentStore) ClaimSlot(ctx context.Context, tenantID string, bucketID, slotID int) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO namespace_assignments (tenant_id, bucket_id, slot_id, assigned_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (bucket_id, slot_id) DO NOTHING`,
		tenantID, bucketID, slotID,
	)
	if err != nil {
		return false, fmt.Errorf("claim namespace slot: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseAssignment frees the tenant's slot, if any.
func (s *PgAssignmentStore) ReleaseAssignment(ctx context.Context, tenantID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM namespace_assignments WHERE tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("release namespace assignment: %w", err)
	}
	return nil
}

// CountAssigned returns the number of slots currently held.
func (s *PgAssignmentStore) CountAssigned(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM namespace_assignments`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count namespace assignments: %w", err)
	}
	return count, nil
}

// HealthCheck verifies database connectivity for the readiness endpoint.
func (s *PgAssignmentStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
