package model

import "fmt"

// NamespaceAssignment reserves one (bucket, slot) pair of the shared pool for
// a tenant. Assignments are monotonic: once given, the tenant keeps the same
// pair for the lifetime of the tenant record.
type NamespaceAssignment struct {
	TenantID string `json:"tenant_id"`
	BucketID int    `json:"bucket_id"`
	SlotID   int    `json:"slot_id"`
	Prefix   string `json:"prefix"`
}

// NamespacePrefix derives the deterministic artifact-name prefix for a
// (bucket, slot) pair.
func NamespacePrefix(bucketID, slotID int) string {
	return fmt.Sprintf("clx-b%02ds%02d", bucketID, slotID)
}
