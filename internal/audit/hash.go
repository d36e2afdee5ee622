package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/opsplane/opsplane-backend/internal/data"
)

// hashableFields builds the canonical representation of an entry. Only fields
// that are immutable once written participate; the hash column itself and the
// surrogate id are excluded. encoding/json marshals map keys in sorted order,
// which gives us the canonical byte layout for free.
func hashableFields(entry *data.AuditLog) map[string]any {
	return map[string]any{
		"tenant_id":       entry.TenantID,
		"sequence_number": entry.SequenceNumber,
		"action":          entry.Action,
		"entity_name":     entry.EntityName,
		"entity_id":       entry.EntityID,
		"old_values":      string(entry.OldValues),
		"new_values":      string(entry.NewValues),
		"user_id":         entry.UserID.String,
		"ip":              entry.IP,
		"user_agent":      entry.UserAgent,
		"method":          entry.Method,
		"path":            entry.Path,
		"status_code":     entry.StatusCode,
		"duration_ms":     entry.DurationMS,
		"created_at":      entry.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000Z"),
	}
}

// ComputeHash returns SHA-256(previousHash || canonicalJSON(entry)) as hex.
// previousHash is empty for the genesis row of a tenant.
func ComputeHash(previousHash string, entry *data.AuditLog) (string, error) {
	canonical, err := json.Marshal(hashableFields(entry))
	if err != nil {
		return "", fmt.Errorf("canonicalizing audit entry: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
