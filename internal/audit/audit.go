// Package audit records certification lifecycle events. Entries are
// append-only and are never read back for control decisions.
package audit

import (
	"context"
	"time"
)

// Lifecycle actions.
const (
	ActionRequested  = "certification_requested"
	ActionCertified  = "certified"
	ActionFailed     = "certification_failed"
	ActionReconciled = "certification_reconciled"
)

// Entry is one immutable audit record.
type Entry struct {
	ID        string         `json:"id"`
	AssetID   string         `json:"asset_id"`
	Action    string         `json:"action"`
	ActorID   string         `json:"actor_id"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Log abstracts audit persistence.
type Log interface {
	Append(ctx context.Context, entry Entry) error
}
