package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"adminkit.org/internal/ids"
)

// AppendAudit stores entry, assigning its id and timestamp when missing.
func (s *RBACService) AppendAudit(ctx context.Context, entry AuditEntry) error {
	entry.Event = strings.TrimSpace(entry.Event)
	if entry.Event == "" {
		return fmt.Errorf("%w: audit event is required", ErrInvalidInput)
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	return s.store.AppendAudit(ctx, entry)
}

// ListAudit returns audit entries newest first. Limit defaults to 50, max 200.
func (s *RBACService) ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	filter.ActorID = strings.TrimSpace(filter.ActorID)
	filter.Event = strings.TrimSpace(filter.Event)
	switch {
	case filter.Limit <= 0:
		filter.Limit = 50
	case filter.Limit > 200:
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.ListAudit(ctx, filter)
}
