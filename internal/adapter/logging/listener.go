package logging

import (
	"context"
	"log/slog"

	"github.com/neomorfeo/groupdir/internal/domain"
)

// Compile-time check: AuditListener implements domain.GroupListener.
var _ domain.GroupListener = (*AuditListener)(nil)

// AuditListener writes one structured log record per committed group mutation.
// Pre-phase events are skipped; it never vetoes.
type AuditListener struct {
	logger *slog.Logger
}

// NewAuditListener creates an audit listener. A nil logger falls back to slog.Default().
func NewAuditListener(logger *slog.Logger) *AuditListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditListener{logger: logger}
}

func (l *AuditListener) OnEvent(ctx context.Context, event domain.GroupEvent) error {
	if event.Phase != domain.PhasePost {
		return nil
	}

	attrs := []slog.Attr{
		slog.String("operation", string(event.Operation)),
		slog.String("group_id", event.Group.ID),
		slog.String("parent_id", event.Group.ParentID),
		slog.String("label", event.Group.Label),
		slog.Time("occurred_at", event.OccurredAt),
	}
	if event.Operation == domain.OperationMove {
		attrs = append(attrs,
			slog.String("origin_parent_id", event.OriginParentID),
			slog.String("target_parent_id", event.TargetParentID),
		)
	}

	l.logger.LogAttrs(ctx, slog.LevelInfo, "group changed", attrs...)
	return nil
}
