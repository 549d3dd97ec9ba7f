package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/groupdir/internal/domain"
)

// Compile-time check: Listener implements domain.GroupListener.
var _ domain.GroupListener = (*Listener)(nil)

// GroupEventJobArgs carries a committed group mutation to asynchronous consumers.
// River serializes this as JSON into its job queue table. It includes a snapshot
// of the group as it was committed, so the worker never needs to query the directory.
type GroupEventJobArgs struct {
	Operation      string    `json:"operation"`
	GroupID        string    `json:"group_id"`
	ParentID       string    `json:"parent_id"`
	Label          string    `json:"label"`
	Type           string    `json:"type,omitempty"`
	OriginParentID string    `json:"origin_parent_id,omitempty"`
	TargetParentID string    `json:"target_parent_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (GroupEventJobArgs) Kind() string { return "group.event" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Listener forwards post-phase group events to River.
// Pre-phase events are ignored: nothing is enqueued for a mutation that may still be vetoed.
type Listener struct {
	client *Client
}

// NewListener creates a listener backed by the given River client.
func NewListener(client *Client) *Listener {
	return &Listener{client: client}
}

// OnEvent enqueues a post-phase event as an async job in River.
func (l *Listener) OnEvent(ctx context.Context, event domain.GroupEvent) error {
	if event.Phase != domain.PhasePost {
		return nil
	}

	_, err := l.client.Insert(ctx, GroupEventJobArgs{
		Operation:      string(event.Operation),
		GroupID:        event.Group.ID,
		ParentID:       event.Group.ParentID,
		Label:          event.Group.Label,
		Type:           event.Group.Type,
		OriginParentID: event.OriginParentID,
		TargetParentID: event.TargetParentID,
		OccurredAt:     event.OccurredAt,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing group event job: %w", err)
	}
	return nil
}
