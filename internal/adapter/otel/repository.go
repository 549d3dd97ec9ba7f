package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/groupdir/internal/domain"
)

const tracerName = "github.com/neomorfeo/groupdir/internal/adapter/otel"

// TracingGroupRepository wraps a domain.GroupRepository with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingGroupRepository struct {
	next   domain.GroupRepository
	tracer trace.Tracer
}

// Compile-time check: TracingGroupRepository implements domain.GroupRepository.
var _ domain.GroupRepository = (*TracingGroupRepository)(nil)

// NewTracingGroupRepository creates a tracing decorator around the given repository.
func NewTracingGroupRepository(next domain.GroupRepository) *TracingGroupRepository {
	return &TracingGroupRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

// Capabilities is forwarded untouched; it never reaches storage.
func (r *TracingGroupRepository) Capabilities() domain.Capabilities {
	return r.next.Capabilities()
}

func (r *TracingGroupRepository) Create(ctx context.Context, group domain.Group) error {
	ctx, span := r.tracer.Start(ctx, "GroupRepository.Create",
		trace.WithAttributes(
			attribute.String("group.id", group.ID),
			attribute.String("group.parent_id", group.ParentID),
			attribute.String("group.label", group.Label),
		),
	)
	defer span.End()

	err := r.next.Create(ctx, group)
	recordError(span, err)
	return err
}

func (r *TracingGroupRepository) GetByID(ctx context.Context, id string) (domain.Group, error) {
	ctx, span := r.tracer.Start(ctx, "GroupRepository.GetByID",
		trace.WithAttributes(attribute.String("group.id", id)),
	)
	defer span.End()

	group, err := r.next.GetByID(ctx, id)
	recordError(span, err)
	return group, err
}

func (r *TracingGroupRepository) Children(ctx context.Context, parentID string) ([]domain.Group, error) {
	ctx, span := r.tracer.Start(ctx, "GroupRepository.Children",
		trace.WithAttributes(attribute.String("group.parent_id", parentID)),
	)
	defer span.End()

	groups, err := r.next.Children(ctx, parentID)
	recordResult(span, len(groups), err)
	return groups, err
}

func (r *TracingGroupRepository) Update(ctx context.Context, group domain.Group) error {
	ctx, span := r.tracer.Start(ctx, "GroupRepository.Update",
		trace.WithAttributes(
			attribute.String("group.id", group.ID),
			attribute.String("group.label", group.Label),
		),
	)
	defer span.End()

	err := r.next.Update(ctx, group)
	recordError(span, err)
	return err
}

func (r *TracingGroupRepository) Delete(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "GroupRepository.Delete",
		trace.WithAttributes(attribute.String("group.id", id)),
	)
	defer span.End()

	err := r.next.Delete(ctx, id)
	recordError(span, err)
	return err
}

func (r *TracingGroupRepository) Relink(ctx context.Context, id, oldParentID, newParentID string) error {
	ctx, span := r.tracer.Start(ctx, "GroupRepository.Relink",
		trace.WithAttributes(
			attribute.String("group.id", id),
			attribute.String("move.origin", oldParentID),
			attribute.String("move.target", newParentID),
		),
	)
	defer span.End()

	err := r.next.Relink(ctx, id, oldParentID, newParentID)
	recordError(span, err)
	return err
}

func (r *TracingGroupRepository) All(ctx context.Context) ([]domain.Group, error) {
	ctx, span := r.tracer.Start(ctx, "GroupRepository.All")
	defer span.End()

	groups, err := r.next.All(ctx)
	recordResult(span, len(groups), err)
	return groups, err
}

func (r *TracingGroupRepository) Search(ctx context.Context, filter domain.SearchFilter, page domain.PageRequest) ([]domain.Group, error) {
	ctx, span := r.tracer.Start(ctx, "GroupRepository.Search",
		trace.WithAttributes(
			attribute.String("filter.keyword", filter.Keyword),
			attribute.Int("page.limit", page.EffectiveLimit()),
			attribute.Int("page.offset", page.EffectiveOffset()),
		),
	)
	defer span.End()

	if filter.ParentID != nil {
		span.SetAttributes(attribute.String("filter.parent_id", *filter.ParentID))
	}

	groups, err := r.next.Search(ctx, filter, page)
	recordResult(span, len(groups), err)
	return groups, err
}

func (r *TracingGroupRepository) Count(ctx context.Context, filter domain.SearchFilter) (int, error) {
	ctx, span := r.tracer.Start(ctx, "GroupRepository.Count",
		trace.WithAttributes(attribute.String("filter.keyword", filter.Keyword)),
	)
	defer span.End()

	n, err := r.next.Count(ctx, filter)
	recordResult(span, n, err)
	return n, err
}

// TracingMembershipRepository wraps a domain.MembershipRepository with OpenTelemetry tracing.
type TracingMembershipRepository struct {
	next   domain.MembershipRepository
	tracer trace.Tracer
}

// Compile-time check: TracingMembershipRepository implements domain.MembershipRepository.
var _ domain.MembershipRepository = (*TracingMembershipRepository)(nil)

// NewTracingMembershipRepository creates a tracing decorator around the given repository.
func NewTracingMembershipRepository(next domain.MembershipRepository) *TracingMembershipRepository {
	return &TracingMembershipRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingMembershipRepository) Add(ctx context.Context, m domain.Membership) error {
	ctx, span := r.tracer.Start(ctx, "MembershipRepository.Add",
		trace.WithAttributes(
			attribute.String("membership.user", m.UserName),
			attribute.String("membership.type", m.Type),
			attribute.String("group.id", m.GroupID),
		),
	)
	defer span.End()

	err := r.next.Add(ctx, m)
	recordError(span, err)
	return err
}

func (r *TracingMembershipRepository) Remove(ctx context.Context, userName, groupID, membershipType string) error {
	ctx, span := r.tracer.Start(ctx, "MembershipRepository.Remove",
		trace.WithAttributes(
			attribute.String("membership.user", userName),
			attribute.String("membership.type", membershipType),
			attribute.String("group.id", groupID),
		),
	)
	defer span.End()

	err := r.next.Remove(ctx, userName, groupID, membershipType)
	recordError(span, err)
	return err
}

func (r *TracingMembershipRepository) DeleteByGroup(ctx context.Context, groupID string) (int, error) {
	ctx, span := r.tracer.Start(ctx, "MembershipRepository.DeleteByGroup",
		trace.WithAttributes(attribute.String("group.id", groupID)),
	)
	defer span.End()

	n, err := r.next.DeleteByGroup(ctx, groupID)
	recordResult(span, n, err)
	return n, err
}

func (r *TracingMembershipRepository) FindGroups(ctx context.Context, userName, membershipType string) ([]domain.Group, error) {
	ctx, span := r.tracer.Start(ctx, "MembershipRepository.FindGroups",
		trace.WithAttributes(
			attribute.String("membership.user", userName),
			attribute.String("membership.type", membershipType),
		),
	)
	defer span.End()

	groups, err := r.next.FindGroups(ctx, userName, membershipType)
	recordResult(span, len(groups), err)
	return groups, err
}

// TracingTransactor wraps a domain.Transactor so the unit of work gets its own
// span and the repositories handed to fn stay traced.
type TracingTransactor struct {
	next   domain.Transactor
	tracer trace.Tracer
}

// Compile-time check: TracingTransactor implements domain.Transactor.
var _ domain.Transactor = (*TracingTransactor)(nil)

// NewTracingTransactor creates a tracing decorator around the given transactor.
func NewTracingTransactor(next domain.Transactor) *TracingTransactor {
	return &TracingTransactor{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (t *TracingTransactor) RunInTx(ctx context.Context, fn func(ctx context.Context, groups domain.GroupRepository, memberships domain.MembershipRepository) error) error {
	ctx, span := t.tracer.Start(ctx, "Transactor.RunInTx")
	defer span.End()

	err := t.next.RunInTx(ctx, func(ctx context.Context, groups domain.GroupRepository, memberships domain.MembershipRepository) error {
		return fn(ctx, NewTracingGroupRepository(groups), NewTracingMembershipRepository(memberships))
	})
	recordError(span, err)
	return err
}

func recordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func recordResult(span trace.Span, count int, err error) {
	if err != nil {
		recordError(span, err)
		return
	}
	span.SetAttributes(attribute.Int("result.count", count))
}
