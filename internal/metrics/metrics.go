package metrics

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	projectsCreated   metric.Int64Counter
	projectsPublished metric.Int64Counter
	projectsClosed    metric.Int64Counter
	appliesCreated    metric.Int64Counter
	appliesCanceled   metric.Int64Counter
	mailsDispatched   metric.Int64Counter
}

func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.projectsCreated, err = meter.Int64Counter(
		"ovp_projects.projects.created",
		metric.WithDescription("Total number of projects created"),
		metric.WithUnit("{project}"),
	)
	if err != nil {
		return nil, err
	}

	m.projectsPublished, err = meter.Int64Counter(
		"ovp_projects.projects.published",
		metric.WithDescription("Total number of projects published"),
		metric.WithUnit("{project}"),
	)
	if err != nil {
		return nil, err
	}

	m.projectsClosed, err = meter.Int64Counter(
		"ovp_projects.projects.closed",
		metric.WithDescription("Total number of projects closed"),
		metric.WithUnit("{project}"),
	)
	if err != nil {
		return nil, err
	}

	m.appliesCreated, err = meter.Int64Counter(
		"ovp_projects.applies.created",
		metric.WithDescription("Total number of volunteer applies (including reactivations)"),
		metric.WithUnit("{apply}"),
	)
	if err != nil {
		return nil, err
	}

	m.appliesCanceled, err = meter.Int64Counter(
		"ovp_projects.applies.canceled",
		metric.WithDescription("Total number of volunteer unapplies"),
		metric.WithUnit("{apply}"),
	)
	if err != nil {
		return nil, err
	}

	m.mailsDispatched, err = meter.Int64Counter(
		"ovp_projects.mails.dispatched",
		metric.WithDescription("Total number of notification messages handed to the gateway"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordProjectCreated(ctx context.Context) {
	if m != nil && m.projectsCreated != nil {
		m.projectsCreated.Add(ctx, 1)
	}
}

func (m *Metrics) RecordProjectPublished(ctx context.Context) {
	if m != nil && m.projectsPublished != nil {
		m.projectsPublished.Add(ctx, 1)
	}
}

func (m *Metrics) RecordProjectClosed(ctx context.Context) {
	if m != nil && m.projectsClosed != nil {
		m.projectsClosed.Add(ctx, 1)
	}
}

func (m *Metrics) RecordApplyCreated(ctx context.Context) {
	if m != nil && m.appliesCreated != nil {
		m.appliesCreated.Add(ctx, 1)
	}
}

func (m *Metrics) RecordApplyCanceled(ctx context.Context) {
	if m != nil && m.appliesCanceled != nil {
		m.appliesCanceled.Add(ctx, 1)
	}
}

func (m *Metrics) RecordMailDispatched(ctx context.Context) {
	if m != nil && m.mailsDispatched != nil {
		m.mailsDispatched.Add(ctx, 1)
	}
}

// NewMock creates a no-op Metrics instance for testing
// The returned Metrics will safely ignore all Record* calls
func NewMock() *Metrics {
	return &Metrics{}
}
