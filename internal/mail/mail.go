package mail

import (
	"context"
	"log/slog"

	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/metrics"
)

// Template ids consumed by the mailer service. The mailer owns the actual
// templates; this service only references them by id.
const (
	TemplateProjectCreated       = "projectCreated"
	TemplateProjectPublished     = "projectPublished"
	TemplateProjectClosed        = "projectClosed"
	TemplateAppliedToVolunteer   = "volunteerApplied-ToVolunteer"
	TemplateAppliedToOwner       = "volunteerApplied-ToOwner"
	TemplateUnappliedToVolunteer = "volunteerUnapplied-ToVolunteer"
	TemplateUnappliedToOwner     = "volunteerUnapplied-ToOwner"
)

// Message is the tuple handed to the mailer service.
type Message struct {
	Template  string                 `json:"template"`
	Recipient string                 `json:"recipient"`
	Locale    string                 `json:"locale"`
	Context   map[string]interface{} `json:"context"`
}

// Gateway delivers a single notification message. Implementations are expected
// to be cheap; retry and actual SMTP delivery belong to the consumer side.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

// Discard drops every message. Used by offline commands that construct the
// services but never notify, such as the finished-project sweep.
type Discard struct{}

func (Discard) Send(context.Context, Message) error { return nil }

// Dispatcher wraps a Gateway with the best-effort semantics the domain
// requires: a failed dispatch is logged and swallowed, never propagated to the
// business transition that triggered it.
type Dispatcher struct {
	gateway Gateway
	locale  string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(gateway Gateway, locale string, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if locale == "" {
		locale = "en"
	}
	return &Dispatcher{
		gateway: gateway,
		locale:  locale,
		logger:  logger,
		metrics: m,
	}
}

func (d *Dispatcher) Send(ctx context.Context, template, recipient string, msgContext map[string]interface{}) {
	if recipient == "" {
		d.logger.Warn("skipping notification without recipient", "template", template)
		return
	}

	msg := Message{
		Template:  template,
		Recipient: recipient,
		Locale:    d.locale,
		Context:   msgContext,
	}

	if err := d.gateway.Send(ctx, msg); err != nil {
		d.logger.Error("failed to dispatch notification", "template", template, "error", err)
		return
	}

	d.metrics.RecordMailDispatched(ctx)
	d.logger.Info("notification dispatched", "template", template)
}
