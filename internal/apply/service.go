package apply

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/config"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/mail"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/metrics"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/project"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/user"
)

var (
	ErrAlreadyApplied    = errors.New("already applied to this project")
	ErrNotApplied        = errors.New("not applied to this project")
	ErrApplyNotFound     = errors.New("apply not found")
	ErrEmailRequired     = errors.New("applicant email is required")
	ErrAnonymousDisabled = errors.New("unauthenticated apply is not allowed")
	ErrInvalidStatus     = errors.New("invalid apply status")
)

// ApplicantInput identifies who is applying. Authenticated applies carry a
// user id and the contact fields are snapshotted from the account; anonymous
// applies (when the platform allows them) must carry an email.
type ApplicantInput struct {
	UserID   *int64 `json:"user"`
	Username string `json:"username"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone"`
	RoleID   *int64 `json:"role"`
}

type Service interface {
	Apply(ctx context.Context, projectSlug string, input ApplicantInput) (*Apply, error)
	Unapply(ctx context.Context, projectSlug, email string) error
	SetStatus(ctx context.Context, applyID int64, status Status) (*Apply, error)
	ListByProject(ctx context.Context, projectSlug string) ([]Apply, error)
}

type service struct {
	repo     Repository
	projects project.Repository
	users    user.Repository
	mailer   *mail.Dispatcher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	platform config.PlatformConfig
}

func NewService(repo Repository, projects project.Repository, users user.Repository, mailer *mail.Dispatcher, m *metrics.Metrics, logger *slog.Logger, platform config.PlatformConfig) Service {
	return &service{
		repo:     repo,
		projects: projects,
		users:    users,
		mailer:   mailer,
		metrics:  m,
		logger:   logger,
		platform: platform,
	}
}

// Apply creates a new Apply row for a first-time applicant or reactivates the
// canceled row of a returning one. Applying while already active is a
// conflict. The sequence is fixed: validate, persist, notify, reconcile.
func (s *service) Apply(ctx context.Context, projectSlug string, input ApplicantInput) (*Apply, error) {
	p, err := s.projects.GetBySlug(ctx, projectSlug)
	if err != nil {
		return nil, err
	}

	input, err = s.resolveApplicant(ctx, input)
	if err != nil {
		return nil, err
	}

	if input.RoleID != nil {
		if err := s.checkRole(ctx, *input.RoleID, p.ID); err != nil {
			return nil, err
		}
	}

	existing, err := s.repo.GetByEmailAndProject(ctx, input.Email, p.ID)
	switch {
	case err == nil:
		return s.reactivate(ctx, existing, p, input)
	case errors.Is(err, ErrApplyNotFound):
		return s.create(ctx, p, input)
	default:
		return nil, err
	}
}

func (s *service) create(ctx context.Context, p *project.Project, input ApplicantInput) (*Apply, error) {
	a := &Apply{
		UserID:    input.UserID,
		ProjectID: p.ID,
		RoleID:    input.RoleID,
		Status:    StatusApplied,
		Username:  input.Username,
		Email:     input.Email,
		Phone:     input.Phone,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.notifyApplied(ctx, a, p)
	s.metrics.RecordApplyCreated(ctx)
	s.logger.Info("volunteer applied", "project", p.Slug, "apply_id", a.ID)

	if err := s.reconcile(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// reactivate flips an existing canceled row back to applied instead of
// inserting a second one, keeping the (email, project) pair unique and the
// apply history continuous. Observably it behaves like a fresh apply.
func (s *service) reactivate(ctx context.Context, a *Apply, p *project.Project, input ApplicantInput) (*Apply, error) {
	if !a.Canceled {
		return nil, ErrAlreadyApplied
	}

	next, _ := Transition(stateOf(a), StatusApplied, time.Now().UTC())
	a.Status = next.Status
	a.Canceled = next.Canceled
	a.CanceledDate = next.CanceledDate
	if input.RoleID != nil {
		a.RoleID = input.RoleID
	}

	if err := s.repo.UpdateState(ctx, a); err != nil {
		return nil, err
	}

	s.notifyApplied(ctx, a, p)
	s.metrics.RecordApplyCreated(ctx)
	s.logger.Info("volunteer reapplied", "project", p.Slug, "apply_id", a.ID)

	if err := s.reconcile(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Unapply cancels the caller's active apply. Unapplying without an active
// apply is an error distinguishable from a missing project.
func (s *service) Unapply(ctx context.Context, projectSlug, email string) error {
	p, err := s.projects.GetBySlug(ctx, projectSlug)
	if err != nil {
		return err
	}
	if email == "" {
		return ErrEmailRequired
	}

	a, err := s.repo.GetByEmailAndProject(ctx, email, p.ID)
	if err != nil {
		if errors.Is(err, ErrApplyNotFound) {
			return ErrNotApplied
		}
		return err
	}
	if a.Canceled {
		return ErrNotApplied
	}

	next, _ := Transition(stateOf(a), StatusUnapplied, time.Now().UTC())
	a.Status = next.Status
	a.Canceled = next.Canceled
	a.CanceledDate = next.CanceledDate

	if err := s.repo.UpdateState(ctx, a); err != nil {
		return err
	}

	s.notifyUnapplied(ctx, a, p)
	s.metrics.RecordApplyCanceled(ctx)
	s.logger.Info("volunteer unapplied", "project", p.Slug, "apply_id", a.ID)

	return s.reconcile(ctx, a)
}

// SetStatus is the manager-driven transition entry point. Entering unapplied
// behaves exactly like Unapply (date stamp plus notifications); leaving it is
// a silent correction. Notifications follow the canceled boolean's computed
// transition, never the mere act of saving.
func (s *service) SetStatus(ctx context.Context, applyID int64, status Status) (*Apply, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	a, err := s.repo.GetByID(ctx, applyID)
	if err != nil {
		return nil, err
	}

	next, effects := Transition(stateOf(a), status, time.Now().UTC())
	a.Status = next.Status
	a.Canceled = next.Canceled
	a.CanceledDate = next.CanceledDate

	if err := s.repo.UpdateState(ctx, a); err != nil {
		return nil, err
	}

	if effects.EnteredCanceled {
		s.notifyUnapplied(ctx, a, a.Project)
		s.metrics.RecordApplyCanceled(ctx)
	}
	s.logger.Info("apply status set", "apply_id", a.ID, "status", status)

	if err := s.reconcile(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *service) ListByProject(ctx context.Context, projectSlug string) ([]Apply, error) {
	p, err := s.projects.GetBySlug(ctx, projectSlug)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByProject(ctx, p.ID)
}

// reconcile recomputes the derived counters from the apply table after every
// persisted transition. The counts are a cache of the active apply set and
// can always be rebuilt from it.
func (s *service) reconcile(ctx context.Context, a *Apply) error {
	count, err := s.repo.ReconcileProjectCount(ctx, a.ProjectID)
	if err != nil {
		return err
	}
	s.logger.Debug("project applied_count reconciled", "project_id", a.ProjectID, "applied_count", count)

	if a.RoleID != nil {
		if _, err := s.repo.ReconcileRoleCount(ctx, *a.RoleID); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) resolveApplicant(ctx context.Context, input ApplicantInput) (ApplicantInput, error) {
	if input.UserID != nil {
		u, err := s.users.GetByID(ctx, *input.UserID)
		if err != nil {
			return input, err
		}
		input.Username = u.Name
		input.Email = u.Email
		input.Phone = u.Phone
		return input, nil
	}

	if !s.platform.AllowAnonymousApply {
		return input, ErrAnonymousDisabled
	}
	if input.Email == "" {
		return input, ErrEmailRequired
	}
	return input, nil
}

func (s *service) checkRole(ctx context.Context, roleID, projectID int64) error {
	role, err := s.projects.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.ProjectID == nil || *role.ProjectID != projectID {
		return project.ErrRoleNotFound
	}
	return nil
}

func (s *service) notifyApplied(ctx context.Context, a *Apply, p *project.Project) {
	mailContext := map[string]interface{}{
		"project":   p.Name,
		"slug":      p.Slug,
		"applicant": a.Username,
		"email":     a.Email,
	}

	s.mailer.Send(ctx, mail.TemplateAppliedToVolunteer, a.Email, mailContext)
	s.mailer.Send(ctx, mail.TemplateAppliedToOwner, ownerEmail(p), mailContext)
}

func (s *service) notifyUnapplied(ctx context.Context, a *Apply, p *project.Project) {
	mailContext := map[string]interface{}{
		"project":   p.Name,
		"slug":      p.Slug,
		"applicant": a.Username,
		"email":     a.Email,
	}

	s.mailer.Send(ctx, mail.TemplateUnappliedToVolunteer, a.Email, mailContext)
	s.mailer.Send(ctx, mail.TemplateUnappliedToOwner, ownerEmail(p), mailContext)
}

func ownerEmail(p *project.Project) string {
	if p == nil || p.Owner == nil {
		return ""
	}
	return p.Owner.Email
}

func stateOf(a *Apply) State {
	return State{
		Status:       a.Status,
		Canceled:     a.Canceled,
		CanceledDate: a.CanceledDate,
	}
}
