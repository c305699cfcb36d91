package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/config"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/mail"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/metrics"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/user"
)

var (
	ErrProjectNotFound      = errors.New("project not found")
	ErrRoleNotFound         = errors.New("role not found")
	ErrOwnerNotFound        = errors.New("owner not found")
	ErrOrganizationRequired = errors.New("organization is required")
	ErrInvalidDisponibility = errors.New("invalid disponibility")
)

const (
	DisponibilityWork = "work"
	DisponibilityJob  = "job"
)

type RoleInput struct {
	Name          string `json:"name"`
	Prerequisites string `json:"prerequisites"`
	Details       string `json:"details"`
	Vacancies     *int   `json:"vacancies"`
}

type WorkInput struct {
	WeeklyHours       *int   `json:"weeklyHours"`
	Description       string `json:"description"`
	CanBeDoneRemotely bool   `json:"canBeDoneRemotely"`
}

type JobDateInput struct {
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

type JobInput struct {
	CanBeDoneRemotely bool           `json:"canBeDoneRemotely"`
	Dates             []JobDateInput `json:"dates"`
}

// DisponibilityInput selects exactly one of the two scheduling shapes.
type DisponibilityInput struct {
	Type string     `json:"type"`
	Work *WorkInput `json:"work,omitempty"`
	Job  *JobInput  `json:"job,omitempty"`
}

type CreateProjectInput struct {
	Name           string              `json:"name" validate:"required,max=100"`
	Details        string              `json:"details" validate:"max=3000"`
	Description    string              `json:"description" validate:"max=160"`
	OwnerID        int64               `json:"owner" validate:"required"`
	OrganizationID *int64              `json:"organization"`
	MinimumAge     int                 `json:"minimumAge"`
	Roles          []RoleInput         `json:"roles"`
	Disponibility  *DisponibilityInput `json:"disponibility"`
}

// UpdateProjectInput carries a partial update; nil fields are left untouched.
// A non-nil Roles slice replaces the whole role set, a non-nil Disponibility
// replaces the scheduling shape.
type UpdateProjectInput struct {
	Name          *string             `json:"name"`
	Details       *string             `json:"details"`
	Description   *string             `json:"description"`
	MinimumAge    *int                `json:"minimumAge"`
	Published     *bool               `json:"published"`
	Closed        *bool               `json:"closed"`
	Roles         *[]RoleInput        `json:"roles"`
	Disponibility *DisponibilityInput `json:"disponibility"`
}

type Service interface {
	Create(ctx context.Context, input CreateProjectInput) (*Project, error)
	Get(ctx context.Context, slug string) (*Project, error)
	Update(ctx context.Context, slug string, input UpdateProjectInput) (*Project, error)
	Close(ctx context.Context, slug string) (*Project, error)
	Delete(ctx context.Context, slug string) error
	ListManageable(ctx context.Context, ownerID int64) ([]Project, error)

	CreateRole(ctx context.Context, slug string, input RoleInput) (*VolunteerRole, error)
	UpdateRole(ctx context.Context, roleID int64, input RoleInput) (*VolunteerRole, error)
	DeleteRole(ctx context.Context, roleID int64) error

	CloseFinishedProjects(ctx context.Context) (int64, error)
}

type service struct {
	repo     Repository
	users    user.Repository
	mailer   *mail.Dispatcher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	platform config.PlatformConfig
}

func NewService(repo Repository, users user.Repository, mailer *mail.Dispatcher, m *metrics.Metrics, logger *slog.Logger, platform config.PlatformConfig) Service {
	return &service{
		repo:     repo,
		users:    users,
		mailer:   mailer,
		metrics:  m,
		logger:   logger,
		platform: platform,
	}
}

func (s *service) Create(ctx context.Context, input CreateProjectInput) (*Project, error) {
	if s.platform.RequireOrganization && input.OrganizationID == nil {
		return nil, ErrOrganizationRequired
	}

	owner, err := s.users.GetByID(ctx, input.OwnerID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrOwnerNotFound
		}
		return nil, err
	}

	p := &Project{
		Name:           input.Name,
		OwnerID:        owner.ID,
		OrganizationID: input.OrganizationID,
		Details:        input.Details,
		Description:    input.Description,
		MinimumAge:     input.MinimumAge,
	}
	p.Excerpt()

	for attempt := 0; ; attempt++ {
		slug, err := s.uniqueSlug(ctx, input.Name)
		if err != nil {
			return nil, err
		}
		p.Slug = slug

		err = s.repo.Create(ctx, p)
		if err == nil {
			break
		}
		if isUniqueViolation(err) && attempt < slugRetryLimit {
			// Lost the slug check-then-set window to a concurrent create;
			// probe again from the live slug set.
			continue
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	if len(input.Roles) > 0 {
		if err := s.replaceRoles(ctx, p.ID, input.Roles); err != nil {
			return nil, err
		}
	}

	if input.Disponibility != nil {
		if err := s.replaceDisponibility(ctx, p.ID, input.Disponibility); err != nil {
			return nil, err
		}
	}

	s.mailer.Send(ctx, mail.TemplateProjectCreated, owner.Email, map[string]interface{}{
		"project": p.Name,
		"slug":    p.Slug,
	})
	s.metrics.RecordProjectCreated(ctx)
	s.logger.Info("project created", "slug", p.Slug, "owner", owner.ID)

	return s.repo.GetByID(ctx, p.ID)
}

func (s *service) Get(ctx context.Context, slug string) (*Project, error) {
	return s.repo.GetBySlug(ctx, slug)
}

func (s *service) Update(ctx context.Context, slug string, input UpdateProjectInput) (*Project, error) {
	orig, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	updated := *orig
	if input.Name != nil {
		updated.Name = *input.Name
	}
	if input.Details != nil {
		updated.Details = *input.Details
	}
	if input.Description != nil {
		updated.Description = *input.Description
	}
	if input.MinimumAge != nil {
		updated.MinimumAge = *input.MinimumAge
	}
	if input.Published != nil {
		updated.Published = *input.Published
	}
	if input.Closed != nil {
		updated.Closed = *input.Closed
	}
	updated.Excerpt()

	if err := s.save(ctx, orig, &updated); err != nil {
		return nil, err
	}

	if input.Roles != nil {
		if err := s.repo.DeleteProjectRoles(ctx, updated.ID); err != nil {
			return nil, err
		}
		if err := s.replaceRoles(ctx, updated.ID, *input.Roles); err != nil {
			return nil, err
		}
	}

	if input.Disponibility != nil {
		if err := s.replaceDisponibility(ctx, updated.ID, input.Disponibility); err != nil {
			return nil, err
		}
	}

	return s.repo.GetByID(ctx, updated.ID)
}

func (s *service) Close(ctx context.Context, slug string) (*Project, error) {
	closed := true
	return s.Update(ctx, slug, UpdateProjectInput{Closed: &closed})
}

// Delete is a soft delete: the row stays, the project drops out of listings
// and is forced unpublished.
func (s *service) Delete(ctx context.Context, slug string) error {
	orig, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}

	updated := *orig
	updated.Deleted = true
	updated.Published = false

	return s.save(ctx, orig, &updated)
}

func (s *service) ListManageable(ctx context.Context, ownerID int64) ([]Project, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// save persists the mutable project columns, stamping lifecycle dates and
// dispatching notifications for the flag transitions of this save only.
func (s *service) save(ctx context.Context, orig, updated *Project) error {
	transitions := diffLifecycle(orig, updated, time.Now().UTC())

	err := s.repo.Update(ctx, updated,
		"name", "details", "description", "minimum_age",
		"published", "published_date",
		"closed", "closed_date",
		"deleted", "deleted_date",
	)
	if err != nil {
		return err
	}

	ownerEmail := ""
	if updated.Owner != nil {
		ownerEmail = updated.Owner.Email
	}
	mailContext := map[string]interface{}{
		"project": updated.Name,
		"slug":    updated.Slug,
	}

	if transitions.Published {
		s.mailer.Send(ctx, mail.TemplateProjectPublished, ownerEmail, mailContext)
		s.metrics.RecordProjectPublished(ctx)
		s.logger.Info("project published", "slug", updated.Slug)
	}
	if transitions.Closed {
		s.mailer.Send(ctx, mail.TemplateProjectClosed, ownerEmail, mailContext)
		s.metrics.RecordProjectClosed(ctx)
		s.logger.Info("project closed", "slug", updated.Slug)
	}
	if transitions.Deleted {
		s.logger.Info("project deleted", "slug", updated.Slug)
	}

	return nil
}

func (s *service) CreateRole(ctx context.Context, slug string, input RoleInput) (*VolunteerRole, error) {
	p, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	role := roleFromInput(p.ID, input)
	if err := s.repo.CreateRole(ctx, role); err != nil {
		return nil, err
	}

	if _, err := s.repo.RecomputeMaxApplies(ctx, p.ID); err != nil {
		return nil, err
	}
	return role, nil
}

func (s *service) UpdateRole(ctx context.Context, roleID int64, input RoleInput) (*VolunteerRole, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	role.Name = input.Name
	role.Prerequisites = input.Prerequisites
	role.Details = input.Details
	role.Vacancies = input.Vacancies

	if err := s.repo.UpdateRole(ctx, role); err != nil {
		return nil, err
	}

	if role.ProjectID != nil {
		if _, err := s.repo.RecomputeMaxApplies(ctx, *role.ProjectID); err != nil {
			return nil, err
		}
	}
	return role, nil
}

func (s *service) DeleteRole(ctx context.Context, roleID int64) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteRole(ctx, roleID); err != nil {
		return err
	}

	if role.ProjectID != nil {
		if _, err := s.repo.RecomputeMaxApplies(ctx, *role.ProjectID); err != nil {
			return err
		}
	}
	return nil
}

// CloseFinishedProjects closes every unclosed project whose job end date has
// passed. The sweep is administrative: no per-project notifications.
func (s *service) CloseFinishedProjects(ctx context.Context) (int64, error) {
	closed, err := s.repo.CloseFinished(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	s.logger.Info("closed finished projects", "count", closed)
	return closed, nil
}

func (s *service) replaceRoles(ctx context.Context, projectID int64, inputs []RoleInput) error {
	for _, input := range inputs {
		if err := s.repo.CreateRole(ctx, roleFromInput(projectID, input)); err != nil {
			return err
		}
	}

	_, err := s.repo.RecomputeMaxApplies(ctx, projectID)
	return err
}

func (s *service) replaceDisponibility(ctx context.Context, projectID int64, input *DisponibilityInput) error {
	switch input.Type {
	case DisponibilityWork:
		if input.Work == nil {
			return ErrInvalidDisponibility
		}
		work := &Work{
			WeeklyHours:       input.Work.WeeklyHours,
			Description:       input.Work.Description,
			CanBeDoneRemotely: input.Work.CanBeDoneRemotely,
		}
		return s.repo.ReplaceWork(ctx, projectID, work)

	case DisponibilityJob:
		if input.Job == nil {
			return ErrInvalidDisponibility
		}
		job := &Job{CanBeDoneRemotely: input.Job.CanBeDoneRemotely}
		for _, d := range input.Job.Dates {
			job.Dates = append(job.Dates, &JobDate{
				Name:      d.Name,
				StartDate: d.StartDate,
				EndDate:   d.EndDate,
			})
		}
		return s.repo.ReplaceJob(ctx, projectID, job)

	default:
		return ErrInvalidDisponibility
	}
}

const (
	// slugRetryLimit bounds how often Create re-derives a slug after losing
	// the check-then-set window to a concurrent insert.
	slugRetryLimit = 3
	// slugProbeLimit bounds the collision-suffix search.
	slugProbeLimit = 1000
)

// uniqueSlug derives a slug from the name and disambiguates collisions with a
// -1, -2, ... suffix. Check-then-set: the unique index on projects.slug
// backstops the window and Create retries on the resulting conflict.
func (s *service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := Slugify(name)
	if base == "" {
		base = "project"
	}

	slug := base
	for i := 1; i <= slugProbeLimit; i++ {
		exists, err := s.repo.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
	return "", fmt.Errorf("no free slug for %q after %d probes", base, slugProbeLimit)
}

func roleFromInput(projectID int64, input RoleInput) *VolunteerRole {
	return &VolunteerRole{
		ProjectID:     &projectID,
		Name:          input.Name,
		Prerequisites: input.Prerequisites,
		Details:       input.Details,
		Vacancies:     input.Vacancies,
	}
}
