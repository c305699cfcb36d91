package project

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

type Repository interface {
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, id int64) (*Project, error)
	GetBySlug(ctx context.Context, slug string) (*Project, error)
	Update(ctx context.Context, project *Project, columns ...string) error
	ListByOwner(ctx context.Context, ownerID int64) ([]Project, error)
	SlugExists(ctx context.Context, slug string) (bool, error)

	CreateRole(ctx context.Context, role *VolunteerRole) error
	UpdateRole(ctx context.Context, role *VolunteerRole) error
	DeleteRole(ctx context.Context, id int64) error
	GetRole(ctx context.Context, id int64) (*VolunteerRole, error)
	DeleteProjectRoles(ctx context.Context, projectID int64) error

	// RecomputeMaxApplies overwrites max_applies_from_roles with the live
	// vacancy sum in a single statement and returns the new value.
	RecomputeMaxApplies(ctx context.Context, projectID int64) (int, error)

	ReplaceWork(ctx context.Context, projectID int64, work *Work) error
	ReplaceJob(ctx context.Context, projectID int64, job *Job) error

	// CloseFinished bulk-closes unclosed projects whose job has ended and
	// returns how many rows were touched.
	CloseFinished(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, project *Project) error {
	_, err := r.db.NewInsert().Model(project).Exec(ctx)
	if err != nil {
		return err
	}
	// Reload to get DB-generated timestamps
	return r.db.NewSelect().Model(project).WherePK().Scan(ctx)
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Project, error) {
	project := new(Project)
	err := r.db.NewSelect().Model(project).
		Relation("Owner").
		Relation("Roles").
		Relation("Work").
		Relation("Job").
		Relation("Job.Dates").
		Where("p.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return project, nil
}

func (r *repository) GetBySlug(ctx context.Context, slug string) (*Project, error) {
	project := new(Project)
	err := r.db.NewSelect().Model(project).
		Relation("Owner").
		Relation("Roles").
		Relation("Work").
		Relation("Job").
		Relation("Job.Dates").
		Where("p.slug = ?", slug).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return project, nil
}

func (r *repository) Update(ctx context.Context, project *Project, columns ...string) error {
	result, err := r.db.NewUpdate().
		Model(project).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID int64) ([]Project, error) {
	var projects []Project
	err := r.db.NewSelect().Model(&projects).
		Where("p.owner_id = ?", ownerID).
		Where("p.deleted = FALSE").
		Order("p.created_at DESC").
		Scan(ctx)
	return projects, err
}

func (r *repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	return r.db.NewSelect().Model((*Project)(nil)).Where("p.slug = ?", slug).Exists(ctx)
}

// isUniqueViolation reports whether err is the store rejecting a duplicate
// key, such as a concurrent insert winning the slug.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.IntegrityViolation()
}

func (r *repository) CreateRole(ctx context.Context, role *VolunteerRole) error {
	_, err := r.db.NewInsert().Model(role).Exec(ctx)
	return err
}

func (r *repository) UpdateRole(ctx context.Context, role *VolunteerRole) error {
	result, err := r.db.NewUpdate().
		Model(role).
		Column("name", "prerequisites", "details", "vacancies").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *repository) DeleteRole(ctx context.Context, id int64) error {
	result, err := r.db.NewDelete().Model(&VolunteerRole{ID: id}).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *repository) GetRole(ctx context.Context, id int64) (*VolunteerRole, error) {
	role := new(VolunteerRole)
	err := r.db.NewSelect().Model(role).Where("vr.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return role, nil
}

func (r *repository) DeleteProjectRoles(ctx context.Context, projectID int64) error {
	_, err := r.db.NewDelete().
		Model((*VolunteerRole)(nil)).
		Where("project_id = ?", projectID).
		Exec(ctx)
	return err
}

func (r *repository) RecomputeMaxApplies(ctx context.Context, projectID int64) (int, error) {
	var sum int
	err := r.db.NewRaw(`
		UPDATE projects SET max_applies_from_roles = COALESCE(
			(SELECT SUM(vacancies) FROM volunteer_roles WHERE project_id = projects.id), 0
		)
		WHERE id = ?
		RETURNING max_applies_from_roles
	`, projectID).Scan(ctx, &sum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrProjectNotFound
		}
		return 0, err
	}
	return sum, nil
}

func (r *repository) ReplaceWork(ctx context.Context, projectID int64, work *Work) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := deleteDisponibility(ctx, tx, projectID); err != nil {
			return err
		}

		work.ProjectID = projectID
		_, err := tx.NewInsert().Model(work).Exec(ctx)
		return err
	})
}

func (r *repository) ReplaceJob(ctx context.Context, projectID int64, job *Job) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := deleteDisponibility(ctx, tx, projectID); err != nil {
			return err
		}

		job.ProjectID = projectID
		job.UpdateDates()
		if _, err := tx.NewInsert().Model(job).Exec(ctx); err != nil {
			return err
		}

		for _, date := range job.Dates {
			date.JobID = job.ID
		}
		if len(job.Dates) > 0 {
			if _, err := tx.NewInsert().Model(&job.Dates).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func deleteDisponibility(ctx context.Context, tx bun.Tx, projectID int64) error {
	if _, err := tx.NewDelete().Model((*Work)(nil)).Where("project_id = ?", projectID).Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewRaw(`
		DELETE FROM job_dates WHERE job_id IN (SELECT id FROM jobs WHERE project_id = ?)
	`, projectID).Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewDelete().Model((*Job)(nil)).Where("project_id = ?", projectID).Exec(ctx); err != nil {
		return err
	}
	return nil
}

func (r *repository) CloseFinished(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.NewUpdate().
		Model((*Project)(nil)).
		Set("closed = TRUE").
		Set("closed_date = ?", now).
		Where("closed = FALSE").
		Where("EXISTS (SELECT 1 FROM jobs j WHERE j.project_id = p.id AND j.end_date < ?)", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
