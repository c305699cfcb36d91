package apply

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

type Repository interface {
	Create(ctx context.Context, apply *Apply) error
	GetByID(ctx context.Context, id int64) (*Apply, error)
	GetByEmailAndProject(ctx context.Context, email string, projectID int64) (*Apply, error)
	UpdateState(ctx context.Context, apply *Apply) error
	ListByProject(ctx context.Context, projectID int64) ([]Apply, error)

	// ReconcileProjectCount overwrites the project's applied_count with the
	// live count of active applies in one statement and returns the new
	// value. Recompute-from-scratch keeps concurrent transitions from losing
	// updates the way incremental +1/-1 would.
	ReconcileProjectCount(ctx context.Context, projectID int64) (int, error)

	// ReconcileRoleCount does the same for a role's applied_count.
	ReconcileRoleCount(ctx context.Context, roleID int64) (int, error)
}

type repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, apply *Apply) error {
	_, err := r.db.NewInsert().Model(apply).Exec(ctx)
	if err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
			// The (email, project) unique index caught a concurrent insert.
			return ErrAlreadyApplied
		}
		return err
	}
	// Reload to get the DB-generated apply date
	return r.db.NewSelect().Model(apply).WherePK().Scan(ctx)
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Apply, error) {
	apply := new(Apply)
	err := r.db.NewSelect().Model(apply).
		Relation("Project").
		Relation("Project.Owner").
		Where("a.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrApplyNotFound
		}
		return nil, err
	}
	return apply, nil
}

func (r *repository) GetByEmailAndProject(ctx context.Context, email string, projectID int64) (*Apply, error) {
	apply := new(Apply)
	err := r.db.NewSelect().Model(apply).
		Where("a.email = ?", email).
		Where("a.project_id = ?", projectID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrApplyNotFound
		}
		return nil, err
	}
	return apply, nil
}

func (r *repository) UpdateState(ctx context.Context, apply *Apply) error {
	result, err := r.db.NewUpdate().
		Model(apply).
		Column("status", "canceled", "canceled_date", "role_id").
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
		return ErrApplyNotFound
	}
	return nil
}

func (r *repository) ListByProject(ctx context.Context, projectID int64) ([]Apply, error) {
	var applies []Apply
	err := r.db.NewSelect().Model(&applies).
		Where("a.project_id = ?", projectID).
		Order("a.date ASC").
		Scan(ctx)
	return applies, err
}

func (r *repository) ReconcileProjectCount(ctx context.Context, projectID int64) (int, error) {
	var count int
	err := r.db.NewRaw(`
		UPDATE projects SET applied_count = (
			SELECT COUNT(*) FROM applies a
			WHERE a.project_id = projects.id AND a.canceled = FALSE
		)
		WHERE id = ?
		RETURNING applied_count
	`, projectID).Scan(ctx, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) ReconcileRoleCount(ctx context.Context, roleID int64) (int, error) {
	var count int
	err := r.db.NewRaw(`
		UPDATE volunteer_roles SET applied_count = (
			SELECT COUNT(*) FROM applies a
			WHERE a.role_id = volunteer_roles.id AND a.canceled = FALSE
		)
		WHERE id = ?
		RETURNING applied_count
	`, roleID).Scan(ctx, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
