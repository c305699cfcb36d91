package project_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/config"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/logger"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/mail"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/metrics"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/project"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/testdb"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/user"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// blindProbeRepo misses the first SlugExists probes, reproducing the window
// where a concurrent create commits a slug between check and insert.
type blindProbeRepo struct {
	project.Repository
	misses int
}

func (r *blindProbeRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	if r.misses > 0 {
		r.misses--
		return false, nil
	}
	return r.Repository.SlugExists(ctx, slug)
}

func createOwner(t *testing.T, pg *testdb.PostgresContainer, email string) *user.User {
	t.Helper()

	owner := &user.User{Name: "Test Owner", Email: email, Phone: "123456789"}
	_, err := pg.DB.NewInsert().Model(owner).Exec(context.Background())
	require.NoError(t, err)
	return owner
}

func TestProjectService_Shared(t *testing.T) {
	pg := testdb.SetupSharedPostgres(t)
	defer pg.Cleanup(t)

	pg.RunMigrations(t,
		(*user.User)(nil),
		(*project.Project)(nil),
		(*project.VolunteerRole)(nil),
		(*project.Work)(nil),
		(*project.Job)(nil),
		(*project.JobDate)(nil),
	)
	pg.CreateUpdateTrigger(t, "projects")

	log := logger.New()
	recorder := mail.NewRecorder()
	mailer := mail.NewDispatcher(recorder, "en", log, metrics.NewMock())
	repo := project.NewRepository(pg.DB)
	users := user.NewRepository(pg.DB)
	service := project.NewService(repo, users, mailer, metrics.NewMock(), log, config.PlatformConfig{})

	cleanup := func(t *testing.T) {
		testdb.CleanupTables(t, pg.DB, "users", "projects", "volunteer_roles", "works", "jobs", "job_dates")
		recorder.Reset()
	}

	ctx := context.Background()

	t.Run("CreateProject", func(t *testing.T) {
		cleanup(t)
		owner := createOwner(t, pg, "owner@test.com")

		created, err := service.Create(ctx, project.CreateProjectInput{
			Name:    "Test Slug",
			Details: "abc",
			OwnerID: owner.ID,
		})

		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, "test-slug", created.Slug)
		assert.Equal(t, "abc", created.Description)
		assert.False(t, created.Published)
		assert.Equal(t, 1, recorder.CountByTemplate(mail.TemplateProjectCreated))
	})

	t.Run("SlugCollisionGetsSuffix", func(t *testing.T) {
		cleanup(t)
		owner := createOwner(t, pg, "owner@test.com")

		first, err := service.Create(ctx, project.CreateProjectInput{Name: "Test Slug", OwnerID: owner.ID})
		require.NoError(t, err)
		second, err := service.Create(ctx, project.CreateProjectInput{Name: "Test Slug", OwnerID: owner.ID})
		require.NoError(t, err)
		third, err := service.Create(ctx, project.CreateProjectInput{Name: "Test Slug", OwnerID: owner.ID})
		require.NoError(t, err)

		assert.Equal(t, "test-slug", first.Slug)
		assert.Equal(t, "test-slug-1", second.Slug)
		assert.Equal(t, "test-slug-2", third.Slug)
	})

	t.Run("SlugRaceLoserRetriesWithNextSuffix", func(t *testing.T) {
		cleanup(t)
		owner := createOwner(t, pg, "owner@test.com")

		// A project already holds the slug but is invisible to the first
		// existence probe, like a concurrent create committing in the
		// check-then-set window.
		taken := &project.Project{Name: "Test Slug", Slug: "test-slug", OwnerID: owner.ID}
		_, err := pg.DB.NewInsert().Model(taken).Exec(ctx)
		require.NoError(t, err)

		racing := project.NewService(&blindProbeRepo{Repository: repo, misses: 1},
			users, mailer, metrics.NewMock(), log, config.PlatformConfig{})

		created, err := racing.Create(ctx, project.CreateProjectInput{Name: "Test Slug", OwnerID: owner.ID})
		require.NoError(t, err)
		assert.Equal(t, "test-slug-1", created.Slug)
	})

	t.Run("DescriptionExcerptFromDetails", func(t *testing.T) {
		cleanup(t)
		owner := createOwner(t, pg, "owner@test.com")

		details := ""
		for i := 0; i < 101; i++ {
			details += "a"
		}

		created, err := service.Create(ctx, project.CreateProjectInput{
			Name:    "Excerpt Project",
			Details: details,
			OwnerID: owner.ID,
		})

		require.NoError(t, err)
		assert.Len(t, created.Description, 100)
	})

	t.Run("OrganizationRequired", func(t *testing.T) {
		cleanup(t)
		owner := createOwner(t, pg, "owner@test.com")

		strictService := project.NewService(repo, users, mailer, metrics.NewMock(), log,
			config.PlatformConfig{RequireOrganization: true})

		_, err := strictService.Create(ctx, project.CreateProjectInput{Name: "No Org", OwnerID: owner.ID})
		assert.ErrorIs(t, err, project.ErrOrganizationRequired)

		orgID := int64(42)
		created, err := strictService.Create(ctx, project.CreateProjectInput{
			Name:           "With Org",
			OwnerID:        owner.ID,
			OrganizationID: &orgID,
		})
		require.NoError(t, err)
		require.NotNil(t, created.OrganizationID)
	})

	t.Run("PublishStampsDateAndNotifiesOnce", func(t *testing.T) {
		cleanup(t)
		owner := createOwner(t, pg, "owner@test.com")

		created, err := service.Create(ctx, project.CreateProjectInput{Name: "Publish Me", OwnerID: owner.ID})
		require.NoError(t, err)
		assert.Nil(t, created.PublishedDate)

		published, err := service.Update(ctx, created.Slug, project.UpdateProjectInput{Published: boolPtr(true)})
		require.NoError(t, err)
		assert.True(t, published.Published)
		require.NotNil(t, published.PublishedDate)
		assert.Equal(t, 1, recorder.CountByTemplate(mail.TemplateProjectPublished))

		firstDate := *published.PublishedDate

		// Saving published=true again is a no-op: no new mail, same date.
		again, err := service.Update(ctx, created.Slug, project.UpdateProjectInput{Published: boolPtr(true)})
		require.NoError(t, err)
		require.NotNil(t, again.PublishedDate)
		assert.Equal(t, firstDate.Unix(), again.PublishedDate.Unix())
		assert.Equal(t, 1, recorder.CountByTemplate(mail.TemplateProjectPublished))
	})

	t.Run("CloseProject", func(t *testing.T) {
		cleanup(t)
		owner := createOwner(t, pg, "owner@test.com")

		created, err := service.Create(ctx, project.CreateProjectInput{Name: "Close Me", OwnerID: owner.ID})
		require.NoError(t, err)

		closed, err := service.Close(ctx, created.Slug)
		require.NoError(t, err)
		assert.True(t, closed.Closed)
		require.NotNil(t, closed.ClosedDate)
		assert.Equal(t, 1, recorder.CountByTemplate(mail.TemplateProjectClosed))
	})

	t.Run("DeleteIsSoftAndForcesUnpublish", func(t *testing.T) {
		cleanup(t)
		owner := createOwner(t, pg, "owner@test.com")

		created, err := service.Create(ctx, project.CreateProjectInput{Name: "Delete Me", OwnerID: owner.ID})
		require.NoError(t, err)

		_, err = service.Update(ctx, created.Slug, project.UpdateProjectInput{Published: boolPtr(true)})
		require.NoError(t, err)

		require.NoError(t, service.Delete(ctx, created.Slug))

		deleted, err := service.Get(ctx, created.Slug)
		require.NoError(t, err)
		assert.True(t, deleted.Deleted)
		assert.False(t, deleted.Published)
		require.NotNil(t, deleted.DeletedDate)
		// published_date survives the unpublish
		require.NotNil(t, deleted.PublishedDate)
	})

	t.Run("RoleVacancyTracking", func(t *testing.T) {
		cleanup(t)
		owner := createOwner(t, pg, "owner@test.com")

		created, err := service.Create(ctx, project.CreateProjectInput{
			Name:    "Role Project",
			OwnerID: owner.ID,
			Roles:   []project.RoleInput{{Name: "Cook", Vacancies: intPtr(5)}},
		})
		require.NoError(t, err)
		assert.Equal(t, 5, created.MaxAppliesFromRoles)
		require.Len(t, created.Roles, 1)

		require.NoError(t, service.DeleteRole(ctx, created.Roles[0].ID))

		reloaded, err := service.Get(ctx, created.Slug)
		require.NoError(t, err)
		assert.Equal(t, 0, reloaded.MaxAppliesFromRoles)
	})

	t.Run("NullVacanciesCountAsZero", func(t *testing.T) {
		cleanup(t)
		owner := createOwner(t, pg, "owner@test.com")

		created, err := service.Create(ctx, project.CreateProjectInput{
			Name:    "Null Vacancies",
			OwnerID: owner.ID,
			Roles: []project.RoleInput{
				{Name: "Driver", Vacancies: intPtr(3)},
				{Name: "Helper"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, created.MaxAppliesFromRoles)
	})

	t.Run("UpdateReplacesRoleSet", func(t *testing.T) {
		cleanup(t)
		owner := createOwner(t, pg, "owner@test.com")

		created, err := service.Create(ctx, project.CreateProjectInput{
			Name:    "Replace Roles",
			OwnerID: owner.ID,
			Roles:   []project.RoleInput{{Name: "Cook", Vacancies: intPtr(5)}},
		})
		require.NoError(t, err)

		newRoles := []project.RoleInput{
			{Name: "Driver", Vacancies: intPtr(2)},
			{Name: "Helper", Vacancies: intPtr(4)},
		}
		updated, err := service.Update(ctx, created.Slug, project.UpdateProjectInput{Roles: &newRoles})
		require.NoError(t, err)

		assert.Len(t, updated.Roles, 2)
		assert.Equal(t, 6, updated.MaxAppliesFromRoles)
	})

	t.Run("DisponibilityReplacement", func(t *testing.T) {
		cleanup(t)
		owner := createOwner(t, pg, "owner@test.com")

		start := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
		end := time.Date(2026, 5, 25, 17, 0, 0, 0, time.UTC)

		created, err := service.Create(ctx, project.CreateProjectInput{
			Name:    "Scheduled Project",
			OwnerID: owner.ID,
			Disponibility: &project.DisponibilityInput{
				Type: project.DisponibilityJob,
				Job: &project.JobInput{Dates: []project.JobDateInput{
					{StartDate: start, EndDate: start.Add(8 * time.Hour)},
					{StartDate: end.Add(-8 * time.Hour), EndDate: end},
				}},
			},
		})
		require.NoError(t, err)
		require.NotNil(t, created.Job)
		require.NotNil(t, created.Job.StartDate)
		require.NotNil(t, created.Job.EndDate)
		assert.Equal(t, start.Unix(), created.Job.StartDate.Unix())
		assert.Equal(t, end.Unix(), created.Job.EndDate.Unix())

		updated, err := service.Update(ctx, created.Slug, project.UpdateProjectInput{
			Disponibility: &project.DisponibilityInput{
				Type: project.DisponibilityWork,
				Work: &project.WorkInput{WeeklyHours: intPtr(4)},
			},
		})
		require.NoError(t, err)
		assert.Nil(t, updated.Job)
		require.NotNil(t, updated.Work)
		require.NotNil(t, updated.Work.WeeklyHours)
		assert.Equal(t, 4, *updated.Work.WeeklyHours)
	})

	t.Run("CloseFinishedProjects", func(t *testing.T) {
		cleanup(t)
		owner := createOwner(t, pg, "owner@test.com")

		past := time.Now().UTC().Add(-48 * time.Hour)
		finished, err := service.Create(ctx, project.CreateProjectInput{
			Name:    "Finished Job",
			OwnerID: owner.ID,
			Disponibility: &project.DisponibilityInput{
				Type: project.DisponibilityJob,
				Job: &project.JobInput{Dates: []project.JobDateInput{
					{StartDate: past.Add(-8 * time.Hour), EndDate: past},
				}},
			},
		})
		require.NoError(t, err)

		_, err = service.Create(ctx, project.CreateProjectInput{Name: "Ongoing Work", OwnerID: owner.ID})
		require.NoError(t, err)

		recorder.Reset()

		closed, err := service.CloseFinishedProjects(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), closed)

		reloaded, err := service.Get(ctx, finished.Slug)
		require.NoError(t, err)
		assert.True(t, reloaded.Closed)
		require.NotNil(t, reloaded.ClosedDate)

		// The bulk sweep is silent: no per-project closed notifications.
		assert.Equal(t, 0, recorder.CountByTemplate(mail.TemplateProjectClosed))

		// Re-running the sweep finds nothing new.
		closed, err = service.CloseFinishedProjects(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), closed)
	})

	t.Run("ListManageable", func(t *testing.T) {
		cleanup(t)
		owner := createOwner(t, pg, "owner@test.com")
		other := createOwner(t, pg, "other@test.com")

		_, err := service.Create(ctx, project.CreateProjectInput{Name: "Mine", OwnerID: owner.ID})
		require.NoError(t, err)
		_, err = service.Create(ctx, project.CreateProjectInput{Name: "Theirs", OwnerID: other.ID})
		require.NoError(t, err)
		deleted, err := service.Create(ctx, project.CreateProjectInput{Name: "Mine Deleted", OwnerID: owner.ID})
		require.NoError(t, err)
		require.NoError(t, service.Delete(ctx, deleted.Slug))

		mine, err := service.ListManageable(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, "Mine", mine[0].Name)
	})

	t.Run("GetUnknownSlug", func(t *testing.T) {
		cleanup(t)

		_, err := service.Get(ctx, "does-not-exist")
		assert.ErrorIs(t, err, project.ErrProjectNotFound)
	})
}
