package project

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/user"
)

type Project struct {
	bun.BaseModel `bun:"table:projects,alias:p"`

	ID   int64  `bun:"id,pk,autoincrement" json:"id"`
	Name string `bun:"name,notnull" json:"name" validate:"required,max=100"`
	Slug string `bun:"slug,notnull,unique" json:"slug"`

	OwnerID        int64      `bun:"owner_id,notnull" json:"owner"`
	Owner          *user.User `bun:"rel:belongs-to,join:owner_id=id" json:"-"`
	OrganizationID *int64     `bun:"organization_id" json:"organization,omitempty"`

	Published   bool `bun:"published,notnull,default:false" json:"published"`
	Highlighted bool `bun:"highlighted,notnull,default:false" json:"highlighted"`
	Closed      bool `bun:"closed,notnull,default:false" json:"closed"`
	Deleted     bool `bun:"deleted,notnull,default:false" json:"deleted"`

	// Each date is stamped the first time its flag goes true and never cleared.
	PublishedDate *time.Time `bun:"published_date" json:"publishedDate,omitempty"`
	ClosedDate    *time.Time `bun:"closed_date" json:"closedDate,omitempty"`
	DeletedDate   *time.Time `bun:"deleted_date" json:"deletedDate,omitempty"`

	Details     string `bun:"details,notnull,default:''" json:"details" validate:"max=3000"`
	Description string `bun:"description,notnull,default:''" json:"description" validate:"max=160"`
	MinimumAge  int    `bun:"minimum_age,notnull,default:0" json:"minimumAge"`

	// Derived aggregates, never set directly by clients. applied_count mirrors
	// the active Apply set, max_applies_from_roles the role vacancy sum.
	AppliedCount        int `bun:"applied_count,notnull,default:0" json:"appliedCount"`
	MaxAppliesFromRoles int `bun:"max_applies_from_roles,notnull,default:0" json:"maxAppliesFromRoles"`

	Roles []*VolunteerRole `bun:"rel:has-many,join:id=project_id" json:"roles,omitempty"`
	Work  *Work            `bun:"rel:has-one,join:id=project_id" json:"work,omitempty"`
	Job   *Job             `bun:"rel:has-one,join:id=project_id" json:"job,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
}

// VolunteerRole is a named staffing slot on a project. The vacancy sum over a
// project's roles feeds Project.MaxAppliesFromRoles.
type VolunteerRole struct {
	bun.BaseModel `bun:"table:volunteer_roles,alias:vr"`

	ID        int64  `bun:"id,pk,autoincrement" json:"id"`
	ProjectID *int64 `bun:"project_id" json:"project,omitempty"`

	Name          string `bun:"name" json:"name" validate:"max=50"`
	Prerequisites string `bun:"prerequisites" json:"prerequisites" validate:"max=1024"`
	Details       string `bun:"details" json:"details" validate:"max=1024"`
	Vacancies     *int   `bun:"vacancies" json:"vacancies" validate:"omitempty,min=0"`

	// Derived: number of active applies bound to this role.
	AppliedCount int `bun:"applied_count,notnull,default:0" json:"appliedCount"`
}

// Work is the continuous disponibility shape: recurring weekly effort with no
// fixed dates. A project holds at most one of Work/Job.
type Work struct {
	bun.BaseModel `bun:"table:works,alias:w"`

	ID                int64  `bun:"id,pk,autoincrement" json:"id"`
	ProjectID         int64  `bun:"project_id,notnull,unique" json:"project"`
	WeeklyHours       *int   `bun:"weekly_hours" json:"weeklyHours" validate:"omitempty,min=0"`
	Description       string `bun:"description" json:"description" validate:"max=4000"`
	CanBeDoneRemotely bool   `bun:"can_be_done_remotely,notnull,default:false" json:"canBeDoneRemotely"`
}

// Job is the date-bounded disponibility shape. Its start/end envelope is
// derived from the child JobDate rows.
type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID                int64      `bun:"id,pk,autoincrement" json:"id"`
	ProjectID         int64      `bun:"project_id,notnull,unique" json:"project"`
	StartDate         *time.Time `bun:"start_date" json:"startDate,omitempty"`
	EndDate           *time.Time `bun:"end_date" json:"endDate,omitempty"`
	CanBeDoneRemotely bool       `bun:"can_be_done_remotely,notnull,default:false" json:"canBeDoneRemotely"`

	Dates []*JobDate `bun:"rel:has-many,join:id=job_id" json:"dates,omitempty"`
}

type JobDate struct {
	bun.BaseModel `bun:"table:job_dates,alias:jd"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	JobID     int64     `bun:"job_id,notnull" json:"job"`
	Name      string    `bun:"name" json:"name" validate:"max=20"`
	StartDate time.Time `bun:"start_date,notnull" json:"startDate"`
	EndDate   time.Time `bun:"end_date,notnull" json:"endDate"`
}

// UpdateDates recomputes the job envelope as the min start and max end over
// the attached dates. Jobs with no dates keep their envelope untouched.
func (j *Job) UpdateDates() {
	if len(j.Dates) == 0 {
		return
	}

	start := j.Dates[0].StartDate
	end := j.Dates[0].EndDate
	for _, d := range j.Dates[1:] {
		if d.StartDate.Before(start) {
			start = d.StartDate
		}
		if d.EndDate.After(end) {
			end = d.EndDate
		}
	}
	j.StartDate = &start
	j.EndDate = &end
}

// Excerpt derives the short description from details when none was supplied:
// the first descriptionExcerptLen characters, or all of details if shorter.
const descriptionExcerptLen = 100

func (p *Project) Excerpt() {
	if p.Description != "" || p.Details == "" {
		return
	}

	details := []rune(p.Details)
	if len(details) > descriptionExcerptLen {
		details = details[:descriptionExcerptLen]
	}
	p.Description = string(details)
}
