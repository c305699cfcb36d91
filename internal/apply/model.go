package apply

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/project"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/user"
)

// Status of an Apply record. Entering or leaving StatusUnapplied is the only
// transition with side effects; the other statuses are manager-set labels.
type Status string

const (
	StatusApplied      Status = "applied"
	StatusUnapplied    Status = "unapplied"
	StatusConfirmed    Status = "confirmed-volunteer"
	StatusNotVolunteer Status = "not-a-volunteer"
)

func (s Status) Valid() bool {
	switch s {
	case StatusApplied, StatusUnapplied, StatusConfirmed, StatusNotVolunteer:
		return true
	}
	return false
}

// Apply is one applicant's relationship to a project. The (email, project)
// pair is unique for the lifetime of the row: unapplying cancels the row and
// re-applying reactivates it instead of inserting a second one.
type Apply struct {
	bun.BaseModel `bun:"table:applies,alias:a"`

	ID int64 `bun:"id,pk,autoincrement" json:"id"`

	UserID    *int64           `bun:"user_id" json:"user,omitempty"`
	User      *user.User       `bun:"rel:belongs-to,join:user_id=id" json:"-"`
	ProjectID int64            `bun:"project_id,notnull,unique:applies_email_project" json:"project"`
	Project   *project.Project `bun:"rel:belongs-to,join:project_id=id" json:"-"`
	RoleID    *int64           `bun:"role_id" json:"role,omitempty"`

	Status Status `bun:"status,notnull" json:"status"`

	// Canceled mirrors Status == unapplied; the two are kept in lockstep by
	// the state machine and must never disagree.
	Canceled     bool       `bun:"canceled,notnull,default:false" json:"canceled"`
	CanceledDate *time.Time `bun:"canceled_date" json:"canceledDate,omitempty"`

	// Contact snapshot taken at apply time; kept even if the account changes.
	Username string `bun:"username" json:"username"`
	Email    string `bun:"email,notnull,unique:applies_email_project" json:"email"`
	Phone    string `bun:"phone" json:"phone"`

	Date time.Time `bun:"date,notnull,default:current_timestamp" json:"date"`
}
