package span

import "time"

type AccessType string

const (
	TypeMembership       AccessType = "membership"
	TypeLabaccess        AccessType = "labaccess"
	TypeSpecialLabaccess AccessType = "special_labaccess"
)

func (t AccessType) Valid() bool {
	switch t {
	case TypeMembership, TypeLabaccess, TypeSpecialLabaccess:
		return true
	}
	return false
}

// AllAccessTypes in display order.
func AllAccessTypes() []AccessType {
	return []AccessType{TypeMembership, TypeLabaccess, TypeSpecialLabaccess}
}

// Span is one granted interval of access. Both dates are inclusive calendar
// days. Rows are never hard-deleted; deleted_at marks them out of play while
// keeping the audit trail.
type Span struct {
	ID             int        `db:"id" json:"id"`
	MemberID       int        `db:"member_id" json:"member_id"`
	Type           AccessType `db:"type" json:"type"`
	StartDate      time.Time  `db:"startdate" json:"startdate"`
	EndDate        time.Time  `db:"enddate" json:"enddate"`
	CreationReason *string    `db:"creation_reason" json:"creation_reason,omitempty"`
	DeletedAt      *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	DeletionReason *string    `db:"deletion_reason" json:"deletion_reason,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// AccessStatus is the per-type projection returned to members and admins.
type AccessStatus struct {
	Type        AccessType `json:"type"`
	ActiveToday bool       `json:"active_today"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// Date truncates a timestamp to its UTC calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
