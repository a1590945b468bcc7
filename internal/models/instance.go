package models

// Instance is the durable record of one running challenge container. The
// primary key is the engine-assigned container ID. At most one row exists
// per (challenge, subject), where the subject is the team in team mode and
// the user otherwise; the lifecycle manager enforces this with a
// lookup-before-create, not a database constraint.
type Instance struct {
	ID          string `gorm:"primaryKey;size:128"`
	ChallengeID uint   `gorm:"not null;index"`
	TeamID      *uint  `gorm:"index"`
	UserID      uint   `gorm:"not null;index"`
	Port        int    `gorm:"not null"`
	CreatedAt   int64  `gorm:"not null"` // unix seconds
	ExpiresAt   int64  `gorm:"not null;index"`

	Challenge Challenge `gorm:"foreignKey:ChallengeID"`
}

// SubjectID returns the quota/ownership key for the record: the team in
// team mode, the user otherwise.
func (i Instance) SubjectID() uint {
	if i.TeamID != nil {
		return *i.TeamID
	}
	return i.UserID
}
