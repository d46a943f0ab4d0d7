// Package domain defines the persistence models for student accounts, schema
// bookkeeping and idempotent chat replays. These types are mapped with GORM
// and form the core data layer of the counselor application.
package domain

import (
	"strings"
	"time"
)

// Grade bounds accepted for a current-grade override.
const (
	MinGrade = 9
	MaxGrade = 12
)

// User is the single state root of the application: identity, profile,
// daily usage counters and the binding to an external conversation thread.
//
// Fields:
//   - ID: autoincrement primary key.
//   - Username: unique, immutable handle.
//   - PasswordHash: bcrypt hash of the credential.
//   - ClassOf: graduation cohort (year).
//   - ThreadID / ThreadCreatedAt: external conversation binding. Once either
//     is set they travel together; a nil timestamp next to a non-nil id is a
//     legacy row that is healed on first access.
//   - MessagesToday / LastMessageDate: daily quota window. The counter is only
//     meaningful for the calendar date stored next to it. The date is kept as
//     text because older rows hold datetime strings in several shapes.
//   - TutorialCompleted: onboarding flag.
//   - DisplayName, CurrentGrade, Bio: optional profile data forwarded to the
//     assistant as context.
//   - IPAddress: audit field captured at signup.
type User struct {
	ID                int64      `json:"id"                  gorm:"primaryKey;autoIncrement"`
	Username          string     `json:"username"            gorm:"type:text;not null;uniqueIndex"`
	PasswordHash      string     `json:"-"                   gorm:"type:text;not null"`
	ClassOf           int        `json:"class_of"            gorm:"not null"`
	ThreadID          *string    `json:"-"                   gorm:"type:text"`
	ThreadCreatedAt   *time.Time `json:"-"                   gorm:"type:timestamp"`
	MessagesToday     int        `json:"-"                   gorm:"not null;default:0"`
	LastMessageDate   *string    `json:"-"                   gorm:"type:text"`
	TutorialCompleted bool       `json:"tutorial_completed"  gorm:"not null;default:false"`
	DisplayName       *string    `json:"display_name"        gorm:"type:text"`
	CurrentGrade      *int       `json:"current_grade"`
	Bio               *string    `json:"bio"                 gorm:"type:text"`
	IPAddress         *string    `json:"-"                   gorm:"type:text"`
	CreatedAt         time.Time  `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// HasThread reports whether a conversation thread is bound.
func (u *User) HasThread() bool {
	return u.ThreadID != nil && strings.TrimSpace(*u.ThreadID) != ""
}

// ValidGrade reports whether g is an accepted current-grade value.
func ValidGrade(g int) bool { return g >= MinGrade && g <= MaxGrade }

// SchemaMigration records one applied schema version.
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"type:text;not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for SchemaMigration.
func (SchemaMigration) TableName() string { return "schema_migrations" }
