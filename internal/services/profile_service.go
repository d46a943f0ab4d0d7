// Package services – ProfileService
//
// This file implements the optional student profile (display name, current
// grade, bio) forwarded to the assistant as context, plus the onboarding
// tutorial flag. Invalid grades are rejected before anything is written, so
// the previously stored profile stays intact.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/counselor-chat/internal/domain"
	"github.com/tbourn/counselor-chat/internal/repo"
)

// Profile is the public view of an account.
type Profile struct {
	Username          string  `json:"username"`
	ClassOf           int     `json:"class_of"`
	DisplayName       *string `json:"display_name"`
	CurrentGrade      *int    `json:"current_grade"`
	Bio               *string `json:"bio"`
	TutorialCompleted bool    `json:"tutorial_completed"`
}

// ProfileUpdate carries raw form values. Blank values clear the field.
type ProfileUpdate struct {
	DisplayName  string
	CurrentGrade string
	Bio          string
}

// ProfileService reads and updates profiles.
type ProfileService struct {
	DB    *gorm.DB
	Retry repo.RetryPolicy
}

// ToProfile projects a user row onto its public profile.
func ToProfile(u *domain.User) *Profile {
	return &Profile{
		Username:          u.Username,
		ClassOf:           u.ClassOf,
		DisplayName:       u.DisplayName,
		CurrentGrade:      u.CurrentGrade,
		Bio:               u.Bio,
		TutorialCompleted: u.TutorialCompleted,
	}
}

// Get returns the profile of userID.
func (s *ProfileService) Get(ctx context.Context, userID int64) (*Profile, error) {
	u, err := repo.GetUserByID(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return ToProfile(u), nil
}

// Update overwrites the profile fields. The grade must be blank or one of
// 9, 10, 11, 12; otherwise ErrInvalidGrade is returned and nothing changes.
func (s *ProfileService) Update(ctx context.Context, userID int64, in ProfileUpdate) (*Profile, error) {
	var grade *int
	if g := strings.TrimSpace(in.CurrentGrade); g != "" {
		n, err := strconv.Atoi(g)
		if err != nil || !domain.ValidGrade(n) {
			return nil, ErrInvalidGrade
		}
		grade = &n
	}

	err := repo.WithRetry(ctx, s.Retry, func() error {
		return repo.UpdateProfile(ctx, s.DB, userID, optional(in.DisplayName), grade, optional(in.Bio))
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// CompleteTutorial records that the user finished onboarding.
func (s *ProfileService) CompleteTutorial(ctx context.Context, userID int64) error {
	err := repo.WithRetry(ctx, s.Retry, func() error {
		return repo.MarkTutorialComplete(ctx, s.DB, userID)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// optional normalizes free text and maps blanks to nil.
func optional(s string) *string {
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	return &s
}
