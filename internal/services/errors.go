// Package services defines the business logic for accounts, the daily message
// quota, conversation threads, chat turns and profiles. This file centralizes
// service-level error values so that service methods return them consistently
// and handlers can map them to HTTP results.
package services

import (
	"errors"

	"github.com/tbourn/counselor-chat/internal/repo"
)

// Account errors.
var (
	// ErrUserNotFound indicates the user id from the session no longer exists.
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameTaken is returned on signup when the username already exists.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid username or password")

	ErrUsernameTooShort = errors.New("username must be at least 3 characters")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrInvalidClassOf   = errors.New("graduation year is invalid")

	// ErrInvalidToken is returned for session tokens that fail verification.
	ErrInvalidToken = errors.New("invalid session token")
)

// Profile errors.
var (
	// ErrInvalidGrade rejects a current grade outside 9..12.
	ErrInvalidGrade = errors.New("current grade must be 9, 10, 11, or 12")
)

// Chat errors.
var (
	// ErrEmptyPrompt is returned when a question is blank.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when a question exceeds the configured rune limit.
	ErrTooLong = errors.New("prompt too long")

	// ErrAssistantUnavailable wraps any failure while sending the question or
	// reading the reply.
	ErrAssistantUnavailable = errors.New("assistant unavailable")

	// ErrNoMessages is returned when an export is requested without messages.
	ErrNoMessages = errors.New("no messages selected")
)

// ErrStorageBusy is the transient error surfaced after lock contention
// outlasted every retry.
var ErrStorageBusy = repo.ErrBusy
