package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLen is the maximum title length in runes, counted after trimming.
const MaxTitleLen = 100

// ErrValidation is the category sentinel for bad input; the concrete
// title errors wrap it so handlers dispatch with errors.Is instead of
// matching message text.
var (
	ErrValidation    = errors.New("validation failed")
	ErrTitleRequired = fmt.Errorf("%w: title is required", ErrValidation)
	ErrTitleTooLong  = fmt.Errorf("%w: title must be at most %d characters", ErrValidation, MaxTitleLen)

	// ErrNoFields is returned by an update that supplies nothing to change.
	ErrNoFields = errors.New("no fields to update")
)

// Domain entity: the business object. Does not depend on Gin, Postgres
// or Redis. ID and timestamps are assigned by the storage engine.
type Todo struct {
	ID        int64
	Title     string
	Completed bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TodoPatch is a partial update: nil means "leave unchanged".
type TodoPatch struct {
	Title     *string
	Completed *bool
}

// Empty reports whether the patch changes nothing.
func (p TodoPatch) Empty() bool {
	return p.Title == nil && p.Completed == nil
}

// ValidateTitle enforces the title rules shared by create and update.
// The trimmed title must be non-empty and at most MaxTitleLen runes;
// the title itself is stored as submitted.
func ValidateTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return ErrTitleRequired
	}
	if utf8.RuneCountInString(trimmed) > MaxTitleLen {
		return ErrTitleTooLong
	}
	return nil
}
