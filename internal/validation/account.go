// Package validation provides input validation utilities
package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxEmailLen     = 254
	MinUsernameLen  = 4
	MaxUsernameLen  = 20
	MinPasswordLen  = 8
	MaxPasswordLen  = 64
	MinNameLen      = 2
	MaxNameLen      = 30
	MaxCaptionLen   = 400
	MaxCommentLen   = 500
	MaxBiographyLen = 250
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// ValidateEmail checks the address syntax and length.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > MaxEmailLen {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLen)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("email is not a valid address")
	}
	return nil
}

// ValidateUsername checks if a username meets requirements
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLen || n > MaxUsernameLen {
		return fmt.Errorf("username must be between %d and %d characters", MinUsernameLen, MaxUsernameLen)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username can only contain letters, numbers, underscores, and dots")
	}
	return nil
}

// ValidatePassword checks the password length and that the confirmation matches.
func ValidatePassword(password, confirmation string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}
	if n > MaxPasswordLen {
		return fmt.Errorf("password must not exceed %d characters", MaxPasswordLen)
	}
	if password != confirmation {
		return fmt.Errorf("passwords do not match")
	}
	return nil
}

// ValidateName checks a first or last name.
func ValidateName(field, name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < MinNameLen || n > MaxNameLen {
		return fmt.Errorf("%s must be between %d and %d characters", field, MinNameLen, MaxNameLen)
	}
	return nil
}

// ValidateMaxLength rejects text longer than max runes.
func ValidateMaxLength(field, text string, max int) error {
	if utf8.RuneCountInString(text) > max {
		return fmt.Errorf("%s too long (max %d characters)", field, max)
	}
	return nil
}
