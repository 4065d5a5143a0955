package valueobjects

import (
	"errors"
	"net/mail"
	"strings"
)

var ErrInvalidEmail = errors.New("email must be a valid address")

// Email is a trimmed, lower-cased account email
type Email struct {
	value string
}

func NewEmail(raw string) (Email, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return Email{}, ErrInvalidEmail
	}
	return Email{value: v}, nil
}

func (e Email) String() string { return e.value }

// EmailFromStored wraps a previously validated address without re-parsing
func EmailFromStored(stored string) Email {
	return Email{value: strings.ToLower(strings.TrimSpace(stored))}
}
