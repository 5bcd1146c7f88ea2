// Package model defines the core domain types for netxchat.
package model

import (
	"errors"
	"fmt"
)

// MaxNicknameBytes bounds a nickname on the wire. Nicknames are opaque bytes;
// they are never re-encoded or inspected beyond length.
const MaxNicknameBytes = 64

// MaxMessageBytes bounds a single talk or direct message body.
const MaxMessageBytes = 4096

var ErrNicknameEmpty = errors.New("nickname must not be empty")
var ErrNicknameTooLong = fmt.Errorf("nickname must not exceed %d bytes", MaxNicknameBytes)
var ErrMessageEmpty = errors.New("message must not be empty")
var ErrMessageTooLong = fmt.Errorf("message must not exceed %d bytes", MaxMessageBytes)

// User is one connected participant as reported by the server.
type User struct {
	Nickname  string `json:"nickname"`
	SessionID int64  `json:"session_id"`
}

// ValidateNickname checks the only client-side constraints on a nickname:
// it is non-empty and fits the wire bound.
func ValidateNickname(name string) error {
	if len(name) == 0 {
		return ErrNicknameEmpty
	}
	if len(name) > MaxNicknameBytes {
		return ErrNicknameTooLong
	}
	return nil
}

// ValidateMessage checks a chat body.
func ValidateMessage(text string) error {
	if len(text) == 0 {
		return ErrMessageEmpty
	}
	if len(text) > MaxMessageBytes {
		return ErrMessageTooLong
	}
	return nil
}

// CloneUsers returns a freshly allocated copy of users. A nil input yields a
// non-nil empty slice so callers can tell "no users" apart from "no result".
func CloneUsers(users []User) []User {
	out := make([]User, len(users))
	copy(out, users)
	return out
}
