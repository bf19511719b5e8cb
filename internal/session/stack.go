// Package session keeps the credential a client is acting with and the ones
// it can return to. A platform admin who impersonates a school pushes the
// school credential on top of their own and pops it to get back.
package session

import (
	"errors"
	"time"
)

var (
	ErrNothingToRestore = errors.New("no previous credential to restore")
	ErrNoActive         = errors.New("no active credential")
)

// Credential is one bearer identity.
type Credential struct {
	AccessToken    string    `json:"access_token"`
	UserID         uint      `json:"user_id"`
	Role           string    `json:"role"`
	SchoolID       *uint     `json:"school_id,omitempty"`
	ImpersonatorID *uint     `json:"impersonator_id,omitempty"`
	IssuedAt       time.Time `json:"issued_at"`
}

// Stack is a single active slot plus the backups pushed under it.
type Stack struct {
	Current *Credential  `json:"current,omitempty"`
	Backups []Credential `json:"backups,omitempty"`
}

// Active returns the credential in use.
func (s *Stack) Active() (Credential, bool) {
	if s.Current == nil {
		return Credential{}, false
	}
	return *s.Current, true
}

// Push makes c active. The previous active credential, if any, becomes the
// most recent backup.
func (s *Stack) Push(c Credential) {
	if s.Current != nil {
		s.Backups = append(s.Backups, *s.Current)
	}
	s.Current = &c
}

// Pop drops the active credential and restores the most recent backup.
// The stack is unchanged when there is nothing to restore.
func (s *Stack) Pop() (Credential, error) {
	if len(s.Backups) == 0 {
		return Credential{}, ErrNothingToRestore
	}
	last := len(s.Backups) - 1
	restored := s.Backups[last]
	s.Backups = s.Backups[:last]
	s.Current = &restored
	return restored, nil
}

// Depth is the number of credentials that can be restored.
func (s *Stack) Depth() int { return len(s.Backups) }

func (s *Stack) Impersonating() bool {
	return s.Current != nil && s.Current.ImpersonatorID != nil
}

// Reset forgets every credential.
func (s *Stack) Reset() {
	s.Current = nil
	s.Backups = nil
}
