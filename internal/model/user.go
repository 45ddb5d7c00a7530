// Package model defines the data structures used throughout the application.
// Every persisted record embeds Versioned; writes go through the optlock
// helpers so the version moves by exactly one per successful update.
package model

import "time"

// Versioned is embedded by every record guarded by optimistic locking.
//
// Version starts at 1 when the row is inserted and is bumped by exactly one
// on every successful conditional update. Clients echo it back on PUT and
// DELETE; a mismatch means someone else wrote first.
type Versioned struct {
	Version int64 `json:"version"`
}

// GetVersion lets generic helpers read the version without knowing the type.
func (v Versioned) GetVersion() int64 { return v.Version }

// User represents a registered account.
//
// PasswordHash is never serialized. It is empty for users who only ever
// signed in through GitHub. GitHubID is nil until the account is linked.
type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	GitHubID     *int64     `json:"githubId,omitempty"`
	IsAdmin      bool       `json:"isAdmin"`
	IsBlocked    bool       `json:"isBlocked"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	Versioned
}
