// Package models holds the data exchanged with the PeerLearn auth API and
// cached by the credential store.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ID is a user identifier. The server emits it as a string (object id or
// uuid) but older payloads use plain numbers; both decode.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Int returns the id as an integer when it is numeric.
func (id ID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

// User is the authenticated principal as returned by GET /auth/me.
type User struct {
	ID              ID        `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Bio             string    `json:"bio,omitempty"`
	Avatar          string    `json:"avatar,omitempty"`
	StudyInterests  []string  `json:"study_interests,omitempty"`
	LearningStreaks int       `json:"learning_streaks,omitempty"`
	StudentID       string    `json:"student_id,omitempty"`
	IsVerified      bool      `json:"is_verified"`
	Friends         []string  `json:"friends,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitzero"`
	UpdatedAt       time.Time `json:"updated_at,omitzero"`
}

// UnmarshalJSON also accepts the Mongo-style "_id" key.
func (u *User) UnmarshalJSON(b []byte) error {
	type plain User
	var aux struct {
		plain
		MongoID ID `json:"_id"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if u.ID == "" {
		u.ID = aux.MongoID
	}
	return nil
}

// Clone returns a deep copy; nil stays nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.StudyInterests = append([]string(nil), u.StudyInterests...)
	c.Friends = append([]string(nil), u.Friends...)
	return &c
}

// Merge overlays the non-zero fields of update onto a copy of u.
func (u *User) Merge(update *User) *User {
	if u == nil {
		return update.Clone()
	}
	out := u.Clone()
	if update == nil {
		return out
	}
	if update.ID != "" {
		out.ID = update.ID
	}
	if update.Email != "" {
		out.Email = update.Email
	}
	if update.Name != "" {
		out.Name = update.Name
	}
	if update.Bio != "" {
		out.Bio = update.Bio
	}
	if update.Avatar != "" {
		out.Avatar = update.Avatar
	}
	if update.StudyInterests != nil {
		out.StudyInterests = append([]string(nil), update.StudyInterests...)
	}
	if update.LearningStreaks != 0 {
		out.LearningStreaks = update.LearningStreaks
	}
	if update.StudentID != "" {
		out.StudentID = update.StudentID
	}
	if update.IsVerified {
		out.IsVerified = true
	}
	if update.Friends != nil {
		out.Friends = append([]string(nil), update.Friends...)
	}
	if !update.CreatedAt.IsZero() {
		out.CreatedAt = update.CreatedAt
	}
	if !update.UpdatedAt.IsZero() {
		out.UpdatedAt = update.UpdatedAt
	}
	return out
}
