package users

import "time"

// User is a verified account. HashedPassword never leaves the server.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	HashedPassword  string    `json:"-"`
	Name            string    `json:"name"`
	Bio             string    `json:"bio,omitempty"`
	Avatar          string    `json:"avatar,omitempty"`
	StudyInterests  []string  `json:"study_interests"`
	LearningStreaks int       `json:"learning_streaks"`
	StudentID       string    `json:"student_id,omitempty"`
	IsVerified      bool      `json:"is_verified"`
	Friends         []string  `json:"friends"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (u *User) clone() *User {
	c := *u
	c.StudyInterests = append([]string{}, u.StudyInterests...)
	c.Friends = append([]string{}, u.Friends...)
	return &c
}

// Registration is the sign-up form kept until the emailed code is confirmed.
type Registration struct {
	Email     string
	Password  string
	Name      string
	StudentID string
}

// ProfileUpdate lists the editable profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name            *string
	Bio             *string
	Avatar          *string
	StudyInterests  []string
	LearningStreaks *int
}

func (p ProfileUpdate) apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.StudyInterests != nil {
		u.StudyInterests = append([]string{}, p.StudyInterests...)
	}
	if p.LearningStreaks != nil {
		u.LearningStreaks = *p.LearningStreaks
	}
}

// TokenPair is what login, refresh and verify-email hand out.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type pendingRegistration struct {
	form           Registration
	hashedPassword string
	code           string
	expiresAt      time.Time
}
