package models

// TokenPair is the body of /auth/login and /auth/refresh responses.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

// Complete reports whether both tokens are present.
func (p TokenPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	Name      string `json:"name" validate:"required,notblank,max=100"`
	StudentID string `json:"student_id,omitempty"`
}

// RegisterResponse acknowledges that a verification code was sent.
type RegisterResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// VerifyEmailResponse carries both the new account and its first tokens.
type VerifyEmailResponse struct {
	Message string    `json:"message"`
	User    *User     `json:"user"`
	Tokens  TokenPair `json:"tokens"`
}

// ProfileUpdate is the PUT /auth/me body; nil fields are left unchanged.
type ProfileUpdate struct {
	Name            *string  `json:"name,omitempty" validate:"omitnil,notblank,max=100"`
	Bio             *string  `json:"bio,omitempty" validate:"omitnil,max=500"`
	Avatar          *string  `json:"avatar,omitempty"`
	StudyInterests  []string `json:"study_interests,omitempty" validate:"omitempty,dive,notblank"`
	LearningStreaks *int     `json:"learning_streaks,omitempty" validate:"omitnil,min=0"`
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.Bio == nil && p.Avatar == nil && p.StudyInterests == nil && p.LearningStreaks == nil
}

// MessageResponse is the generic {"message": "..."} acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}
