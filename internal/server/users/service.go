package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/peerlearn/internal/common"
	"github.com/dmitrijs2005/peerlearn/internal/logging"
	"github.com/dmitrijs2005/peerlearn/internal/server/auth"
	"github.com/dmitrijs2005/peerlearn/internal/server/config"
)

const codeLength = 6

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrStudentIDTaken     = errors.New("student id already registered")
	ErrInvalidCode        = errors.New("invalid or expired verification code")
	ErrBadCredentials     = errors.New("incorrect email or password")
	ErrNotVerified        = errors.New("email not verified")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrInvalidCredentials = errors.New("could not validate credentials")
)

type Service struct {
	repo   Repository
	mailer Mailer
	log    logging.Logger

	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	codeTTL    time.Duration
	now        func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingRegistration
}

func NewService(repo Repository, mailer Mailer, cfg *config.Config, log logging.Logger) *Service {
	return &Service{
		repo:       repo,
		mailer:     mailer,
		log:        log.With("component", "users"),
		jwtSecret:  []byte(cfg.SecretKey),
		accessTTL:  cfg.AccessTokenValidityDuration,
		refreshTTL: cfg.RefreshTokenValidityDuration,
		codeTTL:    cfg.VerificationCodeValidityDuration,
		now:        time.Now,
		pending:    make(map[string]*pendingRegistration),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register parks the form and mails a verification code. No account exists
// until VerifyEmail succeeds; registering again replaces the pending form.
func (s *Service) Register(ctx context.Context, form Registration) error {
	email := normalizeEmail(form.Email)

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, common.ErrNotFound) {
		return err
	}

	form.StudentID = strings.TrimSpace(form.StudentID)
	if form.StudentID != "" {
		taken, err := s.repo.StudentIDTaken(ctx, form.StudentID)
		if err != nil {
			return err
		}
		if taken {
			return ErrStudentIDTaken
		}
	}

	hashed, err := auth.HashPassword(form.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	form.Password = ""
	form.Email = email

	code, err := common.MakeRandDigits(codeLength)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pending[email] = &pendingRegistration{
		form:           form,
		hashedPassword: hashed,
		code:           code,
		expiresAt:      s.now().Add(s.codeTTL),
	}
	s.mu.Unlock()

	s.sendCode(ctx, email, code)
	return nil
}

func (s *Service) sendCode(ctx context.Context, email, code string) {
	if err := s.mailer.SendVerificationCode(ctx, email, code); err != nil {
		s.log.Warn(ctx, "failed to send verification email", "email", email, "error", err)
	}
}

// VerifyEmail checks code against the pending registration and creates the
// account. The pending entry is consumed on success and on expiry; it
// survives a failed account write so the same code can be retried.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (*User, *TokenPair, error) {
	email = normalizeEmail(email)

	s.mu.Lock()
	p, ok := s.pending[email]
	if ok && s.now().After(p.expiresAt) {
		delete(s.pending, email)
		ok = false
	}
	if !ok || p.code != code {
		s.mu.Unlock()
		return nil, nil, ErrInvalidCode
	}
	s.mu.Unlock()

	now := s.now().UTC()
	user := &User{
		ID:             uuid.NewString(),
		Email:          email,
		HashedPassword: p.hashedPassword,
		Name:           p.form.Name,
		StudentID:      p.form.StudentID,
		StudyInterests: []string{},
		IsVerified:     true,
		Friends:        []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, common.ErrConflict) {
			s.dropPending(email, p)
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, err
	}
	s.dropPending(email, p)

	tokens, err := s.issue(email)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info(ctx, "user verified", "user_id", user.ID)
	return user, tokens, nil
}

// dropPending removes p unless a newer registration replaced it.
func (s *Service) dropPending(email string, p *pendingRegistration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[email] == p {
		delete(s.pending, email)
	}
}

// ResendVerification issues a new code for a pending registration.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	if u, err := s.repo.GetByEmail(ctx, email); err == nil {
		if u.IsVerified {
			return ErrAlreadyVerified
		}
	} else if !errors.Is(err, common.ErrNotFound) {
		return err
	}

	code, err := common.MakeRandDigits(codeLength)
	if err != nil {
		return err
	}

	s.mu.Lock()
	p, ok := s.pending[email]
	if ok {
		p.code = code
		p.expiresAt = s.now().Add(s.codeTTL)
	}
	s.mu.Unlock()
	if !ok {
		return common.ErrNotFound
	}

	s.sendCode(ctx, email, code)
	return nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = normalizeEmail(email)

	user, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, common.ErrNotFound) {
		if s.pendingPasswordMatches(email, password) {
			return nil, ErrNotVerified
		}
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(user.HashedPassword, password) {
		return nil, ErrBadCredentials
	}
	if !user.IsVerified {
		return nil, ErrNotVerified
	}
	return s.issue(user.Email)
}

func (s *Service) pendingPasswordMatches(email, password string) bool {
	s.mu.Lock()
	p, ok := s.pending[email]
	s.mu.Unlock()
	return ok && auth.CheckPassword(p.hashedPassword, password)
}

// Refresh trades a refresh token for a new pair. Both tokens are stateless,
// so the old refresh token stays valid until it expires.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	email, err := auth.GetEmailFromToken(refreshToken, auth.TypeRefresh, s.jwtSecret)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if _, err := s.repo.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return s.issue(email)
}

// Authenticate resolves an access token to its user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*User, error) {
	email, err := auth.GetEmailFromToken(accessToken, auth.TypeAccess, s.jwtSecret)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, user *User, upd ProfileUpdate) (*User, error) {
	updated := user.clone()
	upd.apply(updated)
	updated.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) issue(email string) (*TokenPair, error) {
	access, err := auth.GenerateToken(email, auth.TypeAccess, s.jwtSecret, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}
	refresh, err := auth.GenerateToken(email, auth.TypeRefresh, s.jwtSecret, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}
