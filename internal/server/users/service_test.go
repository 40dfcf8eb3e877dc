package users

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/peerlearn/internal/common"
	"github.com/dmitrijs2005/peerlearn/internal/logging"
	"github.com/dmitrijs2005/peerlearn/internal/server/auth"
	"github.com/dmitrijs2005/peerlearn/internal/server/config"
)

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (m *captureMailer) SendVerificationCode(ctx context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = map[string]string{}
	}
	m.codes[email] = code
	return m.err
}

func (m *captureMailer) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

func newTestService(t *testing.T) (*Service, *captureMailer, *MemoryRepository) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	repo := NewMemoryRepository()
	mailer := &captureMailer{}
	return NewService(repo, mailer, cfg, logging.Nop()), mailer, repo
}

func register(t *testing.T, s *Service, m *captureMailer, email string) (*User, *TokenPair) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, Registration{Email: email, Password: "secret1", Name: "Alice"}))
	u, tokens, err := s.VerifyEmail(ctx, email, m.code(email))
	require.NoError(t, err)
	return u, tokens
}

func TestRegisterAndVerify(t *testing.T) {
	s, m, repo := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, Registration{Email: " Alice@X.io ", Password: "secret1", Name: "Alice", StudentID: "S1"}))
	code := m.code("alice@x.io")
	require.Len(t, code, 6)

	_, err := repo.GetByEmail(ctx, "alice@x.io")
	require.ErrorIs(t, err, common.ErrNotFound, "no account before verification")

	u, tokens, err := s.VerifyEmail(ctx, "alice@x.io", code)
	require.NoError(t, err)
	assert.True(t, u.IsVerified)
	assert.Equal(t, "S1", u.StudentID)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "bearer", tokens.TokenType)

	email, err := auth.GetEmailFromToken(tokens.AccessToken, auth.TypeAccess, []byte("test-secret"))
	require.NoError(t, err)
	assert.Equal(t, "alice@x.io", email)

	// the code is single use
	_, _, err = s.VerifyEmail(ctx, "alice@x.io", code)
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestRegister_Duplicates(t *testing.T) {
	s, m, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, Registration{Email: "a@x.io", Password: "secret1", Name: "A", StudentID: "S1"}))
	_, _, err := s.VerifyEmail(ctx, "a@x.io", m.code("a@x.io"))
	require.NoError(t, err)

	require.ErrorIs(t, s.Register(ctx, Registration{Email: "A@x.io", Password: "secret1", Name: "A"}), ErrEmailTaken)
	require.ErrorIs(t, s.Register(ctx, Registration{Email: "b@x.io", Password: "secret1", Name: "B", StudentID: "S1"}), ErrStudentIDTaken)
}

func TestVerifyEmail_WrongAndExpiredCode(t *testing.T) {
	s, m, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Register(ctx, Registration{Email: "a@x.io", Password: "secret1", Name: "A"}))

	_, _, err := s.VerifyEmail(ctx, "a@x.io", "not-it")
	require.ErrorIs(t, err, ErrInvalidCode)

	now = now.Add(11 * time.Minute)
	_, _, err = s.VerifyEmail(ctx, "a@x.io", m.code("a@x.io"))
	require.ErrorIs(t, err, ErrInvalidCode)

	_, _, err = s.VerifyEmail(ctx, "nobody@x.io", "123456")
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestRegister_MailerFailureIsNotFatal(t *testing.T) {
	s, m, _ := newTestService(t)
	m.err = errors.New("smtp down")

	require.NoError(t, s.Register(context.Background(), Registration{Email: "a@x.io", Password: "secret1", Name: "A"}))
}

func TestResendVerification(t *testing.T) {
	s, m, _ := newTestService(t)
	ctx := context.Background()

	require.ErrorIs(t, s.ResendVerification(ctx, "a@x.io"), common.ErrNotFound)

	require.NoError(t, s.Register(ctx, Registration{Email: "a@x.io", Password: "secret1", Name: "A"}))
	first := m.code("a@x.io")
	require.NoError(t, s.ResendVerification(ctx, "a@x.io"))
	second := m.code("a@x.io")

	if first != second {
		_, _, err := s.VerifyEmail(ctx, "a@x.io", first)
		require.ErrorIs(t, err, ErrInvalidCode)
	}
	_, _, err := s.VerifyEmail(ctx, "a@x.io", second)
	require.NoError(t, err)

	require.ErrorIs(t, s.ResendVerification(ctx, "a@x.io"), ErrAlreadyVerified)
}

func TestLogin(t *testing.T) {
	s, m, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, Registration{Email: "a@x.io", Password: "secret1", Name: "A"}))
	_, err := s.Login(ctx, "a@x.io", "secret1")
	require.ErrorIs(t, err, ErrNotVerified)
	_, err = s.Login(ctx, "a@x.io", "wrong")
	require.ErrorIs(t, err, ErrBadCredentials)

	_, _, err = s.VerifyEmail(ctx, "a@x.io", m.code("a@x.io"))
	require.NoError(t, err)

	tokens, err := s.Login(ctx, "A@x.io", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.RefreshToken)

	_, err = s.Login(ctx, "a@x.io", "wrong")
	require.ErrorIs(t, err, ErrBadCredentials)
	_, err = s.Login(ctx, "ghost@x.io", "secret1")
	require.ErrorIs(t, err, ErrBadCredentials)
}

func TestLogin_UnverifiedStoredUser(t *testing.T) {
	s, _, repo := newTestService(t)
	hash, err := auth.HashPassword("secret1")
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), &User{ID: "u1", Email: "a@x.io", HashedPassword: hash}))

	_, err = s.Login(context.Background(), "a@x.io", "secret1")
	require.ErrorIs(t, err, ErrNotVerified)
}

func TestRefresh(t *testing.T) {
	s, m, _ := newTestService(t)
	ctx := context.Background()
	_, tokens := register(t, s, m, "a@x.io")

	next, err := s.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.AccessToken, next.AccessToken)
	assert.NotEqual(t, tokens.RefreshToken, next.RefreshToken)

	_, err = s.Refresh(ctx, tokens.AccessToken)
	require.ErrorIs(t, err, ErrInvalidCredentials, "access token is not a refresh token")

	orphan, err := auth.GenerateToken("ghost@x.io", auth.TypeRefresh, []byte("test-secret"), time.Minute)
	require.NoError(t, err)
	_, err = s.Refresh(ctx, orphan)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateAndUpdateProfile(t *testing.T) {
	s, m, _ := newTestService(t)
	ctx := context.Background()
	_, tokens := register(t, s, m, "a@x.io")

	u, err := s.Authenticate(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", u.Email)

	_, err = s.Authenticate(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	bio, streak := "graphs", 4
	updated, err := s.UpdateProfile(ctx, u, ProfileUpdate{Bio: &bio, LearningStreaks: &streak, StudyInterests: []string{"math"}})
	require.NoError(t, err)
	assert.Equal(t, "graphs", updated.Bio)
	assert.Equal(t, "Alice", updated.Name)

	stored, err := s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.LearningStreaks)
	assert.Equal(t, []string{"math"}, stored.StudyInterests)
}

type flakyRepository struct {
	*MemoryRepository
	createErr error
}

func (r *flakyRepository) Create(ctx context.Context, user *User) error {
	if err := r.createErr; err != nil {
		r.createErr = nil
		return err
	}
	return r.MemoryRepository.Create(ctx, user)
}

func TestVerifyEmail_FailedCreateKeepsPending(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	repo := &flakyRepository{MemoryRepository: NewMemoryRepository(), createErr: errors.New("connection reset")}
	m := &captureMailer{}
	s := NewService(repo, m, cfg, logging.Nop())
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, Registration{Email: "a@x.io", Password: "secret1", Name: "A"}))
	code := m.code("a@x.io")

	_, _, err := s.VerifyEmail(ctx, "a@x.io", code)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidCode)

	u, tokens, err := s.VerifyEmail(ctx, "a@x.io", code)
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", u.Email)
	assert.NotEmpty(t, tokens.AccessToken)

	_, _, err = s.VerifyEmail(ctx, "a@x.io", code)
	require.ErrorIs(t, err, ErrInvalidCode, "pending entry consumed after success")
}
