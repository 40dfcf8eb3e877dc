// Package credentials persists the session credential (access token,
// refresh token and cached user) and serializes every change to it.
//
// The Store is the only writer of the three persisted entries. Each write
// that replaces or removes tokens advances a generation counter; token
// rotation after a refresh is a compare-and-set against the generation the
// refresh started from, so a logout (or a new login) that happens while a
// refresh is in flight always wins.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/peerlearn/internal/client/models"
	"github.com/dmitrijs2005/peerlearn/internal/common"
	"github.com/dmitrijs2005/peerlearn/internal/logging"
)

// ErrIncompleteCredential is returned by writes that would leave only one of
// the two tokens populated.
var ErrIncompleteCredential = errors.New("access and refresh tokens must be set together")

var allKeys = []string{common.KeyAccessToken, common.KeyRefreshToken, common.KeyUser}

// Credential is the persisted session. Empty strings mean absent.
type Credential struct {
	AccessToken  string
	RefreshToken string
	User         *models.User
}

// Authenticated reports whether both tokens are present.
func (c Credential) Authenticated() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// Backend is durable string-keyed storage. Save must apply all entries
// atomically; a nil value deletes the key. Delete must be atomic too and
// must not fail on missing keys.
type Backend interface {
	Load(ctx context.Context, keys []string) (map[string][]byte, error)
	Save(ctx context.Context, entries map[string][]byte) error
	Delete(ctx context.Context, keys []string) error
}

type Store struct {
	mu      sync.RWMutex
	backend Backend
	gen     uint64
	log     logging.Logger
}

func NewStore(backend Backend, log logging.Logger) *Store {
	return &Store{backend: backend, log: log.With("component", "credentials")}
}

// Get returns the current credential. It never fails: unreadable or
// inconsistent state is logged and reported as absent.
func (s *Store) Get(ctx context.Context) Credential {
	c, _ := s.Snapshot(ctx)
	return c
}

// Snapshot returns the current credential together with its generation.
func (s *Store) Snapshot(ctx context.Context) (Credential, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(ctx), s.gen
}

// Generation returns the current write generation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Set replaces the whole credential in one atomic write.
func (s *Store) Set(ctx context.Context, c Credential) error {
	if !c.Authenticated() {
		return ErrIncompleteCredential
	}
	entries, err := encode(c.AccessToken, c.RefreshToken)
	if err != nil {
		return err
	}
	user, err := encodeUser(c.User)
	if err != nil {
		return err
	}
	entries[common.KeyUser] = user

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Save(ctx, entries); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	s.gen++
	return nil
}

// SetTokens replaces both tokens and keeps the cached user.
func (s *Store) SetTokens(ctx context.Context, accessToken, refreshToken string) error {
	entries, err := encode(accessToken, refreshToken)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Save(ctx, entries); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	s.gen++
	return nil
}

// Rotate is SetTokens guarded by the generation observed when the refresh
// started. It returns common.ErrStaleGeneration, writing nothing, when the
// credential was replaced or cleared in between.
func (s *Store) Rotate(ctx context.Context, gen uint64, accessToken, refreshToken string) error {
	entries, err := encode(accessToken, refreshToken)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return common.ErrStaleGeneration
	}
	if err := s.backend.Save(ctx, entries); err != nil {
		return fmt.Errorf("rotate tokens: %w", err)
	}
	s.gen++
	return nil
}

// SetUser replaces the cached user. It fails with common.ErrNoCredentials
// when no session is stored, so a late profile response cannot resurrect a
// cleared session.
func (s *Store) SetUser(ctx context.Context, u *models.User) error {
	value, err := encodeUser(u)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.load(ctx).Authenticated() {
		return common.ErrNoCredentials
	}
	if err := s.backend.Save(ctx, map[string][]byte{common.KeyUser: value}); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// Clear removes all entries. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(ctx)
}

// ClearIf clears only when gen is still current and reports whether it did.
func (s *Store) ClearIf(ctx context.Context, gen uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false, nil
	}
	if err := s.clearLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) clearLocked(ctx context.Context) error {
	if err := s.backend.Delete(ctx, allKeys); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	s.gen++
	return nil
}

func (s *Store) load(ctx context.Context) Credential {
	values, err := s.backend.Load(ctx, allKeys)
	if err != nil {
		s.log.Error(ctx, "credential read failed", "error", err)
		return Credential{}
	}

	c := Credential{
		AccessToken:  string(values[common.KeyAccessToken]),
		RefreshToken: string(values[common.KeyRefreshToken]),
	}
	if !c.Authenticated() {
		if c.AccessToken != "" || c.RefreshToken != "" {
			s.log.Warn(ctx, "ignoring half-populated credential")
		}
		return Credential{}
	}

	if raw := values[common.KeyUser]; len(raw) > 0 {
		var u models.User
		if err := json.Unmarshal(raw, &u); err != nil {
			s.log.Warn(ctx, "cached user unreadable", "error", err)
		} else {
			c.User = &u
		}
	}
	return c
}

func encode(accessToken, refreshToken string) (map[string][]byte, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, ErrIncompleteCredential
	}
	return map[string][]byte{
		common.KeyAccessToken:  []byte(accessToken),
		common.KeyRefreshToken: []byte(refreshToken),
	}, nil
}

func encodeUser(u *models.User) ([]byte, error) {
	if u == nil {
		return nil, nil
	}
	b, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encode user: %w", err)
	}
	return b, nil
}
