package credentials

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/peerlearn/internal/client/models"
	"github.com/dmitrijs2005/peerlearn/internal/common"
	"github.com/dmitrijs2005/peerlearn/internal/logging"
)

type backendFactory func(t *testing.T) Backend

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"memory": func(t *testing.T) Backend { return NewMemoryBackend() },
		"sqlite": func(t *testing.T) Backend {
			b, err := OpenSQLite(context.Background(), ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.Close() })
			return b
		},
		"redis": func(t *testing.T) Backend {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return NewRedisBackend(rdb, "test:")
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s *Store, b Backend)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			b := factory(t)
			fn(t, NewStore(b, logging.Nop()), b)
		})
	}
}

func alice() *models.User {
	return &models.User{ID: "1", Email: "a@x.io", Name: "Alice", IsVerified: true}
}

func TestStore_SetThenGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ Backend) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, Credential{AccessToken: "A1", RefreshToken: "R1", User: alice()}))

		c := s.Get(ctx)
		assert.Equal(t, "A1", c.AccessToken)
		assert.Equal(t, "R1", c.RefreshToken)
		require.NotNil(t, c.User)
		assert.Equal(t, models.ID("1"), c.User.ID)
		assert.Equal(t, "Alice", c.User.Name)
	})
}

func TestStore_EmptyReadsAsAbsent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ Backend) {
		c := s.Get(context.Background())
		assert.False(t, c.Authenticated())
		assert.Nil(t, c.User)
	})
}

func TestStore_SetRejectsHalfCredential(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ Backend) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, Credential{AccessToken: "A1", RefreshToken: "R1"}))
		gen := s.Generation()

		err := s.Set(ctx, Credential{AccessToken: "A2"})
		require.ErrorIs(t, err, ErrIncompleteCredential)
		err = s.SetTokens(ctx, "", "R2")
		require.ErrorIs(t, err, ErrIncompleteCredential)

		assert.Equal(t, gen, s.Generation())
		assert.Equal(t, "A1", s.Get(ctx).AccessToken)
	})
}

func TestStore_HalfCredentialInBackendReadsAsAbsent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, b Backend) {
		ctx := context.Background()
		require.NoError(t, b.Save(ctx, map[string][]byte{common.KeyAccessToken: []byte("orphan")}))

		c := s.Get(ctx)
		assert.False(t, c.Authenticated())
		assert.Empty(t, c.AccessToken)
	})
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ Backend) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, Credential{AccessToken: "A1", RefreshToken: "R1", User: alice()}))

		require.NoError(t, s.Clear(ctx))
		require.NoError(t, s.Clear(ctx))

		c := s.Get(ctx)
		assert.False(t, c.Authenticated())
		assert.Nil(t, c.User)
	})
}

func TestStore_SetTokensKeepsUser(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ Backend) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, Credential{AccessToken: "A1", RefreshToken: "R1", User: alice()}))
		require.NoError(t, s.SetTokens(ctx, "A2", "R2"))

		c := s.Get(ctx)
		assert.Equal(t, "A2", c.AccessToken)
		assert.Equal(t, "R2", c.RefreshToken)
		require.NotNil(t, c.User)
		assert.Equal(t, "Alice", c.User.Name)
	})
}

func TestStore_SetWithoutUserDropsCachedUser(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ Backend) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, Credential{AccessToken: "A1", RefreshToken: "R1", User: alice()}))
		require.NoError(t, s.Set(ctx, Credential{AccessToken: "A2", RefreshToken: "R2"}))

		assert.Nil(t, s.Get(ctx).User)
	})
}

func TestStore_RotateWithCurrentGeneration(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ Backend) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, Credential{AccessToken: "A1", RefreshToken: "R1", User: alice()}))

		_, gen := s.Snapshot(ctx)
		require.NoError(t, s.Rotate(ctx, gen, "A2", "R2"))

		c := s.Get(ctx)
		assert.Equal(t, "A2", c.AccessToken)
		assert.Equal(t, "R2", c.RefreshToken)
		assert.NotNil(t, c.User)
		assert.Greater(t, s.Generation(), gen)
	})
}

func TestStore_RotateAfterClearIsDiscarded(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ Backend) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, Credential{AccessToken: "A1", RefreshToken: "R1"}))
		_, gen := s.Snapshot(ctx)

		require.NoError(t, s.Clear(ctx))

		err := s.Rotate(ctx, gen, "A2", "R2")
		require.ErrorIs(t, err, common.ErrStaleGeneration)
		assert.False(t, s.Get(ctx).Authenticated())
	})
}

func TestStore_ClearIf(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ Backend) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, Credential{AccessToken: "A1", RefreshToken: "R1"}))
		_, stale := s.Snapshot(ctx)
		require.NoError(t, s.Set(ctx, Credential{AccessToken: "A9", RefreshToken: "R9"}))

		cleared, err := s.ClearIf(ctx, stale)
		require.NoError(t, err)
		assert.False(t, cleared)
		assert.Equal(t, "A9", s.Get(ctx).AccessToken)

		_, current := s.Snapshot(ctx)
		cleared, err = s.ClearIf(ctx, current)
		require.NoError(t, err)
		assert.True(t, cleared)
		assert.False(t, s.Get(ctx).Authenticated())
	})
}

func TestStore_SetUserRequiresSession(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ Backend) {
		ctx := context.Background()
		err := s.SetUser(ctx, alice())
		require.ErrorIs(t, err, common.ErrNoCredentials)
		assert.Nil(t, s.Get(ctx).User)

		require.NoError(t, s.Set(ctx, Credential{AccessToken: "A1", RefreshToken: "R1"}))
		gen := s.Generation()
		require.NoError(t, s.SetUser(ctx, alice()))
		assert.Equal(t, "Alice", s.Get(ctx).User.Name)
		assert.Equal(t, gen, s.Generation())
	})
}

func TestStore_ConcurrentReadersNeverSeeMixedPair(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ Backend) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, Credential{AccessToken: "A0", RefreshToken: "R0"}))

		var wg sync.WaitGroup
		mixed := make(chan string, 100)
		done := make(chan struct{})

		for r := 0; r < 4; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-done:
						return
					default:
					}
					c := s.Get(ctx)
					if strings.TrimPrefix(c.AccessToken, "A") != strings.TrimPrefix(c.RefreshToken, "R") {
						select {
						case mixed <- c.AccessToken + "/" + c.RefreshToken:
						default:
						}
					}
				}
			}()
		}

		for i := 1; i <= 50; i++ {
			require.NoError(t, s.SetTokens(ctx, fmt.Sprintf("A%d", i), fmt.Sprintf("R%d", i)))
		}
		close(done)
		wg.Wait()
		close(mixed)

		for m := range mixed {
			t.Errorf("observed mixed credential %s", m)
		}
	})
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.db")

	b, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, NewStore(b, logging.Nop()).Set(ctx, Credential{AccessToken: "A1", RefreshToken: "R1", User: alice()}))
	require.NoError(t, b.Close())

	b, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer b.Close()

	c := NewStore(b, logging.Nop()).Get(ctx)
	assert.Equal(t, "A1", c.AccessToken)
	assert.Equal(t, "R1", c.RefreshToken)
	require.NotNil(t, c.User)
	assert.Equal(t, "a@x.io", c.User.Email)
}

func TestRedis_UsesKeyPrefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewStore(NewRedisBackend(rdb, "peerlearn:"), logging.Nop())
	require.NoError(t, s.Set(ctx, Credential{AccessToken: "A1", RefreshToken: "R1"}))

	v, err := mr.Get("peerlearn:" + common.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "A1", v)
	assert.False(t, mr.Exists("peerlearn:"+common.KeyUser))

	require.NoError(t, s.Clear(ctx))
	assert.False(t, mr.Exists("peerlearn:"+common.KeyAccessToken))
}

type failingBackend struct{ Backend }

func (failingBackend) Load(context.Context, []string) (map[string][]byte, error) {
	return nil, fmt.Errorf("disk on fire")
}

func TestStore_ReadFailureReadsAsAbsent(t *testing.T) {
	s := NewStore(failingBackend{NewMemoryBackend()}, logging.Nop())
	c := s.Get(context.Background())
	assert.False(t, c.Authenticated())
}
