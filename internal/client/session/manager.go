// Package session drives the client's authentication state.
//
// The Manager is the only component that starts or ends a session in the
// credential store. Operations that talk to the server run without holding
// locks; their results are committed only if no logout or expiry happened
// in the meantime.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/peerlearn/internal/client/credentials"
	"github.com/dmitrijs2005/peerlearn/internal/client/models"
	"github.com/dmitrijs2005/peerlearn/internal/client/pipeline"
	"github.com/dmitrijs2005/peerlearn/internal/common"
	"github.com/dmitrijs2005/peerlearn/internal/logging"
	"github.com/dmitrijs2005/peerlearn/internal/validation"
)

var (
	ErrInvalidTransition = errors.New("operation not allowed in current session state")
	// ErrSuperseded means a logout or expiry ended the session while the
	// operation was waiting on the server; its result was dropped.
	ErrSuperseded = errors.New("session changed during operation")
)

const logoutTimeout = 5 * time.Second

// API is the subset of the auth endpoints the manager drives.
type API interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.TokenPair, error)
	Me(ctx context.Context) (*models.User, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error)
	VerifyEmail(ctx context.Context, req models.VerifyEmailRequest) (*models.VerifyEmailResponse, error)
	UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (*models.User, error)
}

type Manager struct {
	api         API
	store       *credentials.Store
	log         logging.Logger
	onLoggedOut func(ctx context.Context)

	mu      sync.Mutex
	state   State
	epoch   uint64
	subs    map[int]func(State)
	nextSub int
	queued  []State

	// held while subscribers run so they observe commits in order
	notifyMu sync.Mutex
}

type Option func(*Manager)

// WithLoggedOutHook runs fn after the session expired on its own, e.g. to
// send the user back to the login prompt.
func WithLoggedOutHook(fn func(ctx context.Context)) Option {
	return func(m *Manager) { m.onLoggedOut = fn }
}

func NewManager(api API, store *credentials.Store, log logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		api:   api,
		store: store,
		log:   log.With("component", "session"),
		state: State{Status: StatusAuthenticating},
		subs:  make(map[int]func(State)),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers fn for every committed state, delivered synchronously
// in commit order. fn must not call state-changing Manager methods.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Init restores a persisted session. A cached user is shown right away and
// then confirmed with GET /auth/me; if that fails the store is cleared.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if s := m.state.Status; !evInit.allowedFrom(s) {
		m.mu.Unlock()
		return invalid(evInit, s)
	}
	ep := m.epoch
	cred := m.store.Get(ctx)
	if !cred.Authenticated() {
		m.set(State{Status: StatusAnonymous})
		m.unlock()
		return nil
	}
	if cred.User != nil {
		m.set(State{Status: StatusAuthenticated, User: cred.User})
	}
	m.unlock()

	u, err := m.api.Me(ctx)
	if err != nil {
		m.log.Warn(ctx, "stored session rejected", "error", err)
		m.fail(ctx, ep, err, true)
		// error is transient; with nothing stored the resting state is anonymous
		_ = m.whileCurrent(ep, func() error {
			m.set(State{Status: StatusAnonymous, Err: m.state.Err})
			return nil
		})
		return err
	}
	return m.authenticated(ctx, ep, u, false)
}

// Login authenticates with email and password, stores the token pair and
// loads the user.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	req := models.LoginRequest{Email: email, Password: password}
	ep, err := m.begin(ctx, evLogin, req)
	if err != nil {
		return err
	}

	pair, err := m.api.Login(ctx, req)
	if err != nil {
		m.fail(ctx, ep, err, true)
		return err
	}

	err = m.whileCurrent(ep, func() error {
		return m.store.Set(ctx, credentials.Credential{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
	})
	if err != nil {
		m.fail(ctx, ep, err, true)
		return err
	}

	u, err := m.api.Me(ctx)
	if err != nil {
		m.fail(ctx, ep, err, true)
		return err
	}
	return m.authenticated(ctx, ep, u, false)
}

// Register starts sign-up. It never authenticates: on success the state
// returns to anonymous with PendingEmail set until VerifyEmail.
func (m *Manager) Register(ctx context.Context, req models.RegisterRequest) error {
	ep, err := m.begin(ctx, evRegister, req)
	if err != nil {
		return err
	}

	resp, err := m.api.Register(ctx, req)
	if err != nil {
		m.fail(ctx, ep, err, false)
		return err
	}

	pending := resp.Email
	if pending == "" {
		pending = req.Email
	}
	return m.whileCurrent(ep, func() error {
		m.set(State{Status: StatusAnonymous, PendingEmail: pending})
		return nil
	})
}

// VerifyEmail submits the emailed code. An empty email means the address
// from the last Register.
func (m *Manager) VerifyEmail(ctx context.Context, email, code string) error {
	if email == "" {
		email = m.State().PendingEmail
	}
	req := models.VerifyEmailRequest{Email: email, Code: code}
	ep, err := m.begin(ctx, evVerify, req)
	if err != nil {
		return err
	}

	resp, err := m.api.VerifyEmail(ctx, req)
	if err != nil {
		m.fail(ctx, ep, err, false)
		return err
	}

	cred := credentials.Credential{
		AccessToken:  resp.Tokens.AccessToken,
		RefreshToken: resp.Tokens.RefreshToken,
		User:         resp.User,
	}
	if err := m.whileCurrent(ep, func() error { return m.store.Set(ctx, cred) }); err != nil {
		m.fail(ctx, ep, err, true)
		return err
	}
	return m.authenticated(ctx, ep, resp.User, false)
}

// Logout notifies the server on a best-effort basis and always clears the
// local session.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.epoch++
	m.mu.Unlock()

	if m.store.Get(ctx).Authenticated() {
		lctx, cancel := context.WithTimeout(ctx, logoutTimeout)
		if err := m.api.Logout(lctx); err != nil {
			m.log.Info(ctx, "server logout failed, clearing locally", "error", err)
		}
		cancel()
	}

	clearErr := m.store.Clear(ctx)
	if clearErr != nil {
		m.log.Error(ctx, "clearing credentials on logout failed", "error", clearErr)
	}

	m.mu.Lock()
	m.epoch++
	m.set(State{Status: StatusAnonymous})
	m.unlock()
	return clearErr
}

// Expire moves the session to anonymous after an unrecoverable refresh
// failure. The refresh coordinator has already cleared the store under its
// generation guard, so Expire does not touch it.
func (m *Manager) Expire(ctx context.Context) {
	m.mu.Lock()
	m.epoch++
	if m.state.Status == StatusAnonymous && m.state.User == nil {
		m.mu.Unlock()
		return
	}
	m.log.Info(ctx, "session expired")
	m.set(State{Status: StatusAnonymous, Err: pipeline.Describe(common.ErrSessionExpired)})
	m.unlock()

	if m.onLoggedOut != nil {
		m.onLoggedOut(ctx)
	}
}

// UpdateProfile sends a partial update and merges the result into the
// current user. A failure is recorded in Err; the session stays
// authenticated.
func (m *Manager) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) error {
	m.mu.Lock()
	if s := m.state.Status; !evProfile.allowedFrom(s) {
		m.mu.Unlock()
		return invalid(evProfile, s)
	}
	ep := m.epoch

	if err := validation.Struct(upd); err != nil {
		desc := validationDescriptor(err)
		m.set(State{Status: StatusAuthenticated, User: m.state.User, Err: desc})
		m.unlock()
		return fmt.Errorf("%w: %s", common.ErrValidation, desc.Message)
	}
	m.mu.Unlock()

	u, err := m.api.UpdateProfile(ctx, upd)
	if err != nil {
		_ = m.whileCurrent(ep, func() error {
			if m.state.Status != StatusAuthenticated {
				return ErrSuperseded
			}
			m.set(State{Status: StatusAuthenticated, User: m.state.User, Err: pipeline.Describe(err)})
			return nil
		})
		return err
	}
	return m.authenticated(ctx, ep, u, true)
}

// begin validates input and moves to authenticating.
func (m *Manager) begin(ctx context.Context, ev event, input any) (uint64, error) {
	m.mu.Lock()
	s := m.state.Status
	if !ev.allowedFrom(s) {
		m.mu.Unlock()
		return 0, invalid(ev, s)
	}
	pending := m.state.PendingEmail
	m.epoch++
	ep := m.epoch

	if err := validation.Struct(input); err != nil {
		desc := validationDescriptor(err)
		m.set(State{Status: StatusError, Err: desc, PendingEmail: pending})
		m.unlock()
		return 0, fmt.Errorf("%w: %s", common.ErrValidation, desc.Message)
	}

	m.log.Debug(ctx, "session event", "event", string(ev))
	m.set(State{Status: StatusAuthenticating, PendingEmail: pending})
	m.unlock()
	return ep, nil
}

// whileCurrent runs fn under the state lock if no logout, expiry or newer
// operation happened since ep.
func (m *Manager) whileCurrent(ep uint64, fn func() error) error {
	m.mu.Lock()
	defer m.unlock()
	if ep != m.epoch {
		return ErrSuperseded
	}
	return fn()
}

// authenticated commits u as the signed-in user. With merge, u is overlaid
// on the current user, and the commit requires the session to still be
// authenticated.
func (m *Manager) authenticated(ctx context.Context, ep uint64, u *models.User, merge bool) error {
	if u == nil {
		err := errors.New("server returned no user")
		m.fail(ctx, ep, err, !merge)
		return err
	}
	return m.whileCurrent(ep, func() error {
		if merge {
			if m.state.Status != StatusAuthenticated {
				return ErrSuperseded
			}
			u = m.state.User.Merge(u)
		}
		if err := m.store.SetUser(ctx, u); err != nil {
			m.log.Warn(ctx, "caching user failed", "error", err)
		}
		m.set(State{Status: StatusAuthenticated, User: u})
		return nil
	})
}

// fail records err as the error state. clearStore drops any credential the
// failed operation may have written.
func (m *Manager) fail(ctx context.Context, ep uint64, err error, clearStore bool) {
	_ = m.whileCurrent(ep, func() error {
		if clearStore {
			if cerr := m.store.Clear(ctx); cerr != nil {
				m.log.Error(ctx, "clearing credentials failed", "error", cerr)
			}
		}
		m.set(State{Status: StatusError, Err: pipeline.Describe(err), PendingEmail: m.state.PendingEmail})
		return nil
	})
}

func invalid(ev event, s Status) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, ev, s)
}

// set replaces the state and queues it for subscribers. m.mu must be held.
func (m *Manager) set(s State) {
	m.state = s.clone()
	m.queued = append(m.queued, s.clone())
}

// unlock releases m.mu and delivers queued states in order.
func (m *Manager) unlock() {
	queued := m.queued
	m.queued = nil
	if len(queued) == 0 {
		m.mu.Unlock()
		return
	}
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()

	for _, s := range queued {
		for _, fn := range subs {
			fn(s.clone())
		}
	}
}

func validationDescriptor(err error) *pipeline.ErrorDescriptor {
	fields := validation.Fields(err)
	if fields == nil {
		return &pipeline.ErrorDescriptor{Message: err.Error()}
	}
	d := &pipeline.ErrorDescriptor{Message: validation.Message(fields)}
	for _, f := range fields {
		d.Fields = append(d.Fields, pipeline.FieldError{Field: f.Field, Message: f.Message, Type: f.Tag})
	}
	return d
}
