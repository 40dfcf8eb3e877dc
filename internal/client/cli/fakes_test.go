package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"google.golang.org/grpc"

	"github.com/dmitrijs2005/peerlearn/internal/client/models"
	"github.com/dmitrijs2005/peerlearn/internal/client/pipeline"
	"github.com/dmitrijs2005/peerlearn/internal/client/session"
	"github.com/dmitrijs2005/peerlearn/internal/logging"
)

type fakeSession struct {
	state session.State

	loginEmail, loginPass string
	loginErr              error

	regReq models.RegisterRequest
	regErr error

	verifyEmail, verifyCode string
	verifyErr               error

	logoutCalled bool
	logoutErr    error

	profile   *models.ProfileUpdate
	updateErr error

	subs []func(session.State)
}

func (f *fakeSession) State() session.State { return f.state }
func (f *fakeSession) Subscribe(fn func(session.State)) func() {
	f.subs = append(f.subs, fn)
	return func() {}
}
func (f *fakeSession) Init(context.Context) error { return nil }
func (f *fakeSession) Login(_ context.Context, email, password string) error {
	f.loginEmail, f.loginPass = email, password
	return f.loginErr
}
func (f *fakeSession) Register(_ context.Context, req models.RegisterRequest) error {
	f.regReq = req
	if f.regErr == nil {
		f.state = session.State{Status: session.StatusAnonymous, PendingEmail: req.Email}
	}
	return f.regErr
}
func (f *fakeSession) VerifyEmail(_ context.Context, email, code string) error {
	f.verifyEmail, f.verifyCode = email, code
	return f.verifyErr
}
func (f *fakeSession) Logout(context.Context) error {
	f.logoutCalled = true
	f.state = session.State{Status: session.StatusAnonymous}
	return f.logoutErr
}
func (f *fakeSession) UpdateProfile(_ context.Context, upd models.ProfileUpdate) error {
	f.profile = &upd
	return f.updateErr
}

type fakeAccount struct {
	me       *models.User
	meErr    error
	user     *models.User
	userID   models.ID
	userErr  error
	resendTo string
	resend   *models.MessageResponse
	resErr   error
}

func (f *fakeAccount) Me(context.Context) (*models.User, error) { return f.me, f.meErr }
func (f *fakeAccount) User(_ context.Context, id models.ID) (*models.User, error) {
	f.userID = id
	return f.user, f.userErr
}
func (f *fakeAccount) ResendVerification(_ context.Context, email string) (*models.MessageResponse, error) {
	f.resendTo = email
	return f.resend, f.resErr
}

type fakeProber struct {
	err   error
	calls int
	opts  int
}

func (f *fakeProber) Ping(_ context.Context, opts ...grpc.CallOption) error {
	f.calls++
	f.opts = len(opts)
	return f.err
}

type fakeRequester struct {
	resp *pipeline.Response
	err  error
	path string
}

func (f *fakeRequester) Do(_ context.Context, req *pipeline.Request) (*pipeline.Response, error) {
	f.path = req.Path
	return f.resp, f.err
}

// stubInputs feeds answers, in order, to getSimpleText and password to
// getPassword.
func stubInputs(t *testing.T, password string, answers ...string) {
	t.Helper()
	origST, origGP := getSimpleText, getPassword
	getSimpleText = func(_ *bufio.Reader, prompt string, _ io.Writer) (string, error) {
		if len(answers) == 0 {
			t.Fatalf("unexpected prompt %q", prompt)
		}
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}
	getPassword = func(_ io.Writer) ([]byte, error) { return []byte(password), nil }
	t.Cleanup(func() {
		getSimpleText = origST
		getPassword = origGP
	})
}

func newTestApp(s *fakeSession, input string) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	return &App{
		session: s,
		account: &fakeAccount{},
		probe:   &fakeProber{},
		log:     logging.Nop(),
		reader:  bufio.NewReader(strings.NewReader(input)),
		out:     &out,
	}, &out
}
