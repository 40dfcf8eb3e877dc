package session

import (
	"github.com/dmitrijs2005/peerlearn/internal/client/models"
	"github.com/dmitrijs2005/peerlearn/internal/client/pipeline"
)

type Status string

const (
	StatusAnonymous      Status = "anonymous"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	StatusError          Status = "error"
)

// State is what consumers render. User is set exactly when Status is
// authenticated; Err describes the last failure.
type State struct {
	Status       Status
	User         *models.User
	Err          *pipeline.ErrorDescriptor
	PendingEmail string
}

func (s State) clone() State {
	s.User = s.User.Clone()
	if s.Err != nil {
		e := *s.Err
		e.Fields = append([]pipeline.FieldError(nil), s.Err.Fields...)
		s.Err = &e
	}
	return s
}

type event string

const (
	evInit     event = "init"
	evLogin    event = "login"
	evRegister event = "register"
	evVerify   event = "verify_email"
	evProfile  event = "update_profile"
)

// allowed lists the statuses each event may start from. Logout and expiry
// are accepted in every status.
var allowed = map[event][]Status{
	evInit:     {StatusAuthenticating},
	evLogin:    {StatusAnonymous, StatusError},
	evRegister: {StatusAnonymous, StatusError},
	evVerify:   {StatusAnonymous, StatusError},
	evProfile:  {StatusAuthenticated},
}

func (e event) allowedFrom(s Status) bool {
	for _, from := range allowed[e] {
		if from == s {
			return true
		}
	}
	return false
}
