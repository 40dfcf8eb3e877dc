package cli

import (
	"fmt"
	"io"

	"github.com/dmitrijs2005/peerlearn/internal/client/pipeline"
	"github.com/dmitrijs2005/peerlearn/internal/client/session"
)

func (a *App) getStatus() string {
	s := ""
	st := a.session.State()
	switch {
	case st.User != nil:
		s = st.User.Email + " "
	case st.PendingEmail != "":
		s = "pending " + st.PendingEmail + " "
	}
	if m := a.mode(); m != "" {
		s += string(m)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// printTransition announces sign-ins and prints the failure attached to any
// committed state.
func (a *App) printTransition() func(session.State) {
	last := session.StatusAuthenticating
	return func(st session.State) {
		defer func() { last = st.Status }()

		if st.Status == session.StatusAuthenticated && last != session.StatusAuthenticated && st.User != nil {
			fmt.Fprintf(a.out, "Signed in as %s\n", st.User.Email)
		}
		printDescriptor(a.out, st.Err)
	}
}

func printDescriptor(w io.Writer, d *pipeline.ErrorDescriptor) {
	if d == nil {
		return
	}
	fmt.Fprintf(w, "Error: %s\n", d.Message)
	for _, f := range d.Fields {
		fmt.Fprintf(w, "  %s: %s\n", f.Field, f.Message)
	}
}
