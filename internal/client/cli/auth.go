package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/peerlearn/internal/client/models"
	"github.com/dmitrijs2005/peerlearn/internal/client/session"
	"github.com/dmitrijs2005/peerlearn/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// report prints errors the session state does not already show. Failures
// that reached the state machine are rendered by printTransition.
func (a *App) report(err error) error {
	switch {
	case err == nil:
	case errors.Is(err, session.ErrInvalidTransition):
		fmt.Fprintln(a.out, "Not available right now:", err)
	case errors.Is(err, session.ErrSuperseded):
		fmt.Fprintln(a.out, "Cancelled by a later action.")
	}
	return err
}

// Register prompts for the sign-up fields and asks the server to send a
// verification code. The password byte slice is wiped before returning.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	name, err := getSimpleText(a.reader, "Enter your name", a.out)
	if err != nil {
		return err
	}
	studentID, err := getSimpleText(a.reader, "Enter student id (optional)", a.out)
	if err != nil {
		return err
	}

	req := models.RegisterRequest{Email: email, Password: string(password), Name: name, StudentID: studentID}
	if err := a.report(a.session.Register(ctx, req)); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "A verification code was sent to %s. Run 'verify' to finish.\n", a.session.State().PendingEmail)
	return nil
}

// Verify submits the emailed code. The email from the last register is
// offered as the default.
func (a *App) Verify(ctx context.Context) error {
	pending := a.session.State().PendingEmail
	prompt := "Enter email"
	if pending != "" {
		prompt = fmt.Sprintf("Enter email [%s]", pending)
	}
	email, err := getSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return err
	}
	code, err := getSimpleText(a.reader, "Enter the 6-digit code", a.out)
	if err != nil {
		return err
	}
	return a.report(a.session.VerifyEmail(ctx, email, code))
}

// Resend asks for a new verification code.
func (a *App) Resend(ctx context.Context) error {
	email := a.session.State().PendingEmail
	if email == "" {
		var err error
		if email, err = getSimpleText(a.reader, "Enter email", a.out); err != nil {
			return err
		}
	}
	resp, err := a.account.ResendVerification(ctx, email)
	if err != nil {
		fmt.Fprintln(a.out, "Resend failed:", err)
		return err
	}
	fmt.Fprintln(a.out, resp.Message)
	return nil
}

// Login prompts for credentials and authenticates. The password is wiped
// before returning.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	return a.report(a.session.Login(ctx, email, string(password)))
}

// Logout ends the session. Local credentials are removed even when the
// server cannot be reached.
func (a *App) Logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		fmt.Fprintln(a.out, "Logout failed:", err)
		return err
	}
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}
