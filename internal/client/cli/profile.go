package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/peerlearn/internal/client/models"
	"github.com/dmitrijs2005/peerlearn/internal/common"
)

// Me fetches the current user from the server and prints it.
func (a *App) Me(ctx context.Context) error {
	u, err := a.account.Me(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "Could not load profile:", err)
		return err
	}
	return a.printJSON(u)
}

// User shows another user's public profile: user <id>.
func (a *App) User(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: user <id>")
		return nil
	}
	u, err := a.account.User(ctx, models.ID(args[0]))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			fmt.Fprintln(a.out, "No such user.")
		} else {
			fmt.Fprintln(a.out, "Could not load user:", err)
		}
		return err
	}
	return a.printJSON(u)
}

// Profile prompts for the editable fields. An empty answer leaves the field
// unchanged.
func (a *App) Profile(ctx context.Context) error {
	var upd models.ProfileUpdate

	name, err := getSimpleText(a.reader, "Name (empty to keep)", a.out)
	if err != nil {
		return err
	}
	if name != "" {
		upd.Name = &name
	}

	bio, err := GetMultiline(a.reader, "Bio (empty to keep)", a.out)
	if err != nil {
		return err
	}
	if bio != "" {
		upd.Bio = &bio
	}

	interests, err := GetLines(a.reader, "Study interests, one per line", a.out)
	if err != nil {
		return err
	}
	for _, i := range interests {
		upd.StudyInterests = append(upd.StudyInterests, strings.TrimSpace(i))
	}

	streaks, err := getSimpleText(a.reader, "Learning streak days (empty to keep)", a.out)
	if err != nil {
		return err
	}
	if streaks != "" {
		n, err := strconv.Atoi(streaks)
		if err != nil {
			fmt.Fprintln(a.out, "Learning streak must be a number.")
			return err
		}
		upd.LearningStreaks = &n
	}

	if upd.Empty() {
		fmt.Fprintln(a.out, "Nothing to update.")
		return nil
	}
	if err := a.report(a.session.UpdateProfile(ctx, upd)); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Profile updated.")
	return nil
}

func (a *App) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(b))
	return nil
}
