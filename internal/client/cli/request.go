package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/peerlearn/internal/client/pipeline"
)

// Get sends an authenticated GET to any API path and prints the body:
// get <path>.
func (a *App) Get(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: get <path>")
		return nil
	}
	resp, err := a.http.Do(ctx, pipeline.Get(args[0]))
	if err != nil {
		fmt.Fprintln(a.out, "Request failed:", err)
		return err
	}
	if err := resp.Err(); err != nil {
		fmt.Fprintf(a.out, "%d %s\n", resp.Status, pipeline.Describe(err))
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, resp.Body, "", "  ") == nil {
		fmt.Fprintln(a.out, pretty.String())
	} else {
		fmt.Fprintln(a.out, string(resp.Body))
	}
	return nil
}

// Download saves a response body to a file using the long-timeout
// pipeline: download <path> <file>.
func (a *App) Download(ctx context.Context, args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(a.out, "Usage: download <path> <file>")
		return nil
	}
	resp, err := a.bulk.Do(ctx, pipeline.Get(args[0]))
	if err != nil {
		fmt.Fprintln(a.out, "Download failed:", err)
		return err
	}
	if err := resp.Err(); err != nil {
		fmt.Fprintf(a.out, "%d %s\n", resp.Status, pipeline.Describe(err))
		return err
	}
	if err := os.WriteFile(args[1], resp.Body, 0o600); err != nil {
		fmt.Fprintln(a.out, "Write failed:", err)
		return err
	}
	fmt.Fprintf(a.out, "Saved %d bytes to %s\n", len(resp.Body), args[1])
	return nil
}
