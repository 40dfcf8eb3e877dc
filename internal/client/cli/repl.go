package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Verify(ctx context.Context) error
	Resend(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Me(ctx context.Context) error
	Profile(ctx context.Context) error
	User(ctx context.Context, args []string) error
	Get(ctx context.Context, args []string) error
	Download(ctx context.Context, args []string) error
	Ping(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the PeerLearn CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. Commands that prompt for more input read
// from the same reader. The loop exits on EOF, when ctx ends, or when the
// user types "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help              show available commands
//	  - register          create an account
//	  - verify            confirm the emailed code
//	  - resend            send a new code
//	  - login             authenticate
//	  - ping              check the server
//	  - exit | quit       leave the program
//
//	Logged in:
//	  - me                show your profile
//	  - profile           edit your profile
//	  - user <id>         show another user
//	  - get <path>        raw authenticated GET
//	  - download <p> <f>  save a response to a file
//	  - ping              check the server
//	  - logout            log out
//	  - exit | quit       leave the program
//
// Any errors returned by command handlers are ignored here; handlers
// print their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for ctx.Err() == nil {
		printlnFn(fmt.Sprintf("pl %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: me, profile, user, get, download, ping, logout, exit")
			} else {
				printlnFn("Available commands: register, verify, resend, login, ping, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "verify":
			_ = a.Verify(ctx)

		case "resend":
			_ = a.Resend(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "me":
			_ = a.Me(ctx)

		case "profile":
			_ = a.Profile(ctx)

		case "user":
			_ = a.User(ctx, args)

		case "get":
			_ = a.Get(ctx, args)

		case "download":
			_ = a.Download(ctx, args)

		case "ping":
			_ = a.Ping(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
