package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
	Territories(ctx context.Context) error
	Recent(ctx context.Context, args []string) error
	Addresses(ctx context.Context, args []string) error
	Houses(ctx context.Context, args []string) error
	Phones(ctx context.Context, args []string) error
	Search(ctx context.Context, args []string) error
	Keys(ctx context.Context) error
	AddVisit(ctx context.Context, args []string) error
	AddCall(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
}

const (
	helpLoggedOut = "Available commands: login [token], status, exit"
	helpLoggedIn  = "Available commands: (t)erritories, recent [-phone], addresses <territory>, " +
		"houses [-q text] [-desc] [-oddeven] <address>, phones [-q text] <phone territory>, " +
		"search [-phone] <text>, keys, visit <house> <symbol> [notes], call <number> [notes], " +
		"delete <table> <id>, sync, status, logout, exit"
)

// runREPL starts a simple read–eval–print loop for the fieldsync CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a' with the remaining tokens as
// arguments. The loop exits on scanner EOF or when the user types "exit" or
// "quit". Command errors are printed and the loop carries on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("fs> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}

		case "login":
			err = a.Login(ctx, args)

		case "status":
			err = a.Status(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			if !a.isLoggedIn() {
				printlnFn("Unknown command:", cmd)
				continue
			}
			err = dispatch(ctx, a, cmd, args)
		}
		if err != nil {
			printlnFn("Error:", err)
		}
	}
}

// dispatch runs the commands available to a logged-in user.
func dispatch(ctx context.Context, a execIface, cmd string, args []string) error {
	switch cmd {
	case "logout":
		return a.Logout(ctx)
	case "sync":
		return a.Sync(ctx)
	case "t", "territories":
		return a.Territories(ctx)
	case "recent":
		return a.Recent(ctx, args)
	case "addresses":
		return a.Addresses(ctx, args)
	case "houses":
		return a.Houses(ctx, args)
	case "phones":
		return a.Phones(ctx, args)
	case "search":
		return a.Search(ctx, args)
	case "keys":
		return a.Keys(ctx)
	case "visit":
		return a.AddVisit(ctx, args)
	case "call":
		return a.AddCall(ctx, args)
	case "delete":
		return a.Delete(ctx, args)
	}
	printlnFn("Unknown command:", cmd)
	return nil
}
