package cli

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/fieldkeeper/fieldsync/internal/common"
)

// getSecret is an indirection over GetSecret used to facilitate testing.
var getSecret = GetSecret

// Login stores a session token, given as the first argument or typed at a
// hidden prompt, and switches the local scope to its identity.
//
// When the server is reachable a sync is requested right away; offline the
// data already cached for the same identity stays available.
func (a *App) Login(ctx context.Context, args []string) error {
	var token string
	if len(args) > 0 {
		token = args[0]
	} else {
		secret, err := getSecret("Enter session token", os.Stdout)
		if err != nil {
			return err
		}
		defer clear(secret)
		token = string(secret)
	}
	if strings.TrimSpace(token) == "" {
		return errors.New("empty token")
	}

	id, err := a.authService.Login(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			a.log.Warn(ctx, "login rejected", "error", err)
		}
		return err
	}
	a.setUser(id.UserName)
	a.log.Info(ctx, "logged in", "user", id.UserID, "congregation", id.CongregationID)
	printlnFn("Logged in as", id.UserName)

	if a.mode() == ModeOnline {
		a.sync.RequestResync("login")
	}
	return nil
}

// Logout forgets the session token and wipes the data cached for it.
func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		return err
	}
	a.setUser("")
	printlnFn("Logged out")
	return nil
}
