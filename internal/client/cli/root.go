package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

func (a *App) getStatus() string {
	var parts []string
	a.mu.Lock()
	if a.userName != "" {
		parts = append(parts, a.userName)
	}
	if a.Mode != "" {
		parts = append(parts, string(a.Mode))
	}
	a.mu.Unlock()
	if a.isLoggedIn() {
		parts = append(parts, fmt.Sprintf("%d territories", a.territories.Load()))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Root starts the background workers and runs the REPL on stdin until the
// user exits.
func (a *App) Root(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	printlnFn("Welcome to fieldsync (type 'help' for commands)")

	if err := a.sync.StartupProcess(ctx, false); err != nil {
		a.log.Warn(ctx, "evaluate local scope", "error", err)
	}
	a.refreshUser(ctx)
	a.checkOnline(ctx)

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	go a.sync.Run(ctx)
	go a.watchState(ctx)
	go a.watchTerritories(ctx)

	if a.isLoggedIn() && a.mode() == ModeOnline {
		a.sync.RequestResync("startup")
	}

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(os.Stdin))
}
