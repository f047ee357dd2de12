package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/projection"
	"github.com/fieldkeeper/fieldsync/internal/timex"
)

// searchWait bounds how long the search command waits for its results.
const searchWait = 10 * time.Second

const dateLayout = "2006-01-02 15:04"

func formatDate(ms int64) string {
	return timex.MillisToTime(ms).Local().Format(dateLayout)
}

// newFlagSet returns a quiet flag set for parsing command arguments.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// Sync runs a full synchronization and waits for it.
func (a *App) Sync(ctx context.Context) error {
	if err := a.sync.StartupProcess(ctx, true); err != nil {
		return err
	}
	at, err := a.sync.LastSyncedAt(ctx)
	if err != nil {
		return err
	}
	printlnFn("Synced at", at.Local().Format(dateLayout))
	return nil
}

func (a *App) Status(ctx context.Context) error {
	a.mu.Lock()
	user, mode := a.userName, a.Mode
	a.mu.Unlock()
	if user == "" {
		user = "-"
	}
	printlnFn("User:", user)
	printlnFn("Mode:", mode)
	printlnFn("Sync:", a.sync.State())

	at, err := a.sync.LastSyncedAt(ctx)
	if err != nil {
		return err
	}
	if at.IsZero() {
		printlnFn("Last synced: never")
	} else {
		printlnFn("Last synced:", at.Local().Format(dateLayout))
	}
	if err := a.sync.LastError(); err != nil {
		printlnFn("Last error:", err)
	}
	return nil
}

func (a *App) Territories(ctx context.Context) error {
	rows, err := a.views.TerritoriesWithKeys(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		printlnFn("No territories")
		return nil
	}
	for _, r := range rows {
		names := make([]string, 0, len(r.Tokens))
		for _, t := range r.Tokens {
			names = append(names, t.Name)
		}
		printlnFn(fmt.Sprintf("#%d %s [%s] houses=%d access=%s keys=%s",
			r.Territory.Number, r.Territory.Description, r.Territory.ID,
			r.HouseCount, r.Access, strings.Join(names, ",")))
	}
	return nil
}

// Recent lists the latest activity per territory; -phone switches to the
// phone territories.
func (a *App) Recent(ctx context.Context, args []string) error {
	fs := newFlagSet("recent")
	phone := fs.Bool("phone", false, "phone territories")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *phone {
		rows, err := a.views.RecentPhoneActivity(ctx)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			printlnFn("No recent calls")
		}
		for _, r := range rows {
			printlnFn(fmt.Sprintf("%s #%d %s %s %s",
				formatDate(r.Call.Date), r.Territory.Number, r.Number.Number, r.Call.User, r.Call.Notes))
		}
		return nil
	}

	rows, err := a.views.RecentTerritoryActivity(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		printlnFn("No recent visits")
	}
	for _, r := range rows {
		printlnFn(fmt.Sprintf("%s #%d %s %s %s %s",
			formatDate(r.Visit.Date), r.Territory.Number, r.Address.Address, r.House.Number,
			r.Visit.Symbol, r.Visit.Notes))
	}
	return nil
}

func (a *App) Addresses(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: addresses <territory id>")
	}
	rows, err := a.views.Addresses(ctx, args[0])
	if err != nil {
		return err
	}
	for _, r := range rows {
		printlnFn(fmt.Sprintf("%s [%s] houses=%d", r.Address.Address, r.Address.ID, r.HouseCount))
	}
	return nil
}

func (a *App) Houses(ctx context.Context, args []string) error {
	fs := newFlagSet("houses")
	search := fs.String("q", "", "search text")
	desc := fs.Bool("desc", false, "descending order")
	oddEven := fs.Bool("oddeven", false, "odd numbers first, then even")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: houses [-q text] [-desc] [-oddeven] <address id>")
	}

	q := projection.HouseQuery{Search: *search}
	if *desc {
		q.Sort = projection.Descending
	}
	if *oddEven {
		q.Filter = projection.FilterOddEven
	}
	rows, err := a.views.Houses(ctx, fs.Arg(0), q)
	if err != nil {
		return err
	}
	for _, r := range rows {
		line := fmt.Sprintf("%s [%s]", r.House.Number, r.House.ID)
		if r.Latest != nil {
			line += fmt.Sprintf(" %s %s %s", formatDate(r.Latest.Date), r.Latest.Symbol, r.Latest.Notes)
		}
		printlnFn(line)
	}
	return nil
}

func (a *App) Phones(ctx context.Context, args []string) error {
	fs := newFlagSet("phones")
	search := fs.String("q", "", "search text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: phones [-q text] <phone territory id>")
	}
	rows, err := a.views.PhoneNumbers(ctx, fs.Arg(0), *search)
	if err != nil {
		return err
	}
	for _, r := range rows {
		line := fmt.Sprintf("%s [%s]", r.Number.Number, r.Number.ID)
		if r.Latest != nil {
			line += fmt.Sprintf(" %s %s", formatDate(r.Latest.Date), r.Latest.Notes)
		}
		printlnFn(line)
	}
	return nil
}

// Search submits a query to the debounced searcher and prints the results
// delivered for it.
func (a *App) Search(ctx context.Context, args []string) error {
	fs := newFlagSet("search")
	phone := fs.Bool("phone", false, "search phone territories")
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("usage: search [-phone] <text>")
	}
	mode := projection.ModeTerritories
	if *phone {
		mode = projection.ModePhoneTerritories
	}

	ctx, cancel := context.WithTimeout(ctx, searchWait)
	defer cancel()
	a.searcher.Submit(query, mode)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-a.searcher.Results():
			if !ok {
				return errors.New("search closed")
			}
			if u.Query != query || u.Mode != mode {
				continue
			}
			if u.Err != nil {
				return u.Err
			}
			if len(u.Results) == 0 {
				printlnFn("No matches")
			}
			for _, r := range u.Results {
				printlnFn(fmt.Sprintf("%-15s %s [%s] %s", r.Kind, r.Title, r.ID, r.Detail))
			}
			return nil
		}
	}
}

// Keys lists the tokens held by the identity with their registered users.
func (a *App) Keys(ctx context.Context) error {
	res, err := a.views.Access(ctx)
	if err != nil {
		return err
	}
	held := res.HeldTokens()
	if len(held) == 0 {
		printlnFn("No keys")
		return nil
	}
	for _, t := range held {
		line := fmt.Sprintf("%s [%s]", t.Name, t.ID)
		if t.Moderator {
			line += " moderator"
		}
		if t.Expire != nil {
			line += " expires " + formatDate(*t.Expire)
		}
		printlnFn(line)

		active, blocked := res.KeyUsers(t.ID)
		for _, u := range active {
			printlnFn("  " + u.UserName)
		}
		for _, u := range blocked {
			printlnFn("  " + u.UserName + " (blocked)")
		}
	}
	return nil
}

// parseTable accepts a store table name such as "visits".
func parseTable(s string) (models.Table, error) {
	t := models.Table(strings.ToLower(s))
	if !t.Valid() {
		return "", fmt.Errorf("unknown table %q", s)
	}
	return t, nil
}
