package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/services"
)

// AddVisit records a visit to a house: visit <house id> <symbol> [notes...].
func (a *App) AddVisit(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: visit <house id> <NA|NC|V|O> [notes]")
	}
	sym, err := models.ParseSymbol(args[1])
	if err != nil {
		return err
	}
	user, err := a.displayName(ctx)
	if err != nil {
		return err
	}

	v := models.Visit{
		ID:      services.NewID(),
		HouseID: args[0],
		Date:    a.now().UnixMilli(),
		Notes:   strings.Join(args[2:], " "),
		Symbol:  sym,
		User:    user,
	}
	res, err := a.mutations.Apply(ctx, models.Upsert(v))
	if err != nil {
		return err
	}
	printlnFn("Visit saved", res.ID)
	return nil
}

// AddCall records a call to a phone number: call <number id> [notes...].
func (a *App) AddCall(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: call <number id> [notes]")
	}
	user, err := a.displayName(ctx)
	if err != nil {
		return err
	}

	c := models.PhoneCall{
		ID:            services.NewID(),
		PhoneNumberID: args[0],
		Date:          a.now().UnixMilli(),
		Notes:         strings.Join(args[1:], " "),
		User:          user,
	}
	res, err := a.mutations.Apply(ctx, models.Upsert(c))
	if err != nil {
		return err
	}
	printlnFn("Call saved", res.ID)
	return nil
}

// Delete removes a row and everything below it: delete <table> <id>.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: delete <table> <id>")
	}
	table, err := parseTable(args[0])
	if err != nil {
		return err
	}
	if _, err := a.mutations.Apply(ctx, models.Delete(table, args[1])); err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Deleted %s %s", table, args[1]))
	return nil
}

func (a *App) displayName(ctx context.Context) (string, error) {
	id, err := a.identity.Identity(ctx)
	if err != nil {
		return "", err
	}
	return id.UserName, nil
}
