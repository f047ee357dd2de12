// Package services contains the application services of the fieldsync
// client: session handling and permission-checked mutations.
package services

import (
	"context"
	"fmt"

	"github.com/fieldkeeper/fieldsync/internal/client/client"
	"github.com/fieldkeeper/fieldsync/internal/client/models"
)

// Session stores and clears the session token.
type Session interface {
	Login(ctx context.Context, raw string) (models.Identity, error)
	Logout(ctx context.Context) error
}

// Coordinator is the part of the sync orchestrator services drive.
type Coordinator interface {
	CredentialsChanged()
	StartupProcess(ctx context.Context, synchronizing bool) error
	RequestResync(reason string)
}

// AuthService defines session operations for the CLI.
//
// Login and Logout re-evaluate the local scope before returning, so data of
// a previous identity is gone by the time the caller reads anything.
type AuthService interface {
	Login(ctx context.Context, token string) (models.Identity, error)
	Logout(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type authService struct {
	client  client.Client
	session Session
	sync    Coordinator
}

func NewAuthService(c client.Client, session Session, sync Coordinator) AuthService {
	return &authService{client: c, session: session, sync: sync}
}

func (a *authService) Login(ctx context.Context, token string) (models.Identity, error) {
	id, err := a.session.Login(ctx, token)
	if err != nil {
		return models.Identity{}, fmt.Errorf("login: %w", err)
	}
	a.sync.CredentialsChanged()
	if err := a.sync.StartupProcess(ctx, false); err != nil {
		return models.Identity{}, fmt.Errorf("switch local scope: %w", err)
	}
	return id, nil
}

func (a *authService) Logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	a.sync.CredentialsChanged()
	return a.sync.StartupProcess(ctx, false)
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}
