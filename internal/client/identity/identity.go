// Package identity turns the stored session token into the active
// models.Identity.
//
// The session token is a JWT issued by the remote service. It is treated as
// opaque for authentication purposes (the server verifies it on every call);
// locally only its claims are read to learn who the user is and what they
// hold.
package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/repositories/metadata"
	"github.com/fieldkeeper/fieldsync/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"
)

// Provider reports the active identity. It returns common.ErrNoCredentials
// when nobody is logged in and common.ErrAdminCredentials when the
// administrator elevation must be renewed.
type Provider interface {
	Identity(ctx context.Context) (models.Identity, error)
}

// Claims is the session token payload.
type Claims struct {
	Name              string   `json:"name"`
	Congregation      string   `json:"congregation"`
	Admin             bool     `json:"admin,omitempty"`
	PhoneCongregation string   `json:"phone_congregation,omitempty"`
	PhoneCredentials  bool     `json:"phone,omitempty"`
	Tokens            []string `json:"tokens,omitempty"`
	// AdminUntil bounds the administrator elevation separately from the
	// session itself.
	AdminUntil *jwt.NumericDate `json:"admin_exp,omitempty"`
	jwt.RegisteredClaims
}

// SessionProvider keeps the session token in the metadata repository.
type SessionProvider struct {
	meta   metadata.Repository
	parser *jwt.Parser
	now    func() time.Time
}

func NewSessionProvider(meta metadata.Repository) *SessionProvider {
	return &SessionProvider{meta: meta, parser: jwt.NewParser(), now: time.Now}
}

func (p *SessionProvider) parse(raw string) (*Claims, error) {
	var c Claims
	if _, _, err := p.parser.ParseUnverified(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}
	if c.Subject == "" || c.Congregation == "" {
		return nil, fmt.Errorf("%w: missing subject or congregation", common.ErrInvalidToken)
	}
	return &c, nil
}

// Login validates and stores a session token.
func (p *SessionProvider) Login(ctx context.Context, raw string) (models.Identity, error) {
	raw = strings.TrimSpace(raw)
	c, err := p.parse(raw)
	if err != nil {
		return models.Identity{}, err
	}
	id, err := p.identity(c)
	if err != nil {
		return models.Identity{}, err
	}
	if err := p.meta.SetString(ctx, common.MetaSession, raw); err != nil {
		return models.Identity{}, err
	}
	return id, nil
}

func (p *SessionProvider) Logout(ctx context.Context) error {
	return p.meta.Delete(ctx, common.MetaSession)
}

// Token returns the raw session token, "" when logged out.
func (p *SessionProvider) Token(ctx context.Context) (string, error) {
	return p.meta.GetString(ctx, common.MetaSession)
}

func (p *SessionProvider) Identity(ctx context.Context) (models.Identity, error) {
	raw, err := p.Token(ctx)
	if err != nil {
		return models.Identity{}, err
	}
	if raw == "" {
		return models.Identity{}, common.ErrNoCredentials
	}
	c, err := p.parse(raw)
	if err != nil {
		return models.Identity{}, errors.Join(common.ErrNoCredentials, err)
	}
	return p.identity(c)
}

func (p *SessionProvider) identity(c *Claims) (models.Identity, error) {
	now := p.now()
	if c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time) {
		return models.Identity{}, fmt.Errorf("%w: session expired", common.ErrNoCredentials)
	}
	if c.Admin && c.AdminUntil != nil && !now.Before(c.AdminUntil.Time) {
		return models.Identity{}, common.ErrAdminCredentials
	}
	return models.Identity{
		UserID:                  c.Subject,
		UserName:                c.Name,
		CongregationID:          c.Congregation,
		IsAdmin:                 c.Admin,
		HeldTokenIDs:            c.Tokens,
		PhoneCongregationID:     c.PhoneCongregation,
		PhoneCredentialsPresent: c.PhoneCredentials,
	}, nil
}

// Fingerprint identifies whose data a local scope holds. Two identities
// with equal fingerprints may share the local store.
func Fingerprint(id models.Identity) string {
	if id.Anonymous() {
		return ""
	}
	s := id.Scope()
	sum := blake2b.Sum256([]byte(strings.Join([]string{id.UserID, s.CongregationID, s.PhoneCongregationID}, "\x00")))
	return hex.EncodeToString(sum[:])
}
