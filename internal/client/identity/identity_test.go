package identity

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/repositories/metadata"
	"github.com/fieldkeeper/fieldsync/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newProvider(t *testing.T) *SessionProvider {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "id.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB)`)
	require.NoError(t, err)

	p := NewSessionProvider(metadata.NewSQLiteRepository(db))
	p.now = func() time.Time { return now }
	return p
}

func sign(t *testing.T, c Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return s
}

func claims() Claims {
	return Claims{
		Name:         "Ann",
		Congregation: "c1",
		Tokens:       []string{"k1", "k2"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestIdentity_LoggedOut(t *testing.T) {
	_, err := newProvider(t).Identity(context.Background())
	assert.ErrorIs(t, err, common.ErrNoCredentials)
}

func TestLoginThenIdentity(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	c := claims()
	c.PhoneCongregation = "c9"
	c.PhoneCredentials = true
	raw := sign(t, c)

	id, err := p.Login(ctx, "  "+raw+"\n")
	require.NoError(t, err)

	want := models.Identity{
		UserID:                  "u1",
		UserName:                "Ann",
		CongregationID:          "c1",
		HeldTokenIDs:            []string{"k1", "k2"},
		PhoneCongregationID:     "c9",
		PhoneCredentialsPresent: true,
	}
	assert.Equal(t, want, id)

	got, err := p.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	tok, err := p.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, raw, tok)

	require.NoError(t, p.Logout(ctx))
	_, err = p.Identity(ctx)
	assert.ErrorIs(t, err, common.ErrNoCredentials)
}

func TestLogin_RejectsGarbage(t *testing.T) {
	p := newProvider(t)

	_, err := p.Login(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	c := claims()
	c.Congregation = ""
	_, err = p.Login(context.Background(), sign(t, c))
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tok, "rejected tokens are not stored")
}

func TestIdentity_Expiry(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	c := claims()
	c.Admin = true
	c.AdminUntil = jwt.NewNumericDate(now.Add(time.Minute))
	_, err := p.Login(ctx, sign(t, c))
	require.NoError(t, err)

	p.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = p.Identity(ctx)
	assert.ErrorIs(t, err, common.ErrAdminCredentials)

	p.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = p.Identity(ctx)
	assert.ErrorIs(t, err, common.ErrNoCredentials)
}

func TestFingerprint(t *testing.T) {
	a := models.Identity{UserID: "u1", CongregationID: "c1"}
	b := a
	b.HeldTokenIDs = []string{"k1"}
	b.IsAdmin = true

	assert.Equal(t, Fingerprint(a), Fingerprint(b), "tokens and roles do not change the scope owner")
	assert.Len(t, Fingerprint(a), 64)

	c := a
	c.UserID = "u2"
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))

	d := a
	d.PhoneCongregationID = "c1"
	d.PhoneCredentialsPresent = true
	assert.NotEqual(t, Fingerprint(a), Fingerprint(d))

	assert.Empty(t, Fingerprint(models.Identity{}))
}
