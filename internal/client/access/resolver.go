// Package access derives effective access levels from materialized token
// data. Load is the only operation that performs I/O; everything on a
// Resolver is a pure lookup and safe to call from any goroutine.
package access

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Reader is the part of the store the resolver loads from.
type Reader interface {
	FetchAll(ctx context.Context, table models.Table) ([]models.Record, error)
}

type Resolver struct {
	identity models.Identity

	territories      map[string]string // territory id -> congregation id
	phoneTerritories map[string]string
	tokens           map[string]models.Token
	grants           map[string][]string // token id -> territory ids, may hold "*"
	registrations    map[string][]models.UserToken
	// held are the tokens that currently grant the identity anything.
	held map[string]models.Token
}

// Load materializes everything resolution needs as of now.
func Load(ctx context.Context, r Reader, identity models.Identity, now time.Time) (*Resolver, error) {
	fetch := func(t models.Table) ([]models.Record, error) { return r.FetchAll(ctx, t) }

	territories, err := fetch(models.TableTerritory)
	if err != nil {
		return nil, err
	}
	phoneTerritories, err := fetch(models.TablePhoneTerritory)
	if err != nil {
		return nil, err
	}
	tokens, err := fetch(models.TableToken)
	if err != nil {
		return nil, err
	}
	grants, err := fetch(models.TableTokenTerritory)
	if err != nil {
		return nil, err
	}
	regs, err := fetch(models.TableUserToken)
	if err != nil {
		return nil, err
	}

	return build(identity, now,
		models.As[models.Territory](territories),
		models.As[models.PhoneTerritory](phoneTerritories),
		models.As[models.Token](tokens),
		models.As[models.TokenTerritory](grants),
		models.As[models.UserToken](regs),
	), nil
}

func build(
	identity models.Identity,
	now time.Time,
	territories []models.Territory,
	phoneTerritories []models.PhoneTerritory,
	tokens []models.Token,
	grants []models.TokenTerritory,
	regs []models.UserToken,
) *Resolver {
	r := &Resolver{
		identity:         identity,
		territories:      make(map[string]string, len(territories)),
		phoneTerritories: make(map[string]string, len(phoneTerritories)),
		tokens:           make(map[string]models.Token, len(tokens)),
		grants:           make(map[string][]string),
		registrations:    make(map[string][]models.UserToken),
		held:             make(map[string]models.Token),
	}
	for _, t := range territories {
		r.territories[t.ID] = t.CongregationID
	}
	for _, t := range phoneTerritories {
		r.phoneTerritories[t.ID] = t.CongregationID
	}
	for _, t := range tokens {
		r.tokens[t.ID] = t
	}
	for _, g := range grants {
		r.grants[g.TokenID] = append(r.grants[g.TokenID], g.TerritoryID)
	}

	candidates := make(map[string]struct{}, len(identity.HeldTokenIDs))
	for _, id := range identity.HeldTokenIDs {
		candidates[id] = struct{}{}
	}
	blocked := make(map[string]struct{})
	for _, ut := range regs {
		r.registrations[ut.TokenID] = append(r.registrations[ut.TokenID], ut)
		if identity.UserID == "" || ut.UserID != identity.UserID {
			continue
		}
		if ut.Blocked {
			blocked[ut.TokenID] = struct{}{}
		} else {
			candidates[ut.TokenID] = struct{}{}
		}
	}

	nowMillis := now.UnixMilli()
	for id := range candidates {
		tok, ok := r.tokens[id]
		if !ok || tok.Expired(nowMillis) {
			continue
		}
		if _, isBlocked := blocked[id]; isBlocked {
			continue
		}
		r.held[id] = tok
	}
	return r
}

func (r *Resolver) Identity() models.Identity { return r.identity }

// Admin reports whether the identity administers congregationID. For the
// phone book, phone credentials for that congregation also count.
func (r *Resolver) Admin(congregationID string, phone bool) bool {
	if congregationID == "" {
		return false
	}
	if r.identity.IsAdmin && congregationID == r.identity.CongregationID {
		return true
	}
	return phone && r.identity.PhoneCredentialsPresent && congregationID == r.identity.Scope().PhoneCongregationID
}

// Territory returns the identity's level for a territory; unknown
// territories resolve to AccessNone.
func (r *Resolver) Territory(id string) models.AccessLevel {
	cong, ok := r.territories[id]
	if !ok {
		return models.AccessNone
	}
	if r.Admin(cong, false) {
		return models.AccessAdmin
	}
	return r.tokenLevel(id, cong)
}

func (r *Resolver) PhoneTerritory(id string) models.AccessLevel {
	cong, ok := r.phoneTerritories[id]
	if !ok {
		return models.AccessNone
	}
	if r.Admin(cong, true) {
		return models.AccessAdmin
	}
	return r.tokenLevel(id, cong)
}

// Level resolves the level for any hierarchy root. Tokens are managed by
// congregation admins and by their owner.
func (r *Resolver) Level(root models.Root) models.AccessLevel {
	switch root.Table {
	case models.TableTerritory:
		return r.Territory(root.ID)
	case models.TablePhoneTerritory:
		return r.PhoneTerritory(root.ID)
	case models.TableToken:
		if r.Admin(root.CongregationID, false) {
			return models.AccessAdmin
		}
		if tok, ok := r.tokens[root.ID]; ok && r.identity.UserID != "" && tok.Owner == r.identity.UserID {
			return models.AccessAdmin
		}
	case models.TableCongregation:
		if r.Admin(root.CongregationID, false) {
			return models.AccessAdmin
		}
	}
	return models.AccessNone
}

func (r *Resolver) tokenLevel(territoryID, congregationID string) models.AccessLevel {
	level := models.AccessNone
	for id, tok := range r.held {
		if !r.grantsTerritory(id, tok, territoryID, congregationID) {
			continue
		}
		granted := models.AccessUser
		if tok.Moderator {
			granted = models.AccessModerator
		}
		level = max(level, granted)
		if level == models.AccessModerator {
			break
		}
	}
	return level
}

func (r *Resolver) grantsTerritory(tokenID string, tok models.Token, territoryID, congregationID string) bool {
	for _, g := range r.grants[tokenID] {
		if g == territoryID {
			return true
		}
		if g == models.AllTerritories && tok.CongregationID == congregationID {
			return true
		}
	}
	return false
}

// VisibleTerritories keeps the territories the identity has any access to.
func (r *Resolver) VisibleTerritories(all []models.Territory) []models.Territory {
	out := make([]models.Territory, 0, len(all))
	for _, t := range all {
		if r.Territory(t.ID) > models.AccessNone {
			out = append(out, t)
		}
	}
	return out
}

func (r *Resolver) VisiblePhoneTerritories(all []models.PhoneTerritory) []models.PhoneTerritory {
	out := make([]models.PhoneTerritory, 0, len(all))
	for _, t := range all {
		if r.PhoneTerritory(t.ID) > models.AccessNone {
			out = append(out, t)
		}
	}
	return out
}

// HeldTokens lists the tokens currently granting the identity access,
// sorted by name.
func (r *Resolver) HeldTokens() []models.Token {
	out := make([]models.Token, 0, len(r.held))
	for _, t := range r.held {
		out = append(out, t)
	}
	sortTokens(out)
	return out
}

// Tokens lists every stored token granting territoryID (a territory or a
// phone territory), explicitly or through an all-territories grant.
func (r *Resolver) Tokens(territoryID string) []models.Token {
	cong, ok := r.territories[territoryID]
	if !ok {
		cong, ok = r.phoneTerritories[territoryID]
	}
	if !ok {
		return nil
	}
	var out []models.Token
	for id, tok := range r.tokens {
		if r.grantsTerritory(id, tok, territoryID, cong) {
			out = append(out, tok)
		}
	}
	sortTokens(out)
	return out
}

// KeyUsers splits the users registered to a token into active and blocked.
// A user registered more than once appears once; any blocked registration
// makes them blocked. Both lists are sorted by display name.
func (r *Resolver) KeyUsers(tokenID string) (active, blocked []models.UserToken) {
	byUser := make(map[string]models.UserToken)
	for _, ut := range r.registrations[tokenID] {
		prev, seen := byUser[ut.UserID]
		if seen && prev.Blocked {
			continue
		}
		byUser[ut.UserID] = ut
	}
	for _, ut := range byUser {
		if ut.Blocked {
			blocked = append(blocked, ut)
		} else {
			active = append(active, ut)
		}
	}
	c := collate.New(language.Und, collate.IgnoreCase, collate.IgnoreDiacritics)
	byName := func(a, b models.UserToken) int {
		if n := c.CompareString(a.UserName, b.UserName); n != 0 {
			return n
		}
		return strings.Compare(a.UserID, b.UserID)
	}
	slices.SortFunc(active, byName)
	slices.SortFunc(blocked, byName)
	return active, blocked
}

func sortTokens(ts []models.Token) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Name != ts[j].Name {
			return ts[i].Name < ts[j].Name
		}
		return ts[i].ID < ts[j].ID
	})
}
