// Package projection derives the read views of the app from the local store.
//
// Every view is filtered through an access.Resolver built for the active
// identity, so rows the identity cannot see never leave this package. Views
// read committed state only and never touch the network.
package projection

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/client/access"
	"github.com/fieldkeeper/fieldsync/internal/client/identity"
	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/store"
	"github.com/fieldkeeper/fieldsync/internal/common"
)

// Tables whose changes affect territory and phone views. Access depends on
// the token tables, so they are part of both.
var (
	TerritoryTables = []models.Table{
		models.TableCongregation, models.TableTerritory, models.TableAddress,
		models.TableHouse, models.TableVisit,
		models.TableToken, models.TableTokenTerritory, models.TableUserToken,
	}
	PhoneTables = []models.Table{
		models.TableCongregation, models.TablePhoneTerritory, models.TablePhoneNumber,
		models.TablePhoneCall,
		models.TableToken, models.TableTokenTerritory, models.TableUserToken,
	}
)

type Views struct {
	store    *store.Store
	identity identity.Provider
	now      func() time.Time
}

func New(s *store.Store, p identity.Provider) *Views {
	return &Views{store: s, identity: p, now: time.Now}
}

// Access loads a resolver for the active identity. Without valid
// credentials the anonymous identity is used, which sees nothing.
func (v *Views) Access(ctx context.Context) (*access.Resolver, error) {
	var res *access.Resolver
	err := v.read(ctx, func(_ context.Context, _ store.Reader, r *access.Resolver) error {
		res = r
		return nil
	})
	return res, err
}

func (v *Views) activeIdentity(ctx context.Context) (models.Identity, error) {
	id, err := v.identity.Identity(ctx)
	if err != nil {
		if !errors.Is(err, common.ErrNoCredentials) && !errors.Is(err, common.ErrAdminCredentials) {
			return models.Identity{}, err
		}
		return models.Identity{}, nil
	}
	return id, nil
}

// read runs fn on one read snapshot of the store, with the resolver loaded
// from that same snapshot. A view built inside fn never mixes two commits.
func (v *Views) read(ctx context.Context, fn func(ctx context.Context, r store.Reader, res *access.Resolver) error) error {
	id, err := v.activeIdentity(ctx)
	if err != nil {
		return err
	}
	return v.store.View(ctx, func(ctx context.Context, r store.Reader) error {
		res, err := access.Load(ctx, r, id, v.now())
		if err != nil {
			return err
		}
		return fn(ctx, r, res)
	})
}

func fetch[T models.Record](ctx context.Context, r store.Reader, table models.Table) ([]T, error) {
	recs, err := r.FetchAll(ctx, table)
	if err != nil {
		return nil, err
	}
	return models.As[T](recs), nil
}

// newer orders activity records: later date first, then greater id.
func newer(dateA, dateB int64, idA, idB string) bool {
	if dateA != dateB {
		return dateA > dateB
	}
	return idA > idB
}

type TerritoryWithKeys struct {
	Territory  models.Territory
	Tokens     []models.Token
	HouseCount int
	Access     models.AccessLevel
}

// TerritoriesWithKeys lists visible territories by number with the tokens
// granting them and the number of houses they contain.
func (v *Views) TerritoriesWithKeys(ctx context.Context) ([]TerritoryWithKeys, error) {
	var out []TerritoryWithKeys
	err := v.read(ctx, func(ctx context.Context, r store.Reader, res *access.Resolver) error {
		var err error
		out, err = territoriesWithKeys(ctx, r, res)
		return err
	})
	return out, err
}

func territoriesWithKeys(ctx context.Context, r store.Reader, res *access.Resolver) ([]TerritoryWithKeys, error) {
	territories, err := fetch[models.Territory](ctx, r, models.TableTerritory)
	if err != nil {
		return nil, err
	}
	addresses, err := fetch[models.TerritoryAddress](ctx, r, models.TableAddress)
	if err != nil {
		return nil, err
	}
	houses, err := fetch[models.House](ctx, r, models.TableHouse)
	if err != nil {
		return nil, err
	}

	housesPerAddress := make(map[string]int, len(addresses))
	for _, h := range houses {
		housesPerAddress[h.AddressID]++
	}
	housesPerTerritory := make(map[string]int, len(territories))
	for _, a := range addresses {
		housesPerTerritory[a.TerritoryID] += housesPerAddress[a.ID]
	}

	visible := res.VisibleTerritories(territories)
	sortTerritories(visible)
	out := make([]TerritoryWithKeys, 0, len(visible))
	for _, t := range visible {
		out = append(out, TerritoryWithKeys{
			Territory:  t,
			Tokens:     res.Tokens(t.ID),
			HouseCount: housesPerTerritory[t.ID],
			Access:     res.Territory(t.ID),
		})
	}
	return out, nil
}

func sortTerritories(ts []models.Territory) {
	slices.SortFunc(ts, func(a, b models.Territory) int {
		return cmp.Or(cmp.Compare(a.Number, b.Number), cmp.Compare(a.ID, b.ID))
	})
}

// TerritoryActivity is the latest visit recorded in a territory.
type TerritoryActivity struct {
	Territory models.Territory
	Address   models.TerritoryAddress
	House     models.House
	Visit     models.Visit
}

// RecentTerritoryActivity returns, for every visible territory with at
// least one visit, its latest visit. The list is newest first; equal dates
// are ordered by visit id.
func (v *Views) RecentTerritoryActivity(ctx context.Context) ([]TerritoryActivity, error) {
	var out []TerritoryActivity
	err := v.read(ctx, func(ctx context.Context, r store.Reader, res *access.Resolver) error {
		var err error
		out, err = recentTerritoryActivity(ctx, r, res)
		return err
	})
	return out, err
}

func recentTerritoryActivity(ctx context.Context, r store.Reader, res *access.Resolver) ([]TerritoryActivity, error) {
	territories, err := fetch[models.Territory](ctx, r, models.TableTerritory)
	if err != nil {
		return nil, err
	}
	addresses, err := fetch[models.TerritoryAddress](ctx, r, models.TableAddress)
	if err != nil {
		return nil, err
	}
	houses, err := fetch[models.House](ctx, r, models.TableHouse)
	if err != nil {
		return nil, err
	}
	visits, err := fetch[models.Visit](ctx, r, models.TableVisit)
	if err != nil {
		return nil, err
	}

	addrByID := make(map[string]models.TerritoryAddress, len(addresses))
	for _, a := range addresses {
		addrByID[a.ID] = a
	}
	houseByID := make(map[string]models.House, len(houses))
	for _, h := range houses {
		houseByID[h.ID] = h
	}

	latest := make(map[string]TerritoryActivity)
	for _, vi := range visits {
		h, ok := houseByID[vi.HouseID]
		if !ok {
			continue
		}
		a, ok := addrByID[h.AddressID]
		if !ok {
			continue
		}
		cur, seen := latest[a.TerritoryID]
		if !seen || newer(vi.Date, cur.Visit.Date, vi.ID, cur.Visit.ID) {
			latest[a.TerritoryID] = TerritoryActivity{Address: a, House: h, Visit: vi}
		}
	}

	var out []TerritoryActivity
	for _, t := range res.VisibleTerritories(territories) {
		act, ok := latest[t.ID]
		if !ok {
			continue
		}
		act.Territory = t
		out = append(out, act)
	}
	slices.SortFunc(out, func(a, b TerritoryActivity) int {
		if newer(a.Visit.Date, b.Visit.Date, a.Visit.ID, b.Visit.ID) {
			return -1
		}
		if a.Visit.ID == b.Visit.ID {
			return 0
		}
		return 1
	})
	return out, nil
}

// PhoneActivity is the latest call recorded in a phone territory.
type PhoneActivity struct {
	Territory models.PhoneTerritory
	Number    models.PhoneNumber
	Call      models.PhoneCall
}

func (v *Views) RecentPhoneActivity(ctx context.Context) ([]PhoneActivity, error) {
	var out []PhoneActivity
	err := v.read(ctx, func(ctx context.Context, r store.Reader, res *access.Resolver) error {
		var err error
		out, err = recentPhoneActivity(ctx, r, res)
		return err
	})
	return out, err
}

func recentPhoneActivity(ctx context.Context, r store.Reader, res *access.Resolver) ([]PhoneActivity, error) {
	territories, err := fetch[models.PhoneTerritory](ctx, r, models.TablePhoneTerritory)
	if err != nil {
		return nil, err
	}
	numbers, err := fetch[models.PhoneNumber](ctx, r, models.TablePhoneNumber)
	if err != nil {
		return nil, err
	}
	calls, err := fetch[models.PhoneCall](ctx, r, models.TablePhoneCall)
	if err != nil {
		return nil, err
	}

	numberByID := make(map[string]models.PhoneNumber, len(numbers))
	for _, n := range numbers {
		numberByID[n.ID] = n
	}
	latest := make(map[string]PhoneActivity)
	for _, c := range calls {
		n, ok := numberByID[c.PhoneNumberID]
		if !ok {
			continue
		}
		cur, seen := latest[n.TerritoryID]
		if !seen || newer(c.Date, cur.Call.Date, c.ID, cur.Call.ID) {
			latest[n.TerritoryID] = PhoneActivity{Number: n, Call: c}
		}
	}

	var out []PhoneActivity
	for _, t := range res.VisiblePhoneTerritories(territories) {
		act, ok := latest[t.ID]
		if !ok {
			continue
		}
		act.Territory = t
		out = append(out, act)
	}
	slices.SortFunc(out, func(a, b PhoneActivity) int {
		if newer(a.Call.Date, b.Call.Date, a.Call.ID, b.Call.ID) {
			return -1
		}
		if a.Call.ID == b.Call.ID {
			return 0
		}
		return 1
	})
	return out, nil
}

type AddressSummary struct {
	Address    models.TerritoryAddress
	HouseCount int
}

// Addresses lists the addresses of a territory by street name.
func (v *Views) Addresses(ctx context.Context, territoryID string) ([]AddressSummary, error) {
	var out []AddressSummary
	err := v.read(ctx, func(ctx context.Context, r store.Reader, res *access.Resolver) error {
		var err error
		out, err = addressSummaries(ctx, r, res, territoryID)
		return err
	})
	return out, err
}

func addressSummaries(ctx context.Context, r store.Reader, res *access.Resolver, territoryID string) ([]AddressSummary, error) {
	if res.Territory(territoryID) == models.AccessNone {
		return nil, fmt.Errorf("territory %s: %w", territoryID, common.ErrPermissionDenied)
	}

	recs, err := r.FetchByParent(ctx, models.TableAddress, territoryID)
	if err != nil {
		return nil, err
	}
	addresses := models.As[models.TerritoryAddress](recs)
	out := make([]AddressSummary, 0, len(addresses))
	for _, a := range addresses {
		houses, err := r.FetchByParent(ctx, models.TableHouse, a.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, AddressSummary{Address: a, HouseCount: len(houses)})
	}
	slices.SortFunc(out, func(a, b AddressSummary) int {
		return cmp.Or(collator().CompareString(a.Address.Address, b.Address.Address), cmp.Compare(a.Address.ID, b.Address.ID))
	})
	return out, nil
}

// NumberRow is a phone number with its latest call, if any.
type NumberRow struct {
	Number models.PhoneNumber
	Latest *models.PhoneCall
}

// PhoneNumbers lists the numbers of a phone territory. search, when set,
// keeps numbers whose digits, house or latest call notes contain it.
func (v *Views) PhoneNumbers(ctx context.Context, phoneTerritoryID, search string) ([]NumberRow, error) {
	var out []NumberRow
	err := v.read(ctx, func(ctx context.Context, r store.Reader, res *access.Resolver) error {
		var err error
		out, err = numberRows(ctx, r, res, phoneTerritoryID, search)
		return err
	})
	return out, err
}

func numberRows(ctx context.Context, r store.Reader, res *access.Resolver, phoneTerritoryID, search string) ([]NumberRow, error) {
	if res.PhoneTerritory(phoneTerritoryID) == models.AccessNone {
		return nil, fmt.Errorf("phone territory %s: %w", phoneTerritoryID, common.ErrPermissionDenied)
	}

	recs, err := r.FetchByParent(ctx, models.TablePhoneNumber, phoneTerritoryID)
	if err != nil {
		return nil, err
	}
	needle := fold(search)
	var out []NumberRow
	for _, n := range models.As[models.PhoneNumber](recs) {
		calls, err := r.FetchByParent(ctx, models.TablePhoneCall, n.ID)
		if err != nil {
			return nil, err
		}
		row := NumberRow{Number: n}
		for _, c := range models.As[models.PhoneCall](calls) {
			if row.Latest == nil || newer(c.Date, row.Latest.Date, c.ID, row.Latest.ID) {
				row.Latest = &c
			}
		}
		if needle != "" && !numberMatches(row, needle) {
			continue
		}
		out = append(out, row)
	}
	slices.SortFunc(out, func(a, b NumberRow) int {
		return cmp.Or(cmp.Compare(a.Number.Number, b.Number.Number), cmp.Compare(a.Number.ID, b.Number.ID))
	})
	return out, nil
}

func numberMatches(row NumberRow, needle string) bool {
	if contains(row.Number.Number, needle) {
		return true
	}
	if row.Number.House != nil && contains(*row.Number.House, needle) {
		return true
	}
	return row.Latest != nil && contains(row.Latest.Notes, needle)
}
