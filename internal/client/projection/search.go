package projection

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/fieldkeeper/fieldsync/internal/client/access"
	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/store"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lowercases s and strips diacritics so "Émile" matches "emile".
func fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

// contains reports whether haystack contains an already folded needle.
func contains(haystack, needle string) bool {
	return strings.Contains(fold(haystack), needle)
}

func collator() *collate.Collator {
	return collate.New(language.Und, collate.IgnoreCase, collate.IgnoreDiacritics, collate.Numeric)
}

// Mode selects the hierarchy a search runs over.
type Mode int

const (
	ModeTerritories Mode = iota
	ModePhoneTerritories
)

func (m Mode) String() string {
	if m == ModePhoneTerritories {
		return "phone"
	}
	return "territories"
}

type Kind string

const (
	KindTerritory      Kind = "territory"
	KindAddress        Kind = "address"
	KindHouse          Kind = "house"
	KindVisit          Kind = "visit"
	KindPhoneTerritory Kind = "phone_territory"
	KindNumber         Kind = "number"
	KindCall           Kind = "call"
)

var kindRank = map[Kind]int{
	KindTerritory: 0, KindAddress: 1, KindHouse: 2, KindVisit: 3,
	KindPhoneTerritory: 0, KindNumber: 1, KindCall: 2,
}

// SearchResult is one match. TerritoryID is the territory or phone
// territory the match belongs to.
type SearchResult struct {
	Kind        Kind
	ID          string
	TerritoryID string
	Title       string
	Detail      string
}

// Search matches query against every visible record of the hierarchy
// selected by mode. An empty query matches nothing.
func (v *Views) Search(ctx context.Context, query string, mode Mode) ([]SearchResult, error) {
	needle := fold(query)
	if needle == "" {
		return nil, nil
	}
	var out []SearchResult
	err := v.read(ctx, func(ctx context.Context, r store.Reader, res *access.Resolver) error {
		var err error
		if mode == ModePhoneTerritories {
			out, err = searchPhone(ctx, r, res, needle)
		} else {
			out, err = searchTerritories(ctx, r, res, needle)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	c := collator()
	slices.SortFunc(out, func(a, b SearchResult) int {
		return cmp.Or(
			cmp.Compare(kindRank[a.Kind], kindRank[b.Kind]),
			c.CompareString(a.Title, b.Title),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out, nil
}

func searchTerritories(ctx context.Context, r store.Reader, res *access.Resolver, needle string) ([]SearchResult, error) {
	all, err := fetch[models.Territory](ctx, r, models.TableTerritory)
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

	var out []SearchResult
	territories := make(map[string]models.Territory)
	for _, t := range res.VisibleTerritories(all) {
		territories[t.ID] = t
		if contains(strconv.FormatInt(t.Number, 10), needle) || contains(t.Description, needle) {
			out = append(out, SearchResult{Kind: KindTerritory, ID: t.ID, TerritoryID: t.ID, Title: territoryTitle(t.Number), Detail: t.Description})
		}
	}

	addrs := make(map[string]models.TerritoryAddress)
	for _, a := range addresses {
		t, ok := territories[a.TerritoryID]
		if !ok {
			continue
		}
		addrs[a.ID] = a
		if contains(a.Address, needle) {
			out = append(out, SearchResult{Kind: KindAddress, ID: a.ID, TerritoryID: t.ID, Title: a.Address, Detail: territoryTitle(t.Number)})
		}
	}

	hs := make(map[string]models.House)
	for _, h := range houses {
		a, ok := addrs[h.AddressID]
		if !ok {
			continue
		}
		hs[h.ID] = h
		if contains(h.Number, needle) {
			out = append(out, SearchResult{Kind: KindHouse, ID: h.ID, TerritoryID: a.TerritoryID, Title: a.Address + " " + h.Number, Detail: territoryTitle(territories[a.TerritoryID].Number)})
		}
	}

	for _, vi := range visits {
		h, ok := hs[vi.HouseID]
		if !ok || !contains(vi.Notes, needle) {
			continue
		}
		a := addrs[h.AddressID]
		out = append(out, SearchResult{Kind: KindVisit, ID: vi.ID, TerritoryID: a.TerritoryID, Title: vi.Notes, Detail: a.Address + " " + h.Number})
	}
	return out, nil
}

func searchPhone(ctx context.Context, r store.Reader, res *access.Resolver, needle string) ([]SearchResult, error) {
	all, err := fetch[models.PhoneTerritory](ctx, r, models.TablePhoneTerritory)
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

	var out []SearchResult
	territories := make(map[string]models.PhoneTerritory)
	for _, t := range res.VisiblePhoneTerritories(all) {
		territories[t.ID] = t
		if contains(strconv.FormatInt(t.Number, 10), needle) || contains(t.Description, needle) {
			out = append(out, SearchResult{Kind: KindPhoneTerritory, ID: t.ID, TerritoryID: t.ID, Title: territoryTitle(t.Number), Detail: t.Description})
		}
	}

	nums := make(map[string]models.PhoneNumber)
	for _, n := range numbers {
		t, ok := territories[n.TerritoryID]
		if !ok {
			continue
		}
		nums[n.ID] = n
		house := ""
		if n.House != nil {
			house = *n.House
		}
		if contains(n.Number, needle) || contains(house, needle) {
			out = append(out, SearchResult{Kind: KindNumber, ID: n.ID, TerritoryID: t.ID, Title: n.Number, Detail: house})
		}
	}

	for _, c := range calls {
		n, ok := nums[c.PhoneNumberID]
		if !ok || !contains(c.Notes, needle) {
			continue
		}
		out = append(out, SearchResult{Kind: KindCall, ID: c.ID, TerritoryID: n.TerritoryID, Title: c.Notes, Detail: n.Number})
	}
	return out, nil
}

func territoryTitle(n int64) string { return fmt.Sprintf("Territory %d", n) }
