package projection

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/fieldkeeper/fieldsync/internal/client/access"
	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/store"
	"github.com/fieldkeeper/fieldsync/internal/common"
)

type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

type Filter int

const (
	FilterNone Filter = iota
	// FilterOddEven lists odd house numbers first, then even ones, each
	// group sorted on its own.
	FilterOddEven
)

type HouseQuery struct {
	// Search matches house labels and latest visit notes, ignoring case
	// and accents.
	Search string
	Sort   SortOrder
	Filter Filter
}

// HouseRow is a house with its latest visit, if any.
type HouseRow struct {
	House  models.House
	Latest *models.Visit
}

// Houses lists the houses at an address.
func (v *Views) Houses(ctx context.Context, addressID string, q HouseQuery) ([]HouseRow, error) {
	var out []HouseRow
	err := v.read(ctx, func(ctx context.Context, r store.Reader, res *access.Resolver) error {
		var err error
		out, err = houseRows(ctx, r, res, addressID, q)
		return err
	})
	return out, err
}

func houseRows(ctx context.Context, r store.Reader, res *access.Resolver, addressID string, q HouseQuery) ([]HouseRow, error) {
	root, err := r.RootOf(ctx, models.TableAddress, addressID)
	if err != nil {
		return nil, err
	}
	if res.Level(root) == models.AccessNone {
		return nil, fmt.Errorf("address %s: %w", addressID, common.ErrPermissionDenied)
	}

	recs, err := r.FetchByParent(ctx, models.TableHouse, addressID)
	if err != nil {
		return nil, err
	}
	rows := make([]HouseRow, 0, len(recs))
	for _, h := range models.As[models.House](recs) {
		visits, err := r.FetchByParent(ctx, models.TableVisit, h.ID)
		if err != nil {
			return nil, err
		}
		row := HouseRow{House: h}
		for _, vi := range models.As[models.Visit](visits) {
			if row.Latest == nil || newer(vi.Date, row.Latest.Date, vi.ID, row.Latest.ID) {
				row.Latest = &vi
			}
		}
		rows = append(rows, row)
	}
	return ArrangeHouses(rows, q), nil
}

// ArrangeHouses applies the search, filter and order of q to rows.
//
// Houses are ordered by the numeric part of their label; labels without a
// number come last in label order. Under FilterOddEven those labels follow
// the even group.
func ArrangeHouses(rows []HouseRow, q HouseQuery) []HouseRow {
	needle := fold(q.Search)
	out := make([]HouseRow, 0, len(rows))
	for _, r := range rows {
		if needle == "" || contains(r.House.Number, needle) || r.Latest != nil && contains(r.Latest.Notes, needle) {
			out = append(out, r)
		}
	}

	order := func(a, b HouseRow) int {
		na, okA := models.LeadingNumber(a.House.Number)
		nb, okB := models.LeadingNumber(b.House.Number)
		switch {
		case okA && !okB:
			return -1
		case !okA && okB:
			return 1
		}
		c := cmp.Compare(na, nb)
		if c == 0 {
			c = collator().CompareString(a.House.Number, b.House.Number)
		}
		if q.Sort == Descending {
			c = -c
		}
		return cmp.Or(c, cmp.Compare(a.House.ID, b.House.ID))
	}

	if q.Filter != FilterOddEven {
		slices.SortFunc(out, order)
		return out
	}

	var odd, even, other []HouseRow
	for _, r := range out {
		n, ok := models.LeadingNumber(r.House.Number)
		switch {
		case !ok:
			other = append(other, r)
		case n%2 == 1:
			odd = append(odd, r)
		default:
			even = append(even, r)
		}
	}
	slices.SortFunc(odd, order)
	slices.SortFunc(even, order)
	slices.SortFunc(other, order)
	return slices.Concat(odd, even, other)
}
