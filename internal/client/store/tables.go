package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
)

type scanner interface {
	Scan(dest ...any) error
}

// descriptor maps a models.Table to its SQL shape. columns and values
// exclude the id, which is always the first selected column.
type descriptor struct {
	table     models.Table
	parentCol string
	columns   []string
	// scope is a WHERE fragment selecting the rows of one congregation;
	// it takes exactly one argument.
	scope  string
	values func(models.Record) []any
	scan   func(scanner) (models.Record, error)

	selectSQL string
	upsertSQL string
}

const (
	territoriesOf = `SELECT id FROM territories WHERE congregation_id = ?`
	addressesOf   = `SELECT a.id FROM territory_addresses a JOIN territories t ON t.id = a.territory_id WHERE t.congregation_id = ?`
	housesOf      = `SELECT h.id FROM houses h JOIN territory_addresses a ON a.id = h.address_id JOIN territories t ON t.id = a.territory_id WHERE t.congregation_id = ?`
	phoneTerrsOf  = `SELECT id FROM phone_territories WHERE congregation_id = ?`
	numbersOf     = `SELECT n.id FROM phone_numbers n JOIN phone_territories p ON p.id = n.territory_id WHERE p.congregation_id = ?`
	tokensOf      = `SELECT id FROM tokens WHERE congregation_id = ?`
)

var descriptors = map[models.Table]*descriptor{
	models.TableCongregation: {
		columns: []string{"name"},
		scope:   "id = ?",
		values: func(r models.Record) []any {
			c := r.(models.Congregation)
			return []any{c.Name}
		},
		scan: func(s scanner) (models.Record, error) {
			var c models.Congregation
			err := s.Scan(&c.ID, &c.Name)
			return c, err
		},
	},
	models.TableTerritory: {
		parentCol: "congregation_id",
		columns:   []string{"congregation_id", "number", "description", "image"},
		scope:     "congregation_id = ?",
		values: func(r models.Record) []any {
			t := r.(models.Territory)
			return []any{t.CongregationID, t.Number, t.Description, optional(t.Image)}
		},
		scan: func(s scanner) (models.Record, error) {
			var (
				t   models.Territory
				img sql.NullString
			)
			err := s.Scan(&t.ID, &t.CongregationID, &t.Number, &t.Description, &img)
			t.Image = stringPtr(img)
			return t, err
		},
	},
	models.TableAddress: {
		parentCol: "territory_id",
		columns:   []string{"territory_id", "address", "floors"},
		scope:     "territory_id IN (" + territoriesOf + ")",
		values: func(r models.Record) []any {
			a := r.(models.TerritoryAddress)
			return []any{a.TerritoryID, a.Address, optional(a.Floors)}
		},
		scan: func(s scanner) (models.Record, error) {
			var (
				a      models.TerritoryAddress
				floors sql.NullInt64
			)
			err := s.Scan(&a.ID, &a.TerritoryID, &a.Address, &floors)
			a.Floors = intPtr(floors)
			return a, err
		},
	},
	models.TableHouse: {
		parentCol: "address_id",
		columns:   []string{"address_id", "number", "floor"},
		scope:     "address_id IN (" + addressesOf + ")",
		values: func(r models.Record) []any {
			h := r.(models.House)
			return []any{h.AddressID, h.Number, optional(h.Floor)}
		},
		scan: func(s scanner) (models.Record, error) {
			var (
				h     models.House
				floor sql.NullInt64
			)
			err := s.Scan(&h.ID, &h.AddressID, &h.Number, &floor)
			h.Floor = intPtr(floor)
			return h, err
		},
	},
	models.TableVisit: {
		parentCol: "house_id",
		columns:   []string{"house_id", "date", "notes", "symbol", "user"},
		scope:     "house_id IN (" + housesOf + ")",
		values: func(r models.Record) []any {
			v := r.(models.Visit)
			return []any{v.HouseID, v.Date, v.Notes, string(v.Symbol), v.User}
		},
		scan: func(s scanner) (models.Record, error) {
			var (
				v   models.Visit
				sym string
			)
			err := s.Scan(&v.ID, &v.HouseID, &v.Date, &v.Notes, &sym, &v.User)
			v.Symbol = models.Symbol(sym)
			return v, err
		},
	},
	models.TablePhoneTerritory: {
		parentCol: "congregation_id",
		columns:   []string{"congregation_id", "number", "description", "image"},
		scope:     "congregation_id = ?",
		values: func(r models.Record) []any {
			p := r.(models.PhoneTerritory)
			return []any{p.CongregationID, p.Number, p.Description, optional(p.Image)}
		},
		scan: func(s scanner) (models.Record, error) {
			var (
				p   models.PhoneTerritory
				img sql.NullString
			)
			err := s.Scan(&p.ID, &p.CongregationID, &p.Number, &p.Description, &img)
			p.Image = stringPtr(img)
			return p, err
		},
	},
	models.TablePhoneNumber: {
		parentCol: "territory_id",
		columns:   []string{"territory_id", "congregation_id", "number", "house"},
		scope:     "territory_id IN (" + phoneTerrsOf + ")",
		values: func(r models.Record) []any {
			n := r.(models.PhoneNumber)
			return []any{n.TerritoryID, n.CongregationID, n.Number, optional(n.House)}
		},
		scan: func(s scanner) (models.Record, error) {
			var (
				n     models.PhoneNumber
				house sql.NullString
			)
			err := s.Scan(&n.ID, &n.TerritoryID, &n.CongregationID, &n.Number, &house)
			n.House = stringPtr(house)
			return n, err
		},
	},
	models.TablePhoneCall: {
		parentCol: "number_id",
		columns:   []string{"number_id", "date", "notes", "user"},
		scope:     "number_id IN (" + numbersOf + ")",
		values: func(r models.Record) []any {
			c := r.(models.PhoneCall)
			return []any{c.PhoneNumberID, c.Date, c.Notes, c.User}
		},
		scan: func(s scanner) (models.Record, error) {
			var c models.PhoneCall
			err := s.Scan(&c.ID, &c.PhoneNumberID, &c.Date, &c.Notes, &c.User)
			return c, err
		},
	},
	models.TableToken: {
		parentCol: "congregation_id",
		columns:   []string{"congregation_id", "name", "owner", "moderator", "expire", "user"},
		scope:     "congregation_id = ?",
		values: func(r models.Record) []any {
			t := r.(models.Token)
			return []any{t.CongregationID, t.Name, t.Owner, t.Moderator, optional(t.Expire), optional(t.User)}
		},
		scan: func(s scanner) (models.Record, error) {
			var (
				t      models.Token
				expire sql.NullInt64
				user   sql.NullString
			)
			err := s.Scan(&t.ID, &t.CongregationID, &t.Name, &t.Owner, &t.Moderator, &expire, &user)
			t.Expire = intPtr(expire)
			t.User = stringPtr(user)
			return t, err
		},
	},
	models.TableTokenTerritory: {
		parentCol: "token_id",
		columns:   []string{"token_id", "territory_id"},
		scope:     "token_id IN (" + tokensOf + ")",
		values: func(r models.Record) []any {
			tt := r.(models.TokenTerritory)
			return []any{tt.TokenID, tt.TerritoryID}
		},
		scan: func(s scanner) (models.Record, error) {
			var (
				tt models.TokenTerritory
				id string
			)
			err := s.Scan(&id, &tt.TokenID, &tt.TerritoryID)
			return tt, err
		},
	},
	models.TableUserToken: {
		parentCol: "token_id",
		columns:   []string{"token_id", "user_id", "user_name", "blocked"},
		scope:     "token_id IN (" + tokensOf + ")",
		values: func(r models.Record) []any {
			ut := r.(models.UserToken)
			return []any{ut.TokenID, ut.UserID, ut.UserName, ut.Blocked}
		},
		scan: func(s scanner) (models.Record, error) {
			var (
				ut models.UserToken
				id string
			)
			err := s.Scan(&id, &ut.TokenID, &ut.UserID, &ut.UserName, &ut.Blocked)
			return ut, err
		},
	},
}

func init() {
	for t, d := range descriptors {
		d.table = t
		d.selectSQL = fmt.Sprintf("SELECT id, %s FROM %s", strings.Join(d.columns, ", "), t)

		sets := make([]string, len(d.columns))
		for i, c := range d.columns {
			sets[i] = c + " = excluded." + c
		}
		d.upsertSQL = fmt.Sprintf(
			"INSERT INTO %s (id, %s) VALUES (?%s) ON CONFLICT(id) DO UPDATE SET %s",
			t, strings.Join(d.columns, ", "), strings.Repeat(", ?", len(d.columns)), strings.Join(sets, ", "),
		)
	}
}

func describe(t models.Table) (*descriptor, error) {
	d, ok := descriptors[t]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", t)
	}
	return d, nil
}

// Equal reports whether two records of the same table hold identical
// scalar fields.
func Equal(a, b models.Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Table() != b.Table() || a.Key() != b.Key() {
		return false
	}
	d, err := describe(a.Table())
	if err != nil {
		return false
	}
	va, vb := d.values(a), d.values(b)
	for i := range va {
		if va[i] != vb[i] {
			return false
		}
	}
	return true
}

func optional[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
