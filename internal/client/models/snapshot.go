package models

import (
	"errors"
	"fmt"
)

// Snapshot is the complete main-congregation row set.
type Snapshot struct {
	Congregations    []Congregation     `json:"congregations"`
	Territories      []Territory        `json:"territories"`
	Addresses        []TerritoryAddress `json:"addresses"`
	Houses           []House            `json:"houses"`
	Visits           []Visit            `json:"visits"`
	Tokens           []Token            `json:"tokens"`
	TokenTerritories []TokenTerritory   `json:"tokenTerritories"`
	UserTokens       []UserToken        `json:"userTokens"`
}

// PhoneSnapshot is the complete phone-book row set.
type PhoneSnapshot struct {
	Congregations []Congregation   `json:"congregations"`
	Territories   []PhoneTerritory `json:"territories"`
	Numbers       []PhoneNumber    `json:"numbers"`
	Calls         []PhoneCall      `json:"calls"`
}

// Records returns the snapshot grouped by table. Every table the snapshot
// covers is present, possibly with an empty slice.
func (s Snapshot) Records() map[Table][]Record {
	return map[Table][]Record{
		TableCongregation:   records(s.Congregations),
		TableTerritory:      records(s.Territories),
		TableAddress:        records(s.Addresses),
		TableHouse:          records(s.Houses),
		TableVisit:          records(s.Visits),
		TableToken:          records(s.Tokens),
		TableTokenTerritory: records(s.TokenTerritories),
		TableUserToken:      records(s.UserTokens),
	}
}

func (s PhoneSnapshot) Records() map[Table][]Record {
	return map[Table][]Record{
		TableCongregation:   records(s.Congregations),
		TablePhoneTerritory: records(s.Territories),
		TablePhoneNumber:    records(s.Numbers),
		TablePhoneCall:      records(s.Calls),
	}
}

func records[T Record](in []T) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r
	}
	return out
}

// Validate checks that the snapshot is self-consistent for congregationID:
// ids are unique and non-empty, every child references a parent inside the
// snapshot and every congregation-owned row belongs to congregationID.
func (s Snapshot) Validate(congregationID string) error {
	v := newValidator(s.Records())
	v.congregations(congregationID)
	for _, t := range s.Territories {
		v.owned(TableTerritory, t.ID, t.CongregationID, congregationID)
	}
	for _, t := range s.Tokens {
		v.owned(TableToken, t.ID, t.CongregationID, congregationID)
	}
	for _, vi := range s.Visits {
		if !vi.Symbol.Valid() {
			v.fail("visit %s: unknown symbol %q", vi.ID, vi.Symbol)
		}
	}
	for _, tt := range s.TokenTerritories {
		if tt.TerritoryID == "" {
			v.fail("token %s: empty territory grant", tt.TokenID)
		}
	}
	for _, ut := range s.UserTokens {
		if ut.UserID == "" {
			v.fail("token %s: registration without user", ut.TokenID)
		}
	}
	v.parents(TableTerritory, TableToken, TableAddress, TableHouse, TableVisit, TableTokenTerritory, TableUserToken)
	return v.err()
}

func (s PhoneSnapshot) Validate(congregationID string) error {
	v := newValidator(s.Records())
	v.congregations(congregationID)
	for _, t := range s.Territories {
		v.owned(TablePhoneTerritory, t.ID, t.CongregationID, congregationID)
	}
	for _, n := range s.Numbers {
		v.owned(TablePhoneNumber, n.ID, n.CongregationID, congregationID)
	}
	v.parents(TablePhoneTerritory, TablePhoneNumber, TablePhoneCall)
	return v.err()
}

type validator struct {
	rows map[Table][]Record
	ids  map[Table]map[string]struct{}
	errs []error
}

func newValidator(rows map[Table][]Record) *validator {
	v := &validator{rows: rows, ids: make(map[Table]map[string]struct{}, len(rows))}
	for t, rs := range rows {
		set := make(map[string]struct{}, len(rs))
		for _, r := range rs {
			k := r.Key()
			if k == "" || r.ParentKey() == "" && t != TableCongregation {
				v.fail("%s: row with empty id or parent", t)
				continue
			}
			if _, dup := set[k]; dup {
				v.fail("%s: duplicate id %q", t, k)
			}
			set[k] = struct{}{}
		}
		v.ids[t] = set
	}
	return v
}

func (v *validator) fail(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) congregations(scope string) {
	for _, r := range v.rows[TableCongregation] {
		if r.Key() != scope {
			v.fail("congregation %q outside scope %q", r.Key(), scope)
		}
	}
}

func (v *validator) owned(t Table, id, congregationID, scope string) {
	if congregationID != scope {
		v.fail("%s %s: congregation %q outside scope %q", t, id, congregationID, scope)
	}
}

func (v *validator) parents(tables ...Table) {
	for _, t := range tables {
		parents := v.ids[t.Parent()]
		for _, r := range v.rows[t] {
			if _, ok := parents[r.ParentKey()]; !ok {
				v.fail("%s %s: unknown %s %q", t, r.Key(), t.Parent(), r.ParentKey())
			}
		}
	}
}

func (v *validator) err() error { return errors.Join(v.errs...) }
