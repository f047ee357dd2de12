package models

import "sort"

// Table names a local store table.
type Table string

const (
	TableCongregation   Table = "congregations"
	TableTerritory      Table = "territories"
	TableAddress        Table = "territory_addresses"
	TableHouse          Table = "houses"
	TableVisit          Table = "visits"
	TablePhoneTerritory Table = "phone_territories"
	TablePhoneNumber    Table = "phone_numbers"
	TablePhoneCall      Table = "phone_calls"
	TableToken          Table = "tokens"
	TableTokenTerritory Table = "token_territories"
	TableUserToken      Table = "user_tokens"
)

// Tables lists every table in dependency order: a parent always precedes
// its children.
var Tables = []Table{
	TableCongregation,
	TableTerritory,
	TablePhoneTerritory,
	TableAddress,
	TablePhoneNumber,
	TableHouse,
	TablePhoneCall,
	TableVisit,
	TableToken,
	TableTokenTerritory,
	TableUserToken,
}

var ranks = func() map[Table]int {
	m := make(map[Table]int, len(Tables))
	for i, t := range Tables {
		m[t] = i
	}
	return m
}()

// Rank is the position of t in Tables, or -1 for an unknown table.
func (t Table) Rank() int {
	r, ok := ranks[t]
	if !ok {
		return -1
	}
	return r
}

func (t Table) Valid() bool { return t.Rank() >= 0 }

func (t Table) String() string { return string(t) }

// SortTables orders ts in dependency order, in place.
func SortTables(ts []Table) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Rank() < ts[j].Rank() })
}

// Parent returns the table that owns rows of t, or "" for the root.
func (t Table) Parent() Table {
	switch t {
	case TableTerritory, TablePhoneTerritory, TableToken:
		return TableCongregation
	case TableAddress:
		return TableTerritory
	case TableHouse:
		return TableAddress
	case TableVisit:
		return TableHouse
	case TablePhoneNumber:
		return TablePhoneTerritory
	case TablePhoneCall:
		return TablePhoneNumber
	case TableTokenTerritory, TableUserToken:
		return TableToken
	}
	return ""
}

// Children returns the tables whose rows are owned by rows of t.
func (t Table) Children() []Table {
	var out []Table
	for _, c := range Tables {
		if c.Parent() == t {
			out = append(out, c)
		}
	}
	return out
}
