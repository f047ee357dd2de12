package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is one row of any table.
type Record interface {
	Table() Table
	// Key is the primary id within the table.
	Key() string
	// ParentKey is the id of the owning row in Table().Parent(), "" for roots.
	ParentKey() string
}

// AllTerritories is the TokenTerritory.TerritoryID value granting every
// territory and phone territory of the token's congregation.
const AllTerritories = "*"

type Congregation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Territory struct {
	ID             string  `json:"id"`
	CongregationID string  `json:"congregationId"`
	Number         int64   `json:"number"`
	Description    string  `json:"description"`
	Image          *string `json:"image,omitempty"`
}

type TerritoryAddress struct {
	ID          string `json:"id"`
	TerritoryID string `json:"territoryId"`
	Address     string `json:"address"`
	Floors      *int64 `json:"floors,omitempty"`
}

type House struct {
	ID        string `json:"id"`
	AddressID string `json:"territoryAddressId"`
	Number    string `json:"number"`
	Floor     *int64 `json:"floor,omitempty"`
}

type Visit struct {
	ID      string `json:"id"`
	HouseID string `json:"houseId"`
	// Date is epoch milliseconds.
	Date   int64  `json:"date"`
	Notes  string `json:"notes"`
	Symbol Symbol `json:"symbol"`
	User   string `json:"user"`
}

type PhoneTerritory struct {
	ID             string  `json:"id"`
	CongregationID string  `json:"congregationId"`
	Number         int64   `json:"number"`
	Description    string  `json:"description"`
	Image          *string `json:"image,omitempty"`
}

type PhoneNumber struct {
	ID             string  `json:"id"`
	TerritoryID    string  `json:"phoneTerritoryId"`
	CongregationID string  `json:"congregationId"`
	Number         string  `json:"number"`
	House          *string `json:"house,omitempty"`
}

type PhoneCall struct {
	ID            string `json:"id"`
	PhoneNumberID string `json:"phoneNumberId"`
	Date          int64  `json:"date"`
	Notes         string `json:"notes"`
	User          string `json:"user"`
}

type Token struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Owner          string `json:"owner"`
	CongregationID string `json:"congregationId"`
	Moderator      bool   `json:"moderator"`
	// Expire is epoch milliseconds; nil never expires.
	Expire *int64  `json:"expire,omitempty"`
	User   *string `json:"user,omitempty"`
}

// Expired reports whether the token is past its expiry at nowMillis.
func (t Token) Expired(nowMillis int64) bool {
	return t.Expire != nil && *t.Expire <= nowMillis
}

type TokenTerritory struct {
	TokenID     string `json:"tokenId"`
	TerritoryID string `json:"territoryId"`
}

// GrantsAll reports whether this is an all-territories grant.
func (tt TokenTerritory) GrantsAll() bool { return tt.TerritoryID == AllTerritories }

type UserToken struct {
	TokenID  string `json:"tokenId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Blocked  bool   `json:"blocked"`
}

func (Congregation) Table() Table { return TableCongregation }
func (Territory) Table() Table { return TableTerritory }
func (TerritoryAddress) Table() Table { return TableAddress }
func (House) Table() Table { return TableHouse }
func (Visit) Table() Table { return TableVisit }
func (PhoneTerritory) Table() Table { return TablePhoneTerritory }
func (PhoneNumber) Table() Table { return TablePhoneNumber }
func (PhoneCall) Table() Table { return TablePhoneCall }
func (Token) Table() Table { return TableToken }
func (TokenTerritory) Table() Table { return TableTokenTerritory }
func (UserToken) Table() Table { return TableUserToken }

func (c Congregation) Key() string { return c.ID }
func (t Territory) Key() string { return t.ID }
func (a TerritoryAddress) Key() string { return a.ID }
func (h House) Key() string { return h.ID }
func (v Visit) Key() string { return v.ID }
func (p PhoneTerritory) Key() string { return p.ID }
func (n PhoneNumber) Key() string { return n.ID }
func (c PhoneCall) Key() string { return c.ID }
func (t Token) Key() string { return t.ID }
func (tt TokenTerritory) Key() string { return AssocKey(tt.TokenID, tt.TerritoryID) }
func (ut UserToken) Key() string { return AssocKey(ut.TokenID, ut.UserID) }

func (Congregation) ParentKey() string { return "" }
func (t Territory) ParentKey() string { return t.CongregationID }
func (a TerritoryAddress) ParentKey() string { return a.TerritoryID }
func (h House) ParentKey() string { return h.AddressID }
func (v Visit) ParentKey() string { return v.HouseID }
func (p PhoneTerritory) ParentKey() string { return p.CongregationID }
func (n PhoneNumber) ParentKey() string { return n.TerritoryID }
func (c PhoneCall) ParentKey() string { return c.PhoneNumberID }
func (t Token) ParentKey() string { return t.CongregationID }
func (tt TokenTerritory) ParentKey() string { return tt.TokenID }
func (ut UserToken) ParentKey() string { return ut.TokenID }

// AssocKey derives the primary id of an association row.
func AssocKey(tokenID, otherID string) string { return tokenID + "|" + otherID }

// Symbol is the recorded outcome of a visit.
type Symbol string

const (
	SymbolNone          Symbol = ""
	SymbolNotAtHome     Symbol = "NA"
	SymbolNotInterested Symbol = "NC"
	SymbolVisited       Symbol = "V"
	SymbolOther         Symbol = "O"
)

func (s Symbol) Valid() bool {
	switch s {
	case SymbolNone, SymbolNotAtHome, SymbolNotInterested, SymbolVisited, SymbolOther:
		return true
	}
	return false
}

func (s Symbol) String() string {
	switch s {
	case SymbolNotAtHome:
		return "not at home"
	case SymbolNotInterested:
		return "not interested"
	case SymbolVisited:
		return "visited"
	case SymbolOther:
		return "other"
	}
	return "-"
}

// ParseSymbol accepts a code ("NA") case-insensitively.
func ParseSymbol(s string) (Symbol, error) {
	sym := Symbol(strings.ToUpper(strings.TrimSpace(s)))
	if !sym.Valid() {
		return "", fmt.Errorf("unknown visit symbol %q", s)
	}
	return sym, nil
}

// LeadingNumber parses the numeric prefix of a house label ("12B" -> 12).
func LeadingNumber(label string) (int64, bool) {
	label = strings.TrimSpace(label)
	end := 0
	for end < len(label) && label[end] >= '0' && label[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(label[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// As narrows a record list to a concrete type, skipping mismatches.
func As[T Record](rs []Record) []T {
	out := make([]T, 0, len(rs))
	for _, r := range rs {
		if v, ok := r.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
