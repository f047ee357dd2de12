package client

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/common"
	"github.com/goccy/go-json"
)

type scopeRequest struct {
	CongregationID string `json:"congregationId"`
}

type pingResponse struct {
	Status string `json:"status"`
}

type mutateRequest struct {
	Op     models.Op       `json:"op"`
	Table  models.Table    `json:"table"`
	ID     string          `json:"id"`
	Record json.RawMessage `json:"record,omitempty"`
}

type mutateResponse struct {
	Op     models.Op       `json:"op"`
	Table  models.Table    `json:"table"`
	ID     string          `json:"id"`
	Record json.RawMessage `json:"record,omitempty"`
}

// wireToken is a token as sent by the server, which may still carry the
// legacy comma-separated territory list.
type wireToken struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Owner          string  `json:"owner"`
	CongregationID string  `json:"congregationId"`
	Moderator      bool    `json:"moderator"`
	Expire         *int64  `json:"expire,omitempty"`
	User           *string `json:"user,omitempty"`
	Territories    *string `json:"territories,omitempty"`
}

func (w wireToken) token() models.Token {
	return models.Token{
		ID:             w.ID,
		Name:           w.Name,
		Owner:          w.Owner,
		CongregationID: w.CongregationID,
		Moderator:      w.Moderator,
		Expire:         w.Expire,
		User:           w.User,
	}
}

// grants expands the legacy list. "all" or "*" grant every territory. A
// token without the list yields nil; an empty list yields no grants.
func (w wireToken) grants() []models.TokenTerritory {
	if w.Territories == nil {
		return nil
	}
	out := []models.TokenTerritory{}
	seen := make(map[string]struct{})
	for _, part := range strings.Split(*w.Territories, ",") {
		id := strings.TrimSpace(part)
		switch {
		case id == "":
			continue
		case strings.EqualFold(id, "all") || id == models.AllTerritories:
			id = models.AllTerritories
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, models.TokenTerritory{TokenID: w.ID, TerritoryID: id})
	}
	return out
}

type wireSnapshot struct {
	Congregations    []models.Congregation     `json:"congregations"`
	Territories      []models.Territory        `json:"territories"`
	Addresses        []models.TerritoryAddress `json:"addresses"`
	Houses           []models.House            `json:"houses"`
	Visits           []models.Visit            `json:"visits"`
	Tokens           []wireToken               `json:"tokens"`
	TokenTerritories []models.TokenTerritory   `json:"tokenTerritories"`
	UserTokens       []models.UserToken        `json:"userTokens"`
}

func (w wireSnapshot) snapshot() models.Snapshot {
	s := models.Snapshot{
		Congregations:    w.Congregations,
		Territories:      w.Territories,
		Addresses:        w.Addresses,
		Houses:           w.Houses,
		Visits:           w.Visits,
		TokenTerritories: w.TokenTerritories,
		UserTokens:       w.UserTokens,
	}
	seen := make(map[string]struct{}, len(w.TokenTerritories))
	for _, tt := range w.TokenTerritories {
		seen[tt.Key()] = struct{}{}
	}
	for _, wt := range w.Tokens {
		s.Tokens = append(s.Tokens, wt.token())
		for _, g := range wt.grants() {
			if _, dup := seen[g.Key()]; dup {
				continue
			}
			seen[g.Key()] = struct{}{}
			s.TokenTerritories = append(s.TokenTerritories, g)
		}
	}
	return s
}

// decodeStrict rejects unknown fields and trailing data.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", common.ErrDecode, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", common.ErrDecode)
	}
	return nil
}

func decodeSnapshot(data []byte, congregationID string) (models.Snapshot, error) {
	var w wireSnapshot
	if err := decodeStrict(data, &w); err != nil {
		return models.Snapshot{}, err
	}
	s := w.snapshot()
	if err := s.Validate(congregationID); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %w", common.ErrDecode, err)
	}
	return s, nil
}

func decodePhoneSnapshot(data []byte, congregationID string) (models.PhoneSnapshot, error) {
	var s models.PhoneSnapshot
	if err := decodeStrict(data, &s); err != nil {
		return models.PhoneSnapshot{}, err
	}
	if err := s.Validate(congregationID); err != nil {
		return models.PhoneSnapshot{}, fmt.Errorf("%w: %w", common.ErrDecode, err)
	}
	return s, nil
}

// decodeRecord decodes one row of table. For tokens carrying the legacy
// territory list the expanded grants come back too.
func decodeRecord(table models.Table, data []byte) (models.Record, []models.TokenTerritory, error) {
	var (
		rec    models.Record
		grants []models.TokenTerritory
		err    error
	)
	switch table {
	case models.TableCongregation:
		rec, err = decodeAs[models.Congregation](data)
	case models.TableTerritory:
		rec, err = decodeAs[models.Territory](data)
	case models.TableAddress:
		rec, err = decodeAs[models.TerritoryAddress](data)
	case models.TableHouse:
		rec, err = decodeAs[models.House](data)
	case models.TableVisit:
		var v models.Visit
		if v, err = decodeAs[models.Visit](data); err == nil && !v.Symbol.Valid() {
			err = fmt.Errorf("%w: unknown visit symbol %q", common.ErrDecode, v.Symbol)
		}
		rec = v
	case models.TablePhoneTerritory:
		rec, err = decodeAs[models.PhoneTerritory](data)
	case models.TablePhoneNumber:
		rec, err = decodeAs[models.PhoneNumber](data)
	case models.TablePhoneCall:
		rec, err = decodeAs[models.PhoneCall](data)
	case models.TableToken:
		var w wireToken
		w, err = decodeAs[wireToken](data)
		rec, grants = w.token(), w.grants()
	case models.TableTokenTerritory:
		rec, err = decodeAs[models.TokenTerritory](data)
	case models.TableUserToken:
		rec, err = decodeAs[models.UserToken](data)
	default:
		return nil, nil, fmt.Errorf("%w: unknown table %q", common.ErrDecode, table)
	}
	if err != nil {
		return nil, nil, err
	}
	if rec.Key() == "" {
		return nil, nil, fmt.Errorf("%w: %s record without id", common.ErrDecode, table)
	}
	return rec, grants, nil
}

func decodeAs[T any](data []byte) (T, error) {
	var v T
	err := decodeStrict(data, &v)
	return v, err
}
