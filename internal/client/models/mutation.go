package models

import "fmt"

// Op is a mutation kind.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Mutation is a create/update/delete request for one row.
type Mutation struct {
	Op    Op
	Table Table
	// Record carries the row for OpUpsert.
	Record Record
	// ID names the row for OpDelete.
	ID string
}

func Upsert(r Record) Mutation {
	return Mutation{Op: OpUpsert, Table: r.Table(), Record: r, ID: r.Key()}
}

func Delete(t Table, id string) Mutation {
	return Mutation{Op: OpDelete, Table: t, ID: id}
}

func (m Mutation) Validate() error {
	if !m.Table.Valid() {
		return fmt.Errorf("unknown table %q", m.Table)
	}
	switch m.Op {
	case OpUpsert:
		if m.Record == nil {
			return fmt.Errorf("upsert %s: missing record", m.Table)
		}
		if m.Record.Table() != m.Table {
			return fmt.Errorf("upsert %s: record belongs to %s", m.Table, m.Record.Table())
		}
		if m.Record.Key() == "" {
			return fmt.Errorf("upsert %s: empty id", m.Table)
		}
	case OpDelete:
		if m.ID == "" {
			return fmt.Errorf("delete %s: empty id", m.Table)
		}
	default:
		return fmt.Errorf("unknown op %q", m.Op)
	}
	return nil
}

// MutationResult is the server-confirmed outcome of a Mutation. For
// OpUpsert Record is the stored row, which may differ from the request.
type MutationResult struct {
	Op     Op
	Table  Table
	Record Record
	ID     string
	// Grants is set on token upserts whose reply lists the token's
	// territories. It is the complete grant set of that token.
	Grants []TokenTerritory
}
