package mvcc

import (
	"encoding/json"

	"miniql/internal/core"
	"miniql/internal/enginerr"
)

// Catalog and row values persist as JSON. The teacher's own
// internal/output package serializes its structured results the same
// way; no third-party binary codec appears anywhere in the retrieved
// example set for this concern, so the standard library's encoder is
// used directly rather than inventing one.

func marshalRow(row *core.Row) []byte {
	b, _ := json.Marshal(row)
	return b
}

func unmarshalRow(data []byte) (*core.Row, error) {
	var row core.Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, &enginerr.SerializationError{Message: err.Error()}
	}
	return &row, nil
}

func marshalTableDef(def *core.TableDef) []byte {
	b, _ := json.Marshal(def)
	return b
}

func unmarshalTableDef(data []byte) (*core.TableDef, error) {
	var def core.TableDef
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, &enginerr.SerializationError{Message: err.Error()}
	}
	return &def, nil
}

func marshalUserRecord(u *core.UserRecord) []byte {
	b, _ := json.Marshal(u)
	return b
}

func unmarshalUserRecord(data []byte) (*core.UserRecord, error) {
	var u core.UserRecord
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, &enginerr.SerializationError{Message: err.Error()}
	}
	return &u, nil
}
