// Package mvcc implements the version-chain row store: get/scan under
// a read view, atomic multi-row apply with secondary-index
// maintenance, auto-increment allocation, and catalog persistence
// (databases, tables, users). It is built directly over
// internal/kvstore and internal/keycodec.
package mvcc

import (
	"sort"
	"sync"

	"miniql/internal/core"
	"miniql/internal/enginerr"
	"miniql/internal/keycodec"
	"miniql/internal/kvstore"
)

// Store is the MVCC-aware row store plus catalog, wrapping one
// kvstore.Store instance.
type Store struct {
	kv kvstore.Store

	// aiMu serializes auto-increment read-modify-write sequences; the
	// KV substrate has no native compare-and-swap, so the engine
	// provides it with a process-wide mutex instead of a session lock.
	aiMu sync.Mutex
}

// New wraps an already-opened KV substrate.
func New(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

// Close releases the underlying KV substrate.
func (s *Store) Close() error { return s.kv.Close() }

// RecoverNextTxID reads the persisted max-tx-id watermark and returns
// the id the transaction manager should hand out next. On a fresh
// store this is 1.
func (s *Store) RecoverNextTxID() (uint64, error) {
	value, ok, err := s.kv.Get(kvstore.NamespaceData, keycodec.MetadataMaxTxKey())
	if err != nil {
		return 0, err
	}
	if !ok || len(value) != 8 {
		return 1, nil
	}
	return keycodec.DecodeUint64(value) + 1, nil
}

// RowChange describes one row mutation to apply. Row == nil means a
// tombstone (delete); a non-nil Row is the new version's payload.
// Changes for several tables may be applied in one atomic call, which
// is how the coordinator commits a transaction's whole pending-writes
// buffer as a single batch.
type RowChange struct {
	DB    string
	Table string
	PK    int64
	Row   *core.Row
}

// TableLookup resolves a table definition by (db, table), used by
// ApplyChanges to find index definitions without forcing every caller
// to pre-fetch every table's schema.
type TableLookup func(db, table string) (*core.TableDef, error)

// GetRow returns the newest version of (db, table, pk) visible under
// view, or ok=false if no visible version exists (including when the
// newest visible version is a tombstone).
func (s *Store) GetRow(db, table string, pk int64, view ReadView) (*core.Row, bool, error) {
	prefix := keycodec.RowPKPrefix(db, table, pk)
	kvs, err := s.kv.ScanPrefix(kvstore.NamespaceData, prefix)
	if err != nil {
		return nil, false, err
	}
	for _, kv := range kvs {
		suffix := kv.Key[len(keycodec.RowPrefix(db, table)):]
		_, txID := decodeVersionSuffix(suffix)
		if !view.Visible(txID) {
			continue
		}
		row, tombstone, derr := decodeRowValue(kv.Value)
		if derr != nil {
			return nil, false, derr
		}
		if tombstone {
			return nil, false, nil
		}
		return row, true, nil
	}
	return nil, false, nil
}

// RowWithPK pairs a scanned row with its primary key.
type RowWithPK struct {
	PK  int64
	Row core.Row
}

// ScanRows performs a single forward prefix scan over every version of
// every row in (db, table) and resolves, per pk, the newest version
// visible under view.
func (s *Store) ScanRows(db, table string, view ReadView) ([]RowWithPK, error) {
	return s.scanRows(db, table, view)
}

// ScanRowsLegacy is ScanRows with a maximal view: it sees every
// committed version regardless of any transaction's active set. Used
// for catalog-level operations where snapshot isolation is not
// required (DDL backfill, information_schema counts).
func (s *Store) ScanRowsLegacy(db, table string) ([]RowWithPK, error) {
	return s.scanRows(db, table, maximalView())
}

// CountRows is len(ScanRowsLegacy(...)).
func (s *Store) CountRows(db, table string) (uint64, error) {
	rows, err := s.ScanRowsLegacy(db, table)
	if err != nil {
		return 0, err
	}
	return uint64(len(rows)), nil
}

func (s *Store) scanRows(db, table string, view ReadView) ([]RowWithPK, error) {
	prefix := keycodec.RowPrefix(db, table)
	kvs, err := s.kv.ScanPrefix(kvstore.NamespaceData, prefix)
	if err != nil {
		return nil, err
	}

	var out []RowWithPK
	var lastPK int64
	havePK := false
	resolvedPK := false

	for _, kv := range kvs {
		suffix := kv.Key[len(prefix):]
		pk, txID := decodeVersionSuffix(suffix)

		if !havePK || pk != lastPK {
			lastPK = pk
			havePK = true
			resolvedPK = false
		}
		if resolvedPK {
			continue
		}
		if !view.Visible(txID) {
			continue
		}
		resolvedPK = true
		row, tombstone, derr := decodeRowValue(kv.Value)
		if derr != nil {
			return nil, derr
		}
		if tombstone {
			continue
		}
		out = append(out, RowWithPK{PK: pk, Row: *row})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PK < out[j].PK })
	return out, nil
}

// ApplyChanges atomically writes new row versions for every change,
// maintains secondary indexes against each change's table index
// definitions (resolved via lookup), and advances the persisted
// max-tx-id watermark. Either every change lands or none do.
func (s *Store) ApplyChanges(lookup TableLookup, changes []RowChange, txID uint64) error {
	var ops []kvstore.Op
	tableCache := map[string]*core.TableDef{}

	for _, change := range changes {
		table, err := s.cachedTable(tableCache, lookup, change.DB, change.Table)
		if err != nil {
			return err
		}

		oldRow, hadOld, err := s.latestAnyVersion(change.DB, change.Table, change.PK)
		if err != nil {
			return err
		}

		versionKey := keycodec.RowVersionKey(change.DB, change.Table, change.PK, txID)
		ops = append(ops, kvstore.Op{
			Namespace: kvstore.NamespaceData,
			Key:       versionKey,
			Value:     encodeRowValue(change.Row),
		})

		for _, idx := range table.Indexes {
			colIdx := table.ColumnIndex(firstIndexColumn(idx))
			if colIdx < 0 {
				continue
			}
			if hadOld {
				oldCell := oldRow.Values[colIdx]
				ops = append(ops, kvstore.Op{
					Namespace: kvstore.NamespaceData,
					Key:       keycodec.IndexEntryKey(change.DB, change.Table, idx.Name, oldCell, change.PK),
					Value:     nil,
				})
			}
			if change.Row != nil {
				newCell := change.Row.Values[colIdx]
				ops = append(ops, kvstore.Op{
					Namespace: kvstore.NamespaceData,
					Key:       keycodec.IndexEntryKey(change.DB, change.Table, idx.Name, newCell, change.PK),
					Value:     []byte{},
				})
			}
		}
	}

	maxTx, err := s.currentMaxTxID()
	if err != nil {
		return err
	}
	if txID > maxTx {
		ops = append(ops, kvstore.Op{
			Namespace: kvstore.NamespaceData,
			Key:       keycodec.MetadataMaxTxKey(),
			Value:     keycodec.EncodeUint64(txID),
		})
	}

	if err := s.kv.ApplyBatch(ops); err != nil {
		return err
	}
	return s.kv.Flush()
}

func (s *Store) cachedTable(cache map[string]*core.TableDef, lookup TableLookup, db, table string) (*core.TableDef, error) {
	key := db + "\x00" + table
	if def, ok := cache[key]; ok {
		return def, nil
	}
	def, err := lookup(db, table)
	if err != nil {
		return nil, err
	}
	cache[key] = def
	return def, nil
}

func firstIndexColumn(idx core.IndexDef) string {
	if len(idx.Columns) == 0 {
		return ""
	}
	return idx.Columns[0]
}

func (s *Store) currentMaxTxID() (uint64, error) {
	value, ok, err := s.kv.Get(kvstore.NamespaceData, keycodec.MetadataMaxTxKey())
	if err != nil {
		return 0, err
	}
	if !ok || len(value) != 8 {
		return 0, nil
	}
	return keycodec.DecodeUint64(value), nil
}

// latestAnyVersion returns the newest version of a row regardless of
// visibility, used internally to compute stale index entries to
// retract when applying a new version.
func (s *Store) latestAnyVersion(db, table string, pk int64) (*core.Row, bool, error) {
	row, ok, err := s.GetRow(db, table, pk, maximalView())
	return row, ok, err
}

func decodeVersionSuffix(suffix []byte) (pk int64, txID uint64) {
	return keycodec.DecodeRowVersionKey(suffix)
}

func decodeRowValue(value []byte) (*core.Row, bool, error) {
	if len(value) == 0 {
		return nil, false, &enginerr.SerializationError{Message: "empty row value"}
	}
	if value[0] == rowTagTombstone {
		return nil, true, nil
	}
	row, err := unmarshalRow(value[1:])
	if err != nil {
		return nil, false, err
	}
	return row, false, nil
}

func encodeRowValue(row *core.Row) []byte {
	if row == nil {
		return []byte{rowTagTombstone}
	}
	payload := marshalRow(row)
	out := make([]byte, 0, len(payload)+1)
	out = append(out, rowTagPresent)
	out = append(out, payload...)
	return out
}

const (
	rowTagTombstone byte = 0
	rowTagPresent   byte = 1
)
