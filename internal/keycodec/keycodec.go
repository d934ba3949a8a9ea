// Package keycodec maps logical catalog and row entities to the raw,
// lexicographically ordered byte keys the storage engine persists.
// Every function here is pure: it knows nothing about which namespace
// ("catalog" or "data") a key belongs to — internal/kvstore prefixes
// that tag before a key reaches the KV substrate.
package keycodec

import (
	"encoding/binary"
	"math"

	"miniql/internal/core"
)

const (
	tagDatabase      = "d"
	tagTable         = "t"
	tagUser          = "u"
	tagAutoIncrement = "ai"
	tagRow           = "r"
	tagIndex         = "i"
	tagMeta          = "m"
)

const sep = 0x00

func join(parts ...string) []byte {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		buf = append(buf, p...)
		buf = append(buf, sep)
	}
	return buf[:len(buf)-1]
}

// DatabaseKey is the marker key for a database's existence.
func DatabaseKey(db string) []byte {
	return join(tagDatabase, db)
}

// TableKey addresses a table's serialized definition.
func TableKey(db, table string) []byte {
	return join(tagTable, db, table)
}

// UserKey addresses a user@host record.
func UserKey(user, host string) []byte {
	return join(tagUser, user, host)
}

// AutoIncrementKey addresses a table's next-id counter.
func AutoIncrementKey(db, table string) []byte {
	return join(tagAutoIncrement, db, table)
}

// MetadataMaxTxKey addresses the durable max-tx-id watermark.
func MetadataMaxTxKey() []byte {
	return join(tagMeta, "max_tx_id")
}

// EncodeUint64 renders n as 8 big-endian bytes.
func EncodeUint64(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

// DecodeUint64 reads 8 big-endian bytes back into a uint64.
func DecodeUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// InvertTx computes the inverted transaction id used so that a prefix
// scan over a row's versions yields them newest-writer-first.
func InvertTx(txID uint64) uint64 {
	return math.MaxUint64 - txID
}

// RowPrefix is the prefix shared by every version of every row in a
// table: `r\0<db>\0<table>\0`.
func RowPrefix(db, table string) []byte {
	return append(join(tagRow, db, table), sep)
}

// RowPKPrefix is the prefix shared by every version of one row:
// `r\0<db>\0<table>\0<pk:be64>`. A prefix scan on this key yields that
// row's versions ordered newest-writer-first.
func RowPKPrefix(db, table string, pk int64) []byte {
	buf := RowPrefix(db, table)
	buf = append(buf, EncodeUint64(uint64(pk))...)
	return buf
}

// RowVersionKey addresses one version of one row, written by txID.
func RowVersionKey(db, table string, pk int64, txID uint64) []byte {
	buf := RowPKPrefix(db, table, pk)
	buf = append(buf, EncodeUint64(InvertTx(txID))...)
	return buf
}

// DecodeRowVersionKey extracts the pk and writer tx id from a full row
// version key. key must have RowPrefix(db, table) already stripped by
// the caller (the kvstore layer returns keys without its own namespace
// prefix, but callers still need to strip the logical `r\0db\0table\0`
// prefix themselves via RowPrefix's length).
func DecodeRowVersionKey(suffix []byte) (pk int64, txID uint64) {
	pk = int64(DecodeUint64(suffix[0:8]))
	invTx := DecodeUint64(suffix[8:16])
	txID = math.MaxUint64 - invTx
	return
}

// IndexPrefix is the prefix shared by every entry of one secondary
// index: `i\0<db>\0<table>\0<index>\0`.
func IndexPrefix(db, table, index string) []byte {
	return append(join(tagIndex, db, table, index), sep)
}

// IndexEntryKey addresses one secondary-index entry. The value stored
// at this key is always empty; existence alone is the payload.
func IndexEntryKey(db, table, index string, cell core.Cell, pk int64) []byte {
	buf := IndexPrefix(db, table, index)
	buf = append(buf, EncodeCell(cell)...)
	buf = append(buf, EncodeUint64(uint64(pk))...)
	return buf
}

// cellTag distinguishes encoded cell kinds within an index key so that
// distinct types never collide, and orders Null before every other
// kind, matching core.Cell.Compare's Null-first rule.
const (
	cellTagNull byte = iota
	cellTagInt
	cellTagFloat
	cellTagText
	cellTagDate
	cellTagDateTime
)

// EncodeCell renders a cell into a byte string suitable for embedding
// in a secondary-index key. Int/Date/DateTime use a sign-flipped
// big-endian encoding so the byte order matches numeric order across
// the full int64 range; Float uses an order-preserving bit transform;
// Text is raw UTF-8 bytes followed by a NUL terminator (text values
// must not contain NUL, which SQL text values from this engine never
// do since they come from non-binary string literals).
func EncodeCell(c core.Cell) []byte {
	switch c.Kind {
	case core.KindNull:
		return []byte{cellTagNull}
	case core.KindInt:
		return append([]byte{cellTagInt}, sortableInt64(c.I)...)
	case core.KindFloat:
		return append([]byte{cellTagFloat}, sortableFloat64(c.F)...)
	case core.KindText:
		buf := append([]byte{cellTagText}, []byte(c.S)...)
		return append(buf, sep)
	case core.KindDate:
		return append([]byte{cellTagDate}, sortableInt64(c.I)...)
	case core.KindDateTime:
		return append([]byte{cellTagDateTime}, sortableInt64(c.I)...)
	default:
		return []byte{cellTagNull}
	}
}

// sortableInt64 flips the sign bit so that big-endian byte comparison
// matches signed numeric comparison.
func sortableInt64(v int64) []byte {
	u := uint64(v) ^ (1 << 63)
	return EncodeUint64(u)
}

// sortableFloat64 maps an IEEE-754 double to a uint64 whose big-endian
// byte order matches float numeric order: for non-negative floats,
// flip the sign bit; for negative floats, flip every bit.
func sortableFloat64(f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return EncodeUint64(bits)
}
