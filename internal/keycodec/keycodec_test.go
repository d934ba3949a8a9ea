package keycodec

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"miniql/internal/core"
)

func TestRowVersionKeyOrdersNewestFirst(t *testing.T) {
	k1 := RowVersionKey("db", "t", 1, 5)
	k2 := RowVersionKey("db", "t", 1, 9)
	assert.True(t, bytes.Compare(k2, k1) < 0, "higher tx id must sort first (inverted)")
}

func TestRowPKPrefixScopesToOnePK(t *testing.T) {
	prefix := RowPKPrefix("db", "t", 7)
	k := RowVersionKey("db", "t", 7, 3)
	assert.True(t, bytes.HasPrefix(k, prefix))
	other := RowVersionKey("db", "t", 8, 3)
	assert.False(t, bytes.HasPrefix(other, prefix))
}

func TestEncodeCellOrdersIntegersNumerically(t *testing.T) {
	values := []int64{-100, -1, 0, 1, 100, 1 << 40}
	encoded := make([][]byte, len(values))
	for i, v := range values {
		encoded[i] = EncodeCell(core.IntCell(v))
	}
	sorted := append([][]byte(nil), encoded...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })
	assert.Equal(t, encoded, sorted)
}

func TestEncodeCellOrdersFloatsNumerically(t *testing.T) {
	values := []float64{-3.5, -1.0, 0.0, 0.5, 2.25, 100.0}
	encoded := make([][]byte, len(values))
	for i, v := range values {
		encoded[i] = EncodeCell(core.FloatCell(v))
	}
	sorted := append([][]byte(nil), encoded...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })
	assert.Equal(t, encoded, sorted)
}

func TestEncodeCellNullSortsFirst(t *testing.T) {
	nullKey := EncodeCell(core.NullCell())
	intKey := EncodeCell(core.IntCell(-999999))
	assert.True(t, bytes.Compare(nullKey, intKey) < 0)
}

func TestIndexEntryKeyPrefix(t *testing.T) {
	prefix := IndexPrefix("db", "t", "idx_name")
	key := IndexEntryKey("db", "t", "idx_name", core.TextCell("alice"), 42)
	assert.True(t, bytes.HasPrefix(key, prefix))
}

func TestDecodeRowVersionKeyRoundTrips(t *testing.T) {
	full := RowVersionKey("db", "t", 12345, 77)
	suffix := full[len(RowPrefix("db", "t")):]
	pk, txID := DecodeRowVersionKey(suffix)
	assert.Equal(t, int64(12345), pk)
	assert.Equal(t, uint64(77), txID)
}
