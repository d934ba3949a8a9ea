package auth

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniql/internal/core"
)

func sha1Of(data []byte) [20]byte { return sha1.Sum(data) }

func TestParsePrivListAll(t *testing.T) {
	p, err := ParsePrivList("all privileges")
	require.NoError(t, err)
	assert.Equal(t, Priv(PrivAll), p)
}

func TestParsePrivListCommaSeparated(t *testing.T) {
	p, err := ParsePrivList("SELECT, insert, Update")
	require.NoError(t, err)
	assert.True(t, p.Contains(PrivSelect))
	assert.True(t, p.Contains(PrivInsert))
	assert.True(t, p.Contains(PrivUpdate))
	assert.False(t, p.Contains(PrivDelete))
}

func TestParsePrivListRejectsUnknown(t *testing.T) {
	_, err := ParsePrivList("BOGUS")
	assert.Error(t, err)
}

func TestNativePasswordRoundTrip(t *testing.T) {
	stage2 := Stage2FromPassword([]byte("hunter2"))
	salt := []byte("01234567890123456789")

	h := sha1Fixture(t, salt, stage2)
	assert.True(t, VerifyNativePasswordToken(salt, stage2, h))
}

func TestEmptyPasswordAcceptsEmptyToken(t *testing.T) {
	assert.True(t, VerifyMySQLNativePassword([]byte("salt"), nil, nil))
	assert.False(t, VerifyMySQLNativePassword([]byte("salt"), []byte("nonempty-20-byte!!!!"), nil))
}

func TestHasPrivGlobalThenDB(t *testing.T) {
	u := &core.UserRecord{
		GlobalPrivs: uint64(PrivSelect),
		DBPrivs:     map[string]uint64{"app": uint64(PrivInsert)},
	}
	assert.True(t, HasPriv(u, "other", PrivSelect))
	assert.False(t, HasPriv(u, "other", PrivInsert))
	assert.True(t, HasPriv(u, "app", PrivInsert))
}

// sha1Fixture reproduces the client side of the handshake: token =
// SHA1(password) XOR SHA1(salt || stage2).
func sha1Fixture(t *testing.T, salt []byte, stage2 [20]byte) []byte {
	t.Helper()
	stage1 := stage1FromPassword(t, "hunter2")
	mixed := mixedHash(salt, stage2)
	token := make([]byte, 20)
	for i := range token {
		token[i] = stage1[i] ^ mixed[i]
	}
	return token
}

func stage1FromPassword(t *testing.T, password string) [20]byte {
	t.Helper()
	return sha1Of([]byte(password))
}

func mixedHash(salt []byte, stage2 [20]byte) [20]byte {
	buf := append(append([]byte{}, salt...), stage2[:]...)
	return sha1Of(buf)
}
