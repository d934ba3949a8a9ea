package auth

import "crypto/sha1"

// Stage2FromPassword computes SHA1(SHA1(password)), the form stored
// for a mysql_native_password user record.
func Stage2FromPassword(password []byte) [20]byte {
	stage1 := sha1.Sum(password)
	return sha1.Sum(stage1[:])
}

// VerifyNativePasswordToken checks a mysql_native_password auth
// response: the client sent authData = SHA1(password) XOR
// SHA1(salt || storedStage2); this recovers SHA1(password) and
// re-hashes it to compare against storedStage2.
func VerifyNativePasswordToken(salt []byte, storedStage2 [20]byte, authData []byte) bool {
	if len(authData) != 20 {
		return false
	}
	h := sha1.New()
	h.Write(salt)
	h.Write(storedStage2[:])
	var saltStage2Hash [20]byte
	copy(saltStage2Hash[:], h.Sum(nil))

	var stage1 [20]byte
	for i := 0; i < 20; i++ {
		stage1[i] = authData[i] ^ saltStage2Hash[i]
	}
	stage2Check := sha1.Sum(stage1[:])
	return stage2Check == storedStage2
}

// VerifyMySQLNativePassword accepts an empty authData when
// storedStage2 is nil (empty-password login), otherwise delegates to
// VerifyNativePasswordToken.
func VerifyMySQLNativePassword(salt, authData []byte, storedStage2 *[20]byte) bool {
	if storedStage2 == nil {
		return len(authData) == 0
	}
	return VerifyNativePasswordToken(salt, *storedStage2, authData)
}
