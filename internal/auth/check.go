package auth

import "miniql/internal/core"

// HasPriv reports whether user holds needed, checking global
// privileges first and falling back to per-database privileges when db
// is non-empty.
func HasPriv(user *core.UserRecord, db string, needed Priv) bool {
	if Priv(user.GlobalPrivs).Contains(needed) {
		return true
	}
	if db == "" {
		return false
	}
	bits, ok := user.DBPrivs[db]
	if !ok {
		return false
	}
	return Priv(bits).Contains(needed)
}
