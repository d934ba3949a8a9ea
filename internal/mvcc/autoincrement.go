package mvcc

import (
	"math"

	"miniql/internal/keycodec"
	"miniql/internal/kvstore"
)

// AllocateAutoIncrement reads the table's next-id counter, bumps it
// (saturating at i64::MAX), and returns the id allocated to the
// caller. The counter defaults to 1 if uninitialized; use
// EnsureAutoIncrementInitialized first to seed it from a table's
// existing max pk.
func (s *Store) AllocateAutoIncrement(db, table string) (int64, error) {
	s.aiMu.Lock()
	defer s.aiMu.Unlock()

	key := keycodec.AutoIncrementKey(db, table)
	cur, err := s.readCounter(key, 1)
	if err != nil {
		return 0, err
	}
	next := cur
	if cur < math.MaxInt64 {
		next = cur + 1
	}
	if err := s.kv.Insert(kvstore.NamespaceCatalog, key, keycodec.EncodeUint64(uint64(next))); err != nil {
		return 0, err
	}
	if err := s.kv.Flush(); err != nil {
		return 0, err
	}
	return cur, nil
}

// BumpAutoIncrementNext raises the counter to max(current, next); a
// no-op if next <= 0.
func (s *Store) BumpAutoIncrementNext(db, table string, next int64) error {
	if next <= 0 {
		return nil
	}
	s.aiMu.Lock()
	defer s.aiMu.Unlock()

	key := keycodec.AutoIncrementKey(db, table)
	cur, err := s.readCounter(key, 1)
	if err != nil {
		return err
	}
	if next <= cur {
		return nil
	}
	if err := s.kv.Insert(kvstore.NamespaceCatalog, key, keycodec.EncodeUint64(uint64(next))); err != nil {
		return err
	}
	return s.kv.Flush()
}

// AutoIncrementNext returns the table's current counter value, if one
// has been initialized.
func (s *Store) AutoIncrementNext(db, table string) (int64, bool, error) {
	key := keycodec.AutoIncrementKey(db, table)
	value, ok, err := s.kv.Get(kvstore.NamespaceCatalog, key)
	if err != nil {
		return 0, false, err
	}
	if !ok || len(value) != 8 {
		return 0, false, nil
	}
	return int64(keycodec.DecodeUint64(value)), true, nil
}

// EnsureAutoIncrementInitialized seeds the counter to maxPK+1 if it
// has not been initialized yet; a no-op otherwise.
func (s *Store) EnsureAutoIncrementInitialized(db, table string, maxPK int64) error {
	s.aiMu.Lock()
	defer s.aiMu.Unlock()

	key := keycodec.AutoIncrementKey(db, table)
	_, ok, err := s.kv.Get(kvstore.NamespaceCatalog, key)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	seed := maxPK + 1
	if seed < 1 {
		seed = 1
	}
	if err := s.kv.Insert(kvstore.NamespaceCatalog, key, keycodec.EncodeUint64(uint64(seed))); err != nil {
		return err
	}
	return s.kv.Flush()
}

func (s *Store) readCounter(key []byte, dflt int64) (int64, error) {
	value, ok, err := s.kv.Get(kvstore.NamespaceCatalog, key)
	if err != nil {
		return 0, err
	}
	if !ok || len(value) != 8 {
		return dflt, nil
	}
	return int64(keycodec.DecodeUint64(value)), nil
}
