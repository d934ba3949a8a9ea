package kvstore

import (
	"github.com/dgraph-io/badger/v4"

	"miniql/internal/enginerr"
)

// BadgerStore implements Store over a single Badger LSM instance. The
// namespace tag is prepended to every logical key so catalog and data
// entries never collide and a prefix scan in one namespace can never
// wander into the other.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (creating if absent) a Badger database rooted at dir.
func Open(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, &enginerr.StorageError{Message: err.Error()}
	}
	return &BadgerStore{db: db}, nil
}

func nsKey(ns Namespace, key []byte) []byte {
	buf := make([]byte, 0, len(key)+1)
	buf = append(buf, byte(ns))
	buf = append(buf, key...)
	return buf
}

func (s *BadgerStore) Get(ns Namespace, key []byte) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nsKey(ns, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, &enginerr.StorageError{Message: err.Error()}
	}
	return value, value != nil, nil
}

func (s *BadgerStore) Insert(ns Namespace, key, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nsKey(ns, key), value)
	})
	if err != nil {
		return &enginerr.StorageError{Message: err.Error()}
	}
	return nil
}

func (s *BadgerStore) Remove(ns Namespace, key []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(nsKey(ns, key))
	})
	if err != nil {
		return &enginerr.StorageError{Message: err.Error()}
	}
	return nil
}

func (s *BadgerStore) ScanPrefix(ns Namespace, prefix []byte) ([]KV, error) {
	var out []KV
	fullPrefix := nsKey(ns, prefix)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(fullPrefix); it.ValidForPrefix(fullPrefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, KV{Key: key[1:], Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, &enginerr.StorageError{Message: err.Error()}
	}
	return out, nil
}

func (s *BadgerStore) ApplyBatch(ops []Op) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, op := range ops {
		key := nsKey(op.Namespace, op.Key)
		var err error
		if op.Value == nil {
			err = wb.Delete(key)
		} else {
			err = wb.Set(key, op.Value)
		}
		if err != nil {
			return &enginerr.StorageError{Message: err.Error()}
		}
	}
	if err := wb.Flush(); err != nil {
		return &enginerr.StorageError{Message: err.Error()}
	}
	return nil
}

func (s *BadgerStore) Flush() error {
	if err := s.db.Sync(); err != nil {
		return &enginerr.StorageError{Message: err.Error()}
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return &enginerr.StorageError{Message: err.Error()}
	}
	return nil
}
