package mvcc

import (
	"sort"

	"miniql/internal/auth"
	"miniql/internal/core"
	"miniql/internal/enginerr"
	"miniql/internal/keycodec"
	"miniql/internal/kvstore"
)

// EnsureRootUser seeds a root@% user with every privilege and the
// given password if no root user record exists yet. Called once on
// engine open.
func (s *Store) EnsureRootUser(password string) error {
	key := keycodec.UserKey("root", "%")
	_, ok, err := s.kv.Get(kvstore.NamespaceCatalog, key)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	stage2 := auth.Stage2FromPassword([]byte(password))
	record := &core.UserRecord{
		Username:    "root",
		Host:        "%",
		Plugin:      "mysql_native_password",
		AuthStage2:  &stage2,
		GlobalPrivs: auth.PrivAll,
		DBPrivs:     map[string]uint64{},
	}
	return s.PutUser(record)
}

// GetUser looks up a user record, preferring an exact host match of
// "localhost" then "%", and falling back to any record for that
// username.
func (s *Store) GetUser(username string) (*core.UserRecord, bool, error) {
	for _, host := range []string{"localhost", "%"} {
		value, ok, err := s.kv.Get(kvstore.NamespaceCatalog, keycodec.UserKey(username, host))
		if err != nil {
			return nil, false, err
		}
		if ok {
			rec, derr := unmarshalUserRecord(value)
			if derr != nil {
				return nil, false, derr
			}
			return rec, true, nil
		}
	}
	prefix := append([]byte("u\x00"+username), 0)
	kvs, err := s.kv.ScanPrefix(kvstore.NamespaceCatalog, prefix)
	if err != nil {
		return nil, false, err
	}
	if len(kvs) == 0 {
		return nil, false, nil
	}
	rec, err := unmarshalUserRecord(kvs[0].Value)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// PutUser upserts a user record.
func (s *Store) PutUser(u *core.UserRecord) error {
	key := keycodec.UserKey(u.Username, u.Host)
	if err := s.kv.Insert(kvstore.NamespaceCatalog, key, marshalUserRecord(u)); err != nil {
		return err
	}
	return s.kv.Flush()
}

// DropUser removes a user record.
func (s *Store) DropUser(username, host string) error {
	if err := s.kv.Remove(kvstore.NamespaceCatalog, keycodec.UserKey(username, host)); err != nil {
		return err
	}
	return s.kv.Flush()
}

// ListDatabases returns every database name, sorted.
func (s *Store) ListDatabases() ([]string, error) {
	kvs, err := s.kv.ScanPrefix(kvstore.NamespaceCatalog, []byte("d\x00"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, string(kv.Key[2:]))
	}
	sort.Strings(out)
	return out, nil
}

// CreateDatabase creates a new database marker; errors if one exists.
func (s *Store) CreateDatabase(name string) error {
	key := keycodec.DatabaseKey(name)
	_, ok, err := s.kv.Get(kvstore.NamespaceCatalog, key)
	if err != nil {
		return err
	}
	if ok {
		return enginerr.Invalidf("database already exists: %s", name)
	}
	if err := s.kv.Insert(kvstore.NamespaceCatalog, key, []byte{}); err != nil {
		return err
	}
	return s.kv.Flush()
}

// DropDatabase removes a database and cascades to every table
// definition, auto-increment counter, row version, and index entry
// belonging to it.
func (s *Store) DropDatabase(name string) error {
	key := keycodec.DatabaseKey(name)
	_, ok, err := s.kv.Get(kvstore.NamespaceCatalog, key)
	if err != nil {
		return err
	}
	if !ok {
		return enginerr.NotFoundf("unknown database: %s", name)
	}

	tables, err := s.ListTables(name)
	if err != nil {
		return err
	}
	for _, table := range tables {
		if err := s.dropTableData(name, table); err != nil {
			return err
		}
		if err := s.kv.Remove(kvstore.NamespaceCatalog, keycodec.TableKey(name, table)); err != nil {
			return err
		}
	}

	if err := s.kv.Remove(kvstore.NamespaceCatalog, key); err != nil {
		return err
	}
	return s.kv.Flush()
}

// ListTables returns every table name in db, sorted.
func (s *Store) ListTables(db string) ([]string, error) {
	prefix := append([]byte("t\x00"+db), 0)
	kvs, err := s.kv.ScanPrefix(kvstore.NamespaceCatalog, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		rest := kv.Key[len(prefix):]
		out = append(out, string(rest))
	}
	sort.Strings(out)
	return out, nil
}

// GetTable loads a table definition.
func (s *Store) GetTable(db, table string) (*core.TableDef, error) {
	value, ok, err := s.kv.Get(kvstore.NamespaceCatalog, keycodec.TableKey(db, table))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, enginerr.NotFoundf("unknown table: %s.%s", db, table)
	}
	return unmarshalTableDef(value)
}

// CreateTable persists a new table definition under an existing
// database.
func (s *Store) CreateTable(def *core.TableDef) error {
	dbKey := keycodec.DatabaseKey(def.DB)
	_, ok, err := s.kv.Get(kvstore.NamespaceCatalog, dbKey)
	if err != nil {
		return err
	}
	if !ok {
		return enginerr.NotFoundf("unknown database: %s", def.DB)
	}
	key := keycodec.TableKey(def.DB, def.Name)
	_, ok, err = s.kv.Get(kvstore.NamespaceCatalog, key)
	if err != nil {
		return err
	}
	if ok {
		return enginerr.Invalidf("table already exists: %s.%s", def.DB, def.Name)
	}
	if err := s.kv.Insert(kvstore.NamespaceCatalog, key, marshalTableDef(def)); err != nil {
		return err
	}
	return s.kv.Flush()
}

// UpdateTable overwrites an existing table definition, used by ALTER
// TABLE ADD COLUMN and CREATE INDEX.
func (s *Store) UpdateTable(def *core.TableDef) error {
	key := keycodec.TableKey(def.DB, def.Name)
	_, ok, err := s.kv.Get(kvstore.NamespaceCatalog, key)
	if err != nil {
		return err
	}
	if !ok {
		return enginerr.NotFoundf("unknown table: %s.%s", def.DB, def.Name)
	}
	if err := s.kv.Insert(kvstore.NamespaceCatalog, key, marshalTableDef(def)); err != nil {
		return err
	}
	return s.kv.Flush()
}

// DropTable removes a table definition plus every row version, index
// entry, and auto-increment counter belonging to it.
func (s *Store) DropTable(db, table string) error {
	key := keycodec.TableKey(db, table)
	_, ok, err := s.kv.Get(kvstore.NamespaceCatalog, key)
	if err != nil {
		return err
	}
	if !ok {
		return enginerr.NotFoundf("unknown table: %s.%s", db, table)
	}
	if err := s.dropTableData(db, table); err != nil {
		return err
	}
	if err := s.kv.Remove(kvstore.NamespaceCatalog, key); err != nil {
		return err
	}
	return s.kv.Flush()
}

func (s *Store) dropTableData(db, table string) error {
	if err := s.kv.Remove(kvstore.NamespaceCatalog, keycodec.AutoIncrementKey(db, table)); err != nil {
		return err
	}

	rowKVs, err := s.kv.ScanPrefix(kvstore.NamespaceData, keycodec.RowPrefix(db, table))
	if err != nil {
		return err
	}
	for _, kv := range rowKVs {
		if err := s.kv.Remove(kvstore.NamespaceData, kv.Key); err != nil {
			return err
		}
	}

	indexPrefix := append([]byte("i\x00"+db), 0)
	indexPrefix = append(indexPrefix, []byte(table)...)
	indexPrefix = append(indexPrefix, 0)
	idxKVs, err := s.kv.ScanPrefix(kvstore.NamespaceData, indexPrefix)
	if err != nil {
		return err
	}
	for _, kv := range idxKVs {
		if err := s.kv.Remove(kvstore.NamespaceData, kv.Key); err != nil {
			return err
		}
	}

	return s.kv.Flush()
}
