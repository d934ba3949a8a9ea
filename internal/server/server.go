// Package server wires the storage engine, transaction coordinator,
// and SQL executor into one running Engine: it owns the process-wide
// stores, hands out per-connection sessions, authenticates a
// mysql_native_password handshake, and is the single entry point
// statement execution goes through. Structured logging follows the
// teacher's zap idiom, used at connection and statement-error
// boundaries only — never inside per-row evaluation.
package server

import (
	"crypto/rand"
	"fmt"

	"go.uber.org/zap"

	"miniql/internal/auth"
	"miniql/internal/config"
	"miniql/internal/enginerr"
	"miniql/internal/kvstore"
	"miniql/internal/lockmgr"
	"miniql/internal/mvcc"
	"miniql/internal/parsesql"
	"miniql/internal/sqlexec"
	"miniql/internal/txn"
)

// Engine is the process-wide, connection-agnostic server state: one
// KV substrate, one MVCC store, one lock manager, one transaction
// coordinator, and the executor and parser built over them.
type Engine struct {
	cfg    *config.Config
	log    *zap.Logger
	kv     kvstore.Store
	store  *mvcc.Store
	coord  *txn.Coordinator
	exec   *sqlexec.Executor
	parser *parsesql.Parser
}

// Open opens the data directory named in cfg, ensures the root user
// exists, and wires the full execution pipeline.
func Open(cfg *config.Config, log *zap.Logger) (*Engine, error) {
	kv, err := kvstore.Open(cfg.Server.DataDir)
	if err != nil {
		return nil, fmt.Errorf("server: open storage: %w", err)
	}

	store := mvcc.New(kv)
	if err := store.EnsureRootUser(cfg.Auth.RootPassword); err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("server: ensure root user: %w", err)
	}

	nextTxID, err := store.RecoverNextTxID()
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("server: recover tx id watermark: %w", err)
	}

	locks := lockmgr.New()
	txnMgr := mvcc.NewTxnManager(nextTxID)
	coord := txn.NewCoordinator(store, locks, txnMgr, store.GetTable)
	exec := sqlexec.New(coord)

	log.Info("storage engine opened",
		zap.String("data_dir", cfg.Server.DataDir),
		zap.Uint64("next_tx_id", nextTxID))

	return &Engine{
		cfg:    cfg,
		log:    log,
		kv:     kv,
		store:  store,
		coord:  coord,
		exec:   exec,
		parser: parsesql.New(),
	}, nil
}

// Close releases the underlying storage. Safe to call once.
func (e *Engine) Close() error {
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("server: close storage: %w", err)
	}
	return nil
}

// NewConnection allocates a fresh session for an authenticated user
// and logs the connection accept event.
func (e *Engine) NewConnection(username string) *txn.Session {
	sess := txn.NewSession(txn.NextConnID(), username)
	e.log.Info("connection accepted", zap.Uint32("conn_id", sess.ConnID), zap.String("user", username))
	return sess
}

// CloseConnection releases whatever transaction state a session holds
// open (a lost connection rolls back like an explicit ROLLBACK) and
// logs the disconnect.
func (e *Engine) CloseConnection(sess *txn.Session) {
	e.coord.Rollback(sess)
	e.log.Info("connection closed", zap.Uint32("conn_id", sess.ConnID))
}

// AuthSalt returns a fresh 20-byte mysql_native_password challenge for
// the handshake packet.
func AuthSalt() ([]byte, error) {
	salt := make([]byte, 20)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("server: generate auth salt: %w", err)
	}
	return salt, nil
}

// Authenticate verifies a client's mysql_native_password response
// against the stored user record.
func (e *Engine) Authenticate(username string, salt, authResponse []byte) (bool, error) {
	user, ok, err := e.store.GetUser(username)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return auth.VerifyMySQLNativePassword(salt, authResponse, user.AuthStage2), nil
}

// Execute parses and runs exactly one SQL statement for sess. Parse
// errors and errors classified as lock-wait timeouts are logged at
// warn level; any other execution failure is logged at error level
// with the offending statement text.
func (e *Engine) Execute(sess *txn.Session, sql string) (*sqlexec.Outcome, error) {
	stmt, err := e.parser.ParseOne(sql)
	if err != nil {
		e.log.Warn("statement parse error", zap.Uint32("conn_id", sess.ConnID), zap.Error(err))
		return nil, err
	}

	out, err := e.exec.Execute(sess, stmt)
	if err != nil {
		if enginerr.ClassifyCode(err) == enginerr.ErrLockWaitTimeout {
			e.log.Warn("lock wait timeout", zap.Uint32("conn_id", sess.ConnID), zap.String("sql", sql))
		} else {
			e.log.Error("statement execution error", zap.Uint32("conn_id", sess.ConnID), zap.String("sql", sql), zap.Error(err))
		}
		return nil, err
	}
	return out, nil
}
