package txn

// Variables holds the session-scoped state outside of the transaction
// proper: isolation level, read-only flag, sql_mode, time zone, and
// the character-set/collation family. Every field here is SESSION
// scope only; the engine never persists a GLOBAL value.
type Variables struct {
	Isolation           string
	TransactionReadOnly bool
	SQLMode             string
	TimeZone            string
	CharacterSetClient  string
	CharacterSetConn    string
	CharacterSetResult  string
	CollationConn       string
}

// DefaultVariables mirrors a stock MySQL 8 connection's defaults.
func DefaultVariables() *Variables {
	return &Variables{
		Isolation:           "REPEATABLE-READ",
		TransactionReadOnly: false,
		SQLMode:             "STRICT_TRANS_TABLES,NO_ENGINE_SUBSTITUTION",
		TimeZone:            "SYSTEM",
		CharacterSetClient:  "utf8mb4",
		CharacterSetConn:    "utf8mb4",
		CharacterSetResult:  "utf8mb4",
		CollationConn:       "utf8mb4_general_ci",
	}
}
