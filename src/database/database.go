package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/ledgerlink/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	// Row-level FK enforcement is off by default in sqlite.
	if _, err := DB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		stdlog.Printf("failed to enable foreign keys: %v", err)
	}

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateObligationsTable() // Migration for verification/idempotency columns

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS bank_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		txn_date TEXT NOT NULL,
		description TEXT,
		debit_amount TEXT NOT NULL DEFAULT '0',
		credit_amount TEXT NOT NULL DEFAULT '0'
	);

	CREATE TABLE IF NOT EXISTS obligations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		counterparty TEXT NOT NULL,
		issue_date TEXT NOT NULL,
		amount_gross TEXT NOT NULL DEFAULT '0',
		amount_net TEXT NOT NULL DEFAULT '0',
		amount_stated TEXT NOT NULL DEFAULT '0',
		parent_obligation_id INTEGER,
		bank_transaction_id INTEGER,
		description TEXT,
		idempotency_key TEXT UNIQUE,
		verified BOOLEAN DEFAULT FALSE,
		verified_at TIMESTAMP,
		verified_by TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(parent_obligation_id) REFERENCES obligations(id),
		FOREIGN KEY(bank_transaction_id) REFERENCES bank_transactions(id)
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		counterparty TEXT NOT NULL,
		source_id INTEGER NOT NULL,
		entry_date TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		payment_method TEXT,
		notes TEXT,
		batch_ref TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(source_id) REFERENCES obligations(id)
	);

	CREATE TABLE IF NOT EXISTS matching_ledger (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bank_transaction_id INTEGER NOT NULL,
		obligation_id INTEGER NOT NULL,
		match_type TEXT,
		match_confidence TEXT,
		notes TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(bank_transaction_id) REFERENCES bank_transactions(id),
		FOREIGN KEY(obligation_id) REFERENCES obligations(id),
		UNIQUE(bank_transaction_id, obligation_id)
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// migrateObligationsTable adds the verification and idempotency columns to
// obligations tables created before those features existed.
func migrateObligationsTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='obligations'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Info("'obligations' table does not exist, no migration needed as table will be created.")
			} else {
				stdlog.Println("'obligations' table does not exist, no migration needed as table will be created.")
			}
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'obligations' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'obligations' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(obligations)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'obligations'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'obligations': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'obligations'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'obligations': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'obligations'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'obligations': %v", err)
		}
		return
	}

	addColumn := func(name, definition string) {
		if _, ok := columnExists[name]; ok {
			return
		}
		_, err := DB.Exec("ALTER TABLE obligations ADD COLUMN " + name + " " + definition)
		if err != nil {
			logger.L.Error("Error adding column to 'obligations' table", "column", name, "error", err)
		} else {
			logger.L.Info("Added column to 'obligations' table", "column", name)
		}
	}

	addColumn("idempotency_key", "TEXT")
	addColumn("verified", "BOOLEAN DEFAULT FALSE")
	addColumn("verified_at", "TIMESTAMP")
	addColumn("verified_by", "TEXT")

	// ALTER TABLE cannot add a UNIQUE column in sqlite; enforce the
	// idempotency key with a unique index instead.
	if _, ok := columnExists["idempotency_key"]; !ok {
		_, err := DB.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_obligations_idempotency_key ON obligations(idempotency_key) WHERE idempotency_key IS NOT NULL")
		if err != nil {
			logger.L.Error("Error creating unique index on idempotency_key", "error", err)
		} else {
			logger.L.Info("Created unique index on obligations.idempotency_key")
		}
	}
}
