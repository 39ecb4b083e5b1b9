package scheduler

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/factorlab/internal/database"
)

// CheckDatabasesJob verifies integrity of the SQLite databases
type CheckDatabasesJob struct {
	log       zerolog.Logger
	databases map[string]*database.DB
}

// NewCheckDatabasesJob creates a new CheckDatabasesJob
func NewCheckDatabasesJob(databases map[string]*database.DB, log zerolog.Logger) *CheckDatabasesJob {
	return &CheckDatabasesJob{
		log:       log.With().Str("job", "check_databases").Logger(),
		databases: databases,
	}
}

// Name returns the job name
func (j *CheckDatabasesJob) Name() string {
	return "check_databases"
}

// Run executes the integrity check, failing on the first corrupted database
func (j *CheckDatabasesJob) Run() error {
	for _, name := range sortedNames(j.databases) {
		db := j.databases[name]
		if db == nil {
			j.log.Warn().Str("database", name).Msg("Database not initialized, skipping")
			continue
		}

		if err := checkDatabaseIntegrity(db.Conn()); err != nil {
			j.log.Error().
				Err(err).
				Str("database", name).
				Msg("Database integrity check failed")
			return fmt.Errorf("database %s is corrupted: %w", name, err)
		}

		j.log.Debug().Str("database", name).Msg("Database integrity OK")
	}

	j.log.Info().Msg("Database integrity check passed")
	return nil
}

// checkDatabaseIntegrity runs SQLite's PRAGMA integrity_check
func checkDatabaseIntegrity(db *sql.DB) error {
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}
	return nil
}
