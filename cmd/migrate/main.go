package main

import (
	"bufio"
	"flag"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"parking/internal/config"
	"parking/internal/db"
	"parking/internal/logging"

	"github.com/jmoiron/sqlx"
)

const downMarker = "-- +migrate Down"

func main() {
	dir := flag.String("dir", "migrations", "directory holding *.sql migrations")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect database")
	}
	defer database.Close()

	if _, err := database.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		logger.WithError(err).Fatal("failed to ensure schema_migrations")
	}

	files, err := filepath.Glob(filepath.Join(*dir, "*.sql"))
	if err != nil {
		logger.WithError(err).Fatal("failed to read migrations")
	}
	sort.Strings(files)

	applied := 0
	for _, file := range files {
		filename := filepath.Base(file)
		entry := logger.WithField("file", filename)
		var exists bool
		if err := database.Get(&exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			entry.WithError(err).Fatal("failed to read migration state")
		}
		if exists {
			continue
		}
		if err := apply(database, file, filename); err != nil {
			entry.WithError(err).Fatal("failed to apply migration")
		}
		entry.Info("applied migration")
		applied++
	}
	logger.WithField("applied", applied).Info("migrations up to date")
}

// apply runs the up section of one file and records it in the same
// transaction, so a failed file leaves no trace.
func apply(database *sqlx.DB, path, filename string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	up, _, _ := strings.Cut(string(content), downMarker)

	tx, err := database.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range splitStatements(up) {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, filename); err != nil {
		return err
	}
	return tx.Commit()
}

// splitStatements cuts on lines ending with a semicolon. Comment-only lines
// are dropped.
func splitStatements(sqlText string) []string {
	var statements []string
	var current strings.Builder
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()
	return statements
}
