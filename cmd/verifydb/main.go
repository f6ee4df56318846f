// Command verifydb checks a database file, typically a backup copy, without
// touching the live service. It runs the SQLite integrity check and then
// re-derives every event's occurrence time from its stored raw payload,
// reporting rows whose stored event_time no longer matches.
//
// Usage:
//
//	go run ./cmd/verifydb -db data/backups/events_backup_20240117_060000.db
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sambandhq/samband-ingest/internal/domain"
)

func main() {
	dbPath := flag.String("db", "", "path to the SQLite database file to verify")
	verbose := flag.Bool("v", false, "print every mismatching row")
	flag.Parse()

	if *dbPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	if code := run(*dbPath, *verbose); code != 0 {
		os.Exit(code)
	}
}

func run(path string, verbose bool) int {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open %s: %v\n", path, err)
		return 1
	}
	defer db.Close()

	ctx := context.Background()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: integrity check: %v\n", err)
		return 1
	}
	if result != "ok" {
		fmt.Fprintf(os.Stderr, "FAIL: integrity check: %s\n", result)
		return 1
	}
	fmt.Println("integrity check: ok")

	total, mismatched, unparseable, err := verifyEventTimes(ctx, db, verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: verify event times: %v\n", err)
		return 1
	}

	fmt.Printf("events: %d total, %d event_time mismatches, %d unparseable payloads\n",
		total, mismatched, unparseable)
	if mismatched > 0 {
		fmt.Println("\nVerification FAILED.")
		return 1
	}
	fmt.Println("\nAll verifications passed.")
	return 0
}

// verifyEventTimes re-runs time derivation against each stored raw payload
// and compares the result with the persisted event_time column.
func verifyEventTimes(ctx context.Context, db *sql.DB, verbose bool) (total, mismatched, unparseable int, err error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, event_time, raw_data FROM events ORDER BY id")
	if err != nil {
		return 0, 0, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id      int64
			stored  string
			rawData []byte
			raw     domain.RawEvent
		)
		if err := rows.Scan(&id, &stored, &rawData); err != nil {
			return total, mismatched, unparseable, err
		}
		total++

		if err := json.Unmarshal(rawData, &raw); err != nil {
			unparseable++
			if verbose {
				fmt.Printf("  event %d: payload does not decode: %v\n", id, err)
			}
			continue
		}
		published, err := domain.ParsePublishTime(raw.Datetime)
		if err != nil {
			unparseable++
			if verbose {
				fmt.Printf("  event %d: publish time %q does not parse: %v\n", id, raw.Datetime, err)
			}
			continue
		}

		derived := domain.DeriveEventTime(raw, published).Format(time.RFC3339)
		if derived != stored {
			mismatched++
			if verbose {
				fmt.Printf("  event %d: stored %s, derived %s (%q)\n", id, stored, derived, raw.Name)
			}
		}
	}
	return total, mismatched, unparseable, rows.Err()
}
