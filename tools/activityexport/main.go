// Package main provides a tool to export the fleet activity log to CSV format.
// Columns match the activity_log table:
// id,fc_id,fc_name,activity_type,submarine_name,character_name,old_value,new_value,details,created_at
// with a header row first and events ordered oldest to newest.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"fleet_tracker/internal/activity"
	"fleet_tracker/internal/storage"
)

func main() {
	driver := flag.String("driver", "sqlite", "State database driver: sqlite or postgres")
	sqlitePath := flag.String("sqlite", "fleet_tracker.db", "SQLite database path")

	// PostgreSQL connection flags.
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5432, "PostgreSQL port")
	pgUser := flag.String("pg-user", "fleet", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "", "PostgreSQL password")
	pgDB := flag.String("pg-db", "fleet_state", "PostgreSQL database")

	output := flag.String("output", "", "Output CSV file (default: stdout)")
	limit := flag.Int("limit", 10000, "Maximum number of events to fetch, most recent first")
	fcFilter := flag.String("fc", "", "Comma-separated FC ids to include")
	typeFilter := flag.String("type", "", "Comma-separated activity types to include")
	showStats := flag.Bool("stats", false, "Show statistics only, don't export")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	ctx := context.Background()

	store, err := openState(ctx, *driver, *sqlitePath, storage.PostgresConfig{
		Host:     *pgHost,
		Port:     *pgPort,
		Database: *pgDB,
		User:     *pgUser,
		Password: *pgPassword,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening state database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	filter := activity.Filter{
		FCIDs: splitList(*fcFilter),
		Types: splitList(*typeFilter),
	}

	events, err := store.RecentEvents(ctx, *limit, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying events: %v\n", err)
		os.Exit(1)
	}

	if len(events) == 0 {
		fmt.Fprintf(os.Stderr, "No events found matching criteria\n")
		os.Exit(0)
	}

	// Stats mode covers the same filtered window as the export would.
	if *showStats {
		showActivityStats(events)
		return
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Exporting %d events to CSV\n", len(events))
	}

	// The store returns newest first; the export reads oldest first.
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})

	// Write output.
	var writer *csv.Writer
	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = file.Close() }()
		writer = csv.NewWriter(file)
	} else {
		writer = csv.NewWriter(os.Stdout)
	}

	header := []string{"id", "fc_id", "fc_name", "activity_type", "submarine_name", "character_name", "old_value", "new_value", "details", "created_at"}
	if err := writer.Write(header); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing header: %v\n", err)
		os.Exit(1)
	}

	for _, e := range events {
		row := []string{
			e.ID,
			e.FCID,
			e.FCName,
			e.Type,
			e.SubmarineName,
			e.CharacterName,
			e.OldValue,
			e.NewValue,
			e.Details,
			e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}

		if err := writer.Write(row); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing row: %v\n", err)
			os.Exit(1)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing CSV: %v\n", err)
		os.Exit(1)
	}

	if *verbose && *output != "" {
		fmt.Fprintf(os.Stderr, "Wrote %d events to %s\n", len(events), *output)
	}
}

// openState opens the configured state backend. Both backends create their
// schema on open, so pointing the tool at a fresh path yields an empty export
// rather than an error.
func openState(ctx context.Context, driver, sqlitePath string, pg storage.PostgresConfig) (storage.State, error) {
	switch driver {
	case "sqlite":
		return storage.OpenSQLite(storage.SQLiteConfig{Path: sqlitePath})
	case "postgres":
		return storage.OpenPostgres(ctx, pg)
	default:
		return nil, fmt.Errorf("unknown driver %q (want sqlite or postgres)", driver)
	}
}

// splitList parses a comma-separated flag value, dropping empty entries.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// showActivityStats displays statistics about the fetched events.
func showActivityStats(events []activity.Event) {
	byType := make(map[string]int)
	byFC := make(map[string]int)
	fcNames := make(map[string]string)
	earliest := events[0].CreatedAt
	latest := events[0].CreatedAt

	for _, e := range events {
		byType[e.Type]++
		byFC[e.FCID]++
		if e.FCName != "" {
			fcNames[e.FCID] = e.FCName
		}
		if e.CreatedAt.Before(earliest) {
			earliest = e.CreatedAt
		}
		if e.CreatedAt.After(latest) {
			latest = e.CreatedAt
		}
	}

	fmt.Println("Activity Statistics")
	fmt.Println("───────────────────")
	fmt.Printf("Total events:  %d\n", len(events))
	fmt.Printf("Distinct FCs:  %d\n", len(byFC))
	fmt.Printf("Date range:    %s to %s\n",
		earliest.UTC().Format("2006-01-02 15:04"),
		latest.UTC().Format("2006-01-02 15:04"))

	fmt.Println("\nEvents by Type:")
	fmt.Printf("%-18s %10s\n", "Type", "Count")
	for _, t := range sortedKeysByCount(byType) {
		fmt.Printf("%-18s %10d\n", t, byType[t])
	}

	fmt.Println("\nTop 10 Most Active FCs:")
	fmt.Printf("%-12s %-24s %8s\n", "FC", "Name", "Events")
	fcs := sortedKeysByCount(byFC)
	if len(fcs) > 10 {
		fcs = fcs[:10]
	}
	for _, id := range fcs {
		fmt.Printf("%-12s %-24s %8d\n", id, fcNames[id], byFC[id])
	}
}

// sortedKeysByCount returns the map keys ordered by descending count,
// ties broken by key so the output is stable.
func sortedKeysByCount(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
