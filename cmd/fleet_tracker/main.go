// Command-line entry point for the fleet tracker (snapshot-focused).
//
// Note about input formats
// ------------------------
// Each -file may hold any payload the tracker ingests:
//  1. Client snapshot export: {"OfflineData":[...], ...}
//  2. Push payload:           {"nickname":"...","characters":[...]}
//  3. Accounts envelope:      {"accounts":[...], "timestamp":"..."}
//  4. Bare array of account records.
//
// A UTF-8 BOM at the start of a file is tolerated. Without -refdb, route
// names and gil figures degrade to zero; leveling projections fall back to
// the built-in phase model.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"fleet_tracker/internal/aggregator"
	"fleet_tracker/internal/estimator"
	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/normalize"
	"fleet_tracker/internal/refdata"
)

type Stats struct {
	Files    int
	Accounts int
	Skipped  int
}

// fileList lets -file repeat.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "fleet_tracker - commands:")
	fmt.Fprintln(w, "  view       - assemble a one-shot fleet view from snapshot files")
	fmt.Fprintln(w, "  normalize  - dump snapshot files as canonical accounts")
	fmt.Fprintln(w, "  estimate   - project per-company leveling times")
	fmt.Fprintln(w, "  routes     - list known route earnings")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  fleet_tracker view -file fleet.json [-file more.json] [-refdb reference.db] [-json|-pretty] [-stats]")
	fmt.Fprintln(w, "  fleet_tracker normalize -file fleet.json [-pretty] [-stats]")
	fmt.Fprintln(w, "  fleet_tracker estimate -file fleet.json -target 90 [-tier expected] [-refdb reference.db] [-pretty]")
	fmt.Fprintln(w, "  fleet_tracker routes [-refdb reference.db] [-json]")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "view":
		runView(os.Args[2:])
	case "normalize":
		runNormalize(os.Args[2:])
	case "estimate":
		runEstimate(os.Args[2:])
	case "routes":
		runRoutes(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	var files fileList
	fs.Var(&files, "file", "Snapshot JSON file (repeatable)")
	refPath := fs.String("refdb", "", "Reference database path")
	asJSON := fs.Bool("json", false, "Emit the full view as JSON")
	pretty := fs.Bool("pretty", false, "Emit the full view as indented JSON")
	showStats := fs.Bool("stats", false, "Print basic counters to stderr")
	_ = fs.Parse(args)

	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "view requires at least one -file")
		os.Exit(2)
	}

	manager, st := ingestFiles(files, openProvider(*refPath))
	view := manager.FleetView(context.Background(), true)

	if *asJSON || *pretty {
		writeOut(view, *pretty)
	} else {
		renderView(os.Stdout, view)
	}

	if *showStats {
		fmt.Fprintf(os.Stderr, "stats: files=%d accounts=%d submarines=%d\n",
			st.Files, st.Accounts, view.Summary.TotalSubs)
	}
}

func runNormalize(args []string) {
	fs := flag.NewFlagSet("normalize", flag.ExitOnError)
	var files fileList
	fs.Var(&files, "file", "Snapshot JSON file (repeatable)")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	showStats := fs.Bool("stats", false, "Print basic counters to stderr")
	_ = fs.Parse(args)

	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "normalize requires at least one -file")
		os.Exit(2)
	}

	norm := normalize.New(nil)
	st := &Stats{}
	var collected []*fleet.Account
	for _, path := range files {
		msgs, _, err := normalize.Split(readPayload(path))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to parse %s: %v\n", path, err)
			os.Exit(1)
		}
		st.Files++
		for _, msg := range msgs {
			account, err := norm.Account(msg, "file:"+path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Skipping record in %s: %v\n", path, err)
				st.Skipped++
				continue
			}
			collected = append(collected, account)
			st.Accounts++
		}
	}

	out, err := normalize.Marshal(collected, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
		os.Exit(1)
	}
	if *pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, out, "", "  "); err == nil {
			out = buf.Bytes()
		}
	}
	_, _ = os.Stdout.Write(out)
	_, _ = os.Stdout.Write([]byte("\n"))

	if *showStats {
		fmt.Fprintf(os.Stderr, "stats: files=%d accounts=%d skipped=%d\n", st.Files, st.Accounts, st.Skipped)
	}
}

func runEstimate(args []string) {
	fs := flag.NewFlagSet("estimate", flag.ExitOnError)
	var files fileList
	fs.Var(&files, "file", "Snapshot JSON file (repeatable)")
	target := fs.Int("target", 90, "Target submarine level (1-125)")
	tierFlag := fs.String("tier", "", "Single tier: optimistic, expected, or pessimistic")
	refPath := fs.String("refdb", "", "Reference database path")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	_ = fs.Parse(args)

	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "estimate requires at least one -file")
		os.Exit(2)
	}
	if *target < 1 || *target > 125 {
		fmt.Fprintln(os.Stderr, "target must be between 1 and 125")
		os.Exit(2)
	}
	tier := estimator.Tier(strings.ToLower(*tierFlag))
	if *tierFlag != "" && !validTier(tier) {
		fmt.Fprintf(os.Stderr, "Unknown tier: %s\n", *tierFlag)
		os.Exit(2)
	}

	provider := openProvider(*refPath)
	manager, _ := ingestFiles(files, provider)
	groups := aggregator.GroupByFC(manager.Accounts(), provider)

	est := estimator.New(provider)
	now := time.Now().UTC()
	estimates := make([]estimator.FCEstimate, 0, len(groups))
	for _, g := range groups {
		fce := est.EstimateFC(g.Submarines, *target, g.FCID, g.FCName, g.World, g.UnlockedLetters, now)
		if *tierFlag != "" {
			fce.Estimates = map[estimator.Tier]estimator.TierEstimate{tier: fce.Estimates[tier]}
			for i := range fce.Submarines {
				sub := &fce.Submarines[i]
				sub.Estimates = map[estimator.Tier]estimator.TierEstimate{tier: sub.Estimates[tier]}
			}
		}
		estimates = append(estimates, fce)
	}

	writeOut(struct {
		TargetLevel int                    `json:"target_level"`
		Estimates   []estimator.FCEstimate `json:"estimates"`
	}{*target, estimates}, *pretty)
}

func runRoutes(args []string) {
	fs := flag.NewFlagSet("routes", flag.ExitOnError)
	refPath := fs.String("refdb", "reference.db", "Reference database path")
	asJSON := fs.Bool("json", false, "Emit route stats as JSON")
	_ = fs.Parse(args)

	provider := openProvider(*refPath)
	if provider == nil {
		fmt.Fprintln(os.Stderr, "routes requires -refdb")
		os.Exit(2)
	}
	routes := provider.KnownRoutes()

	if *asJSON {
		writeOut(routes, false)
		return
	}
	fmt.Printf("%-16s %14s %12s %10s\n", "ROUTE", "GIL/SUB/DAY", "AVG EXP", "FC POINTS")
	for _, route := range routes {
		fmt.Printf("%-16s %14d %12d %10d\n", route.RouteName, route.GilPerSubDay, route.AvgExp, route.FCPoints)
	}
}

func validTier(tier estimator.Tier) bool {
	for _, t := range estimator.Tiers {
		if tier == t {
			return true
		}
	}
	return false
}

// ingestFiles merges every snapshot into a fresh bridge-less manager.
func ingestFiles(files []string, provider refdata.Provider) (*aggregator.Manager, *Stats) {
	manager := aggregator.New(provider, nil, nil, nil, cliLogger())
	st := &Stats{}
	ctx := context.Background()
	for _, path := range files {
		n, err := manager.Ingest(ctx, "file:"+path, readPayload(path), time.Time{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to ingest %s: %v\n", path, err)
			os.Exit(1)
		}
		st.Files++
		st.Accounts += n
	}
	return manager, st
}

func renderView(w io.Writer, view *aggregator.View) {
	s := view.Summary
	fmt.Fprintf(w, "Fleet: %d submarines, %d companies, %d accounts\n", s.TotalSubs, s.FCCount, s.AccountCount)
	fmt.Fprintf(w, "Status: %d ready, %d voyaging, %d farming, %d leveling\n",
		s.ReadySubs, s.VoyagingSubs, s.FarmingSubs, s.LevelingSubs)
	fmt.Fprintf(w, "Earnings: %d gil/day\n", s.TotalGilPerDay)
	if f := view.SupplyForecast; f.LimitingResource != "" {
		fmt.Fprintf(w, "Supplies: %.1f days until restock (%s)\n", f.DaysUntilRestock, f.LimitingResource)
	}

	for _, fc := range view.FCSummaries {
		fmt.Fprintf(w, "\n%s [%s]  subs=%d ready=%d gil/day=%d\n",
			fc.FCName, fc.World, fc.TotalSubs, fc.ReadySubs, fc.GilPerDay)
		for _, sub := range fc.Submarines {
			line := fmt.Sprintf("  %-22s lvl %3d  %-15s", sub.Name, sub.Level, sub.Status)
			if sub.Route != "" {
				line += "  route " + sub.Route
			}
			if sub.HoursRemaining > 0 {
				line += fmt.Sprintf("  %.1fh left", sub.HoursRemaining)
			}
			fmt.Fprintln(w, line)
		}
	}
}

func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func openProvider(path string) refdata.Provider {
	if path == "" {
		return nil
	}
	db, err := refdata.OpenDB(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open reference db: %v\n", err)
		os.Exit(1)
	}
	return db
}

func readPayload(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
		os.Exit(1)
	}
	return data
}

func marshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func writeOut(v any, pretty bool) {
	enc, err := marshalJSON(v, pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
		os.Exit(1)
	}
	_, _ = os.Stdout.Write(enc)
	_, _ = os.Stdout.Write([]byte("\n"))
}
