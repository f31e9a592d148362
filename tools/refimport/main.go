// Package main provides a tool to seed the reference database from the
// datamining CSV tables (SubmarinePart, SubmarineExploration, SubmarineRank)
// plus an optional route earnings sheet CSV. Datamining files carry a column
// name row followed by a type row; the type row is dropped and columns are
// addressed by name, so column order does not matter.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"fleet_tracker/internal/refdata"
)

func main() {
	dbPath := flag.String("db", "reference.db", "Reference database path (created if missing)")
	partsPath := flag.String("parts", "", "SubmarinePart CSV file")
	sectorsPath := flag.String("sectors", "", "SubmarineExploration CSV file")
	ranksPath := flag.String("ranks", "", "SubmarineRank CSV file")
	statsPath := flag.String("routestats", "", "Route earnings CSV file (sheet export format)")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	if *partsPath == "" && *sectorsPath == "" && *ranksPath == "" && *statsPath == "" {
		fmt.Fprintln(os.Stderr, "No input files specified (want -parts, -sectors, -ranks, or -routestats)")
		flag.Usage()
		os.Exit(2)
	}

	db, err := refdata.OpenDB(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening reference database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if *partsPath != "" {
		t, err := readDatamining(*partsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", *partsPath, err)
			os.Exit(1)
		}
		parts := parseParts(t, *verbose)
		if err := db.UpsertParts(parts); err != nil {
			fmt.Fprintf(os.Stderr, "Error storing parts: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Imported %d parts\n", len(parts))
	}

	if *sectorsPath != "" {
		t, err := readDatamining(*sectorsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", *sectorsPath, err)
			os.Exit(1)
		}
		sectors := parseSectors(t, *verbose)
		if err := db.UpsertSectors(sectors); err != nil {
			fmt.Fprintf(os.Stderr, "Error storing sectors: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Imported %d sectors\n", len(sectors))
	}

	if *ranksPath != "" {
		t, err := readDatamining(*ranksPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", *ranksPath, err)
			os.Exit(1)
		}
		ranks := parseRanks(t, *verbose)
		if err := db.UpsertRanks(ranks); err != nil {
			fmt.Fprintf(os.Stderr, "Error storing ranks: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Imported %d ranks\n", len(ranks))
	}

	if *statsPath != "" {
		file, err := os.Open(*statsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", *statsPath, err)
			os.Exit(1)
		}
		stats, err := refdata.ParseRouteStatsCSV(file)
		_ = file.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing route stats: %v\n", err)
			os.Exit(1)
		}
		if err := db.UpsertRouteStats(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Error storing route stats: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Imported %d route stats\n", len(stats))
	}
}

// table is one parsed datamining file: data rows addressed by column name.
type table struct {
	col  map[string]int
	rows [][]string
}

func (t table) field(row []string, name string) string {
	i, ok := t.col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t table) intField(row []string, name string) int {
	n, _ := strconv.Atoi(t.field(row, name))
	return n
}

// readDatamining loads one datamining CSV. The first line names the columns
// and the second carries type information, which is dropped.
func readDatamining(path string) (table, error) {
	file, err := os.Open(path)
	if err != nil {
		return table{}, err
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return table{}, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	if _, ok := col["#"]; !ok {
		return table{}, fmt.Errorf("no # id column; not a datamining table")
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return table{}, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) > 0 {
		rows = rows[1:]
	}
	return table{col: col, rows: rows}, nil
}

func parseParts(t table, verbose bool) []refdata.Part {
	parts := make([]refdata.Part, 0, len(t.rows))
	for _, row := range t.rows {
		id, err := strconv.Atoi(t.field(row, "#"))
		if err != nil || id == 0 {
			if err != nil && verbose {
				fmt.Fprintf(os.Stderr, "Skipping part row with id %q\n", t.field(row, "#"))
			}
			continue
		}
		parts = append(parts, refdata.Part{
			ID:              id,
			Slot:            t.intField(row, "Slot"),
			Rank:            t.intField(row, "Rank"),
			Class:           t.intField(row, "Class"),
			Components:      t.intField(row, "Components"),
			RepairMaterials: t.intField(row, "RepairMaterials"),
			Surveillance:    t.intField(row, "Surveillance"),
			Retrieval:       t.intField(row, "Retrieval"),
			Speed:           t.intField(row, "Speed"),
			Range:           t.intField(row, "Range"),
			Favor:           t.intField(row, "Favor"),
		})
	}
	return parts
}

func parseSectors(t table, verbose bool) []refdata.Sector {
	sectors := make([]refdata.Sector, 0, len(t.rows))
	for _, row := range t.rows {
		id, err := strconv.Atoi(t.field(row, "#"))
		if err != nil || id == 0 {
			if err != nil && verbose {
				fmt.Fprintf(os.Stderr, "Skipping sector row with id %q\n", t.field(row, "#"))
			}
			continue
		}
		sectors = append(sectors, refdata.Sector{
			ID:              id,
			Name:            t.field(row, "Destination"),
			Letter:          t.field(row, "Location"),
			MapID:           t.intField(row, "Map"),
			RankReq:         t.intField(row, "RankReq"),
			CeruleumTankReq: t.intField(row, "CeruleumTankReq"),
			Stars:           t.intField(row, "Stars"),
			ExpReward:       int64(t.intField(row, "ExpReward")),
			// The datamining sheet spells this column SurveyDurationmin.
			SurveyDurationMin: t.intField(row, "SurveyDurationmin"),
			SurveyDistance:    t.intField(row, "SurveyDistance"),
			X:                 t.intField(row, "X"),
			Y:                 t.intField(row, "Y"),
			Z:                 t.intField(row, "Z"),
			StartingPoint:     strings.EqualFold(t.field(row, "StartingPoint"), "true"),
		})
	}
	return sectors
}

func parseRanks(t table, verbose bool) []refdata.Rank {
	ranks := make([]refdata.Rank, 0, len(t.rows))
	for _, row := range t.rows {
		// Level 0 rows carry the starting rank and are kept.
		level, err := strconv.Atoi(t.field(row, "#"))
		if err != nil {
			if verbose {
				fmt.Fprintf(os.Stderr, "Skipping rank row with id %q\n", t.field(row, "#"))
			}
			continue
		}
		ranks = append(ranks, refdata.Rank{
			Level:             level,
			Capacity:          t.intField(row, "Capacity"),
			ExpToNext:         int64(t.intField(row, "ExpToNext")),
			SurveillanceBonus: t.intField(row, "SurveillanceBonus"),
			RetrievalBonus:    t.intField(row, "RetrievalBonus"),
			SpeedBonus:        t.intField(row, "SpeedBonus"),
			RangeBonus:        t.intField(row, "RangeBonus"),
			FavorBonus:        t.intField(row, "FavorBonus"),
		})
	}
	return ranks
}
