package refdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fleet_tracker/internal/metrics"
)

// DefaultRefreshInterval is how often route earnings are re-fetched.
const DefaultRefreshInterval = 6 * time.Hour

// RouteStatsRefresher pulls community route earnings from a published CSV
// sheet and upserts them into the reference database. Failures are logged and
// skipped; stale earnings are better than no fleet view.
type RouteStatsRefresher struct {
	db       *DB
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// NewRouteStatsRefresher builds a refresher for the given sheet URL.
// interval <= 0 uses DefaultRefreshInterval.
func NewRouteStatsRefresher(db *DB, url string, interval time.Duration, logger *slog.Logger) *RouteStatsRefresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &RouteStatsRefresher{
		db:       db,
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger.With("component", "route_stats"),
	}
}

// Run refreshes once immediately when due, then on every interval tick until
// the context is cancelled.
func (r *RouteStatsRefresher) Run(ctx context.Context) {
	if due, err := r.needsRefresh(); err != nil {
		r.logger.Warn("refresh check failed", "error", err)
	} else if due {
		r.refresh(ctx)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// RefreshNow forces a fetch regardless of the last refresh time.
func (r *RouteStatsRefresher) RefreshNow(ctx context.Context) (int, error) {
	return r.fetchAndStore(ctx)
}

func (r *RouteStatsRefresher) needsRefresh() (bool, error) {
	last, err := r.db.RefreshedAt("route_stats")
	if err != nil {
		return false, err
	}
	return last.IsZero() || time.Since(last) > r.interval, nil
}

func (r *RouteStatsRefresher) refresh(ctx context.Context) {
	n, err := r.fetchAndStore(ctx)
	if err != nil {
		metrics.IncRouteStatsRefresh("error")
		r.logger.Warn("route stats refresh failed", "error", err)
		return
	}
	metrics.IncRouteStatsRefresh("ok")
	r.logger.Info("route stats refreshed", "routes", n)
}

func (r *RouteStatsRefresher) fetchAndStore(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "fleet-tracker/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch sheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch sheet: status %d", resp.StatusCode)
	}

	stats, err := ParseRouteStatsCSV(resp.Body)
	if err != nil {
		return 0, err
	}
	if len(stats) == 0 {
		return 0, fmt.Errorf("sheet contained no usable routes")
	}

	if err := r.db.UpsertRouteStats(stats); err != nil {
		return 0, fmt.Errorf("store route stats: %w", err)
	}
	return len(stats), nil
}

// ParseRouteStatsCSV reads the earnings table from sheet CSV output. The
// sheet stacks several tables separated by blank rows; only the first one is
// read. When the same route appears more than once the lowest gil figure
// wins, since the higher entries assume higher-level submarines.
func ParseRouteStatsCSV(src io.Reader) ([]RouteStats, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	routeCol, ok := col["Route"]
	if !ok {
		return nil, fmt.Errorf("sheet has no Route column")
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	byName := make(map[string]RouteStats)
	order := make([]string, 0, 32)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if routeCol >= len(row) {
			break
		}
		name := strings.Trim(strings.TrimSpace(row[routeCol]), `"`)
		if name == "" {
			break // end of the first table
		}
		if strings.EqualFold(name, "route") {
			continue
		}

		gil := ParseGilValue(field(row, "Gil/Sub/Day"))
		if gil == 0 {
			continue
		}
		rs := RouteStats{
			RouteName:    name,
			GilPerSubDay: gil,
			AvgExp:       int64(ParseGilValue(field(row, "Avg EXP"))),
			FCPoints:     ParseGilValue(field(row, "FC Points")),
		}
		if prev, seen := byName[name]; !seen {
			byName[name] = rs
			order = append(order, name)
		} else if rs.GilPerSubDay < prev.GilPerSubDay {
			byName[name] = rs
		}
	}

	out := make([]RouteStats, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out, nil
}

// ParseGilValue parses figures like "118,854", "475.4k", or "1.01m".
// Unparseable input yields 0.
func ParseGilValue(value string) int {
	value = strings.TrimSpace(strings.Trim(strings.TrimSpace(value), `"`))
	if value == "" {
		return 0
	}

	lower := strings.ToLower(value)
	if strings.HasSuffix(lower, "k") {
		if f, err := strconv.ParseFloat(lower[:len(lower)-1], 64); err == nil {
			return int(f * 1000)
		}
	}
	if strings.HasSuffix(lower, "m") {
		if f, err := strconv.ParseFloat(lower[:len(lower)-1], 64); err == nil {
			return int(f * 1000000)
		}
	}

	n, err := strconv.Atoi(strings.ReplaceAll(value, ",", ""))
	if err != nil {
		return 0
	}
	return n
}
