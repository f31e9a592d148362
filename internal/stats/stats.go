// Package stats turns return-time transitions into a permanent voyage
// archive. A submarine whose return time changes between two ingests has
// completed its previous voyage; that completed voyage is what gets recorded.
package stats

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/metrics"
	"fleet_tracker/internal/refdata"
)

// VoyageKey identifies one submarine across ingests.
type VoyageKey struct {
	CID           string
	SubmarineName string
}

// Voyage is one completed voyage as archived.
type Voyage struct {
	Account        string    `json:"account"`
	CharacterName  string    `json:"character"`
	CharacterCID   string    `json:"-"`
	FCID           string    `json:"fc_id,omitempty"`
	FCName         string    `json:"fc_name"`
	World          string    `json:"world"`
	SubmarineName  string    `json:"submarine"`
	SubmarineLevel int       `json:"level"`
	SubmarineBuild string    `json:"build"`
	RouteName      string    `json:"route"`
	RoutePoints    []int     `json:"route_points,omitempty"`
	DurationHours  *float64  `json:"duration_hours,omitempty"`
	EstimatedGil   int64     `json:"-"`
	CeruleumUsed   int       `json:"-"`
	RepairKitsUsed int       `json:"-"`
	ReturnTime     time.Time `json:"return_time"`
	WasCollected   bool      `json:"was_collected"`
	CollectedAt    time.Time `json:"collected_at"`
	RecordedAt     time.Time `json:"-"`
}

// DailyStat is one day's rollup for one account and company.
type DailyStat struct {
	Date             string `json:"date"`
	Account          string `json:"account"`
	FCID             string `json:"fc_id"`
	FCName           string `json:"fc_name"`
	VoyagesSent      int    `json:"voyages_sent"`
	VoyagesCollected int    `json:"voyages_collected"`
	SubmarinesActive int    `json:"submarines_active"`
	EstimatedGil     int64  `json:"estimated_gil"`
	CeruleumUsed     int    `json:"ceruleum_used"`
	RepairKitsUsed   int    `json:"repair_kits_used"`
}

// Summary is the headline figure over a period. PeriodDays is the integer
// window or the string "all".
type Summary struct {
	PeriodDays       interface{} `json:"period_days"`
	TotalVoyages     int         `json:"total_voyages"`
	AvgVoyagesPerDay float64     `json:"avg_voyages_per_day"`
}

// HistoryQuery selects and pages archived voyages. Days 0 means all history;
// PerPage 0 returns everything.
type HistoryQuery struct {
	Days       int
	Account    string
	FCID       string
	ExcludeFCs []string
	Page       int
	PerPage    int
	SortBy     string
	SortDir    string
}

// Archive persists voyages. The ClickHouse implementation lives in the
// storage package.
type Archive interface {
	RecordVoyages(ctx context.Context, voyages []Voyage) error
	LatestReturns(ctx context.Context) (map[VoyageKey]int64, error)
	History(ctx context.Context, q HistoryQuery) ([]Voyage, int, error)
	Daily(ctx context.Context, days int, fcID string) ([]DailyStat, error)
	Summary(ctx context.Context, days int) (Summary, error)
}

// Recorder watches ingests for completed voyages. Safe for concurrent use.
type Recorder struct {
	ref     refdata.Provider
	archive Archive
	logger  *slog.Logger

	mu     sync.Mutex
	prev   map[VoyageKey]int64
	primed bool
}

// NewRecorder returns a recorder archiving to archive. ref resolves route
// points and earnings estimates and may be nil.
func NewRecorder(ref refdata.Provider, archive Archive, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		ref:     ref,
		archive: archive,
		logger:  logger.With("component", "stats"),
		prev:    make(map[VoyageKey]int64),
	}
}

// Prime seeds the return-time cache from the archive so a restart does not
// re-record voyages already archived. Runs once; later calls are no-ops.
func (r *Recorder) Prime(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primeLocked(ctx)
}

func (r *Recorder) primeLocked(ctx context.Context) {
	if r.primed {
		return
	}
	r.primed = true

	latest, err := r.archive.LatestReturns(ctx)
	if err != nil {
		r.logger.Warn("loading archived return times", "error", err)
		return
	}
	for key, rt := range latest {
		r.prev[key] = rt
	}
	if len(latest) > 0 {
		r.logger.Info("loaded archived submarine states", "count", len(latest))
	}
}

// Observe compares the current fleet state against the cached return times
// and archives every voyage whose return time moved. Returns the number of
// voyages archived; archive errors are logged and reported as zero.
func (r *Recorder) Observe(ctx context.Context, accounts []*fleet.Account, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primeLocked(ctx)

	var completed []Voyage
	for _, account := range accounts {
		for i := range account.Characters {
			char := &account.Characters[i]
			fcName := ""
			if info, ok := account.FC(char.FCID); ok {
				fcName = info.Name
			}

			for j := range char.Submarines {
				sub := &char.Submarines[j]
				key := VoyageKey{CID: strconv.FormatInt(char.CID, 10), SubmarineName: sub.Name}

				if prevReturn, ok := r.prev[key]; ok && prevReturn != sub.ReturnTime {
					completed = append(completed, r.voyageRow(account, char, sub, fcName, prevReturn, now))
				}
				r.prev[key] = sub.ReturnTime
			}
		}
	}

	if len(completed) == 0 {
		return 0
	}
	if err := r.archive.RecordVoyages(ctx, completed); err != nil {
		r.logger.Warn("archiving voyages", "error", err, "count", len(completed))
		return 0
	}
	metrics.AddVoyagesRecorded(len(completed))
	r.logger.Info("archived completed voyages", "count", len(completed))
	return len(completed)
}

func (r *Recorder) voyageRow(account *fleet.Account, char *fleet.Character, sub *fleet.Submarine, fcName string, prevReturn int64, now time.Time) Voyage {
	points := sub.RoutePoints
	if len(points) == 0 && sub.RouteName != "" {
		points = refdata.RoutePoints(r.ref, sub.RouteName)
	}

	// Earnings estimate: community gil per day, roughly two voyages a day.
	var estimatedGil int64
	if r.ref != nil && sub.RouteName != "" {
		if rs, ok := r.ref.RouteStats(sub.RouteName); ok && rs.GilPerSubDay > 0 {
			estimatedGil = int64(rs.GilPerSubDay / 2)
		}
	}

	fcID := ""
	if char.FCID != 0 {
		fcID = fleet.FCKey(char.FCID)
	}

	var ceruleum, kits int
	if sub.Consumption != nil {
		ceruleum = int(sub.Consumption.TanksPerVoyage)
		kits = int(math.Round(sub.Consumption.KitsPerVoyage))
	}

	return Voyage{
		Account:        account.Nickname,
		CharacterName:  char.Name,
		CharacterCID:   strconv.FormatInt(char.CID, 10),
		FCID:           fcID,
		FCName:         fcName,
		World:          char.World,
		SubmarineName:  sub.Name,
		SubmarineLevel: sub.Level,
		SubmarineBuild: sub.Build,
		RouteName:      sub.RouteName,
		RoutePoints:    points,
		DurationHours:  sub.DurationHours,
		EstimatedGil:   estimatedGil,
		CeruleumUsed:   ceruleum,
		RepairKitsUsed: kits,
		ReturnTime:     time.Unix(prevReturn, 0).UTC(),
		WasCollected:   true,
		CollectedAt:    now,
		RecordedAt:     now,
	}
}

// NoopArchive satisfies Archive without persisting anything. It stands in
// when no voyage history backend is configured.
type NoopArchive struct{}

func (NoopArchive) RecordVoyages(context.Context, []Voyage) error { return nil }

func (NoopArchive) LatestReturns(context.Context) (map[VoyageKey]int64, error) {
	return nil, nil
}

func (NoopArchive) History(context.Context, HistoryQuery) ([]Voyage, int, error) {
	return nil, 0, nil
}

func (NoopArchive) Daily(context.Context, int, string) ([]DailyStat, error) { return nil, nil }

func (NoopArchive) Summary(context.Context, int) (Summary, error) { return Summary{}, nil }
