package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"fleet_tracker/internal/activity"
	"fleet_tracker/internal/aggregator"
	"fleet_tracker/internal/estimator"
	"fleet_tracker/internal/feed"
	"fleet_tracker/internal/metrics"
	"fleet_tracker/internal/stats"
)

// Target levels clamp to the progression cap.
const (
	defaultTargetLevel = 90
	maxTargetLevel     = 125
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

type healthResponse struct {
	Status      string `json:"status"`
	Sources     int    `json:"sources"`
	LastUpdated string `json:"last_updated,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Sources: len(s.d.Manager.Sources()),
	}
	if t := s.d.Manager.LastUpdated(); !t.IsZero() {
		resp.LastUpdated = t.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "true"
	writeJSON(w, http.StatusOK, s.d.Manager.FleetView(r.Context(), force))
}

type fleetSummaryResponse struct {
	Summary        aggregator.Summary        `json:"summary"`
	SupplyForecast aggregator.SupplyForecast `json:"supply_forecast"`
}

func (s *Server) handleFleetSummary(w http.ResponseWriter, r *http.Request) {
	view := s.d.Manager.FleetView(r.Context(), false)
	writeJSON(w, http.StatusOK, fleetSummaryResponse{
		Summary:        view.Summary,
		SupplyForecast: view.SupplyForecast,
	})
}

type estimatesResponse struct {
	TargetLevel int                    `json:"target_level"`
	Tier        string                 `json:"tier,omitempty"`
	Estimates   []estimator.FCEstimate `json:"estimates"`
}

func (s *Server) handleEstimates(w http.ResponseWriter, r *http.Request) {
	target := queryInt(r, "target", defaultTargetLevel, 1, maxTargetLevel)
	tier, ok := parseTier(r.URL.Query().Get("tier"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown tier")
		return
	}

	groups := aggregator.GroupByFC(s.d.Manager.Accounts(), s.d.Ref)
	now := time.Now().UTC()
	estimates := make([]estimator.FCEstimate, 0, len(groups))
	for _, g := range groups {
		est := s.d.Estimator.EstimateFC(g.Submarines, target, g.FCID, g.FCName, g.World, g.UnlockedLetters, now)
		if tier != "" {
			trimToTier(&est, tier)
		}
		estimates = append(estimates, est)
	}

	writeJSON(w, http.StatusOK, estimatesResponse{
		TargetLevel: target,
		Tier:        string(tier),
		Estimates:   estimates,
	})
}

type fcEstimateResponse struct {
	TargetLevel int                  `json:"target_level"`
	Estimate    estimator.FCEstimate `json:"estimate"`
}

func (s *Server) handleFCEstimate(w http.ResponseWriter, r *http.Request) {
	fcID := chi.URLParam(r, "fc_id")
	target := queryInt(r, "target", defaultTargetLevel, 1, maxTargetLevel)

	groups := aggregator.GroupByFC(s.d.Manager.Accounts(), s.d.Ref)
	for _, g := range groups {
		if g.FCID != fcID {
			continue
		}
		est := s.d.Estimator.EstimateFC(g.Submarines, target, g.FCID, g.FCName, g.World, g.UnlockedLetters, time.Now().UTC())
		writeJSON(w, http.StatusOK, fcEstimateResponse{TargetLevel: target, Estimate: est})
		return
	}
	writeError(w, http.StatusNotFound, "Unknown FC")
}

// trimToTier drops every projection except the requested tier.
func trimToTier(est *estimator.FCEstimate, tier estimator.Tier) {
	est.Estimates = map[estimator.Tier]estimator.TierEstimate{tier: est.Estimates[tier]}
	for i := range est.Submarines {
		sub := &est.Submarines[i]
		sub.Estimates = map[estimator.Tier]estimator.TierEstimate{tier: sub.Estimates[tier]}
	}
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.d.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "Activity log unavailable")
		return
	}

	limit := queryInt(r, "limit", defaultActivityLimit, 1, maxActivityLimit)
	var filter activity.Filter
	if fcID := r.URL.Query().Get("fc_id"); fcID != "" {
		filter.FCIDs = []string{fcID}
	}
	if types := r.URL.Query().Get("type"); types != "" {
		filter.Types = strings.Split(types, ",")
	}

	events, err := s.d.Events.RecentEvents(r.Context(), limit, filter)
	if err != nil {
		s.logger.Error("listing activity", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load activity")
		return
	}
	if events == nil {
		events = []activity.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleDailyHistory(w http.ResponseWriter, r *http.Request) {
	if s.d.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "Voyage history unavailable")
		return
	}

	days := queryInt(r, "days", 30, 1, 365)
	daily, err := s.d.Archive.Daily(r.Context(), days, r.URL.Query().Get("fc_id"))
	if err != nil {
		s.logger.Error("loading daily stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load daily stats")
		return
	}
	if daily == nil {
		daily = []stats.DailyStat{}
	}
	writeJSON(w, http.StatusOK, daily)
}

type ingestResponse struct {
	Ingested int      `json:"ingested"`
	Errors   []string `json:"errors"`
}

// handleIngest accepts one pushed payload, an envelope around one, or a
// stream of either, each JSON value a frame of its own. Credentials are the
// router's business; envelope keys are not rechecked here.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	dec := json.NewDecoder(r.Body)

	resp := ingestResponse{Errors: []string{}}
	for dec.More() {
		var frame json.RawMessage
		if err := dec.Decode(&frame); err != nil {
			resp.Errors = append(resp.Errors, "malformed JSON: "+err.Error())
			break
		}
		n, err := s.ingestFrame(r.Context(), source, frame)
		if err != nil {
			resp.Errors = append(resp.Errors, err.Error())
			continue
		}
		resp.Ingested += n
	}

	if resp.Ingested == 0 {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) ingestFrame(ctx context.Context, source string, frame []byte) (int, error) {
	_, payload, err := feed.DecodeFrame(frame)
	if err != nil {
		metrics.IncFeedMessage("http", "invalid")
		return 0, err
	}
	n, err := s.d.Manager.Ingest(ctx, source, payload, time.Now().UTC())
	if err != nil {
		metrics.IncFeedMessage("http", "invalid")
		return 0, err
	}
	metrics.IncFeedMessage("http", "ok")
	return n, nil
}

func (s *Server) handleClearSource(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	if err := s.d.Manager.ClearSource(r.Context(), source); err != nil {
		if errors.Is(err, aggregator.ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, "Unknown source")
			return
		}
		s.logger.Error("clearing source", "source", source, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to clear source")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Cleared data for " + source})
}
