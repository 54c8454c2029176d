package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/raterudder/chargeplan/pkg/log"
	"github.com/raterudder/chargeplan/pkg/storage"
	"github.com/raterudder/chargeplan/pkg/types"
)

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := s.getSiteID(r)

	plan, err := s.storage.GetChargingPlan(ctx, siteID)
	if err != nil {
		if errors.Is(err, storage.ErrPlanNotFound) {
			writeJSONError(w, "no charging plan", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get plan", slog.Any("error", err))
		writeJSONError(w, "failed to get plan", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, plan)
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := s.getSiteID(r)

	user := s.getUser(r)
	if !user.Admin {
		log.Ctx(ctx).WarnContext(ctx, "unauthorized for plan update", slog.String("userID", user.ID))
		writeJSONError(w, "unauthorized", http.StatusForbidden)
		return
	}

	var req struct {
		TargetTime time.Time           `json:"targetTime"`
		Segments   []types.PlanSegment `json:"segments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode plan", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	plan := types.ChargingPlan{
		TargetTime: req.TargetTime,
		Segments:   req.Segments,
		UpdatedAt:  time.Now(),
	}
	if err := plan.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	sort.Slice(plan.Segments, func(i, j int) bool {
		return plan.Segments[i].Start.Before(plan.Segments[j].Start)
	})

	if err := s.storage.SetChargingPlan(ctx, siteID, plan); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save plan", slog.Any("error", err))
		writeJSONError(w, "failed to save plan", http.StatusInternalServerError)
		return
	}
	log.Ctx(ctx).InfoContext(
		ctx,
		"charging plan updated",
		slog.Time("targetTime", plan.TargetTime),
		slog.Int("segments", len(plan.Segments)),
	)

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := s.getSiteID(r)

	if !s.getUser(r).Admin {
		writeJSONError(w, "unauthorized", http.StatusForbidden)
		return
	}
	if err := s.storage.DeleteChargingPlan(ctx, siteID); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to delete plan", slog.Any("error", err))
		writeJSONError(w, "failed to delete plan", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
