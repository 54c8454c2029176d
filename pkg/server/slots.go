package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/raterudder/chargeplan/pkg/log"
	"github.com/raterudder/chargeplan/pkg/slots"
	"github.com/raterudder/chargeplan/pkg/storage"
	"github.com/raterudder/chargeplan/pkg/types"
	"github.com/raterudder/chargeplan/pkg/utility"
)

// SlotsRes is the response type for the slots endpoint.
type SlotsRes struct {
	Slots   []types.Slot      `json:"slots"`
	Summary types.PlanSummary `json:"summary"`
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	started := time.Now()
	siteID := s.getSiteID(r)
	q := r.URL.Query()

	start := started
	if v := q.Get("start"); v != "" {
		t, err := slots.ParseInstant(v)
		if err != nil {
			s.metrics.observeBuild("invalid", started)
			writeJSONError(w, fmt.Sprintf("invalid start: %v", err), http.StatusBadRequest)
			return
		}
		start = t
	}
	var target time.Time
	if v := q.Get("target"); v != "" {
		t, err := slots.ParseInstant(v)
		if err != nil {
			s.metrics.observeBuild("invalid", started)
			writeJSONError(w, fmt.Sprintf("invalid target: %v", err), http.StatusBadRequest)
			return
		}
		target = t
	}
	var horizon int
	if v := q.Get("horizon"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h < 1 || h > slots.MaxHorizonHours {
			s.metrics.observeBuild("invalid", started)
			writeJSONError(w, fmt.Sprintf("invalid horizon: must be a whole number of hours between 1 and %d", slots.MaxHorizonHours), http.StatusBadRequest)
			return
		}
		horizon = h
	}

	settings, err := s.getSettingsWithMigration(ctx, siteID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		s.metrics.observeBuild("error", started)
		writeJSONError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}

	var plan types.ChargingPlan
	if p, err := s.storage.GetChargingPlan(ctx, siteID); err == nil {
		plan = p
	} else if !errors.Is(err, storage.ErrPlanNotFound) {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get plan", slog.Any("error", err))
		s.metrics.observeBuild("error", started)
		writeJSONError(w, "failed to get plan", http.StatusInternalServerError)
		return
	}
	if target.IsZero() {
		target = plan.TargetTime
	}
	if target.IsZero() {
		s.metrics.observeBuild("invalid", started)
		writeJSONError(w, "target is required when no charging plan is stored", http.StatusBadRequest)
		return
	}

	if horizon == 0 {
		horizon = settings.HorizonHours
	}
	lang := q.Get("locale")
	if lang == "" {
		lang = settings.Locale
	}
	if lang == "" {
		lang = s.defaultLocale
	}

	loc := s.defaultLocation
	if settings.Timezone != "" {
		if l, err := time.LoadLocation(settings.Timezone); err == nil {
			loc = l
		} else {
			log.Ctx(ctx).WarnContext(ctx, "invalid site timezone", slog.String("timezone", settings.Timezone), slog.Any("error", err))
		}
	}

	rates := s.siteRates(ctx, siteID, settings.Settings)

	result, err := s.slots.Build(ctx, slots.Request{
		Start:        start,
		Target:       target,
		Rates:        rates,
		Plan:         plan.Segments,
		HorizonHours: horizon,
		Locale:       lang,
		Location:     loc,
	})
	if err != nil {
		if errors.Is(err, slots.ErrInvalidInput) {
			s.metrics.observeBuild("invalid", started)
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to build slots", slog.Any("error", err))
		s.metrics.observeBuild("error", started)
		writeJSONError(w, "failed to build slots", http.StatusInternalServerError)
		return
	}
	s.metrics.observeBuild("ok", started)

	w.Header().Set("Cache-Control", "private, max-age=60")
	writeJSON(w, SlotsRes{
		Slots:   result,
		Summary: slots.Summarize(plan.Segments, target),
	})
}

// siteRates returns the tariff rates of the site's provider. Failures are
// logged and result in no rates so the preview still renders without prices.
func (s *Server) siteRates(ctx context.Context, siteID string, settings types.Settings) []types.TariffRate {
	if settings.UtilityProvider == "" {
		return nil
	}
	u, err := s.utilities.Site(ctx, siteID, settings)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to get site utility", slog.String("utilityProvider", settings.UtilityProvider), slog.Any("error", err))
		s.metrics.priceFetchFailed(settings.UtilityProvider)
		return nil
	}
	prices, err := utility.Forecast(ctx, u)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get prices", slog.String("utilityProvider", settings.UtilityProvider), slog.Any("error", err))
		s.metrics.priceFetchFailed(settings.UtilityProvider)
		return nil
	}
	return utility.Rates(prices, settings.IncludeGridFees)
}
