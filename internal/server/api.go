package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/labstack/echo/v4"
	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
	"github.com/tartampluch/famcal/internal/reconcile"
)

// commitRequest is the second import phase: the same batch plus one
// decision per conflict, keyed by candidate index.
type commitRequest struct {
	Events      []json.RawMessage            `json:"events"`
	Resolutions map[int]reconcile.Resolution `json:"resolutions"`
}

type commitResponse struct {
	Imported       int `json:"imported"`
	Updated        int `json:"updated"`
	Skipped        int `json:"skipped"`
	SkippedInvalid int `json:"skippedInvalid"`
}

type invalidRecord struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// handleExport returns every event of the household.
func (s *Server) handleExport(c echo.Context) error {
	ctx := c.Request().Context()
	household := c.Param(config.ParamHousehold)

	if _, err := s.store.Household(ctx, household); err != nil {
		return storeError(c, err)
	}
	events, err := s.store.Events(ctx, household)
	if err != nil {
		return storeError(c, err)
	}
	if events == nil {
		events = []calendar.Event{}
	}
	return c.JSON(http.StatusOK, events)
}

// handlePreview classifies an edited batch without writing anything.
func (s *Server) handlePreview(c echo.Context) error {
	var raw []json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
		return apiError(http.StatusBadRequest, config.CodeInvalidPayload)
	}

	res, err := s.classify(c, raw)
	if err != nil {
		return err
	}

	body := map[string]any{
		config.ResponseKeySkippedIn: res.SkippedInvalid(),
		config.ResponseKeyInvalid:   invalidRecords(res),
	}
	if conflicts := res.Conflicts(); len(conflicts) > 0 {
		body[config.ResponseKeyConflicts] = conflicts
	} else {
		valid := make([]calendar.Event, 0, len(res.Items))
		for _, cl := range res.Clean() {
			valid = append(valid, cl.Candidate)
		}
		body[config.ResponseKeyValid] = valid
	}
	return c.JSON(http.StatusOK, body)
}

// handleCommit re-classifies the batch against the current events, checks
// the resolutions and writes the resulting plan.
func (s *Server) handleCommit(c echo.Context) error {
	var req commitRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return apiError(http.StatusBadRequest, config.CodeInvalidPayload)
	}

	res, err := s.classify(c, req.Events)
	if err != nil {
		return err
	}
	plan, err := reconcile.BuildPlan(res, req.Resolutions)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, map[string]any{
			config.ResponseKeyError:   config.CodeUnresolved,
			config.ResponseKeyDetails: err.Error(),
		})
	}

	ctx := c.Request().Context()
	household := c.Param(config.ParamHousehold)
	if err := s.store.ApplyPlan(ctx, household, plan); err != nil {
		return storeError(c, err)
	}
	s.cache.dropHousehold(household)

	out := commitResponse{
		Imported:       len(plan.Creates),
		Updated:        len(plan.Updates),
		Skipped:        plan.Skipped,
		SkippedInvalid: plan.SkippedInvalid,
	}
	slog.Info(config.MsgImportCommitted,
		config.LogKeyComponent, config.CompAPI,
		config.LogKeyHousehold, household,
		config.LogKeyImported, out.Imported,
		config.LogKeyUpdated, out.Updated,
		config.LogKeySkipped, out.Skipped,
		config.LogKeyInvalid, out.SkippedInvalid,
	)
	return c.JSON(http.StatusOK, out)
}

// classify decodes each record on its own so one unreadable record is
// reported as invalid instead of failing the batch. Indexes are preserved.
func (s *Server) classify(c echo.Context, raw []json.RawMessage) (reconcile.Result, error) {
	ctx := c.Request().Context()
	household := c.Param(config.ParamHousehold)

	if _, err := s.store.Household(ctx, household); err != nil {
		return reconcile.Result{}, storeError(c, err)
	}
	existing, err := s.store.Events(ctx, household)
	if err != nil {
		return reconcile.Result{}, storeError(c, err)
	}

	candidates := make([]calendar.Event, len(raw))
	decodeErrs := make(map[int]error)
	for i, r := range raw {
		if err := json.Unmarshal(r, &candidates[i]); err != nil {
			candidates[i] = calendar.Event{}
			decodeErrs[i] = err
		}
	}

	res, err := s.engine.Classify(ctx, candidates, existing)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return reconcile.Result{}, apiError(http.StatusServiceUnavailable, config.CodeInternal)
		}
		return reconcile.Result{}, storeError(c, err)
	}
	for i, derr := range decodeErrs {
		res.Items[i].Kind = reconcile.KindInvalid
		res.Items[i].Invalid = derr.Error()
		res.Items[i].Match = nil
	}
	return res, nil
}

func invalidRecords(res reconcile.Result) []invalidRecord {
	out := []invalidRecord{}
	for _, it := range res.Items {
		if it.Kind == reconcile.KindInvalid {
			out = append(out, invalidRecord{Index: it.Index, Reason: it.Invalid})
		}
	}
	return out
}

// handleOccurrences expands a date range for the calendar UI. Without
// from/to it returns the current week (or month with view=month).
func (s *Server) handleOccurrences(c echo.Context) error {
	ctx := c.Request().Context()
	hh, err := s.store.Household(ctx, c.Param(config.ParamHousehold))
	if err != nil {
		return storeError(c, err)
	}
	loc := hh.Location()

	win, err := requestWindow(c, calendar.Today(s.clock, loc), hh.WeekStart)
	if err != nil {
		return err
	}

	events, err := s.store.EventsInWindow(ctx, hh.ID, win)
	if err != nil {
		return storeError(c, err)
	}
	overrides, err := s.store.Overrides(ctx, hh.ID, win)
	if err != nil {
		return storeError(c, err)
	}

	exp := calendar.Expand(events, overrides, win, loc)
	if exp.Occurrences == nil {
		exp.Occurrences = []calendar.Occurrence{}
	}
	return c.JSON(http.StatusOK, exp)
}

func requestWindow(c echo.Context, today civil.Date, weekStart time.Weekday) (calendar.Window, error) {
	from, to := c.QueryParam(config.QueryFrom), c.QueryParam(config.QueryTo)
	if from == "" && to == "" {
		if c.QueryParam(config.QueryView) == config.ViewMonth {
			return calendar.MonthWindow(today), nil
		}
		return calendar.WeekWindow(today, weekStart), nil
	}

	start, err := civil.ParseDate(from)
	if err != nil {
		return calendar.Window{}, apiError(http.StatusBadRequest, config.CodeInvalidDate)
	}
	end, err := civil.ParseDate(to)
	if err != nil {
		return calendar.Window{}, apiError(http.StatusBadRequest, config.CodeInvalidDate)
	}
	win, err := calendar.NewWindow(start, end)
	if err != nil {
		return calendar.Window{}, apiError(http.StatusBadRequest, config.CodeInvalidRange)
	}
	return win, nil
}

// handlePutOverride creates or replaces the override of one occurrence.
// Sending an override that changes nothing restores the occurrence.
func (s *Server) handlePutOverride(c echo.Context) error {
	date, err := civil.ParseDate(c.Param(config.ParamDate))
	if err != nil {
		return apiError(http.StatusBadRequest, config.CodeInvalidDate)
	}

	var ov calendar.Override
	if err := json.NewDecoder(c.Request().Body).Decode(&ov); err != nil {
		return apiError(http.StatusBadRequest, config.CodeInvalidPayload)
	}
	ov.EventID = c.Param(config.ParamEvent)
	ov.Date = date

	household := c.Param(config.ParamHousehold)
	if err := s.store.PutOverride(c.Request().Context(), household, ov); err != nil {
		return storeError(c, err)
	}
	s.cache.dropHousehold(household)

	if ov.IsEmpty() {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, ov)
}

// handleDeleteOverride restores an occurrence to its event defaults.
func (s *Server) handleDeleteOverride(c echo.Context) error {
	date, err := civil.ParseDate(c.Param(config.ParamDate))
	if err != nil {
		return apiError(http.StatusBadRequest, config.CodeInvalidDate)
	}
	household := c.Param(config.ParamHousehold)
	if err := s.store.DeleteOverride(c.Request().Context(), household, c.Param(config.ParamEvent), date); err != nil {
		return storeError(c, err)
	}
	s.cache.dropHousehold(household)
	return c.NoContent(http.StatusNoContent)
}
