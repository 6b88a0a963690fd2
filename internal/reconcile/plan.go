package reconcile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
)

// Resolution is the operator's decision for one conflict.
type Resolution string

const (
	ResolutionSkip   Resolution = "skip"
	ResolutionUpdate Resolution = "update"
	ResolutionCreate Resolution = "create"
)

func (r Resolution) valid() bool {
	switch r {
	case ResolutionSkip, ResolutionUpdate, ResolutionCreate:
		return true
	}
	return false
}

// Update replaces an existing record with the candidate's fields.
type Update struct {
	ExistingID string
	Event      calendar.Event
}

// Plan is the set of writes an import commit performs.
type Plan struct {
	Creates        []calendar.Event
	Updates        []Update
	Skipped        int
	SkippedInvalid int
}

// BuildPlan combines a classification with the operator's resolutions,
// keyed by candidate index. Every conflict needs exactly one resolution and
// resolutions may only target conflicts. Clean candidates are created.
// Created events lose their incoming id; the store assigns a fresh one.
func BuildPlan(res Result, resolutions map[int]Resolution) (Plan, error) {
	plan := Plan{SkippedInvalid: res.SkippedInvalid()}
	var errs []error

	byIndex := make(map[int]Classification, len(res.Items))
	for _, c := range res.Items {
		byIndex[c.Index] = c
	}
	for _, idx := range sortedKeys(resolutions) {
		c, ok := byIndex[idx]
		if !ok || !c.IsConflict() {
			errs = append(errs, fmt.Errorf("%s: %d", config.ErrResolutionTarget, idx))
		}
		if r := resolutions[idx]; !r.valid() {
			errs = append(errs, fmt.Errorf("%s: %d: %q", config.ErrResolution, idx, r))
		}
	}

	for _, c := range res.Items {
		switch c.Kind {
		case KindInvalid:
			continue
		case KindClean:
			plan.Creates = append(plan.Creates, fresh(c.Candidate))
			continue
		}

		r, ok := resolutions[c.Index]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %d", config.ErrUnresolved, c.Index))
			continue
		}
		switch r {
		case ResolutionSkip:
			plan.Skipped++
		case ResolutionCreate:
			plan.Creates = append(plan.Creates, fresh(c.Candidate))
		case ResolutionUpdate:
			ev := c.Candidate
			ev.ID = c.Match.Existing.ID
			ev.HouseholdID = c.Match.Existing.HouseholdID
			ev.CreatedAt = c.Match.Existing.CreatedAt
			plan.Updates = append(plan.Updates, Update{ExistingID: ev.ID, Event: ev})
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func fresh(ev calendar.Event) calendar.Event {
	ev.ID = ""
	return ev
}

func sortedKeys(m map[int]Resolution) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
