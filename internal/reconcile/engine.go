// Package reconcile classifies imported events against the events a
// household already has. It never writes; see BuildPlan for turning a
// classification plus operator decisions into writes.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
	"golang.org/x/sync/errgroup"
)

// Kind is the outcome of classifying one candidate.
type Kind string

const (
	KindClean         Kind = "clean"
	KindIDConflict    Kind = "id"
	KindFuzzyConflict Kind = "fuzzy"
	KindInvalid       Kind = "invalid"
)

// Breakdown holds the three sub-scores of a pair.
type Breakdown struct {
	Title        float64 `json:"title"`
	Date         float64 `json:"date"`
	Participants float64 `json:"participants"`
}

// Total is the 0-100 pair score.
func (b Breakdown) Total() float64 { return b.Title + b.Date + b.Participants }

// Match is the best existing record found for a candidate.
type Match struct {
	Existing  calendar.Event `json:"existing"`
	Score     float64        `json:"score"`
	Breakdown Breakdown      `json:"breakdown"`
	Reasons   []string       `json:"reasons"`
}

// Classification is the verdict for one candidate. Index is the
// candidate's position in the submitted batch.
type Classification struct {
	Index     int            `json:"index"`
	Candidate calendar.Event `json:"candidate"`
	Kind      Kind           `json:"kind"`
	Match     *Match         `json:"match,omitempty"`
	Invalid   string         `json:"invalid,omitempty"`
}

// IsConflict reports whether the operator must decide on this candidate.
func (c Classification) IsConflict() bool {
	return c.Kind == KindIDConflict || c.Kind == KindFuzzyConflict
}

// Result lists one Classification per candidate, in input order.
type Result struct {
	Items []Classification `json:"items"`
}

// Conflicts returns the candidates needing an operator decision.
func (r Result) Conflicts() []Classification { return r.filter(KindIDConflict, KindFuzzyConflict) }

// Clean returns the candidates that can be created directly.
func (r Result) Clean() []Classification { return r.filter(KindClean) }

// SkippedInvalid counts candidates that could not be read.
func (r Result) SkippedInvalid() int { return len(r.filter(KindInvalid)) }

func (r Result) filter(kinds ...Kind) []Classification {
	var out []Classification
	for _, c := range r.Items {
		for _, k := range kinds {
			if c.Kind == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Engine scores candidates on a bounded pool of workers.
type Engine struct {
	// Workers bounds concurrent candidates. Zero means GOMAXPROCS.
	Workers int
}

// Classify scores every candidate independently against the full existing
// set. The verdict for a candidate never depends on the other candidates,
// so the result is stable under any batch order. It only fails when ctx is
// cancelled.
func (e *Engine) Classify(ctx context.Context, candidates, existing []calendar.Event) (Result, error) {
	items := make([]Classification, len(candidates))

	byID := make(map[string]int, len(existing))
	for i, ex := range existing {
		if ex.ID == "" {
			continue
		}
		if _, dup := byID[ex.ID]; !dup {
			byID[ex.ID] = i
		}
	}

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i] = classifyOne(i, cand, existing, byID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Items: items}
	slog.Debug(config.MsgClassifyDone,
		config.LogKeyComponent, config.CompReconcile,
		config.LogKeyCount, len(candidates),
		config.LogKeyConflicts, len(res.Conflicts()),
		config.LogKeyClean, len(res.Clean()),
		config.LogKeyInvalid, res.SkippedInvalid(),
	)
	return res, nil
}

func classifyOne(index int, cand calendar.Event, existing []calendar.Event, byID map[string]int) Classification {
	c := Classification{Index: index, Candidate: cand, Kind: KindClean}

	if err := cand.Validate(); err != nil {
		c.Kind = KindInvalid
		c.Invalid = err.Error()
		return c
	}

	if cand.ID != "" {
		if i, ok := byID[cand.ID]; ok {
			c.Kind = KindIDConflict
			b := Score(cand, existing[i])
			c.Match = &Match{
				Existing:  existing[i],
				Score:     b.Total(),
				Breakdown: b,
				Reasons:   append([]string{config.ReasonSameID}, reasons(cand, existing[i], b)...),
			}
			return c
		}
	}

	best, bestIdx := Breakdown{}, -1
	for i, ex := range existing {
		b := Score(cand, ex)
		// Strictly greater: ties go to the earliest existing record.
		if bestIdx < 0 || b.Total() > best.Total() {
			best, bestIdx = b, i
		}
	}
	if bestIdx >= 0 && best.Total() > config.FuzzyConflictThreshold {
		c.Kind = KindFuzzyConflict
		c.Match = &Match{
			Existing:  existing[bestIdx],
			Score:     best.Total(),
			Breakdown: best,
			Reasons:   reasons(cand, existing[bestIdx], best),
		}
	}
	return c
}

// Score computes the pair score of a candidate against an existing record.
// It depends on the two records only.
func Score(cand, existing calendar.Event) Breakdown {
	var b Breakdown
	if sim := TitleSimilarity(cand.Title, existing.Title); sim > config.TitleSimilarityThreshold {
		b.Title = config.WeightTitle * sim
	}
	b.Date = dateScore(daysApart(cand, existing))
	b.Participants = config.WeightParticipants * jaccard(cand.Participants, existing.Participants)
	return b
}

// TitleSimilarity is 1 - editDistance/maxLength over runes of the
// case-folded, trimmed titles.
func TitleSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func daysApart(a, b calendar.Event) int {
	d := a.StartDate.DaysSince(b.StartDate)
	if d < 0 {
		d = -d
	}
	return d
}

func dateScore(days int) float64 {
	switch {
	case days == 0:
		return config.DateScoreSameDay
	case days <= config.DateWindowOneDay:
		return config.DateScoreOneDay
	case days <= config.DateWindowOneWeek:
		return config.DateScoreOneWeek
	}
	return 0
}

// jaccard is |a ∩ b| / |a ∪ b| over the distinct members, 0 for two empty sets.
func jaccard(a, b []calendar.MemberRef) float64 {
	inter, union := overlap(a, b)
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func overlap(a, b []calendar.MemberRef) (inter, union int) {
	set := make(map[calendar.MemberRef]bool, len(a))
	for _, m := range a {
		set[m] = true
	}
	seen := make(map[calendar.MemberRef]bool, len(b))
	for _, m := range b {
		if seen[m] {
			continue
		}
		seen[m] = true
		if set[m] {
			inter++
		}
	}
	union = len(set) + len(seen) - inter
	return inter, union
}

func reasons(cand, existing calendar.Event, b Breakdown) []string {
	var out []string
	if b.Title > 0 {
		out = append(out, fmt.Sprintf(config.ReasonTitle, 100*TitleSimilarity(cand.Title, existing.Title)))
	}
	switch days := daysApart(cand, existing); {
	case days == 0:
		out = append(out, config.ReasonSameDay)
	case b.Date > 0:
		out = append(out, fmt.Sprintf(config.ReasonDaysApart, days))
	}
	if inter, union := overlap(cand.Participants, existing.Participants); inter > 0 {
		out = append(out, fmt.Sprintf(config.ReasonParticipants, inter, union))
	}
	return out
}
