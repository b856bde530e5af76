package workflow

import (
	"math"
	"sort"
	"time"

	"printflow/internal/domain"
)

const day = 24 * time.Hour

// StageDeadline pairs a selected department with its allocated deadline.
type StageDeadline struct {
	Department domain.Department
	Deadline   time.Time
	Supplied   bool // taken verbatim from the caller
}

// AllocateDeadlines selects the departments that take part in a job and gives
// each one a deadline.
//
// With a non-empty stageDeadlines map only departments present as keys are
// selected; otherwise all of them are. The selection is sorted by Order.
// Supplied deadlines are used verbatim. The rest are spread evenly from now
// in whole days: daysPerStage = max(1, floor(totalDays/N)) where
// totalDays = max(1, ceil((deliver-now)/24h)), and stage i (1-based) is due
// at now + i*daysPerStage days.
//
// No clamping is done here; see CheckBound and CapComputed.
func AllocateDeadlines(depts []domain.Department, deliver time.Time, stageDeadlines map[string]time.Time, now time.Time) []StageDeadline {
	selected := make([]domain.Department, 0, len(depts))
	for _, d := range depts {
		if len(stageDeadlines) > 0 {
			if _, ok := stageDeadlines[d.ID]; !ok {
				continue
			}
		}
		selected = append(selected, d)
	}
	if len(selected) == 0 {
		return nil
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Order < selected[j].Order })

	totalDays := int(math.Ceil(float64(deliver.Sub(now)) / float64(day)))
	if totalDays < 1 {
		totalDays = 1
	}
	perStage := totalDays / len(selected)
	if perStage < 1 {
		perStage = 1
	}

	out := make([]StageDeadline, len(selected))
	for i, d := range selected {
		if dl, ok := stageDeadlines[d.ID]; ok {
			out[i] = StageDeadline{Department: d, Deadline: dl, Supplied: true}
			continue
		}
		out[i] = StageDeadline{Department: d, Deadline: now.AddDate(0, 0, (i+1)*perStage)}
	}
	return out
}

// CheckBound returns a ValidationError naming the first caller-supplied stage
// deadline that falls after deliver.
func CheckBound(stages []StageDeadline, deliver time.Time) error {
	for _, s := range stages {
		if s.Supplied && s.Deadline.After(deliver) {
			return &domain.ValidationError{
				Field: "stageDeadlines." + s.Department.ID,
				Msg:   "deadline for stage " + s.Department.Name + " is after the job deadline",
			}
		}
	}
	return nil
}

// CapComputed pulls computed deadlines that overshoot deliver back to
// deliver. Overshoot comes from rounding a partial day up, or from a
// delivery date that is already past.
func CapComputed(stages []StageDeadline, deliver time.Time) {
	for i := range stages {
		if !stages[i].Supplied && stages[i].Deadline.After(deliver) {
			stages[i].Deadline = deliver
		}
	}
}
