// Package service holds the front-desk workflows on top of the repository:
// registration, the daily refresh with rollover, and the metrics
// computation the dashboards display.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lawliet8886/Registro-de-pacientes/internal/domain"
	"github.com/lawliet8886/Registro-de-pacientes/internal/repository"
)

// FrontDesk coordinates the desk operations.
type FrontDesk struct {
	repo repository.RecordsRepo
	log  *zap.Logger

	// Now is the injectable time source; tests pin it.
	Now func() time.Time
}

// NewFrontDesk wires the service.
func NewFrontDesk(repo repository.RecordsRepo, log *zap.Logger) *FrontDesk {
	return &FrontDesk{repo: repo, log: log, Now: time.Now}
}

// RegisterInput is one registration as the desk captures it.
type RegisterInput struct {
	Name         string
	Professional string
	Date         string   // dd/MM/yyyy; empty means today
	Selected     []string // raw demand-code selection
	Start, End   string   // convivência interval, both or neither
	Referral     string   // referral category for AI/REA visits
	Observations string
}

// Register resolves the demand selection, derives the convivência meal
// flags and inserts the record. Conflicting selections are resolved, not
// rejected; the resolution notes come back to the caller.
func (f *FrontDesk) Register(ctx context.Context, in RegisterInput) ([]string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: patient name is required", repository.ErrValidation)
	}
	if (in.Start == "") != (in.End == "") {
		return nil, fmt.Errorf("%w: start and end times must be provided together", repository.ErrValidation)
	}
	if in.Start != "" && (!domain.ValidClock(in.Start) || !domain.ValidClock(in.End)) {
		return nil, fmt.Errorf("%w: invalid time; use the HH:mm format", repository.ErrValidation)
	}

	sel := domain.ResolveSelection(in.Selected)

	var meals domain.MealFlags
	tokens := make([]string, len(sel.Tokens))
	for i, t := range sel.Tokens {
		if t == "C" && in.Start != "" {
			tokens[i] = fmt.Sprintf("C (%s-%s)", in.Start, in.End)
			meals = domain.MealsForInterval(in.Start, in.End)
			continue
		}
		tokens[i] = t
	}

	date := in.Date
	if date == "" {
		date = f.Now().Format(domain.DateLayout)
	}
	now := f.Now().Format(domain.ClockLayout)

	fields := map[string]any{
		"patient_name":   name,
		"demands":        strings.Join(tokens, ", "),
		"reference_prof": strings.TrimSpace(in.Professional),
		"date":           date,
		"enter_sys":      now,
		"enter_inf":      now,
		"left_sys":       nil,
		"left_inf":       nil,
		"observations":   in.Observations,
		"encaminhamento": nullable(in.Referral),
		"desjejum":       b2i(meals.Desjejum),
		"lunch":          b2i(meals.Lunch),
		"snack":          b2i(meals.Snack),
		"dinner":         b2i(meals.Dinner),
		"start_time":     nullable(in.Start),
		"end_time":       nullable(in.End),
		"archived_ai":    0,
	}
	if err := f.repo.Create(ctx, fields); err != nil {
		return nil, err
	}
	f.log.Info("patient registered",
		zap.String("name", name), zap.String("date", date),
		zap.Strings("demands", tokens))
	return sel.Conflicts, nil
}

// Leave marks a departure with the current system clock.
func (f *FrontDesk) Leave(ctx context.Context, id int64, informal string) error {
	sys := f.Now().Format(domain.ClockLayout)
	if informal == "" {
		informal = sys
	}
	if err := f.repo.Leave(ctx, id, sys, informal); err != nil {
		return err
	}
	f.log.Info("patient departed", zap.Int64("id", id), zap.String("left", informal))
	return nil
}

// Reactivate brings a departed record back with fresh entry clocks.
func (f *FrontDesk) Reactivate(ctx context.Context, id int64) error {
	now := f.Now().Format(domain.ClockLayout)
	if _, err := f.repo.Reactivate(ctx, id, now, now); err != nil {
		return err
	}
	f.log.Info("patient reactivated", zap.Int64("id", id))
	return nil
}

// UpdateMeals forwards a meal-flag change.
func (f *FrontDesk) UpdateMeals(ctx context.Context, id int64, flags domain.MealFlags) error {
	if err := f.repo.UpdateMeals(ctx, id, flags); err != nil {
		return err
	}
	f.log.Debug("meals updated", zap.Int64("id", id))
	return nil
}

// UpdateDemands resolves the selection and forwards the demand change.
func (f *FrontDesk) UpdateDemands(ctx context.Context, id int64, selected []string, start, end, referral string) ([]string, error) {
	sel := domain.ResolveSelection(selected)
	tokens := make([]string, len(sel.Tokens))
	for i, t := range sel.Tokens {
		if t == "C" && start != "" {
			tokens[i] = fmt.Sprintf("C (%s-%s)", start, end)
			continue
		}
		tokens[i] = t
	}
	err := f.repo.UpdateDemands(ctx, id, strings.Join(tokens, ", "),
		nullable(start), nullable(end), nullable(referral))
	if err != nil {
		return nil, err
	}
	f.log.Info("demands updated", zap.Int64("id", id), zap.Strings("demands", tokens))
	return sel.Conflicts, nil
}

// Rollover carries yesterday's open-ended records onto date.
func (f *FrontDesk) Rollover(ctx context.Context, date string) (int, error) {
	n, err := f.repo.RolloverOpenEnded(ctx, date)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		f.log.Info("open-ended records rolled over", zap.String("date", date), zap.Int("created", n))
	}
	return n, nil
}

// Repair runs the legacy import fixups and logs what changed.
func (f *FrontDesk) Repair(ctx context.Context) error {
	times, breakfasts, err := f.repo.RepairLegacyImports(ctx)
	if err != nil {
		return err
	}
	if times > 0 || breakfasts > 0 {
		f.log.Info("legacy imports repaired",
			zap.Int64("entry_times", times), zap.Int64("breakfasts", breakfasts))
	}
	return nil
}

// Snapshot is everything the dashboard shows for one date.
type Snapshot struct {
	Date    string
	Counts  domain.DayCounts
	Day     Metrics
	AllTime Metrics
}

// Refresh rolls open-ended records onto the date and assembles the
// dashboard snapshot.
func (f *FrontDesk) Refresh(ctx context.Context, date string) (Snapshot, error) {
	if _, err := f.Rollover(ctx, date); err != nil {
		return Snapshot{}, err
	}

	counts, err := f.repo.Counts(ctx, date)
	if err != nil {
		return Snapshot{}, err
	}
	dayRows, err := f.repo.MetricsRowsForDay(ctx, date)
	if err != nil {
		return Snapshot{}, err
	}
	allRows, err := f.repo.MetricsRowsAll(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Date:    date,
		Counts:  counts,
		Day:     ComputeMetrics(dayRows),
		AllTime: ComputeMetrics(allRows),
	}, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
