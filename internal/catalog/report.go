package catalog

import (
	"context"
	"math"
	"time"
)

type DeletedReport struct {
	Total      int `json:"total"`
	Deleted    int `json:"deleted"`
	Percentage int `json:"percentage"`
}

type ActiveReport struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type CategoryReport struct {
	Category   *string `json:"category"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ActiveParams filters the active-products report. EndDate covers its
// whole day.
type ActiveParams struct {
	WithPrice *bool
	StartDate *time.Time
	EndDate   *time.Time
}

// Reporter runs aggregate queries straight against the store. Nothing is
// cached.
type Reporter struct {
	store Store
}

func NewReporter(store Store) *Reporter {
	return &Reporter{store: store}
}

func (r *Reporter) Deleted(ctx context.Context) (DeletedReport, error) {
	total, err := r.store.Count(ctx, CountFilter{Scope: ScopeAll})
	if err != nil {
		return DeletedReport{}, storeErr("count products", err)
	}
	deleted, err := r.store.Count(ctx, CountFilter{Scope: ScopeDeleted})
	if err != nil {
		return DeletedReport{}, storeErr("count deleted products", err)
	}

	rep := DeletedReport{Total: total, Deleted: deleted}
	if total > 0 {
		rep.Percentage = int(math.Round(float64(deleted) / float64(total) * 100))
	}
	return rep, nil
}

func (r *Reporter) Active(ctx context.Context, p ActiveParams) (ActiveReport, error) {
	if p.StartDate != nil && p.EndDate != nil && p.StartDate.After(*p.EndDate) {
		return ActiveReport{}, invalid("startDate", "must not be after endDate")
	}

	f := CountFilter{
		Scope:       ScopeActive,
		WithPrice:   p.WithPrice,
		CreatedFrom: p.StartDate,
	}
	if p.EndDate != nil {
		end := endOfDay(*p.EndDate)
		f.CreatedTo = &end
	}

	count, err := r.store.Count(ctx, f)
	if err != nil {
		return ActiveReport{}, storeErr("count active products", err)
	}
	total, err := r.store.Count(ctx, CountFilter{Scope: ScopeAll})
	if err != nil {
		return ActiveReport{}, storeErr("count products", err)
	}

	return ActiveReport{Count: count, Percentage: percent(count, total)}, nil
}

func (r *Reporter) ByCategory(ctx context.Context) ([]CategoryReport, error) {
	groups, err := r.store.CountByCategory(ctx)
	if err != nil {
		return nil, storeErr("count by category", err)
	}

	total := 0
	for _, g := range groups {
		total += g.Count
	}

	out := make([]CategoryReport, 0, len(groups))
	for _, g := range groups {
		out = append(out, CategoryReport{
			Category:   g.Category,
			Count:      g.Count,
			Percentage: percent(g.Count, total),
		})
	}
	return out, nil
}

// percent is part/total*100 rounded half away from zero to two decimals.
func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*100*100) / 100
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
