package period

import (
	"testing"
	"time"

	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
)

func TestResolveWeekly(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		wantStart time.Time
	}{
		{
			name:      "mid week",
			now:       time.Date(2024, 3, 14, 15, 30, 0, 0, time.UTC), // Thursday
			wantStart: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "monday midnight stays on same monday",
			now:       time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "sunday belongs to previous monday",
			now:       time.Date(2024, 3, 17, 23, 59, 59, 0, time.UTC),
			wantStart: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "week spanning month boundary",
			now:       time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC), // Monday Apr 1
			wantStart: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Resolve(models.PeriodKindWeekly, tt.now)
			if !p.Start.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", p.Start, tt.wantStart)
			}
			if !p.End.Equal(tt.wantStart.AddDate(0, 0, 7)) {
				t.Errorf("end = %v, want start+7d", p.End)
			}
		})
	}
}

func TestResolveMonthly(t *testing.T) {
	now := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	p := Resolve(models.PeriodKindMonthly, now)
	if !p.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", p.Start)
	}
	if !p.End.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v", p.End)
	}

	// December rolls into next year.
	p = Resolve(models.PeriodKindMonthly, time.Date(2023, 12, 5, 0, 0, 1, 0, time.UTC))
	if !p.End.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("december end = %v", p.End)
	}
}

func TestResolveYearly(t *testing.T) {
	now := time.Date(2024, 7, 4, 9, 0, 0, 0, time.UTC)
	p := Resolve(models.PeriodKindYearly, now)
	if !p.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", p.Start)
	}
	if !p.End.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v", p.End)
	}
}

// For every kind and a spread of instants, the bucket must contain now and
// have a positive width.
func TestResolveContainsNow(t *testing.T) {
	kinds := []models.PeriodKind{
		models.PeriodKindWeekly,
		models.PeriodKindMonthly,
		models.PeriodKindYearly,
	}
	nows := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC), // leap day
		time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2025, 6, 15, 12, 0, 0, 0, time.FixedZone("IST", 5*3600+1800)),
		time.Now(),
	}

	for _, kind := range kinds {
		for _, now := range nows {
			p := Resolve(kind, now)
			if !p.Start.Before(p.End) {
				t.Errorf("%s at %v: start %v not before end %v", kind, now, p.Start, p.End)
			}
			if !p.Contains(now) {
				t.Errorf("%s at %v: now not in [%v, %v)", kind, now, p.Start, p.End)
			}
		}
	}
}

// The bucket is a function of (kind, now) only: any two instants inside the
// same bucket resolve to identical bounds.
func TestResolveDeterministic(t *testing.T) {
	a := Resolve(models.PeriodKindMonthly, time.Date(2024, 5, 2, 1, 0, 0, 0, time.UTC))
	b := Resolve(models.PeriodKindMonthly, time.Date(2024, 5, 30, 22, 0, 0, 0, time.UTC))
	if !a.Start.Equal(b.Start) || !a.End.Equal(b.End) {
		t.Errorf("same bucket resolved differently: %+v vs %+v", a, b)
	}
}
