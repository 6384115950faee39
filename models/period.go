package models

import (
	"fmt"
	"time"
)

type PeriodKind string

const (
	PeriodKindWeekly  PeriodKind = "weekly"
	PeriodKindMonthly PeriodKind = "monthly"
	PeriodKindYearly  PeriodKind = "yearly"
)

func ParsePeriodKind(s string) (PeriodKind, error) {
	switch PeriodKind(s) {
	case PeriodKindWeekly, PeriodKindMonthly, PeriodKindYearly:
		return PeriodKind(s), nil
	}
	return "", fmt.Errorf("unknown period kind %q", s)
}

// SettlementPeriod is a deterministic [Start, End) date bucket derived from
// the period kind and wall-clock time. It is recomputed on every refresh and
// never persisted.
type SettlementPeriod struct {
	Kind  PeriodKind `json:"kind"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

func (p SettlementPeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}
