package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hylla/weldtrack/internal/domain"
)

// Standard shift lengths per person.
const (
	LongShiftHours  = 9.0
	ShortShiftHours = 8.0
)

// Roster is the available headcount per role for one day.
type Roster map[domain.Role]int

// CapacityLine is the balance of one role. A negative Balance means over-allocation.
type CapacityLine struct {
	Role      domain.Role `json:"role"`
	Available float64     `json:"available"`
	Allocated float64     `json:"allocated"`
	Balance   float64     `json:"balance"`
}

// HoursPerPerson returns the shift length for date: Monday to Thursday run long, Friday and the weekend short.
func HoursPerPerson(date time.Time) float64 {
	switch date.Weekday() {
	case time.Monday, time.Tuesday, time.Wednesday, time.Thursday:
		return LongShiftHours
	default:
		return ShortShiftHours
	}
}

// Capacity compares roster availability on date with the hours allocated by that day's submissions.
// Submissions on other days are ignored. Roles from either side are reported, sorted by name.
func Capacity(roster Roster, date time.Time, allocations []domain.ActivitySubmission) []CapacityLine {
	day := domain.DateOnly(date)
	perPerson := HoursPerPerson(day)

	available := map[domain.Role]float64{}
	for role, count := range roster {
		role = domain.NormalizeRole(string(role))
		if role == "" || count <= 0 {
			continue
		}
		available[role] += float64(count) * perPerson
	}

	allocated := map[domain.Role]float64{}
	for _, sub := range allocations {
		if !domain.DateOnly(sub.Date).Equal(day) {
			continue
		}
		for role, count := range sub.Crew {
			if count <= 0 {
				continue
			}
			allocated[domain.NormalizeRole(string(role))] += sub.Hours * float64(count)
		}
	}

	roles := make([]domain.Role, 0, len(available)+len(allocated))
	for role := range available {
		roles = append(roles, role)
	}
	for role := range allocated {
		if _, ok := available[role]; !ok {
			roles = append(roles, role)
		}
	}
	slices.SortFunc(roles, func(a, b domain.Role) int {
		return strings.Compare(string(a), string(b))
	})

	out := make([]CapacityLine, 0, len(roles))
	for _, role := range roles {
		out = append(out, CapacityLine{
			Role:      role,
			Available: available[role],
			Allocated: allocated[role],
			Balance:   available[role] - allocated[role],
		})
	}
	return out
}

// Capacity loads the submissions of date and computes the per-role balance.
func (s *Service) Capacity(ctx context.Context, roster Roster, date time.Time) ([]CapacityLine, error) {
	if date.IsZero() {
		return nil, domain.ErrInvalidDate
	}
	submissions, err := s.ListSubmissions(ctx, date, date)
	if err != nil {
		return nil, err
	}
	return Capacity(roster, date, submissions), nil
}
