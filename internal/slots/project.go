package slots

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

const (
	day       = 24 * time.Hour
	dateFmt   = "2006-01-02"
	expiredTS = "expired"
)

// ExpiresAt returns the end of a usage period
func ExpiresAt(created time.Time, usageDays int) time.Time {
	return created.Add(time.Duration(usageDays) * day)
}

// RemainingAt breaks the time left until created+usageDays into whole days, hours
// and minutes. Elapsed periods clamp to zero.
func RemainingAt(created time.Time, usageDays int, now time.Time) types.Remaining {
	left := ExpiresAt(created, usageDays).Sub(now)
	if left < 0 {
		left = 0
	}

	r := types.Remaining{
		RemainingDays:    int(left / day),
		RemainingHours:   int((left % day) / time.Hour),
		RemainingMinutes: int((left % time.Hour) / time.Minute),
	}
	r.RemainingTimeString = formatRemaining(r)
	return r
}

func formatRemaining(r types.Remaining) string {
	var parts []string
	if r.RemainingDays > 0 {
		parts = append(parts, fmt.Sprintf("%dd", r.RemainingDays))
	}
	if r.RemainingHours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", r.RemainingHours))
	}
	if r.RemainingMinutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", r.RemainingMinutes))
	}
	if len(parts) == 0 {
		return expiredTS
	}
	return strings.Join(parts, " ")
}

func dates(created time.Time, usageDays int) (registration, expiry string) {
	registration = created.UTC().Format(dateFmt)
	if usageDays > 0 {
		expiry = ExpiresAt(created, usageDays).UTC().Format(dateFmt)
	}
	return registration, expiry
}

// anchor is the instant a unit's usage period started: its grant's creation when known
func anchor(unit types.SlotStatus) time.Time {
	if unit.GrantCreatedAt != nil {
		return *unit.GrantCreatedAt
	}
	return unit.CreatedAt
}

// ProjectUnits renders units with remaining time, ordered by least time left and
// numbered from 1 in that order.
func ProjectUnits(units []types.SlotStatus, now time.Time) []types.SlotStatusView {
	views := make([]types.SlotStatusView, 0, len(units))
	for _, unit := range units {
		start := anchor(unit)
		v := types.SlotStatusView{
			SlotStatus: unit,
			DBID:       unit.ID,
			Remaining:  RemainingAt(start, unit.UsageDays, now),
		}
		v.CreatedAt = start
		v.RegistrationDate, v.ExpiryDate = dates(start, unit.UsageDays)
		if unit.UsageDays > 0 && !now.Before(ExpiresAt(start, unit.UsageDays)) {
			v.Status = types.SlotExpired
		}
		views = append(views, v)
	}

	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i].Remaining, views[j].Remaining
		if a.RemainingDays != b.RemainingDays {
			return a.RemainingDays < b.RemainingDays
		}
		if a.RemainingHours != b.RemainingHours {
			return a.RemainingHours < b.RemainingHours
		}
		return a.RemainingMinutes < b.RemainingMinutes
	})
	for i := range views {
		views[i].ID = i + 1
	}
	return views
}

// ProjectGrants renders grants with usage and remaining time. used maps grant id to
// the units drawn from it.
func ProjectGrants(grants []types.Slot, used map[int64]int, now time.Time) []types.SlotView {
	views := make([]types.SlotView, 0, len(grants))
	for _, grant := range grants {
		v := types.SlotView{
			Slot:      grant,
			UsedSlots: used[grant.ID],
			Remaining: RemainingAt(grant.CreatedAt, grant.UsageDays, now),
		}
		v.RemainingSlots = max(0, grant.SlotCount-v.UsedSlots)
		v.RegistrationDate, v.ExpiryDate = dates(grant.CreatedAt, grant.UsageDays)
		if grant.UsageDays > 0 && !now.Before(ExpiresAt(grant.CreatedAt, grant.UsageDays)) {
			v.Status = types.SlotExpired
		}
		views = append(views, v)
	}
	return views
}

// FilterGrants keeps grants whose customer id or name contains query, ignoring case
func FilterGrants(views []types.SlotView, query string) []types.SlotView {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return views
	}

	filtered := make([]types.SlotView, 0, len(views))
	for _, v := range views {
		if strings.Contains(strings.ToLower(v.CustomerID), query) ||
			strings.Contains(strings.ToLower(v.CustomerName), query) {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// Totals sums a grant listing
func Totals(views []types.SlotView) types.SlotStats {
	stats := types.SlotStats{}
	customers := make(map[string]struct{})
	for _, v := range views {
		stats.TotalSlots += v.SlotCount
		stats.UsedSlots += v.UsedSlots
		stats.RemainingSlots += v.RemainingSlots
		customers[v.CustomerID] = struct{}{}
	}
	stats.TotalCustomers = len(customers)
	return stats
}
