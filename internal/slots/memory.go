package slots

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const gridStep = 30 * time.Minute

// Clinic hours: Monday-Friday 9:00 AM - 5:00 PM.
const (
	openHour  = 9
	closeHour = 17
)

// MemoryCalendar is an in-process Finder backed by a seeded provider
// schedule on a 30-minute grid. Reservations are atomic under a single
// mutex, which is the one cross-session contention point of the system.
type MemoryCalendar struct {
	mu        sync.Mutex
	reserved  map[string]bool // cell key -> taken
	providers []string
	loc       *time.Location
}

// NewMemoryCalendar creates a calendar for the given providers. All grid
// cells within clinic hours start free.
func NewMemoryCalendar(providers []string) *MemoryCalendar {
	if len(providers) == 0 {
		providers = []string{"Dr. Johnson", "Dr. Smith", "Dr. Williams", "Dr. Brown", "Dr. Davis"}
	}
	return &MemoryCalendar{
		reserved:  make(map[string]bool),
		providers: providers,
		loc:       time.Local,
	}
}

var _ Finder = (*MemoryCalendar)(nil)

// Query returns free offers ranked soonest-first, with provider-preference
// match and then provider name as tie-breaks.
func (c *MemoryCalendar) Query(ctx context.Context, apptType AppointmentType, cons Constraints) ([]Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if apptType == TypeUnknown {
		apptType = TypeFollowUp
	}
	dur := apptType.Duration()
	cells := int(dur / gridStep)

	start := cons.NotBefore
	if start.IsZero() {
		start = time.Now().In(c.loc)
	}
	lookahead := cons.Lookahead
	if lookahead <= 0 {
		lookahead = 14 * 24 * time.Hour
	}
	end := start.Add(lookahead)

	c.mu.Lock()
	defer c.mu.Unlock()

	var offers []Offer
	for day := startOfDay(start); day.Before(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		if !matchesWeekday(day.Weekday(), cons.DaysOfWeek) {
			continue
		}
		for _, provider := range c.providers {
			if cons.Provider != "" && !providerMatches(provider, cons.Provider) {
				continue
			}
			for h := openHour; h < closeHour; h++ {
				for _, m := range []int{0, 30} {
					slotStart := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, c.loc)
					if slotStart.Before(start) || slotStart.Add(dur).After(endOfDay(day)) {
						continue
					}
					if !withinTimeBand(slotStart, cons.AfterTime, cons.BeforeTime) {
						continue
					}
					if !c.cellsFree(provider, slotStart, cells) {
						continue
					}
					offers = append(offers, Offer{
						ID:       OfferID(provider, slotStart, dur),
						Provider: provider,
						Start:    slotStart,
						Duration: dur,
						Type:     apptType,
					})
				}
			}
		}
	}

	if len(offers) == 0 {
		return nil, ErrNoSlots
	}

	pref := strings.ToLower(cons.Provider)
	sort.SliceStable(offers, func(i, j int) bool {
		if !offers[i].Start.Equal(offers[j].Start) {
			return offers[i].Start.Before(offers[j].Start)
		}
		if pref != "" {
			im := providerMatches(offers[i].Provider, cons.Provider)
			jm := providerMatches(offers[j].Provider, cons.Provider)
			if im != jm {
				return im
			}
		}
		return offers[i].Provider < offers[j].Provider
	})
	return offers, nil
}

// Reserve atomically claims every grid cell the offer spans. Exactly one of
// two racing sessions wins; the loser gets ErrSlotUnavailable.
func (c *MemoryCalendar) Reserve(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	provider, slotStart, dur, err := parseOfferID(id)
	if err != nil {
		return err
	}
	cells := int(dur / gridStep)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cellsFree(provider, slotStart, cells) {
		return ErrSlotUnavailable
	}
	for i := 0; i < cells; i++ {
		c.reserved[cellKey(provider, slotStart.Add(time.Duration(i)*gridStep))] = true
	}
	return nil
}

// Release frees a previously reserved offer, e.g. on booking cancellation.
func (c *MemoryCalendar) Release(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	provider, slotStart, dur, err := parseOfferID(id)
	if err != nil {
		return err
	}
	cells := int(dur / gridStep)

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < cells; i++ {
		delete(c.reserved, cellKey(provider, slotStart.Add(time.Duration(i)*gridStep)))
	}
	return nil
}

// Providers lists the providers this calendar schedules for.
func (c *MemoryCalendar) Providers() []string {
	out := make([]string, len(c.providers))
	copy(out, c.providers)
	return out
}

func (c *MemoryCalendar) cellsFree(provider string, start time.Time, cells int) bool {
	for i := 0; i < cells; i++ {
		if c.reserved[cellKey(provider, start.Add(time.Duration(i)*gridStep))] {
			return false
		}
	}
	return true
}

func cellKey(provider string, t time.Time) string {
	return provider + "|" + strconv.FormatInt(t.Unix(), 10)
}

// OfferID encodes the provider, start, and duration of a slot. Reserve and
// Release accept it, so callers holding only a booking can rebuild the ID.
func OfferID(provider string, start time.Time, dur time.Duration) string {
	return fmt.Sprintf("%s|%d|%d", provider, start.Unix(), int(dur.Minutes()))
}

func parseOfferID(id string) (provider string, start time.Time, dur time.Duration, err error) {
	parts := strings.Split(id, "|")
	if len(parts) != 3 {
		return "", time.Time{}, 0, fmt.Errorf("slots: malformed offer id %q", id)
	}
	unix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", time.Time{}, 0, fmt.Errorf("slots: malformed offer id %q", id)
	}
	mins, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", time.Time{}, 0, fmt.Errorf("slots: malformed offer id %q", id)
	}
	return parts[0], time.Unix(unix, 0), time.Duration(mins) * time.Minute, nil
}

func providerMatches(provider, preference string) bool {
	p := strings.ToLower(provider)
	q := strings.ToLower(strings.TrimSpace(preference))
	if q == "" {
		return true
	}
	return strings.Contains(p, strings.TrimPrefix(q, "dr. ")) || strings.Contains(p, q)
}

func matchesWeekday(day time.Weekday, allowed []time.Weekday) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, d := range allowed {
		if d == day {
			return true
		}
	}
	return false
}

func withinTimeBand(t time.Time, after, before string) bool {
	hm := fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
	if after != "" && hm < after {
		return false
	}
	if before != "" && hm >= before {
		return false
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), closeHour, 0, 0, 0, day.Location())
}
