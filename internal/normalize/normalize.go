// Package normalize parses provider timestamps into instants and projects
// instants onto airport calendars.
package normalize

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // airport zones must resolve on hosts without a zoneinfo database

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
)

// DateLayout is the calendar date format used for flight keys and date checks.
const DateLayout = "2006-01-02"

// Layouts that carry their own zone. Tried in order.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04-07:00",
	"2006-01-02T15:04-0700",
	"2006-01-02T15:04Z07:00",
}

// Naive layouts are interpreted in the viewer location.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseInstant parses v in the process-local viewer zone. See ParseInstantIn.
func ParseInstant(v any) (time.Time, bool) {
	return ParseInstantIn(v, time.Local)
}

// ParseInstantIn accepts nil, time.Time, *time.Time or a string and returns
// the instant it denotes. Naive values (no zone designator) are interpreted
// in loc. Anything unparseable yields false.
func ParseInstantIn(v any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t, true
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return *t, true
	case string:
		return parseString(t, loc)
	case fmt.Stringer:
		return parseString(t.String(), loc)
	default:
		return time.Time{}, false
	}
}

func parseString(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// Accept the space separator used by several providers.
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	// A lower-case zulu suffix shows up in some feeds.
	if strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "Z"
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DefaultPriority is the best-available order for a side's instants.
var DefaultPriority = []domain.TimeField{domain.FieldActual, domain.FieldEstimated, domain.FieldScheduled}

// BestSideInstant returns the first present instant on the given side in
// priority order, in UTC. With no priority the default order is used.
func BestSideInstant(rec *domain.FlightRecord, side domain.SideKey, priority ...domain.TimeField) *time.Time {
	if rec == nil {
		return nil
	}
	if len(priority) == 0 {
		priority = DefaultPriority
	}
	s := rec.SideOf(side)
	for _, field := range priority {
		if t := s.Time(field); t != nil && !t.IsZero() {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

// LoadZone resolves an IANA zone name, mapping legacy aliases.
func LoadZone(name string) (*time.Location, error) {
	name = CanonicalZone(name)
	if name == "" {
		return nil, fmt.Errorf("empty zone name")
	}
	return time.LoadLocation(name)
}

// CanonicalZone trims a zone name and rewrites legacy aliases.
func CanonicalZone(name string) string {
	name = strings.TrimSpace(name)
	if alias, ok := zoneAliases[name]; ok {
		return alias
	}
	return name
}

var zoneAliases = map[string]string{
	"Asia/Calcutta": "Asia/Kolkata",
	"Asia/Saigon":   "Asia/Ho_Chi_Minh",
	"Asia/Katmandu": "Asia/Kathmandu",
	"Asia/Rangoon":  "Asia/Yangon",
}

// DateInTimezone returns the calendar date of t in the named zone. An empty
// or unknown zone falls back to t's own location.
func DateInTimezone(t time.Time, tzName string) string {
	if t.IsZero() {
		return ""
	}
	if tzName != "" {
		if loc, err := LoadZone(tzName); err == nil {
			return t.In(loc).Format(DateLayout)
		}
	}
	return t.Format(DateLayout)
}

// TZShortName returns the zone abbreviation in effect at when, e.g. "IST"
// or "CET". Zones without a lettered abbreviation are rendered as an offset
// like "-03:00". It returns "" for an unknown zone.
func TZShortName(tzName string, when time.Time) string {
	if tzName == "" {
		return ""
	}
	loc, err := LoadZone(tzName)
	if err != nil {
		return ""
	}
	if when.IsZero() {
		when = time.Now()
	}
	abbr, offset := when.In(loc).Zone()
	if abbr != "" && !strings.ContainsAny(abbr[:1], "+-0123456789") {
		return abbr
	}
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	mins := offset / 60
	return fmt.Sprintf("%s%02d:%02d", sign, mins/60, mins%60)
}
