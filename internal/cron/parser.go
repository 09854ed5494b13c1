// Package cron schedules periodic maintenance jobs such as the airport
// index refresh.
package cron

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts standard five-field expressions and descriptors such as
// @daily or @every 6h.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse parses expression with calendar fields evaluated in timezone.
// @every schedules ignore the timezone.
func Parse(expression string, timezone string) (cron.Schedule, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("parse cron: empty expression")
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	sched, err := parser.Parse("CRON_TZ=" + timezone + " " + expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}
	return sched, nil
}
