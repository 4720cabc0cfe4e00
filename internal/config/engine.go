package config

import (
	"fmt"
	"time"

	"github.com/rafaeljc/tally/internal/timescope"
)

// EngineConfig configures calendar handling of the variable graph.
type EngineConfig struct {
	// Timezone is the IANA zone day, week, month and year boundaries are
	// computed in.
	Timezone string `envconfig:"TIMEZONE" default:"UTC"`

	// WeekStart anchors weekly scopes built by the API from a bare period.
	WeekStart string `envconfig:"WEEK_START" default:"MONDAY" validate:"oneof=SUNDAY MONDAY SATURDAY"`
}

// Location resolves Timezone.
func (c *EngineConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid engine timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DefaultWeekStart returns WeekStart as a timescope value.
func (c *EngineConfig) DefaultWeekStart() timescope.WeekStart {
	return timescope.WeekStart(c.WeekStart)
}

// Validate checks that the timezone can be loaded.
func (c *EngineConfig) Validate() error {
	_, err := c.Location()
	return err
}
