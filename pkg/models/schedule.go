package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule fires its job whenever the cron expression ticks.
// NextDueAt is precomputed so the scheduler can poll without individual timers.
type Schedule struct {
	// Name is conventionally "<job>_schedule"
	Name string `json:"name" validate:"required"`

	// JobName is the job launched on every tick
	JobName string `json:"job_name" validate:"required"`

	// CronExpression uses standard 5-field cron format (minute hour day month weekday), UTC
	CronExpression string `json:"cron_expression" validate:"required"`

	// Status is fixed at build time from the automation activation flag
	Status SensorStatus `json:"status"`

	// NextDueAt is the precomputed next execution time
	NextDueAt time.Time `json:"next_due_at"`
}

// ErrInvalidSchedule is returned when schedule validation fails.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a standard 5-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// NewSchedule creates a Schedule whose first tick is the first one after now.
func NewSchedule(name, jobName, cronExpression string, status SensorStatus, now time.Time) (*Schedule, error) {
	schedule := &Schedule{
		Name:           name,
		JobName:        jobName,
		CronExpression: cronExpression,
		Status:         status,
	}

	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	if err := schedule.Advance(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// Advance moves NextDueAt to the first tick strictly after referenceTime.
func (s *Schedule) Advance(referenceTime time.Time) error {
	cronSchedule, err := ParseCron(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = cronSchedule.Next(referenceTime.UTC())

	return nil
}

// IsDue checks if this schedule is due for execution at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Status == SensorStatusRunning && !s.NextDueAt.IsZero() && !s.NextDueAt.After(now)
}

// Validate performs validation on the schedule fields.
func (s *Schedule) Validate() error {
	if s.Name == "" || s.JobName == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	_, err := ParseCron(s.CronExpression)

	return err
}
