package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedule_ValidCronExpression(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 7, 0, 0, time.UTC)

	testCases := []struct {
		name           string
		cronExpression string
		expectedNext   time.Time
	}{
		{
			name:           "every 10 minutes",
			cronExpression: "*/10 * * * *",
			expectedNext:   time.Date(2025, 3, 14, 10, 10, 0, 0, time.UTC),
		},
		{
			name:           "every 2 hours",
			cronExpression: "0 */2 * * *",
			expectedNext:   time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
		},
		{
			name:           "daily at midnight",
			cronExpression: "0 0 * * *",
			expectedNext:   time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			schedule, err := NewSchedule("job_schedule", "job", tc.cronExpression, SensorStatusRunning, now)
			require.NoError(t, err)
			require.NotNil(t, schedule)

			assert.Equal(t, "job_schedule", schedule.Name)
			assert.Equal(t, "job", schedule.JobName)
			assert.Equal(t, tc.expectedNext, schedule.NextDueAt)
		})
	}
}

func TestNewSchedule_InvalidInput(t *testing.T) {
	now := time.Now().UTC()

	testCases := []struct {
		name    string
		sName   string
		job     string
		cronExp string
	}{
		{name: "empty name", sName: "", job: "job", cronExp: "* * * * *"},
		{name: "empty job", sName: "s", job: "", cronExp: "* * * * *"},
		{name: "empty expression", sName: "s", job: "job", cronExp: ""},
		{name: "garbage expression", sName: "s", job: "job", cronExp: "not a cron"},
		{name: "six fields", sName: "s", job: "job", cronExp: "0 0 0 * * *"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			schedule, err := NewSchedule(tc.sName, tc.job, tc.cronExp, SensorStatusRunning, now)
			assert.Error(t, err)
			assert.Nil(t, schedule)
		})
	}
}

func TestSchedule_IsDue(t *testing.T) {
	start := time.Date(2025, 3, 14, 10, 7, 0, 0, time.UTC)

	schedule, err := NewSchedule("s", "job", "*/10 * * * *", SensorStatusRunning, start)
	require.NoError(t, err)

	assert.False(t, schedule.IsDue(start))
	assert.True(t, schedule.IsDue(time.Date(2025, 3, 14, 10, 10, 0, 0, time.UTC)))
	assert.True(t, schedule.IsDue(time.Date(2025, 3, 14, 10, 11, 30, 0, time.UTC)))

	require.NoError(t, schedule.Advance(time.Date(2025, 3, 14, 10, 11, 30, 0, time.UTC)))
	assert.Equal(t, time.Date(2025, 3, 14, 10, 20, 0, 0, time.UTC), schedule.NextDueAt)
}

func TestSchedule_StoppedIsNeverDue(t *testing.T) {
	start := time.Date(2025, 3, 14, 10, 7, 0, 0, time.UTC)

	schedule, err := NewSchedule("s", "job", "* * * * *", SensorStatusStopped, start)
	require.NoError(t, err)

	assert.False(t, schedule.IsDue(start.Add(time.Hour)))
}
