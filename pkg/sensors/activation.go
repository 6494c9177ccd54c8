package sensors

import (
	"strings"

	"github.com/dukex/assetflow/pkg/models"
)

var activeValues = map[string]struct{}{
	"1": {}, "true": {}, "t": {}, "yes": {}, "y": {}, "on": {},
}

// ParseActivation reads the global activation toggle. Only 1, true, t, yes, y
// and on (any case, surrounding blanks ignored) activate.
func ParseActivation(value string) bool {
	_, ok := activeValues[strings.ToLower(strings.TrimSpace(value))]

	return ok
}

// DefaultStatus is the status given to every sensor and schedule at build time.
func DefaultStatus(active bool) models.SensorStatus {
	if active {
		return models.SensorStatusRunning
	}

	return models.SensorStatusStopped
}
