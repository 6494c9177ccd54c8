package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/assetflow/pkg/models"
)

// Build-time errors. All of them are fatal: a process must not start with an invalid graph.
var (
	ErrDuplicateIdentity  = errors.New("duplicate asset identity")
	ErrEmptySelection     = errors.New("selection resolves to zero assets")
	ErrUnknownUnit        = errors.New("unknown asset")
	ErrUnknownJob         = errors.New("unknown job")
	ErrDanglingDependency = errors.New("dangling dependency")
	ErrUnknownResource    = errors.New("unknown resource")
	ErrDuplicateName      = errors.New("duplicate name")
	ErrInvalidAsset       = errors.New("invalid asset")
	ErrInvalidSensor      = errors.New("invalid sensor")
	ErrInvalidCron        = errors.New("invalid cron expression")
	ErrDependencyCycle    = errors.New("dependency cycle")
)

// BuildError wraps build-time errors with the offending graph element.
type BuildError struct {
	Op         string          // Builder operation (e.g., "AddAsset", "AddJob", "Build")
	Asset      models.AssetKey // Asset identity if applicable
	Dependency models.AssetKey // Missing dependency for dangling references
	Job        string          // Job name if applicable
	Name       string          // Schedule, sensor or resource name if applicable
	Err        error           // Underlying error
}

func (e *BuildError) Error() string {
	var context []string

	if len(e.Asset) > 0 {
		context = append(context, "asset="+e.Asset.String())
	}

	if len(e.Dependency) > 0 {
		context = append(context, "dependency="+e.Dependency.String())
	}

	if e.Job != "" {
		context = append(context, "job="+e.Job)
	}

	if e.Name != "" {
		context = append(context, "name="+e.Name)
	}

	if len(context) == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, strings.Join(context, ", "))
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for build errors.
func (e *BuildError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsDuplicateIdentity checks if an error indicates an asset was registered twice.
func IsDuplicateIdentity(err error) bool {
	return errors.Is(err, ErrDuplicateIdentity)
}

// IsDanglingDependency checks if an error indicates an unresolved dependency.
func IsDanglingDependency(err error) bool {
	return errors.Is(err, ErrDanglingDependency)
}

// IsUnknownJob checks if an error indicates a reference to a job that was never added.
func IsUnknownJob(err error) bool {
	return errors.Is(err, ErrUnknownJob)
}
