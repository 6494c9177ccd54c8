package models

// Job is a named subset of assets grouped for batch execution.
type Job struct {
	Name        string     `json:"name"                  validate:"required"`
	Description string     `json:"description,omitempty"`
	Assets      []AssetKey `json:"assets"                validate:"required,min=1"`
}

// Contains reports whether key belongs to the job selection.
func (j *Job) Contains(key AssetKey) bool {
	for _, asset := range j.Assets {
		if asset.Equal(key) {
			return true
		}
	}

	return false
}
