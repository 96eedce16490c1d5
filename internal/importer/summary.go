package importer

import "time"

// Failure is one file that could not be imported.
type Failure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Summary is the accounting of one import run.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// Unchanged counts succeeded files that needed no work.
	Unchanged int `json:"unchanged"`
	// Degraded counts succeeded files that at least one index rejected.
	Degraded  int           `json:"degraded"`
	Failures  []Failure     `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration"`
	Cancelled bool          `json:"cancelled"`
}

// SuccessRate is the percentage of files that succeeded, 100 for an empty
// run.
func (s *Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 100.0
	}
	return float64(s.Succeeded) / float64(s.Total) * 100.0
}

// HasErrors reports whether any file failed.
func (s *Summary) HasErrors() bool {
	return len(s.Failures) > 0
}
