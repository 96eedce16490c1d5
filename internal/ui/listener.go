package ui

import (
	"github.com/Aman-CERP/blockindex/internal/importer"
)

// ImportListener forwards import events to r.
func ImportListener(r Renderer) importer.Listener {
	return func(e importer.Event) {
		switch ev := e.(type) {
		case importer.Started:
			r.UpdateProgress(ProgressEvent{Stage: StageImporting, Total: ev.Total})
		case importer.FileProcessed:
			if ev.Err != nil {
				r.AddError(ErrorEvent{File: ev.Path, Err: ev.Err})
			}
			r.UpdateProgress(ProgressEvent{
				Stage:       StageImporting,
				Current:     ev.Current,
				Total:       ev.Total,
				CurrentFile: ev.Path,
			})
		case importer.Completed:
			r.Complete(statsFrom(ev.Summary, nil))
		case importer.Failed:
			r.Complete(statsFrom(ev.Summary, ev.Err))
		}
	}
}

func statsFrom(s *importer.Summary, err error) CompletionStats {
	stats := CompletionStats{Err: err}
	if s == nil {
		return stats
	}
	stats.Total = s.Total
	stats.Succeeded = s.Succeeded
	stats.Failed = s.Failed
	stats.Unchanged = s.Unchanged
	stats.Degraded = s.Degraded
	stats.Duration = s.Duration
	stats.Cancelled = s.Cancelled
	return stats
}
