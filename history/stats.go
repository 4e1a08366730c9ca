package history

// Stats summarizes a set of deployment records.
type Stats struct {
	Total     int `json:"total" yaml:"total"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
	TimedOut  int `json:"timed_out" yaml:"timed_out"`
	Stopped   int `json:"stopped" yaml:"stopped"`
	Submitted int `json:"submitted" yaml:"submitted"`
	// AvgDurationMs averages succeeded deployments only.
	AvgDurationMs int64  `json:"avg_duration_ms" yaml:"avg_duration_ms"`
	LastBuildID   string `json:"last_build_id,omitempty" yaml:"last_build_id,omitempty"`
}

// Summarize counts records by outcome. recs is expected newest first, as
// returned by List.
func Summarize(recs []Record) Stats {
	var s Stats
	var succeededMs int64
	for _, r := range recs {
		s.Total++
		switch r.Outcome {
		case "succeeded":
			s.Succeeded++
			succeededMs += r.DurationMs
		case "failed":
			s.Failed++
		case "timed_out":
			s.TimedOut++
		case "stopped":
			s.Stopped++
		case "submitted":
			s.Submitted++
		}
	}
	if s.Succeeded > 0 {
		s.AvgDurationMs = succeededMs / int64(s.Succeeded)
	}
	if len(recs) > 0 {
		s.LastBuildID = recs[0].BuildID
	}
	return s
}
