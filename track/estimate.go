package track

import (
	"time"

	"github.com/pithecene-io/hoist/types"
)

// TypicalDurations are rough per-stage durations used for the remaining
// time display. They never influence timeouts.
var TypicalDurations = map[types.StageName]time.Duration{
	types.StageUpload: 10 * time.Second,
	types.StageQueue:  20 * time.Second,
	types.StageBuild:  120 * time.Second,
	types.StageDeploy: 60 * time.Second,
}

// Estimate returns the active stage and a remaining-time estimate: the
// typical duration of the active stage minus its elapsed time, clamped at
// zero, plus the typical durations of the stages not yet started.
// Without an active stage, every stage not yet completed counts in full.
func Estimate(stages *types.Stages, now time.Time) (types.StageName, time.Duration) {
	active, _ := stages.Active()

	var remaining time.Duration
	for _, e := range stages.Entries() {
		typical := TypicalDurations[e.Name]
		switch {
		case e.Present && e.Info.Completed():
			continue
		case e.Present && e.Info.Started():
			if left := typical - e.Info.Elapsed(now); left > 0 {
				remaining += left
			}
		default:
			remaining += typical
		}
	}
	return active, remaining
}
