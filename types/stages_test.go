package types //nolint:revive // types is a valid package name

import (
	"encoding/json"
	"testing"
	"time"
)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrInt64(v int64) *int64       { return &v }

func TestStageInfo_Consistent(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		info StageInfo
		want bool
	}{
		{"not started", StageInfo{}, true},
		{"active", StageInfo{StartedAt: ptrTime(start)}, true},
		{"completed without start", StageInfo{CompletedAt: ptrTime(start)}, false},
		{"completed before start", StageInfo{StartedAt: ptrTime(start), CompletedAt: ptrTime(start.Add(-time.Second))}, false},
		{
			name: "duration matches",
			info: StageInfo{StartedAt: ptrTime(start), CompletedAt: ptrTime(start.Add(10 * time.Second)), DurationMs: ptrInt64(10_000)},
			want: true,
		},
		{
			name: "duration within tolerance",
			info: StageInfo{StartedAt: ptrTime(start), CompletedAt: ptrTime(start.Add(10 * time.Second)), DurationMs: ptrInt64(10_900)},
			want: true,
		},
		{
			name: "duration drift",
			info: StageInfo{StartedAt: ptrTime(start), CompletedAt: ptrTime(start.Add(10 * time.Second)), DurationMs: ptrInt64(30_000)},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Consistent(); got != tt.want {
				t.Errorf("Consistent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStageInfo_Elapsed(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now := start.Add(42 * time.Second)

	active := StageInfo{StartedAt: ptrTime(start)}
	if got := active.Elapsed(now); got != 42*time.Second {
		t.Errorf("active Elapsed() = %v, want 42s", got)
	}

	done := StageInfo{StartedAt: ptrTime(start), CompletedAt: ptrTime(start.Add(5 * time.Second)), DurationMs: ptrInt64(5_000)}
	if got := done.Elapsed(now); got != 5*time.Second {
		t.Errorf("completed Elapsed() = %v, want 5s", got)
	}

	if got := (StageInfo{}).Elapsed(now); got != 0 {
		t.Errorf("pending Elapsed() = %v, want 0", got)
	}
}

func TestStages_UnmarshalDropsUnknownSubStages(t *testing.T) {
	raw := `{
		"build": {
			"startedAt": "2026-01-02T03:04:05Z",
			"subStages": {
				"download": {"startedAt": "2026-01-02T03:04:05Z", "completedAt": "2026-01-02T03:04:06Z"},
				"warp-drive": {"startedAt": "2026-01-02T03:04:06Z"}
			}
		},
		"deploy": {
			"subStages": {"role-setup": {}, "teleport": {}}
		}
	}`

	var s Stages
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if len(s.Build.SubStages) != 1 {
		t.Fatalf("build sub-stages = %d, want 1", len(s.Build.SubStages))
	}
	if _, ok := s.Build.SubStages[BuildSubStageDownload]; !ok {
		t.Error("download sub-stage missing")
	}
	if len(s.Deploy.SubStages) != 1 {
		t.Errorf("deploy sub-stages = %d, want 1", len(s.Deploy.SubStages))
	}
	if !s.Build.Started() {
		t.Error("embedded build timing not decoded")
	}
}

func TestStages_EntriesOrderAndActive(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &Stages{
		Upload: &StageInfo{StartedAt: ptrTime(start), CompletedAt: ptrTime(start.Add(time.Second))},
		Build:  &BuildStage{StageInfo: StageInfo{StartedAt: ptrTime(start.Add(2 * time.Second))}},
	}

	entries := s.Entries()
	if len(entries) != len(StageOrder) {
		t.Fatalf("Entries() len = %d, want %d", len(entries), len(StageOrder))
	}
	for i, e := range entries {
		if e.Name != StageOrder[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Name, StageOrder[i])
		}
	}
	if entries[1].Present {
		t.Error("queue should not be present")
	}

	active, ok := s.Active()
	if !ok || active != StageBuild {
		t.Errorf("Active() = %q, %v; want build, true", active, ok)
	}
}

func TestStages_Progress(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := &BuildStage{SubStages: SubStageMap[BuildSubStage]{
		BuildSubStageInstall: {StartedAt: ptrTime(start)},
	}}

	progress := b.Progress()
	if len(progress) != len(BuildSubStageOrder) {
		t.Fatalf("Progress() len = %d", len(progress))
	}
	if progress[2].Name != string(BuildSubStageInstall) || !progress[2].Reached {
		t.Errorf("install = %+v, want reached", progress[2])
	}
	if progress[0].Reached {
		t.Error("download should not be reached")
	}

	var nilDeploy *DeployStage
	if got := len(nilDeploy.Progress()); got != len(DeploySubStageOrder) {
		t.Errorf("nil Progress() len = %d", got)
	}
}

func TestStages_FingerprintAndConsistency(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := &Stages{Queue: &QueueStage{StageInfo: StageInfo{StartedAt: ptrTime(start)}}}
	b := &Stages{Queue: &QueueStage{StageInfo: StageInfo{StartedAt: ptrTime(start)}}}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("equal stage maps should share a fingerprint")
	}
	b.Queue.CompletedAt = ptrTime(start.Add(time.Second))
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("changed stage maps should differ")
	}

	bad := &Stages{Deploy: &DeployStage{SubStages: SubStageMap[DeploySubStage]{
		DeploySubStageRoutingSetup: {CompletedAt: ptrTime(start)},
	}}}
	if bad.Consistent() {
		t.Error("sub-stage completed without start should be inconsistent")
	}

	var none *Stages
	if !none.Consistent() || none.Fingerprint() != "" {
		t.Error("nil stages should be consistent with empty fingerprint")
	}
}
