package types

import (
	"encoding/json"
	"time"
)

// StageName identifies a stage of the remote pipeline.
type StageName string

// Pipeline stages in pipeline order.
const (
	StageUpload StageName = "upload"
	StageQueue  StageName = "queue"
	StageBuild  StageName = "build"
	StageDeploy StageName = "deploy"
)

// StageOrder is the pipeline order of stages.
var StageOrder = []StageName{StageUpload, StageQueue, StageBuild, StageDeploy}

// durationTolerance bounds the allowed drift between durationMs and
// completedAt - startedAt. Remote clocks round to whole seconds.
const durationTolerance = time.Second

// StageInfo is the timing of one stage or sub-stage.
type StageInfo struct {
	StartedAt   *time.Time `json:"startedAt,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completed_at,omitempty"`
	DurationMs  *int64     `json:"durationMs,omitempty" yaml:"duration_ms,omitempty"`
}

// Started reports whether the stage has begun.
func (s StageInfo) Started() bool { return s.StartedAt != nil }

// Completed reports whether the stage has finished.
func (s StageInfo) Completed() bool { return s.CompletedAt != nil }

// Active reports whether the stage has started and not yet completed.
func (s StageInfo) Active() bool { return s.Started() && !s.Completed() }

// Elapsed returns the time spent in the stage as of now.
// Completed stages report their recorded duration.
func (s StageInfo) Elapsed(now time.Time) time.Duration {
	switch {
	case s.DurationMs != nil:
		return time.Duration(*s.DurationMs) * time.Millisecond
	case s.StartedAt != nil && s.CompletedAt != nil:
		return s.CompletedAt.Sub(*s.StartedAt)
	case s.StartedAt != nil:
		if d := now.Sub(*s.StartedAt); d > 0 {
			return d
		}
	}
	return 0
}

// Consistent checks the timing invariant: a completed stage must have started,
// and its durationMs (when present) must match completedAt - startedAt.
func (s StageInfo) Consistent() bool {
	if s.CompletedAt == nil {
		return true
	}
	if s.StartedAt == nil {
		return false
	}
	if s.CompletedAt.Before(*s.StartedAt) {
		return false
	}
	if s.DurationMs == nil {
		return true
	}
	diff := time.Duration(*s.DurationMs)*time.Millisecond - s.CompletedAt.Sub(*s.StartedAt)
	if diff < 0 {
		diff = -diff
	}
	return diff <= durationTolerance
}

// subStageKey constrains the closed sub-stage enumerations.
type subStageKey interface {
	~string
	Valid() bool
}

// SubStageMap holds sub-stage timings keyed by a closed enumeration.
// Keys outside the enumeration are dropped while decoding, so consumers
// only ever see sub-stages they know how to order.
type SubStageMap[K subStageKey] map[K]StageInfo

// UnmarshalJSON decodes the map, discarding unknown sub-stage keys.
func (m *SubStageMap[K]) UnmarshalJSON(data []byte) error {
	var raw map[string]StageInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(SubStageMap[K], len(raw))
	for k, v := range raw {
		key := K(k)
		if !key.Valid() {
			continue
		}
		out[key] = v
	}
	*m = out
	return nil
}

// SubStageState is one entry of an ordered sub-stage sequence.
// Reached is false for sub-stages the remote has not reported yet.
type SubStageState struct {
	Name    string
	Info    StageInfo
	Reached bool
}

func progressOf[K subStageKey](order []K, m SubStageMap[K]) []SubStageState {
	out := make([]SubStageState, 0, len(order))
	for _, k := range order {
		info, ok := m[k]
		out = append(out, SubStageState{
			Name:    string(k),
			Info:    info,
			Reached: ok && info.Started(),
		})
	}
	return out
}

// BuildSubStage enumerates the steps of the remote build stage.
type BuildSubStage string

// Build sub-stages in pipeline order.
const (
	BuildSubStageDownload        BuildSubStage = "download"
	BuildSubStageExtract         BuildSubStage = "extract"
	BuildSubStageInstall         BuildSubStage = "install"
	BuildSubStageRemoteBuild     BuildSubStage = "remote-build"
	BuildSubStagePackageArtifact BuildSubStage = "package-artifact"
)

// BuildSubStageOrder is the display order of build sub-stages.
var BuildSubStageOrder = []BuildSubStage{
	BuildSubStageDownload,
	BuildSubStageExtract,
	BuildSubStageInstall,
	BuildSubStageRemoteBuild,
	BuildSubStagePackageArtifact,
}

// Valid reports whether s is a known build sub-stage.
func (s BuildSubStage) Valid() bool {
	for _, k := range BuildSubStageOrder {
		if k == s {
			return true
		}
	}
	return false
}

// DeploySubStage enumerates the steps of the deploy stage.
type DeploySubStage string

// Deploy sub-stages in pipeline order.
const (
	DeploySubStageRoleSetup         DeploySubStage = "role-setup"
	DeploySubStageComputeCreate     DeploySubStage = "compute-create"
	DeploySubStageStaticAssetUpload DeploySubStage = "static-asset-upload"
	DeploySubStageRoutingSetup      DeploySubStage = "routing-setup"
	DeploySubStageDomainMapping     DeploySubStage = "domain-mapping"
)

// DeploySubStageOrder is the display order of deploy sub-stages.
var DeploySubStageOrder = []DeploySubStage{
	DeploySubStageRoleSetup,
	DeploySubStageComputeCreate,
	DeploySubStageStaticAssetUpload,
	DeploySubStageRoutingSetup,
	DeploySubStageDomainMapping,
}

// Valid reports whether s is a known deploy sub-stage.
func (s DeploySubStage) Valid() bool {
	for _, k := range DeploySubStageOrder {
		if k == s {
			return true
		}
	}
	return false
}

// QueueStage is the queue stage with its queue position.
type QueueStage struct {
	StageInfo `yaml:",inline"`
	Position *int `json:"position,omitempty" yaml:"position,omitempty"`
	Total    *int `json:"total,omitempty" yaml:"total,omitempty"`
}

// BuildStage is the remote build stage with its sub-stages.
type BuildStage struct {
	StageInfo `yaml:",inline"`
	SubStages SubStageMap[BuildSubStage] `json:"subStages,omitempty" yaml:"sub_stages,omitempty"`
}

// Progress returns the build sub-stages in pipeline order.
func (b *BuildStage) Progress() []SubStageState {
	if b == nil {
		return progressOf(BuildSubStageOrder, nil)
	}
	return progressOf(BuildSubStageOrder, b.SubStages)
}

// DeployStage is the deploy stage with its sub-stages.
type DeployStage struct {
	StageInfo `yaml:",inline"`
	SubStages SubStageMap[DeploySubStage] `json:"subStages,omitempty" yaml:"sub_stages,omitempty"`
}

// Progress returns the deploy sub-stages in pipeline order.
func (d *DeployStage) Progress() []SubStageState {
	if d == nil {
		return progressOf(DeploySubStageOrder, nil)
	}
	return progressOf(DeploySubStageOrder, d.SubStages)
}

// Stages is the stage map of a build record. Each stage has its own shape,
// so the map is a struct with one field per known stage rather than an open
// string-keyed map.
type Stages struct {
	Upload *StageInfo   `json:"upload,omitempty" yaml:"upload,omitempty"`
	Queue  *QueueStage  `json:"queue,omitempty" yaml:"queue,omitempty"`
	Build  *BuildStage  `json:"build,omitempty" yaml:"build,omitempty"`
	Deploy *DeployStage `json:"deploy,omitempty" yaml:"deploy,omitempty"`
}

// StageEntry is one stage of Stages in pipeline order.
type StageEntry struct {
	Name    StageName
	Info    StageInfo
	Present bool
}

// Entries returns all stages in pipeline order. Stages the remote has not
// reported are returned with Present == false.
func (s *Stages) Entries() []StageEntry {
	entries := make([]StageEntry, 0, len(StageOrder))
	for _, name := range StageOrder {
		info, ok := s.Info(name)
		entries = append(entries, StageEntry{Name: name, Info: info, Present: ok})
	}
	return entries
}

// Info returns the timing of the named stage and whether it was reported.
func (s *Stages) Info(name StageName) (StageInfo, bool) {
	if s == nil {
		return StageInfo{}, false
	}
	switch name {
	case StageUpload:
		if s.Upload != nil {
			return *s.Upload, true
		}
	case StageQueue:
		if s.Queue != nil {
			return s.Queue.StageInfo, true
		}
	case StageBuild:
		if s.Build != nil {
			return s.Build.StageInfo, true
		}
	case StageDeploy:
		if s.Deploy != nil {
			return s.Deploy.StageInfo, true
		}
	}
	return StageInfo{}, false
}

// Active returns the stage currently in progress, if any.
func (s *Stages) Active() (StageName, bool) {
	for _, e := range s.Entries() {
		if e.Present && e.Info.Active() {
			return e.Name, true
		}
	}
	return "", false
}

// Fingerprint returns a stable encoding of the stage map. Two stage maps with
// equal fingerprints render identically.
func (s *Stages) Fingerprint() string {
	if s == nil {
		return ""
	}
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(b)
}

// Consistent reports whether every reported stage and sub-stage satisfies
// the timing invariant.
func (s *Stages) Consistent() bool {
	for _, e := range s.Entries() {
		if e.Present && !e.Info.Consistent() {
			return false
		}
	}
	if s != nil && s.Build != nil {
		for _, sub := range s.Build.SubStages {
			if !sub.Consistent() {
				return false
			}
		}
	}
	if s != nil && s.Deploy != nil {
		for _, sub := range s.Deploy.SubStages {
			if !sub.Consistent() {
				return false
			}
		}
	}
	return true
}
