// Package metrics provides per-deployment counters.
//
// The Collector accumulates counters during a single deployment. It is a
// leaf package with no internal dependencies; status strings are passed in
// as plain strings to keep it free of the types package.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// API
	APIRequests int64 `json:"api_requests"`
	APIRetries  int64 `json:"api_retries"`
	APIFailures int64 `json:"api_failures"`

	// Archive
	ArchiveBytes int64 `json:"archive_bytes"`
	ArchiveFiles int64 `json:"archive_files"`

	// Upload
	UploadAttempts int64 `json:"upload_attempts"`
	UploadBytes    int64 `json:"upload_bytes"`

	// Tracking
	Polls             int64            `json:"polls"`
	StatusTransitions int64            `json:"status_transitions"`
	StageUpdates      int64            `json:"stage_updates"`
	LogLines          int64            `json:"log_lines"`
	StatusSeen        map[string]int64 `json:"status_seen,omitempty"`

	// Side channels
	HistoryWriteSuccess int64 `json:"history_write_success"`
	HistoryWriteFailure int64 `json:"history_write_failure"`
	NotifySuccess       int64 `json:"notify_success"`
	NotifyFailure       int64 `json:"notify_failure"`

	// Dimensions
	ProjectID       string `json:"project_id,omitempty"`
	BuildID         string `json:"build_id,omitempty"`
	UploadTransport string `json:"upload_transport,omitempty"`
	Outcome         string `json:"outcome,omitempty"`
}

// Collector accumulates counters during a single deployment.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector for the given project.
func NewCollector(projectID string) *Collector {
	return &Collector{s: Snapshot{
		ProjectID:  projectID,
		StatusSeen: make(map[string]int64),
	}}
}

func (c *Collector) update(fn func(s *Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn(&c.s)
	c.mu.Unlock()
}

// --- API ---

// IncAPIRequest records one HTTP request to the deployment API.
func (c *Collector) IncAPIRequest() { c.update(func(s *Snapshot) { s.APIRequests++ }) }

// IncAPIRetry records one backoff retry of any network call.
func (c *Collector) IncAPIRetry() { c.update(func(s *Snapshot) { s.APIRetries++ }) }

// IncAPIFailure records a call that failed after all attempts.
func (c *Collector) IncAPIFailure() { c.update(func(s *Snapshot) { s.APIFailures++ }) }

// --- Archive / upload ---

// SetArchive records the size and file count of the packed archive.
func (c *Collector) SetArchive(bytes int64, files int) {
	c.update(func(s *Snapshot) {
		s.ArchiveBytes = bytes
		s.ArchiveFiles = int64(files)
	})
}

// IncUploadAttempt records one PUT of the archive.
func (c *Collector) IncUploadAttempt() { c.update(func(s *Snapshot) { s.UploadAttempts++ }) }

// AddUploadBytes adds bytes transferred by a successful upload.
func (c *Collector) AddUploadBytes(n int64) { c.update(func(s *Snapshot) { s.UploadBytes += n }) }

// SetUploadTransport records which transport carried the archive ("http", "s3").
func (c *Collector) SetUploadTransport(name string) {
	c.update(func(s *Snapshot) { s.UploadTransport = name })
}

// --- Tracking ---

// IncPoll records one status poll.
func (c *Collector) IncPoll() { c.update(func(s *Snapshot) { s.Polls++ }) }

// ObserveStatus records a status change to status.
func (c *Collector) ObserveStatus(status string) {
	c.update(func(s *Snapshot) {
		s.StatusTransitions++
		s.StatusSeen[status]++
	})
}

// IncStageUpdate records one rendered stage-map change.
func (c *Collector) IncStageUpdate() { c.update(func(s *Snapshot) { s.StageUpdates++ }) }

// AddLogLines adds newly printed log lines.
func (c *Collector) AddLogLines(n int) { c.update(func(s *Snapshot) { s.LogLines += int64(n) }) }

// --- Side channels ---

// IncHistoryWrite records the outcome of a history write.
func (c *Collector) IncHistoryWrite(ok bool) {
	c.update(func(s *Snapshot) {
		if ok {
			s.HistoryWriteSuccess++
		} else {
			s.HistoryWriteFailure++
		}
	})
}

// IncNotify records the outcome of a completion notification.
func (c *Collector) IncNotify(ok bool) {
	c.update(func(s *Snapshot) {
		if ok {
			s.NotifySuccess++
		} else {
			s.NotifyFailure++
		}
	})
}

// --- Dimensions ---

// SetBuildID records the build id once init returns it.
func (c *Collector) SetBuildID(id string) { c.update(func(s *Snapshot) { s.BuildID = id }) }

// SetOutcome records the final deployment outcome.
func (c *Collector) SetOutcome(outcome string) { c.update(func(s *Snapshot) { s.Outcome = outcome }) }

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.s
	out.StatusSeen = make(map[string]int64, len(c.s.StatusSeen))
	for k, v := range c.s.StatusSeen {
		out.StatusSeen[k] = v
	}
	return out
}
