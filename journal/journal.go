// Package journal keeps a local, append-only record of deployments so
// commands can default to the most recent build of a project.
//
// The journal file is a sequence of length-prefixed msgpack frames. A
// frame cut short by a crash ends the readable journal until the next
// append trims it; earlier entries stay intact.
package journal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/hoist/iox"
	"github.com/pithecene-io/hoist/types"
)

// FileName is the journal file name inside the state directory.
const FileName = "journal"

// Kind discriminates journal entries.
type Kind string

const (
	// KindStarted is written once init returns a build id.
	KindStarted Kind = "started"
	// KindObserved is written whenever a command learns a newer status.
	KindObserved Kind = "observed"
	// KindFinished is written when a deployment attempt ends locally.
	KindFinished Kind = "finished"
)

// Entry is one journal record.
type Entry struct {
	ID        string            `msgpack:"id"`
	Kind      Kind              `msgpack:"kind"`
	ProjectID string            `msgpack:"project_id"`
	BuildID   string            `msgpack:"build_id"`
	Status    types.BuildStatus `msgpack:"status,omitempty"`
	Outcome   string            `msgpack:"outcome,omitempty"`
	Checksum  string            `msgpack:"checksum,omitempty"`
	// At is Unix milliseconds.
	At int64 `msgpack:"at"`
}

// Time returns At as a time.Time.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.At)
}

// ErrNoDeployments is returned when the journal has no entry for a project.
var ErrNoDeployments = errors.New("no deployments recorded for this project")

// Journal is a journal file. Safe for concurrent use within a process.
type Journal struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Open prepares the journal in dir, creating dir if needed.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Journal{path: filepath.Join(dir, FileName), now: time.Now}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Append writes e, filling ID and At when unset.
func (j *Journal) Append(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At == 0 {
		e.At = j.now().UnixMilli()
	}
	payload, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	// New frames must follow the last intact one, otherwise a torn tail
	// would hide them from readers.
	end, torn, err := validLength(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("scan journal: %w", err)
	}
	if torn {
		if err := f.Truncate(end); err != nil {
			_ = f.Close()
			return fmt.Errorf("trim journal: %w", err)
		}
	}
	if err := writeFrame(f, payload); err != nil {
		_ = f.Truncate(end)
		_ = f.Close()
		return fmt.Errorf("append journal entry: %w", err)
	}
	return f.Close()
}

// validLength returns the offset just past the last complete frame in r
// and whether bytes follow it.
func validLength(r io.Reader) (int64, bool, error) {
	fr := &frameReader{reader: bufio.NewReader(r)}
	var end int64
	for {
		payload, err := fr.readFrame()
		switch {
		case err == nil:
			end += int64(LengthPrefixSize + len(payload))
		case errors.Is(err, io.EOF):
			return end, false, nil
		case IsFatalFrameError(err):
			return end, true, nil
		default:
			return end, false, err
		}
	}
}

// Entries reads every decodable entry in write order. A truncated or
// corrupt tail ends the read without error; undecodable frames with valid
// framing are skipped.
func (j *Journal) Entries() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer iox.DiscardClose(f)

	r := &frameReader{reader: bufio.NewReader(f)}
	var entries []Entry
	for {
		payload, err := r.readFrame()
		if errors.Is(err, io.EOF) || IsFatalFrameError(err) {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		var e Entry
		if err := msgpack.Unmarshal(payload, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
}

// Last returns the most recent entry for projectID.
func (j *Journal) Last(projectID string) (Entry, error) {
	entries, err := j.Entries()
	if err != nil {
		return Entry{}, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ProjectID == projectID {
			return entries[i], nil
		}
	}
	return Entry{}, ErrNoDeployments
}

// LastBuildID returns the build id of the most recent deployment of
// projectID. Only started entries count: observing an older build does
// not make it the latest one.
func (j *Journal) LastBuildID(projectID string) (string, error) {
	entries, err := j.Entries()
	if err != nil {
		return "", err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.ProjectID == projectID && e.Kind == KindStarted {
			return e.BuildID, nil
		}
	}
	return "", ErrNoDeployments
}

// LastStatus returns the most recently recorded status of buildID, or ""
// when no entry for it carries a status.
func (j *Journal) LastStatus(buildID string) (types.BuildStatus, error) {
	entries, err := j.Entries()
	if err != nil {
		return "", err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].BuildID == buildID && entries[i].Status != "" {
			return entries[i].Status, nil
		}
	}
	return "", nil
}
