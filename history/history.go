// Package history records finished deployments in a lode dataset.
//
// Records are Hive-partitioned by project/day/record_kind and encoded as
// JSONL. The dataset lives on the local filesystem by default, or in S3
// when configured. Uploaded archives can optionally be retained next to
// the dataset as sidecar files.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/pithecene-io/hoist/iox"
	"github.com/pithecene-io/hoist/s3x"
	"github.com/pithecene-io/hoist/types"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "hoist"

// RecordKindDeployment discriminates deployment records.
const RecordKindDeployment = "deployment"

// dayFormat is the partition format for the day key.
const dayFormat = "2006-01-02"

// ErrNoDeployments is returned when no matching records exist.
var ErrNoDeployments = errors.New("no deployments recorded")

// Record is one finished deployment attempt.
type Record struct {
	ProjectID       string    `json:"project_id" yaml:"project_id"`
	BuildID         string    `json:"build_id" yaml:"build_id"`
	Status          string    `json:"status" yaml:"status"`
	Outcome         string    `json:"outcome" yaml:"outcome"`
	Checksum        string    `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	ArchiveBytes    int64     `json:"archive_bytes" yaml:"archive_bytes"`
	ArchiveFiles    int64     `json:"archive_files" yaml:"archive_files"`
	UploadTransport string    `json:"upload_transport,omitempty" yaml:"upload_transport,omitempty"`
	DurationMs      int64     `json:"duration_ms" yaml:"duration_ms"`
	StartedAt       time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time `json:"finished_at" yaml:"finished_at"`
	URL             string    `json:"url,omitempty" yaml:"url,omitempty"`
	Error           string    `json:"error,omitempty" yaml:"error,omitempty"`
	ArchivePath     string    `json:"archive_path,omitempty" yaml:"archive_path,omitempty"`
}

// Day returns the partition day of the record.
func (r *Record) Day() string {
	t := r.FinishedAt
	if t.IsZero() {
		t = r.StartedAt
	}
	return t.UTC().Format(dayFormat)
}

func (r *Record) toMap() map[string]any {
	m := map[string]any{
		"record_kind":   RecordKindDeployment,
		"project":       r.ProjectID,
		"day":           r.Day(),
		"build_id":      r.BuildID,
		"status":        r.Status,
		"outcome":       r.Outcome,
		"archive_bytes": r.ArchiveBytes,
		"archive_files": r.ArchiveFiles,
		"duration_ms":   r.DurationMs,
		"started_at":    r.StartedAt.UTC().Format(time.RFC3339Nano),
		"finished_at":   r.FinishedAt.UTC().Format(time.RFC3339Nano),
	}
	optional := map[string]string{
		"checksum":         r.Checksum,
		"upload_transport": r.UploadTransport,
		"url":              r.URL,
		"error":            r.Error,
		"archive_path":     r.ArchivePath,
	}
	for k, v := range optional {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

func recordFromMap(m map[string]any) Record {
	return Record{
		ProjectID:       toString(m["project"]),
		BuildID:         toString(m["build_id"]),
		Status:          toString(m["status"]),
		Outcome:         toString(m["outcome"]),
		Checksum:        toString(m["checksum"]),
		ArchiveBytes:    toInt64(m["archive_bytes"]),
		ArchiveFiles:    toInt64(m["archive_files"]),
		UploadTransport: toString(m["upload_transport"]),
		DurationMs:      toInt64(m["duration_ms"]),
		StartedAt:       toTime(m["started_at"]),
		FinishedAt:      toTime(m["finished_at"]),
		URL:             toString(m["url"]),
		Error:           toString(m["error"]),
		ArchivePath:     toString(m["archive_path"]),
	}
}

// S3Config selects the S3 backend.
type S3Config struct {
	s3x.Config
	Bucket string
	Prefix string
}

// Validate checks the S3 backend configuration.
func (c S3Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("history s3 backend requires a bucket")
	}
	return nil
}

// Store reads and writes deployment records.
type Store struct {
	id      string
	dataset lode.Dataset
	factory lode.StoreFactory

	mu        sync.Mutex // guards Write
	storeOnce sync.Once
	store     lode.Store
	storeErr  error
}

// New creates a Store over the given lode store factory.
func New(id string, factory lode.StoreFactory) (*Store, error) {
	if id == "" {
		id = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout("project", "day", "record_kind"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, WrapInitError(err, id)
	}
	return &Store{id: id, dataset: ds, factory: factory}, nil
}

// NewFS creates a Store rooted at a local directory.
func NewFS(id, root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, WrapInitError(err, id)
	}
	return New(id, lode.NewFSFactory(root))
}

// NewS3 creates a Store backed by S3, using the default AWS credential chain.
func NewS3(ctx context.Context, id string, cfg S3Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := s3x.NewClient(ctx, cfg.Config)
	if err != nil {
		return nil, WrapInitError(err, id)
	}
	factory := func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: cfg.Bucket,
			Prefix: cfg.Prefix,
		})
	}
	return New(id, factory)
}

// Write appends one deployment record as its own snapshot.
func (s *Store) Write(ctx context.Context, rec Record) error {
	if rec.ProjectID == "" || rec.BuildID == "" {
		return errors.New("history record requires project and build id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.dataset.Write(ctx, []any{rec.toMap()}, lode.Metadata{})
	return WrapWriteError(err, fmt.Sprintf("%s/project=%s", s.id, rec.ProjectID))
}

// List returns deployments newest first. An empty projectID matches every
// project; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, projectID string, limit int) ([]Record, error) {
	snapshots, err := s.dataset.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, s.id+"/snapshots")
	}

	var out []Record
	// snapshots are ordered by creation time
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesFilter(snap, "record_kind", RecordKindDeployment) {
			continue
		}
		if !snapshotMatchesFilter(snap, "project", projectID) {
			continue
		}

		data, err := s.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", s.id, snap.ID))
		}
		// Record fields are authoritative; the manifest check is a pre-filter.
		for j := len(data) - 1; j >= 0; j-- {
			m, ok := data[j].(map[string]any)
			if !ok || m["record_kind"] != RecordKindDeployment {
				continue
			}
			if projectID != "" && toString(m["project"]) != projectID {
				continue
			}
			out = append(out, recordFromMap(m))
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Latest returns the most recent deployment for a project.
func (s *Store) Latest(ctx context.Context, projectID string) (*Record, error) {
	recs, err := s.List(ctx, projectID, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNoDeployments
	}
	return &recs[0], nil
}

// RetainArchive copies an uploaded archive into the store as a sidecar file
// and returns its storage path.
func (s *Store) RetainArchive(ctx context.Context, projectID, buildID string, a *types.LocalArchive) (string, error) {
	if a == nil || a.Path == "" {
		return "", errors.New("no archive to retain")
	}
	store, err := s.getOrCreateStore()
	if err != nil {
		return "", WrapInitError(err, s.id)
	}

	f, err := os.Open(a.Path)
	if err != nil {
		return "", WrapReadError(err, a.Path)
	}
	defer iox.DiscardClose(f)

	path := s.archivePath(projectID, buildID)
	if err := store.Put(ctx, path, f); err != nil {
		return "", WrapWriteError(err, path)
	}
	return path, nil
}

// archivePath computes the sidecar location for a retained archive.
// Format: datasets/<dataset>/partitions/project=<p>/files/<build id>.hoist.tar.gz
func (s *Store) archivePath(projectID, buildID string) string {
	return fmt.Sprintf("datasets/%s/partitions/project=%s/files/%s.hoist.tar.gz",
		s.id, projectID, buildID)
}

func (s *Store) getOrCreateStore() (lode.Store, error) {
	s.storeOnce.Do(func() {
		s.store, s.storeErr = s.factory()
	})
	return s.store, s.storeErr
}

// snapshotMatchesFilter checks whether any file in the snapshot lives under
// the given key=value partition. An empty value matches everything.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue matches whole path segments so build-1 does not
// match build-10.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for part := range strings.SplitSeq(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

func toTime(v any) time.Time {
	s := toString(v)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
