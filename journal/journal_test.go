package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/pithecene-io/hoist/types"
)

func TestJournal_AppendAndRead(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	appends := []Entry{
		{Kind: KindStarted, ProjectID: "web", BuildID: "b-1", Checksum: "sha256:aa"},
		{Kind: KindStarted, ProjectID: "api", BuildID: "b-2"},
		{Kind: KindFinished, ProjectID: "web", BuildID: "b-1", Status: types.StatusBuilt, Outcome: "succeeded"},
	}
	for _, e := range appends {
		if err := j.Append(e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, err := j.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	for i, e := range entries {
		if e.ID == "" {
			t.Errorf("entry %d has no id", i)
		}
		if !e.Time().Equal(fixed) {
			t.Errorf("entry %d time = %v", i, e.Time())
		}
	}

	last, err := j.Last("web")
	if err != nil || last.Kind != KindFinished || last.Outcome != "succeeded" {
		t.Errorf("Last(web) = %+v, %v", last, err)
	}
	id, err := j.LastBuildID("api")
	if err != nil || id != "b-2" {
		t.Errorf("LastBuildID(api) = %q, %v", id, err)
	}
	if err := j.Append(Entry{Kind: KindObserved, ProjectID: "api", BuildID: "b-0", Status: types.StatusBuilding}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if id, _ := j.LastBuildID("api"); id != "b-2" {
		t.Errorf("LastBuildID(api) after observing b-0 = %q, want b-2", id)
	}
	if _, err := j.Last("docs"); !errors.Is(err, ErrNoDeployments) {
		t.Errorf("Last(docs) error = %v, want ErrNoDeployments", err)
	}

	status, err := j.LastStatus("b-1")
	if err != nil || status != types.StatusBuilt {
		t.Errorf("LastStatus(b-1) = %q, %v", status, err)
	}
	if status, _ := j.LastStatus("b-2"); status != "" {
		t.Errorf("LastStatus(b-2) = %q, want empty", status)
	}
}

func TestJournal_MissingFile(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	entries, err := j.Entries()
	if err != nil || len(entries) != 0 {
		t.Errorf("Entries() = %v, %v", entries, err)
	}
}

func TestJournal_TruncatedTailKeepsEarlierEntries(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Append(Entry{Kind: KindStarted, ProjectID: "web", BuildID: "b-1"}); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash mid-write: a length prefix promising more bytes than follow.
	f, err := os.OpenFile(j.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], 100)
	_, _ = f.Write(append(prefix[:], 0x81, 0xa2))
	_ = f.Close()

	entries, err := j.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].BuildID != "b-1" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestJournal_AppendAfterTornTail(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Append(Entry{Kind: KindStarted, ProjectID: "web", BuildID: "b-1"}); err != nil {
		t.Fatal(err)
	}
	intact, err := os.Stat(j.Path())
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(j.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], 40)
	_, _ = f.Write(append(prefix[:], 0x81, 0xa2, 0x69))
	_ = f.Close()

	if err := j.Append(Entry{Kind: KindStarted, ProjectID: "web", BuildID: "b-2"}); err != nil {
		t.Fatal(err)
	}

	got, err := j.LastBuildID("web")
	if err != nil || got != "b-2" {
		t.Fatalf("LastBuildID() = %q, %v; want b-2", got, err)
	}
	entries, err := j.Entries()
	if err != nil || len(entries) != 2 {
		t.Fatalf("Entries() = %+v, %v", entries, err)
	}

	// The torn bytes are gone: the file is exactly two frames long.
	end, torn, err := validLength(mustOpen(t, j.Path()))
	if err != nil || torn {
		t.Fatalf("validLength() torn=%v err=%v", torn, err)
	}
	info, err := os.Stat(j.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != end || end <= intact.Size() {
		t.Errorf("size = %d, valid end = %d, first frame end = %d", info.Size(), end, intact.Size())
	}
}

func TestValidLength(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, []byte{0x01, 0x02}); err != nil {
		t.Fatal(err)
	}
	complete := int64(buf.Len())

	tests := []struct {
		name     string
		tail     []byte
		wantTorn bool
	}{
		{"clean", nil, false},
		{"partial prefix", []byte{0x00, 0x00}, true},
		{"partial payload", []byte{0x00, 0x00, 0x00, 0x09, 0xff}, true},
		{"oversized prefix", []byte{0xff, 0xff, 0xff, 0xff}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append(bytes.Clone(buf.Bytes()), tt.tail...)
			end, torn, err := validLength(bytes.NewReader(data))
			if err != nil {
				t.Fatal(err)
			}
			if end != complete || torn != tt.wantTorn {
				t.Errorf("validLength() = %d, %v; want %d, %v", end, torn, complete, tt.wantTorn)
			}
		})
	}
}

func mustOpen(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestJournal_SkipsUndecodableFrame(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(j.Path())
	if err != nil {
		t.Fatal(err)
	}
	if err := writeFrame(f, []byte{0xc1}); err != nil { // 0xc1 is never valid msgpack
		t.Fatal(err)
	}
	_ = f.Close()
	if err := j.Append(Entry{Kind: KindStarted, ProjectID: "web", BuildID: "b-9"}); err != nil {
		t.Fatal(err)
	}

	entries, err := j.Entries()
	if err != nil || len(entries) != 1 || entries[0].BuildID != "b-9" {
		t.Errorf("Entries() = %+v, %v", entries, err)
	}
}

func TestFrameReader_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		wantKind FrameErrorKind
	}{
		{"partial prefix", []byte{0x00, 0x01}, FrameErrorPartial},
		{"partial payload", []byte{0x00, 0x00, 0x00, 0x05, 0x01}, FrameErrorPartial},
		{"too large", []byte{0xff, 0xff, 0xff, 0xff}, FrameErrorTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &frameReader{reader: bytes.NewReader(tt.input)}
			_, err := r.readFrame()
			var fe *FrameError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FrameError, got %v", err)
			}
			if fe.Kind != tt.wantKind || !fe.IsFatal() {
				t.Errorf("Kind = %v, IsFatal = %v", fe.Kind, fe.IsFatal())
			}
		})
	}

	r := &frameReader{reader: bytes.NewReader(nil)}
	if _, err := r.readFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("empty stream error = %v, want io.EOF", err)
	}
}

func TestWriteFrame_TooLarge(t *testing.T) {
	err := writeFrame(io.Discard, make([]byte, MaxPayloadSize+1))
	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got %v", err)
	}
}
