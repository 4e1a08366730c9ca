package types

import "strings"

// ChecksumAlgorithm is the algorithm tag prefixed to archive checksums.
const ChecksumAlgorithm = "sha256"

// LocalArchive is a packaged, compressed snapshot of a project directory.
// The checksum is computed after the archive is fully written and closed.
type LocalArchive struct {
	// Path is the absolute path of the archive file.
	Path string `json:"path" yaml:"path"`
	// SizeBytes is the total size of the compressed file.
	SizeBytes int64 `json:"size_bytes" yaml:"size_bytes"`
	// Checksum is "sha256:<hex>" over the compressed bytes.
	Checksum string `json:"checksum" yaml:"checksum"`
	// Files is the number of regular files packed.
	Files int `json:"files" yaml:"files"`
}

// ChecksumHex returns the checksum without its algorithm tag.
func (a *LocalArchive) ChecksumHex() string {
	if a == nil {
		return ""
	}
	_, hex, ok := strings.Cut(a.Checksum, ":")
	if !ok {
		return a.Checksum
	}
	return hex
}

// ArchiveMetadata is embedded in every archive to help the remote side
// debug and reproduce builds. It carries no timestamps so rebuilds of an
// unchanged tree are byte-identical.
type ArchiveMetadata struct {
	HoistVersion string            `json:"hoist_version"`
	OS           string            `json:"os"`
	Arch         string            `json:"arch"`
	Toolchain    map[string]string `json:"toolchain,omitempty"`
}
