// Package upload transfers a LocalArchive to its destination in a single
// request and reports progress at a bounded rate.
//
// Uploaders never retry: a failed transfer must restart from byte 0 and may
// need a fresh destination, so retrying belongs to the caller.
package upload

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/iox"
	"github.com/pithecene-io/hoist/s3x"
	"github.com/pithecene-io/hoist/types"
)

// ChecksumHeader carries the archive checksum on HTTP uploads so the
// receiver can verify what it stored.
const ChecksumHeader = "X-Hoist-Checksum"

// ContentType is the content type of every upload.
const ContentType = "application/octet-stream"

// DefaultProgressInterval bounds progress updates to 20 per second.
const DefaultProgressInterval = 50 * time.Millisecond

// DefaultTimeout bounds a single upload request.
const DefaultTimeout = 10 * time.Minute

// ProgressFunc receives advisory progress. sent never exceeds total.
type ProgressFunc func(sent, total int64)

// Uploader transfers one archive to one destination.
type Uploader interface {
	Upload(ctx context.Context, archive *types.LocalArchive, destination string, progress ProgressFunc) error
}

// HTTPUploader PUTs the archive to a presigned URL.
type HTTPUploader struct {
	client   *http.Client
	interval time.Duration
}

// NewHTTPUploader creates an HTTP uploader. A nil client gets DefaultTimeout.
func NewHTTPUploader(client *http.Client) *HTTPUploader {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPUploader{client: client, interval: DefaultProgressInterval}
}

// Upload performs a single PUT of the whole archive.
// Non-2xx responses return *apierr.StatusError with the response body.
func (u *HTTPUploader) Upload(ctx context.Context, archive *types.LocalArchive, destination string, progress ProgressFunc) error {
	f, err := os.Open(archive.Path)
	if err != nil {
		return apierr.Filesystem("open archive", archive.Path, err)
	}
	defer iox.DiscardClose(f)

	body := iox.NewCountingReader(f)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, destination, body)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.ContentLength = archive.SizeBytes
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set(ChecksumHeader, archive.Checksum)
	req.Header.Set("User-Agent", types.UserAgent)

	stop := startProgress(body.Count, archive.SizeBytes, u.interval, progress)
	resp, err := u.client.Do(req)
	stop()
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.FromResponse(resp)
	}
	if progress != nil {
		progress(archive.SizeBytes, archive.SizeBytes)
	}
	return nil
}

// startProgress polls count every interval and forwards changes to fn
// from a single background goroutine. The returned stop function blocks
// until that goroutine has exited, so fn is never called after stop returns.
func startProgress(count func() int64, total int64, interval time.Duration, fn ProgressFunc) (stop func()) {
	if fn == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := int64(-1)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				n := min(count(), total)
				if n != last {
					last = n
					fn(n, total)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// Router dispatches to the S3 transport for s3:// destinations and to
// HTTP for everything else.
type Router struct {
	HTTP Uploader
	// S3 is optional; s3:// destinations fail without it.
	S3 Uploader
}

// Transport names the transport Upload would use for destination.
func (r *Router) Transport(destination string) string {
	if s3x.IsURI(destination) {
		return "s3"
	}
	return "http"
}

// Upload implements Uploader.
func (r *Router) Upload(ctx context.Context, archive *types.LocalArchive, destination string, progress ProgressFunc) error {
	if s3x.IsURI(destination) {
		if r.S3 == nil {
			return apierr.Validation("upload destination is s3:// but no S3 transport is configured",
				"set upload.s3 in hoist.yaml")
		}
		return r.S3.Upload(ctx, archive, destination, progress)
	}
	return r.HTTP.Upload(ctx, archive, destination, progress)
}

var (
	_ Uploader = (*HTTPUploader)(nil)
	_ Uploader = (*Router)(nil)
)
