package upload

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/iox"
	"github.com/pithecene-io/hoist/s3x"
	"github.com/pithecene-io/hoist/types"
)

// PutObjectAPI is the subset of the S3 client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader writes the archive to an s3://bucket/key destination with a
// SHA-256 integrity check enforced by S3.
type S3Uploader struct {
	client   PutObjectAPI
	interval time.Duration
}

// NewS3Uploader wraps an S3 client.
func NewS3Uploader(client PutObjectAPI) *S3Uploader {
	return &S3Uploader{client: client, interval: DefaultProgressInterval}
}

// Upload implements Uploader.
func (u *S3Uploader) Upload(ctx context.Context, archive *types.LocalArchive, destination string, progress ProgressFunc) error {
	bucket, key, err := s3x.ParseURI(destination, true)
	if err != nil {
		return apierr.Validation(err.Error())
	}
	sum, err := hex.DecodeString(archive.ChecksumHex())
	if err != nil {
		return fmt.Errorf("archive checksum %q: %w", archive.Checksum, err)
	}

	f, err := os.Open(archive.Path)
	if err != nil {
		return apierr.Filesystem("open archive", archive.Path, err)
	}
	defer iox.DiscardClose(f)

	body := iox.NewCountingReader(f)
	stop := startProgress(body.Count, archive.SizeBytes, u.interval, progress)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:         aws.String(bucket),
		Key:            aws.String(key),
		Body:           body,
		ContentLength:  aws.Int64(archive.SizeBytes),
		ContentType:    aws.String(ContentType),
		ChecksumSHA256: aws.String(base64.StdEncoding.EncodeToString(sum)),
		Metadata:       map[string]string{"hoist-checksum": archive.Checksum},
	})
	stop()
	if err != nil {
		var re *awshttp.ResponseError
		if errors.As(err, &re) {
			return &apierr.StatusError{
				Method: "PUT",
				URL:    destination,
				Code:   re.HTTPStatusCode(),
				Body:   re.Error(),
			}
		}
		return fmt.Errorf("s3 upload: %w", err)
	}
	if progress != nil {
		progress(archive.SizeBytes, archive.SizeBytes)
	}
	return nil
}

var _ Uploader = (*S3Uploader)(nil)
