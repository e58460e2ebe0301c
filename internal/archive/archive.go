// Package archive keeps a compressed copy of every report a run produced.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"safetyreports/internal/types"
)

// Archiver stores rendered attachments and returns the object keys written.
type Archiver interface {
	Archive(ctx context.Context, scheduleID string, attachments []types.Attachment) ([]string, error)
}

// PutObjectAPI is the subset of the S3 client used by S3Archiver.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// keyPrefix is the root of every archived object.
const keyPrefix = "reports"

// S3Archiver writes zstd-compressed attachments to an S3 bucket under
// reports/<schedule id>/<file name>.zst. A rerun of the same window overwrites
// the earlier object.
type S3Archiver struct {
	client  PutObjectAPI
	bucket  string
	encoder *zstd.Encoder
	logger  *slog.Logger
}

// NewS3Archiver creates an S3Archiver for bucket.
func NewS3Archiver(client PutObjectAPI, bucket string, logger *slog.Logger) (*S3Archiver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &S3Archiver{client: client, bucket: bucket, encoder: enc, logger: logger}, nil
}

// ObjectKey returns the key an attachment is archived under.
func ObjectKey(scheduleID, filename string) string {
	return path.Join(keyPrefix, scheduleID, filename+".zst")
}

// Archive uploads each attachment. It stops at the first failed upload and
// returns the keys written so far along with the error.
func (a *S3Archiver) Archive(ctx context.Context, scheduleID string, attachments []types.Attachment) ([]string, error) {
	keys := make([]string, 0, len(attachments))
	for _, att := range attachments {
		key := ObjectKey(scheduleID, att.Filename)
		compressed := a.encoder.EncodeAll(att.Content, make([]byte, 0, len(att.Content)/2))

		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(compressed),
			ContentType: aws.String("application/zstd"),
			Metadata: map[string]string{
				"original-content-type": att.MimeType,
				"schedule-id":           scheduleID,
			},
		})
		if err != nil {
			return keys, types.NewAppError(types.ErrCodeUpstreamStorage,
				fmt.Sprintf("failed to archive %s", att.Filename), err)
		}

		a.logger.DebugContext(ctx, "report archived",
			"bucket", a.bucket,
			"key", key,
			"bytes", len(att.Content),
			"compressed_bytes", len(compressed),
		)
		keys = append(keys, key)
	}
	return keys, nil
}

// Close releases the encoder.
func (a *S3Archiver) Close() error {
	return a.encoder.Close()
}

// NopArchiver is used when no archive bucket is configured.
type NopArchiver struct{}

func (NopArchiver) Archive(context.Context, string, []types.Attachment) ([]string, error) {
	return nil, nil
}

var (
	_ Archiver = (*S3Archiver)(nil)
	_ Archiver = NopArchiver{}
)
