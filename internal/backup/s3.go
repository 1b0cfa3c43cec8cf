package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/jbweber/hearth/internal/zfs"
)

// S3API is the subset of the S3 client used for uploads.
type S3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config describes an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
}

// NewS3Client creates a path-style client with static credentials.
func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// S3Exporter uploads artifacts as objects keyed <prefix>/<dest>/<name>.
// Streams are staged in a temporary file so uploads carry a content length.
type S3Exporter struct {
	client   S3API
	bucket   string
	prefix   string
	sender   VolumeSender
	snapshot string
	tempDir  string
	logger   zerolog.Logger
}

// NewS3Exporter creates an S3Exporter. An empty tempDir uses os.TempDir.
func NewS3Exporter(client S3API, cfg S3Config, sender VolumeSender, snapshot, tempDir string, logger zerolog.Logger) (*S3Exporter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if snapshot == "" {
		snapshot = zfs.DefaultSnapshotName
	}
	return &S3Exporter{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		sender:   sender,
		snapshot: snapshot,
		tempDir:  tempDir,
		logger:   logger.With().Str("component", "s3-exporter").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

// Key returns the object key of an artifact.
func (e *S3Exporter) Key(dest, name string) string {
	return path.Join(e.prefix, strings.TrimPrefix(filepath.ToSlash(dest), "/"), name)
}

// ExportSpec implements Exporter.
func (e *S3Exporter) ExportSpec(ctx context.Context, spec, dest string, enc *Encryption) error {
	return e.upload(ctx, e.Key(dest, enc.Name(SpecFileName)), enc, func(w io.Writer) error {
		_, err := io.WriteString(w, spec)
		return err
	})
}

// ExportDisks implements Exporter.
func (e *S3Exporter) ExportDisks(ctx context.Context, volumes []string, dest string, enc *Encryption) error {
	for _, volume := range volumes {
		key := e.Key(dest, enc.Name(StreamName(volume)))
		e.logger.Info().Str("volume", volume).Str("key", key).Msg("uploading volume")

		err := e.upload(ctx, key, enc, func(w io.Writer) error {
			return e.sender.Send(ctx, w, volume, e.snapshot)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *S3Exporter) upload(ctx context.Context, key string, enc *Encryption, fill func(io.Writer) error) error {
	staged, err := os.CreateTemp(e.tempDir, "hearth-upload-*")
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	defer func() {
		_ = staged.Close()
		_ = os.Remove(staged.Name())
	}()

	if err := fillEncrypted(staged, enc, fill); err != nil {
		return err
	}

	size, err := staged.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("failed to size staging file: %w", err)
	}
	if _, err := staged.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind staging file: %w", err)
	}

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          staged,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
