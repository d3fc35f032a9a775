package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// Mirror copies finished artifacts to remote storage.
type Mirror interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	Enabled() bool
}

type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	// Endpoint overrides the AWS endpoint, for S3-compatible stores.
	Endpoint string
}

type s3Mirror struct {
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

type noopMirror struct{}

func (noopMirror) Upload(context.Context, string, string) (string, error) { return "", nil }
func (noopMirror) Enabled() bool                                          { return false }

// NewMirror returns a no-op mirror when no bucket is configured.
func NewMirror(cfg S3Config) (Mirror, error) {
	if cfg.Bucket == "" {
		return noopMirror{}, nil
	}

	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}

	return &s3Mirror{
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

func (m *s3Mirror) Enabled() bool { return true }

func (m *s3Mirror) Upload(ctx context.Context, localPath, key string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	if key == "" {
		key = filepath.Base(localPath)
	}

	out, err := m.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(path.Join(m.prefix, key)),
		Body:        src,
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to s3: %w", key, err)
	}
	return out.Location, nil
}
