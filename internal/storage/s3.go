package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/cloo-solutions/copilot/internal/domain"
)

// S3ClientConfig holds configuration for S3Client
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// S3Client writes and reads objects in one bucket of an S3-compatible store
// (for example RustFS or MinIO).
type S3Client struct {
	client *s3.Client
	bucket string
}

// NewS3Client creates a new S3Client with the given configuration
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{client: client, bucket: cfg.Bucket}, nil
}

func (c *S3Client) Bucket() string {
	return c.bucket
}

// PutObject stores body under key.
func (c *S3Client) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		Body:          bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// GetObject reads the object stored under key.
func (c *S3Client) GetObject(ctx context.Context, key string) ([]byte, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// ObjectWriter is the subset of S3Client the audit archive needs.
type ObjectWriter interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
}

// AuditArchive stores batches of audit records as JSON-lines objects, one
// object per batch, under a date-partitioned prefix.
type AuditArchive struct {
	writer ObjectWriter
	prefix string
	now    func() time.Time
}

func NewAuditArchive(writer ObjectWriter, prefix string) *AuditArchive {
	if prefix == "" {
		prefix = "audit"
	}
	return &AuditArchive{writer: writer, prefix: prefix, now: time.Now}
}

// Archive writes recs and returns the object key.
func (a *AuditArchive) Archive(ctx context.Context, recs []*domain.AuditRecord) (string, error) {
	if len(recs) == 0 {
		return "", nil
	}

	body, err := EncodeJSONLines(recs)
	if err != nil {
		return "", err
	}

	key := a.objectKey()
	if err := a.writer.PutObject(ctx, key, "application/x-ndjson", body); err != nil {
		return "", err
	}
	return key, nil
}

func (a *AuditArchive) objectKey() string {
	now := a.now().UTC()
	return fmt.Sprintf("%s/%s/%d-%s.jsonl", a.prefix, now.Format("2006/01/02"), now.UnixNano(), uuid.NewString())
}

// EncodeJSONLines renders one JSON object per line.
func EncodeJSONLines(recs []*domain.AuditRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("failed to encode audit record %s: %w", rec.ID, err)
		}
	}
	return buf.Bytes(), nil
}
