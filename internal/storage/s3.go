package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// Default object layout
const (
	DefaultPermitsKey  = "permits/permits.json"
	DefaultUsagePrefix = "usage/"
)

// S3Config holds the bucket layout and connection settings. Credentials come
// from the default AWS chain.
type S3Config struct {
	Bucket      string
	Region      string
	Endpoint    string // optional; S3-compatible services such as MinIO
	PathStyle   bool
	PermitsKey  string
	UsagePrefix string
}

// S3Store reads permits and per-point usage objects from one bucket
type S3Store struct {
	client      *s3.Client
	bucket      string
	permitsKey  string
	usagePrefix string
}

// NewS3 creates an S3 backend
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3WithClient(client, cfg), nil
}

// NewS3WithClient wraps an existing client
func NewS3WithClient(client *s3.Client, cfg S3Config) *S3Store {
	s := &S3Store{
		client:      client,
		bucket:      cfg.Bucket,
		permitsKey:  cfg.PermitsKey,
		usagePrefix: cfg.UsagePrefix,
	}
	if s.permitsKey == "" {
		s.permitsKey = DefaultPermitsKey
	}
	if s.usagePrefix == "" {
		s.usagePrefix = DefaultUsagePrefix
	}
	return s
}

// Permits implements PermitSource
func (s *S3Store) Permits(ctx context.Context) ([]domain.PermitRecord, error) {
	body, err := s.get(ctx, s.permitsKey)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("permits object %s not found", s.permitsKey)
	}
	defer body.Close()

	var records []domain.PermitRecord
	if err := json.NewDecoder(body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode permits object %s: %w", s.permitsKey, err)
	}
	return records, nil
}

// Usage implements UsageStore. A missing object yields no rows.
func (s *S3Store) Usage(ctx context.Context, wapID string, from, to time.Time) ([]domain.UsageReading, error) {
	key := s.usageKey(wapID)
	body, err := s.get(ctx, key)
	if err != nil || body == nil {
		return nil, err
	}
	defer body.Close()

	readings, err := decodeUsageCSV(body, wapID, from, to)
	if err != nil {
		return nil, fmt.Errorf("decode usage object %s: %w", key, err)
	}
	return readings, nil
}

// PutUsage uploads a point's readings
func (s *S3Store) PutUsage(ctx context.Context, wapID string, readings []domain.UsageReading) error {
	var b strings.Builder
	if err := encodeUsageCSV(&b, readings); err != nil {
		return err
	}
	key := s.usageKey(wapID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        strings.NewReader(b.String()),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("put usage object %s: %w", key, err)
	}
	return nil
}

// Close implements io.Closer
func (s *S3Store) Close() error { return nil }

func (s *S3Store) usageKey(wapID string) string {
	return s.usagePrefix + safeName(wapID) + ".csv"
}

// get returns nil, nil when the object does not exist
func (s *S3Store) get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return out.Body, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re interface{ HTTPStatusCode() int }
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
