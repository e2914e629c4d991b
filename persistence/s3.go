package persistence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3Backend. Grounded on storage/persistence-s3.go's
// S3Factory: same field set, same "empty Endpoint means real AWS" and
// "ForcePathStyle for MinIO-style endpoints" conventions.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// S3Backend stores each key as one S3 object under cfg.Prefix. Grounded
// directly on storage/persistence-s3.go's S3Storage: lazy client
// construction via ensureOpen, the same config.LoadDefaultConfig +
// credentials.NewStaticCredentialsProvider call shape, generalized from
// column-shard objects to whole board/page blobs.
type S3Backend struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

// NewS3Backend returns a backend that connects lazily on first use.
func NewS3Backend(cfg S3Config) *S3Backend {
	return &S3Backend{cfg: cfg}
}

func (s *S3Backend) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if s.cfg.Region != "" {
		opts = append(opts, config.WithRegion(s.cfg.Region))
	}
	if s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("persistence: loading aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if s.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(s.cfg.Endpoint) })
	}
	if s.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	s.client = s3.NewFromConfig(awsCfg, s3Opts...)
	s.opened = true
	return nil
}

func (s *S3Backend) objectKey(key string) string {
	prefix := strings.TrimSuffix(s.cfg.Prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

func (s *S3Backend) Load(key string) ([]byte, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	resp, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, ErrNotFound
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *S3Backend) Save(key string, data []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("persistence: s3 put %s: %w", key, err)
	}
	return nil
}

func (s *S3Backend) Remove(key string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	return err
}

func (s *S3Backend) List(prefix string) ([]string, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	fullPrefix := s.objectKey(prefix)
	var out []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, err
		}
		base := s.objectKey("")
		for _, obj := range page.Contents {
			out = append(out, strings.TrimPrefix(aws.ToString(obj.Key), base))
		}
	}
	return out, nil
}
