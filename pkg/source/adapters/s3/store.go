package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hashicorp/go-hclog"

	"github.com/kbase/kbsolrutil/pkg/source"
)

var _ source.ObjectStore = (*Store)(nil)

// objectGetter is the subset of the S3 client used by the store.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store fetches objects from an S3 bucket.
type Store struct {
	client objectGetter
	cfg    *Config
	logger hclog.Logger
}

// NewStore creates an S3-backed object store.
func NewStore(ctx context.Context, cfg *Config, logger hclog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid S3 configuration: %w", err)
	}
	cfg.SetDefaults()

	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		}),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	logger.Info("S3 object store initialized",
		"bucket", cfg.Bucket,
		"prefix", cfg.Prefix,
		"region", cfg.Region)

	return newStore(client, cfg, logger), nil
}

func newStore(client objectGetter, cfg *Config, logger hclog.Logger) *Store {
	return &Store{
		client: client,
		cfg:    cfg,
		logger: logger.Named("s3-store"),
	}
}

func (s *Store) Name() string { return "s3" }

// Fetch downloads and decodes the object stored for ref.
func (s *Store) Fetch(ctx context.Context, ref source.Reference) (*source.Object, error) {
	key := s.objectKey(ref)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", source.ErrNotFound, ref.Raw)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	s.logger.Trace("fetched object", "ref", ref.Raw, "key", key, "bytes", len(body))
	return source.DecodeObject(ref, body, source.FormatFromKey(key))
}

func (s *Store) objectKey(ref source.Reference) string {
	p := path.Join(ref.Object, ref.Version)
	if ref.Workspace != "" {
		p = path.Join(ref.Workspace, p)
	}
	return s.cfg.Prefix + p + s.cfg.Extension
}
