// Package s3store keeps snapshot records as objects in an S3-compatible bucket (AWS S3 or MinIO).
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
)

const (
	defaultRegion = "us-east-1"
	contentType   = "application/json"
)

var (
	// ErrBucketRequired is returned when no bucket is configured.
	ErrBucketRequired = errors.New("s3 bucket required")

	// ErrListingSnapshotsFailed is returned when the bucket listing fails.
	ErrListingSnapshotsFailed = errors.New("listing snapshots failed")
)

// Store implements metamodel.SnapshotStore on a single bucket.
// Snapshot keys are mapped to object keys below an optional prefix.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// Config holds explicit construction parameters.
// Credentials fall back to the default AWS credentials chain if not set.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string // optional; enables a custom endpoint such as MinIO
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// New creates an S3 snapshot store from Config.
func New(ctx context.Context, cfg Config, optFns ...func(*s3.Options)) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, append([]func(*s3.Options){func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}}, optFns...)...)

	return NewFromClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewFromClient wraps an already configured client.
func NewFromClient(client *s3.Client, bucket, prefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Save implements metamodel.SnapshotStore.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return errors.Join(metamodel.ErrSavingSnapshotFailed, err)
	}

	return nil
}

// Load implements metamodel.SnapshotStore.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", metamodel.ErrSnapshotNotFound, key)
		}

		return nil, errors.Join(metamodel.ErrLoadingSnapshotFailed, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Join(metamodel.ErrLoadingSnapshotFailed, err)
	}

	return data, nil
}

// List implements metamodel.SnapshotLister. Keys are returned relative to the store prefix, in lexical order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	// a raw string prefix, so "dir/" must not match "directory.json"
	listPrefix := s.join(prefix)

	var (
		keys  []string
		token *string
	)

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(listPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, errors.Join(ErrListingSnapshotsFailed, err)
		}

		for _, obj := range out.Contents {
			keys = append(keys, s.relative(aws.ToString(obj.Key)))
		}

		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}

		break
	}

	sort.Strings(keys)

	return keys, nil
}

func (s *Store) objectKey(key string) (string, error) {
	clean, err := metamodel.CleanSnapshotKey(key)
	if err != nil {
		return "", err
	}

	return s.join(clean), nil
}

func (s *Store) join(key string) string {
	if s.prefix == "" {
		return key
	}

	return s.prefix + "/" + key
}

func (s *Store) relative(objectKey string) string {
	if s.prefix == "" {
		return objectKey
	}

	return strings.TrimPrefix(objectKey, s.prefix+"/")
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == http.StatusNotFound
	}

	return false
}

var (
	_ metamodel.SnapshotStore  = (*Store)(nil)
	_ metamodel.SnapshotLister = (*Store)(nil)
)
