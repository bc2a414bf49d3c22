// Package s3 provides an S3-compatible blobstore.Backend, backed by the
// AWS SDK v2 client. It targets both real S3 and path-style S3-compatible
// endpoints (MinIO and similar).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/prn-tf/rescache/internal/blobstore"
)

// Config holds configuration for the S3 blob backend.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Backend implements blobstore.Backend against an S3-compatible bucket.
type Backend struct {
	client *s3.Client
	bucket string
	logger zerolog.Logger
}

// NewBackend constructs a Backend, resolving AWS config the same way the
// AWS SDK's default chain does, optionally overridden with an explicit
// endpoint and static credentials for S3-compatible deployments.
func NewBackend(ctx context.Context, cfg Config, logger zerolog.Logger) (*Backend, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	if cfg.Endpoint != "" {
		resolver := awssdk.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (awssdk.Endpoint, error) {
				return awssdk.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
					SigningRegion:     cfg.Region,
				}, nil
			},
		)
		opts = append(opts, config.WithEndpointResolverWithOptions(resolver))
	}

	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("s3 blobstore initialized")

	return &Backend{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Exists reports whether key is present.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: awssdk.String(b.bucket),
		Key:    awssdk.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head object: %w", err)
	}
	return true, nil
}

// Load retrieves an object's body and metadata.
func (b *Backend) Load(ctx context.Context, key string) ([]byte, blobstore.ObjectMeta, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: awssdk.String(b.bucket),
		Key:    awssdk.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, blobstore.ObjectMeta{}, blobstore.ErrNotFound
		}
		return nil, blobstore.ObjectMeta{}, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, blobstore.ObjectMeta{}, fmt.Errorf("failed to read object body: %w", err)
	}

	return body, objectMetaFromGet(out), nil
}

// Meta retrieves an object's metadata without its body.
func (b *Backend) Meta(ctx context.Context, key string) (blobstore.ObjectMeta, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: awssdk.String(b.bucket),
		Key:    awssdk.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return blobstore.ObjectMeta{}, blobstore.ErrNotFound
		}
		return blobstore.ObjectMeta{}, fmt.Errorf("failed to head object: %w", err)
	}

	return objectMetaFromHead(out), nil
}

// Store writes body to key with the given content type, encoding, and
// user metadata.
func (b *Backend) Store(ctx context.Context, key, contentType, contentEncoding string, userMeta map[string]string, body []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      awssdk.String(b.bucket),
		Key:         awssdk.String(key),
		Body:        bytes.NewReader(body),
		ContentType: awssdk.String(contentType),
		Metadata:    userMeta,
	}
	if contentEncoding != "" {
		input.ContentEncoding = awssdk.String(contentEncoding)
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}

	b.logger.Debug().Str("key", key).Int("size", len(body)).Msg("blob stored")
	return nil
}

// Delete removes key. S3 DeleteObject is idempotent by design.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: awssdk.String(b.bucket),
		Key:    awssdk.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	b.logger.Debug().Str("key", key).Msg("blob deleted")
	return nil
}

// List returns entries under prefix using S3's delimiter-based listing,
// so immediate sub-paths come back as common prefixes (folders) rather
// than being recursively expanded.
func (b *Backend) List(ctx context.Context, prefix, pageToken string, limit int) (blobstore.Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:    awssdk.String(b.bucket),
		Prefix:    awssdk.String(prefix),
		Delimiter: awssdk.String("/"),
	}
	if limit > 0 {
		input.MaxKeys = awssdk.Int32(int32(limit))
	}
	if pageToken != "" {
		input.ContinuationToken = awssdk.String(pageToken)
	}

	out, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		return blobstore.Page{}, fmt.Errorf("failed to list objects: %w", err)
	}

	var entries []blobstore.Entry
	for _, cp := range out.CommonPrefixes {
		entries = append(entries, blobstore.Entry{
			Key:  awssdk.ToString(cp.Prefix),
			Type: blobstore.EntryFolder,
		})
	}
	for _, obj := range out.Contents {
		meta := blobstore.ObjectMeta{
			LastModified: awssdk.ToTime(obj.LastModified),
			Size:         awssdk.ToInt64(obj.Size),
		}
		// ListObjectsV2 never returns per-object user metadata, so this
		// can only fall back to LastModified; still call it for the
		// same CreatedAt precedence Get/Head apply.
		applyTimestamps(&meta)
		entries = append(entries, blobstore.Entry{
			Key:  awssdk.ToString(obj.Key),
			Type: blobstore.EntryBlob,
			Meta: meta,
		})
	}

	nextToken := ""
	if out.IsTruncated != nil && *out.IsTruncated {
		nextToken = awssdk.ToString(out.NextContinuationToken)
	}

	return blobstore.Page{Entries: entries, NextPageToken: nextToken}, nil
}

func objectMetaFromGet(out *s3.GetObjectOutput) blobstore.ObjectMeta {
	meta := blobstore.ObjectMeta{
		UserMetadata:    out.Metadata,
		ContentEncoding: awssdk.ToString(out.ContentEncoding),
		LastModified:    awssdk.ToTime(out.LastModified),
		Size:            awssdk.ToInt64(out.ContentLength),
	}
	applyTimestamps(&meta)
	return meta
}

func objectMetaFromHead(out *s3.HeadObjectOutput) blobstore.ObjectMeta {
	meta := blobstore.ObjectMeta{
		UserMetadata:    out.Metadata,
		ContentEncoding: awssdk.ToString(out.ContentEncoding),
		LastModified:    awssdk.ToTime(out.LastModified),
		Size:            awssdk.ToInt64(out.ContentLength),
	}
	applyTimestamps(&meta)
	return meta
}

func applyTimestamps(meta *blobstore.ObjectMeta) {
	meta.CreatedAt = meta.LastModified
	if created, ok := meta.UserMetadata["created_at"]; ok {
		if ms, err := strconv.ParseInt(created, 10, 64); err == nil {
			meta.CreatedAt = time.UnixMilli(ms)
		}
	}
	if updated, ok := meta.UserMetadata["updated_at"]; ok {
		if ms, err := strconv.ParseInt(updated, 10, 64); err == nil {
			meta.LastModified = time.UnixMilli(ms)
		}
	}
}

func isNotFound(err error) bool {
	var nf *types.NoSuchKey
	if errors.As(err, &nf) {
		return true
	}
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404")
}

// Ensure Backend implements blobstore.Backend.
var _ blobstore.Backend = (*Backend)(nil)
