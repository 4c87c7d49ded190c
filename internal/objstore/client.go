// Package objstore provides a client for S3-compatible object storage
// (Yandex Object Storage by default). It serves media lookups, log archive
// uploads, and the conditional writes behind DistributedLock.
package objstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	apperrors "github.com/snospb/vk-sno-bot/internal/errors"
)

// Defaults for Yandex Object Storage.
const (
	DefaultEndpoint = "https://storage.yandexcloud.net"
	DefaultRegion   = "ru-central1"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = fmt.Errorf("objstore: %w", apperrors.ErrNotFound)

// Config holds object storage settings.
type Config struct {
	Endpoint        string // Empty uses DefaultEndpoint
	Region          string // Empty uses DefaultRegion
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL prefixes object keys in PublicURL. Empty means
	// "<endpoint>/<bucket>", which works for public-read buckets.
	PublicBaseURL string
}

// ObjectInfo is the metadata returned by Head.
type ObjectInfo struct {
	Key         string
	ETag        string
	Size        int64
	ContentType string
}

// Client provides object storage operations on a single bucket.
type Client struct {
	s3         *s3.Client
	bucket     string
	publicBase string
}

// New creates a client. Bucket and both keys are required.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var errs []error
	if cfg.Bucket == "" {
		errs = append(errs, apperrors.NewValidationError("bucket", "is required"))
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		errs = append(errs, apperrors.NewValidationError("credentials", "access key id and secret are required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("objstore: %w", err)
	}
	endpoint := strings.TrimRight(cmp.Or(cfg.Endpoint, DefaultEndpoint), "/")

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		config.WithRegion(cmp.Or(cfg.Region, DefaultRegion)),
	)
	if err != nil {
		return nil, fmt.Errorf("objstore: load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
		// Yandex rejects the flexible-checksum trailers sent by default.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		publicBase = endpoint + "/" + cfg.Bucket
	}

	return &Client{
		s3:         s3Client,
		bucket:     cfg.Bucket,
		publicBase: publicBase,
	}, nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// PublicURL returns the URL under which key is publicly readable.
func (c *Client) PublicURL(key string) string {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.publicBase + "/" + strings.Join(segments, "/")
}

// Upload stores body under key and returns the new ETag.
func (c *Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	result, err := c.s3.PutObject(ctx, c.putInput(key, body, contentType))
	if err != nil {
		return "", fmt.Errorf("objstore: upload %q: %w", key, err)
	}
	return trimETag(result.ETag), nil
}

// Download returns the object body and ETag. The caller closes the body.
func (c *Client) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	result, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("objstore: download %q: %w", key, err)
	}
	return result.Body, trimETag(result.ETag), nil
}

// Head returns object metadata without the body, or ErrNotFound.
func (c *Client) Head(ctx context.Context, key string) (ObjectInfo, error) {
	result, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, ErrNotFound
		}
		return ObjectInfo{}, fmt.Errorf("objstore: head %q: %w", key, err)
	}
	return ObjectInfo{
		Key:         key,
		ETag:        trimETag(result.ETag),
		Size:        aws.ToInt64(result.ContentLength),
		ContentType: aws.ToString(result.ContentType),
	}, nil
}

// Exists reports whether key exists.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.Head(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// PutIfNotExists creates key only when it is absent (If-None-Match: *).
// It returns (false, "", nil) when the object already exists.
func (c *Client) PutIfNotExists(ctx context.Context, key string, body io.Reader, contentType string) (bool, string, error) {
	input := c.putInput(key, body, contentType)
	input.IfNoneMatch = aws.String("*")

	result, err := c.s3.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailed(err) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("objstore: put if not exists %q: %w", key, err)
	}
	return true, trimETag(result.ETag), nil
}

// PutIfMatch replaces key only when its ETag still equals etag.
// It returns (false, "", nil) on a mismatch.
func (c *Client) PutIfMatch(ctx context.Context, key string, body io.Reader, etag, contentType string) (bool, string, error) {
	input := c.putInput(key, body, contentType)
	input.IfMatch = aws.String(`"` + etag + `"`)

	result, err := c.s3.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailed(err) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("objstore: put if match %q: %w", key, err)
	}
	return true, trimETag(result.ETag), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("objstore: delete %q: %w", key, err)
	}
	return nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("objstore: head bucket %q: %w", c.bucket, err)
	}
	return nil
}

func (c *Client) putInput(key string, body io.Reader, contentType string) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	return input
}

func trimETag(etag *string) string {
	return strings.Trim(aws.ToString(etag), `"`)
}

// isPreconditionFailed reports a 412 from a conditional write.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
		return true
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == 412
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404
}
