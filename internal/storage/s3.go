// Package storage manages profile-picture objects in an S3-compatible
// bucket.  Objects are write-once: replacing a picture uploads a new key
// and repoints the user row; the old object stays in the bucket.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/iliyamo/account-api/internal/config"
)

// ErrObjectNotFound is returned by PublicURL when the bucket no longer
// holds the requested key.
var ErrObjectNotFound = errors.New("object not found in bucket")

// S3Store talks to a single bucket through the AWS SDK.
type S3Store struct {
	client    *s3.Client
	presign   *s3.PresignClient
	bucket    string
	urlExpiry time.Duration
}

// NewS3Store builds the client from static credentials and verifies the
// bucket is reachable before the server starts taking uploads.
func NewS3Store(ctx context.Context, cfg config.Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey, cfg.S3SecretKey, "")))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = true
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.S3Bucket)}); err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", cfg.S3Bucket, err)
	}

	return &S3Store{
		client:    client,
		presign:   s3.NewPresignClient(client),
		bucket:    cfg.S3Bucket,
		urlExpiry: cfg.S3URLExpiry,
	}, nil
}

// ObjectKey derives a bucket key from the file content: UTC timestamp plus
// the first 8 hex chars of the SHA-256 digest plus the extension.  Uploads
// of identical content at the same second collapse to the same key, which
// is harmless because the content is identical too.
func ObjectKey(data []byte, contentType string) string {
	sum := sha256.Sum256(data)
	ext := ""
	switch contentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	}
	return fmt.Sprintf("%s-%s%s",
		time.Now().UTC().Format("20060102150405"), hex.EncodeToString(sum[:])[:8], ext)
}

// Upload stores the object under key with the given content type.
func (s *S3Store) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	return err
}

// PublicURL returns a presigned GET URL for the key, or ErrObjectNotFound
// when the object is gone from the bucket.
func (s *S3Store) PublicURL(ctx context.Context, key string) (string, error) {
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return "", ErrObjectNotFound
		}
		return "", err
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlExpiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
