// Package imagestore stores question images in an S3-compatible bucket via
// MinIO. It is the production implementation of the engine's ImageService.
package imagestore

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"sitecheck/api/internal/util"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Client struct {
	mc      *minio.Client
	bucket  string
	baseURL string
}

// New connects to the blob store and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to blob store: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := mc.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return &Client{
		mc:      mc,
		bucket:  cfg.Bucket,
		baseURL: scheme + "://" + cfg.Endpoint,
	}, nil
}

// Upload pushes a local image file to the bucket and returns its URL. Object
// keys are namespaced by response and item so orphan sweeps can attribute
// blobs to rows.
func (c *Client) Upload(ctx context.Context, localRef, responseID, itemID string) (string, error) {
	key := util.NewObjectKey(responseID, itemID, localRef)
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := c.mc.FPutObject(ctx, c.bucket, key, localRef, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return c.baseURL + "/" + c.bucket + "/" + key, nil
}

// Delete removes the blob a URL points at. URLs from foreign buckets are
// rejected rather than silently ignored.
func (c *Client) Delete(ctx context.Context, imageURL string) error {
	key, err := c.objectKey(imageURL)
	if err != nil {
		return err
	}
	if err := c.mc.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (c *Client) objectKey(imageURL string) (string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("parse image url: %w", err)
	}
	prefix := "/" + c.bucket + "/"
	if !strings.HasPrefix(parsed.Path, prefix) {
		return "", fmt.Errorf("image url %s is not in bucket %s", imageURL, c.bucket)
	}
	key := strings.TrimPrefix(parsed.Path, prefix)
	if key == "" {
		return "", fmt.Errorf("image url %s has no object key", imageURL)
	}
	return key, nil
}
