// Package minio uploads FID database artifacts to S3-compatible storage.
package minio

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Publisher uploads files into one bucket
type Publisher struct {
	client     *minio.Client
	bucketName string
	region     string
}

// NewPublisher connects to endpoint and creates the bucket when missing
func NewPublisher(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Publisher, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	return &Publisher{client: cli, bucketName: bucket, region: region}, nil
}

// Publish uploads localPath under key and returns the object URL. The URL
// is only reachable directly when the bucket is public.
func (p *Publisher) Publish(ctx context.Context, localPath, key string) (string, error) {
	_, err := p.client.FPutObject(ctx, p.bucketName, key, localPath, minio.PutObjectOptions{
		ContentType: ContentType(localPath),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", filepath.Base(localPath), err)
	}

	return ObjectURL(p.client.EndpointURL(), p.bucketName, key), nil
}

// ContentType picks the MIME type for an artifact file
func ContentType(localPath string) string {
	name := strings.ToLower(filepath.Base(localPath))
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return "application/gzip"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".asc"):
		return "application/pgp-signature"
	case strings.HasSuffix(name, ".sha256"):
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// ObjectURL renders the path-style URL of key in bucket
func ObjectURL(endpoint *url.URL, bucket, key string) string {
	u := url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host, Path: "/" + path.Join(bucket, key)}
	return u.String()
}
