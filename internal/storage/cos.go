package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/flint-go/flint/pkg/ferrors"
)

// COSConfig holds the Tencent Cloud COS bucket this project persists
// serialized tensors to.
type COSConfig struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	Domain    string // e.g., "myqcloud.com"
	Scheme    string // e.g., "https" or "http"
}

// COSStorage is the Storage implementation backed by Tencent Cloud COS,
// used in place of LocalStorage when tensor objects need to be reachable
// from more than one engine instance.
type COSStorage struct {
	client *cos.Client
	bucket string
	region string
	domain string
	scheme string
}

// NewCOSStorage opens a COS client against the bucket described by cfg.
func NewCOSStorage(cfg *COSConfig) (*COSStorage, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, ferrors.New(ferrors.InternalError, "bucket and region are required for COS tensor storage")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, ferrors.New(ferrors.InternalError, "credentials are required for COS tensor storage")
	}

	domain := cfg.Domain
	if domain == "" {
		domain = "myqcloud.com"
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	bucketURL, err := url.Parse(fmt.Sprintf("%s://%s.cos.%s.%s", scheme, cfg.Bucket, cfg.Region, domain))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.InternalError, "parsing COS bucket URL", err)
	}

	serviceURL, err := url.Parse(fmt.Sprintf("%s://cos.%s.%s", scheme, cfg.Region, domain))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.InternalError, "parsing COS service URL", err)
	}

	client := cos.NewClient(&cos.BaseURL{
		BucketURL:  bucketURL,
		ServiceURL: serviceURL,
	}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})

	return &COSStorage{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		domain: domain,
		scheme: scheme,
	}, nil
}

// Upload writes a tensor's encoded bytes (read from reader) to key.
func (s *COSStorage) Upload(ctx context.Context, key string, reader io.Reader) error {
	if _, err := s.client.Object.Put(ctx, key, reader, nil); err != nil {
		return ferrors.Wrap(ferrors.IOError, "uploading tensor object "+key+" to COS", err)
	}
	return nil
}

// UploadFile uploads the tensor object already encoded on disk at localPath
// to key.
func (s *COSStorage) UploadFile(ctx context.Context, key string, localPath string) error {
	if _, err := s.client.Object.PutFromFile(ctx, key, localPath, nil); err != nil {
		return ferrors.Wrap(ferrors.IOError, "uploading tensor file "+localPath+" to COS as "+key, err)
	}
	return nil
}

// Download opens the tensor object at key for reading; the caller decodes
// it with pkg/tensorcodec.
func (s *COSStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.IOError, "downloading tensor object "+key+" from COS", err)
	}
	return resp.Body, nil
}

// DownloadFile downloads the tensor object at key to a local file.
func (s *COSStorage) DownloadFile(ctx context.Context, key string, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return ferrors.Wrap(ferrors.IOError, "creating destination directory", err)
	}

	if _, err := s.client.Object.GetToFile(ctx, key, localPath, nil); err != nil {
		return ferrors.Wrap(ferrors.IOError, "downloading tensor object "+key+" from COS", err)
	}
	return nil
}

// Delete removes the tensor object at key from the bucket.
func (s *COSStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.client.Object.Delete(ctx, key, nil); err != nil {
		return ferrors.Wrap(ferrors.IOError, "deleting tensor object "+key+" from COS", err)
	}
	return nil
}

// Exists reports whether a tensor object is present at key in the bucket.
func (s *COSStorage) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.Object.IsExist(ctx, key)
	if err != nil {
		return false, ferrors.Wrap(ferrors.IOError, "checking tensor object "+key+" in COS", err)
	}
	return ok, nil
}

// GetURL returns the public HTTPS (or configured scheme) URL for key.
func (s *COSStorage) GetURL(key string) string {
	return fmt.Sprintf("%s://%s.cos.%s.%s/%s", s.scheme, s.bucket, s.region, s.domain, key)
}
