// Package blob mirrors profile documents to S3-compatible object storage.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joshp123/climatelink/internal/config"
)

var ErrBlobNotFound = errors.New("blob not found")

const objectSuffix = ".yaml"

// Store handles document mirroring to object storage.
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
	List(ctx context.Context) ([]string, error)
}

type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewS3Store(cfg *config.BlobConfig) (*S3Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("missing blob config")
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	prefix := strings.TrimSpace(cfg.Prefix)
	accessKeyFile := strings.TrimSpace(cfg.AccessKeyFile)
	secretKeyFile := strings.TrimSpace(cfg.SecretKeyFile)
	region := strings.TrimSpace(cfg.Region)

	if endpoint == "" || bucket == "" || accessKeyFile == "" || secretKeyFile == "" {
		return nil, fmt.Errorf("missing blob configuration")
	}

	accessKey, err := ReadSecretFile(accessKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read blob access key: %w", err)
	}
	secretKey, err := ReadSecretFile(secretKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read blob secret key: %w", err)
	}

	host, secure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	if prefix == "" {
		prefix = config.DefaultBlobPrefix
	}

	return &S3Store{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *S3Store) Load(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return nil, s.wrapError(err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *S3Store) Save(ctx context.Context, name string, data []byte) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "application/yaml",
	})
	if err != nil {
		return s.wrapError(err)
	}
	return nil
}

// List returns the document names stored under the prefix.
func (s *S3Store) List(ctx context.Context) ([]string, error) {
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, s.wrapError(obj.Err)
		}
		if name, ok := s.nameFromKey(obj.Key); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *S3Store) key(name string) string {
	return path.Join(s.prefix, name+objectSuffix)
}

func (s *S3Store) nameFromKey(key string) (string, bool) {
	rest := strings.TrimPrefix(key, s.prefix+"/")
	if rest == key || strings.Contains(rest, "/") || !strings.HasSuffix(rest, objectSuffix) {
		return "", false
	}
	return strings.TrimSuffix(rest, objectSuffix), true
}

func (s *S3Store) wrapError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" {
		return ErrBlobNotFound
	}
	return err
}

func parseEndpoint(raw string) (string, bool, error) {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint: %w", err)
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint: %q", raw)
		}
		return u.Host, u.Scheme == "https", nil
	}
	return raw, true, nil
}

// ReadSecretFile reads a secret from disk, trimming surrounding whitespace.
func ReadSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
