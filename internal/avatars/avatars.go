// Package avatars stores uploaded profile pictures in an S3-compatible bucket
// and hands back public object URLs to attach to user rows.
package avatars

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/xid"
)

type Config struct {
	Endpoint  string `env:"AVATAR_ENDPOINT"`
	AccessKey string `env:"AVATAR_ACCESS_KEY"`
	SecretKey string `env:"AVATAR_SECRET_KEY"`
	UseSSL    bool   `env:"AVATAR_USE_SSL" envDefault:"false"`
	Bucket    string `env:"AVATAR_BUCKET" envDefault:"avatars"`
	// PublicBaseURL overrides the endpoint when building object URLs,
	// for setups where the bucket is served through a CDN or proxy
	PublicBaseURL string `env:"AVATAR_PUBLIC_BASE_URL"`
}

type Storage struct {
	cfg    Config
	client *minio.Client
}

func New(cfg Config) (*Storage, error) {
	cl, err := minio.New(strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://"), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &Storage{cfg: cfg, client: cl}, nil
}

// EnsureBucket creates the avatars bucket when it does not exist yet
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		return s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// Upload stores the file under a fresh key derived from the original filename
// extension and returns the public URL of the object
func (s *Storage) Upload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	key := objectKey(filename)
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, r, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return s.objectURL(key), nil
}

func (s *Storage) objectURL(key string) string {
	base := s.cfg.PublicBaseURL
	if base == "" {
		scheme := "http://"
		if s.cfg.UseSSL {
			scheme = "https://"
		}
		base = scheme + strings.TrimPrefix(strings.TrimPrefix(s.cfg.Endpoint, "https://"), "http://")
	}
	return strings.TrimSuffix(base, "/") + "/" + s.cfg.Bucket + "/" + key
}

// objectKey generates a unique key keeping the original file extension
func objectKey(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return xid.New().String() + ext
}
