// minio.go wires the real S3-compatible object-store client (minio-go,
// present in the retrieval pack via KartikBazzad-bunbase and storj-storj) and
// golang.org/x/time/rate (present via cubefs-inodedb and KartikBazzad-bunbase)
// for the per-request download and upload bandwidth cap.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/time/rate"
)

// MinioConfig carries the connection details a real deployment supplies;
// tests use a fake Env instead of constructing one of these.
type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

type minioEnv struct {
	client  *minio.Client
	bucket  string
	limiter *rate.Limiter
}

// NewMinioFactory returns a Factory bound to cfg; the returned client's
// download and upload rate is limited per key.RateLimitMBps (0 = unlimited).
func NewMinioFactory(cfg MinioConfig) Factory {
	return func(key ClientKey) (Env, error) {
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("objectstore: new minio client: %w", err)
		}
		var limiter *rate.Limiter
		if key.RateLimitMBps > 0 {
			bytesPerSec := key.RateLimitMBps * 1024 * 1024
			limiter = rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
		}
		return &minioEnv{client: client, bucket: key.Bucket, limiter: limiter}, nil
	}
}

func (e *minioEnv) List(prefix string) ([]string, error) {
	ctx := context.Background()
	var names []string
	dir := prefix
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	for obj := range e.client.ListObjects(ctx, e.bucket, minio.ListObjectsOptions{Prefix: dir}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("objectstore: list %s: %w", prefix, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, dir)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (e *minioEnv) Get(key string) (io.ReadCloser, error) {
	obj, err := e.client.GetObject(context.Background(), e.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get %s: %w", key, err)
	}
	if e.limiter == nil {
		return obj, nil
	}
	return &rateLimitedReader{ReadCloser: obj, limiter: e.limiter}, nil
}

func (e *minioEnv) Put(key string, r io.Reader) error {
	if e.limiter != nil {
		r = &rateLimitedReader{ReadCloser: io.NopCloser(r), limiter: e.limiter}
	}
	_, err := e.client.PutObject(context.Background(), e.bucket, key, r, -1, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	return nil
}

func (e *minioEnv) Close() error {
	// minio.Client has no explicit Close; nothing to release here, but the
	// method exists so the Cache's drain-and-swap sequencing has a symmetric
	// teardown call to make regardless of which Env implementation is active.
	return nil
}

// rateLimitedReader throttles Read calls to the wrapped limiter's rate,
// approximating a transfer bandwidth cap in MiB/s.
type rateLimitedReader struct {
	io.ReadCloser
	limiter *rate.Limiter
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(context.Background(), n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
