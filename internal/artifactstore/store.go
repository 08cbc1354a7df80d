// Package artifactstore uploads generated plots to object storage so that
// published block events can reference them by URL.
package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Backends.
const (
	BackendNone  = "none"
	BackendMinIO = "minio"
	BackendS3    = "s3"
)

// Store uploads a local file under key and returns a URL for the object.
type Store interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	Bucket  string
	// Prefix is prepended to every object key.
	Prefix string
	// PublicBaseURL, when set, replaces the endpoint in returned URLs
	// (for example a CDN in front of the bucket).
	PublicBaseURL string

	// Endpoint is host:port for MinIO, or a full URL for S3-compatible
	// providers. Empty means AWS for S3.
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// UsePathStyle forces path-style S3 addressing.
	UsePathStyle bool
}

// Validate checks required fields for the selected backend.
func (c Config) Validate() error {
	switch c.backend() {
	case BackendNone:
		return nil
	case BackendMinIO:
		var missing []string
		if c.Endpoint == "" {
			missing = append(missing, "endpoint")
		}
		if c.Bucket == "" {
			missing = append(missing, "bucket")
		}
		if c.AccessKey == "" || c.SecretKey == "" {
			missing = append(missing, "access/secret key")
		}
		if len(missing) > 0 {
			return fmt.Errorf("minio artifact store: missing %s", strings.Join(missing, ", "))
		}
		return nil
	case BackendS3:
		if c.Bucket == "" {
			return errors.New("s3 artifact store: bucket is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown artifact backend %q (want none, minio or s3)", c.Backend)
	}
}

func (c Config) backend() string {
	b := strings.ToLower(strings.TrimSpace(c.Backend))
	if b == "" {
		return BackendNone
	}
	return b
}

// New builds the configured store. It returns a nil Store for the none backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.backend() {
	case BackendMinIO:
		m, err := NewMinIO(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	case BackendS3:
		s, err := NewS3(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, nil
}

// objectKey joins the configured prefix and key with forward slashes.
func objectKey(prefix, key string) string {
	key = strings.TrimLeft(filepath.ToSlash(key), "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

// contentType guesses a MIME type from the file extension.
func contentType(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}

// objectURL is base/bucket/key, or base/key when base is a public URL.
func objectURL(base, bucket, key string, includeBucket bool) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	base = strings.TrimRight(base, "/")
	if includeBucket {
		return base + "/" + bucket + "/" + escaped
	}
	return base + "/" + escaped
}
