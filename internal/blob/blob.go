// Package blob is the object-store abstraction used for pipeline input and
// output. A Store exposes a flat, slash-separated key space; backends live in
// subpackages (file, s3, gcs) and register themselves by URL scheme.
//
// Import internal/blob/all to register every backend.
package blob

import (
	"context"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrNotExist is returned (possibly wrapped) by Store.Open for a missing key.
var ErrNotExist = errors.New("blob: object does not exist")

// Store is a bucket-like key space.
type Store interface {
	// List returns every key that starts with prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)
	// Open returns a reader for key. Callers close it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Put writes r to key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader) error
	// DeletePrefix removes every key that starts with prefix and reports how
	// many objects were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}

// Credentials is passed unchanged to backends. Zero values mean "use the
// backend's default chain".
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
	// Endpoint overrides the service endpoint (S3-compatible stores, GCS
	// emulators).
	Endpoint       string
	ForcePathStyle bool
	// GCSCredentialsFile is a service-account JSON file for gs:// locations.
	GCSCredentialsFile string
}

// Location is a parsed storage URL.
type Location struct {
	// Scheme is the canonical scheme: "s3", "gs" or "file".
	Scheme string
	// Bucket is empty for file locations.
	Bucket string
	// Prefix is the key prefix inside the bucket, without a trailing slash.
	// For file locations it is a slash-separated filesystem path.
	Prefix string
}

// ParseLocation parses s3://, s3a://, s3n://, gs://, file:// URLs and bare
// filesystem paths.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, errors.New("blob: empty location")
	}
	if !strings.Contains(raw, "://") {
		return Location{Scheme: "file", Prefix: cleanFilePath(raw)}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, errors.Wrapf(err, "blob: parse location %q", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "s3", "s3a", "s3n":
		if u.Host == "" {
			return Location{}, errors.Errorf("blob: location %q has no bucket", raw)
		}
		return Location{Scheme: "s3", Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
	case "gs":
		if u.Host == "" {
			return Location{}, errors.Errorf("blob: location %q has no bucket", raw)
		}
		return Location{Scheme: "gs", Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
	case "file":
		p := u.Path
		if u.Host != "" && u.Host != "localhost" {
			p = u.Host + p
		}
		if p == "" {
			return Location{}, errors.Errorf("blob: location %q has no path", raw)
		}
		return Location{Scheme: "file", Prefix: cleanFilePath(p)}, nil
	default:
		return Location{}, errors.Errorf("blob: unsupported scheme %q in %q", u.Scheme, raw)
	}
}

func cleanFilePath(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	if p == "." {
		return ""
	}
	return p
}

// Key joins elem under the location prefix.
func (l Location) Key(elem ...string) string {
	parts := make([]string, 0, len(elem)+1)
	if l.Prefix != "" {
		parts = append(parts, l.Prefix)
	}
	for _, e := range elem {
		if e = strings.Trim(e, "/"); e != "" {
			parts = append(parts, e)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return path.Join(parts...)
}

// StoreID identifies the store a location lives in; locations with equal
// StoreIDs can share one opened Store.
func (l Location) StoreID() string { return l.Scheme + "://" + l.Bucket }

func (l Location) String() string {
	if l.Scheme == "file" {
		return l.Prefix
	}
	if l.Prefix == "" {
		return l.Scheme + "://" + l.Bucket
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Prefix
}

// Opener opens the store for one bucket.
type Opener func(ctx context.Context, bucket string, creds Credentials) (Store, error)

var (
	regMu   sync.RWMutex
	openers = map[string]Opener{}
)

// Register makes a backend available for scheme. Registering a scheme twice
// panics.
func Register(scheme string, o Opener) {
	regMu.Lock()
	defer regMu.Unlock()
	if o == nil {
		panic("blob: Register opener is nil")
	}
	if _, dup := openers[scheme]; dup {
		panic("blob: Register called twice for scheme " + scheme)
	}
	openers[scheme] = o
}

// Schemes lists the registered schemes.
func Schemes() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(openers))
	for s := range openers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open opens the store holding loc using the registered backend.
func Open(ctx context.Context, loc Location, creds Credentials) (Store, error) {
	regMu.RLock()
	o, ok := openers[loc.Scheme]
	regMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("blob: no backend registered for scheme %q (known: %v)", loc.Scheme, Schemes())
	}
	st, err := o(ctx, loc.Bucket, creds)
	if err != nil {
		return nil, errors.Wrapf(err, "blob: open %s", loc.StoreID())
	}
	return st, nil
}
