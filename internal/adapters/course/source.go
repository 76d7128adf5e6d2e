// Package course loads course track files from a local directory, an HTTP
// URL or a GCS bucket and decodes them into track points.
package course

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/okian/raceday/internal/domain/model"
	"github.com/okian/raceday/pkg/metrics"
)

const (
	defaultMaxBytes    = 32 << 20
	defaultHTTPTimeout = 15 * time.Second

	gcsScheme = "gs://"
)

var errPrivateAddress = errors.New("address is not public")

// Source fetches and decodes one course.
type Source struct {
	dir          string
	http         *http.Client
	gcs          *storage.Client
	bucket       string
	maxBytes     int64
	allowPrivate bool
}

// New creates a Source with configuration options.
func New(opts ...Option) *Source {
	s := &Source{maxBytes: defaultMaxBytes}
	for _, opt := range opts {
		opt(s)
	}
	if s.http == nil {
		s.http = s.defaultClient()
	}
	return s
}

// defaultClient refuses to connect to non-public addresses unless private
// hosts are allowed. The check runs on the dialed address, after DNS.
func (s *Source) defaultClient() *http.Client {
	dialer := &net.Dialer{Timeout: defaultHTTPTimeout}
	if !s.allowPrivate {
		dialer.Control = func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ip := net.ParseIP(host); ip == nil || !publicIP(ip) {
				return fmt.Errorf("%w: %s", errPrivateAddress, host)
			}
			return nil
		}
	}
	return &http.Client{
		Timeout:   defaultHTTPTimeout,
		Transport: &http.Transport{DialContext: dialer.DialContext, TLSHandshakeTimeout: defaultHTTPTimeout},
	}
}

// NewGCSClient opens a storage client, with a service account key when one
// is given.
func NewGCSClient(ctx context.Context, credentialsFile string) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("gcs credentials %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return c, nil
}

// Fetch loads the course ref points at. A ref with a URL is fetched over
// HTTP; a key with a gs:// prefix, or any key when a bucket is configured,
// is read from GCS; other keys are files under the local directory. Every
// failure wraps ErrCourseUnavailable.
func (s *Source) Fetch(ctx context.Context, ref model.CourseRef) ([]model.TrackPoint, error) {
	kind, name, data, err := s.load(ctx, ref)
	if err != nil {
		metrics.RecordCourseFetch(kind, "error")
		return nil, fmt.Errorf("%w: %w", ErrCourseUnavailable, err)
	}
	pts, err := Parse(name, data)
	if err != nil {
		metrics.RecordCourseFetch(kind, "invalid")
		return nil, fmt.Errorf("%w: %w", ErrCourseUnavailable, err)
	}
	metrics.RecordCourseFetch(kind, "ok")
	return pts, nil
}

func (s *Source) load(ctx context.Context, ref model.CourseRef) (kind, name string, data []byte, err error) {
	switch {
	case ref.URL != "":
		data, err = s.fetchHTTP(ctx, ref.URL)
		return "http", ref.URL, data, err
	case strings.HasPrefix(ref.Key, gcsScheme):
		bucket, object, perr := ParseGCSKey(ref.Key)
		if perr != nil {
			return "gcs", ref.Key, nil, perr
		}
		if s.bucket != "" && bucket != s.bucket {
			return "gcs", ref.Key, nil, fmt.Errorf("%w: %s", ErrForeignBucket, bucket)
		}
		data, err = s.fetchGCS(ctx, bucket, object)
		return "gcs", object, data, err
	case ref.Key != "" && s.bucket != "":
		data, err = s.fetchGCS(ctx, s.bucket, ref.Key)
		return "gcs", ref.Key, data, err
	case ref.Key != "":
		data, err = s.readLocal(ref.Key)
		return "local", ref.Key, data, err
	}
	return "none", "", nil, errors.New("empty course reference")
}

func (s *Source) readLocal(key string) ([]byte, error) {
	if s.dir == "" {
		return nil, errors.New("no course directory configured")
	}
	clean := filepath.Clean("/" + key)
	f, err := os.Open(filepath.Join(s.dir, clean))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.readAll(f)
}

func (s *Source) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	if err := s.checkURL(ctx, rawURL); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	return s.readAll(resp.Body)
}

// checkURL accepts http and https URLs whose host resolves to public
// addresses only.
func (s *Source) checkURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForbiddenURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrForbiddenURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: no host", ErrForbiddenURL)
	}
	if s.allowPrivate {
		return nil
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return err
		}
		for _, a := range addrs {
			ips = append(ips, a.IP)
		}
	}
	for _, ip := range ips {
		if !publicIP(ip) {
			return fmt.Errorf("%w: %s resolves to %s", ErrForbiddenURL, host, ip)
		}
	}
	return nil
}

func publicIP(ip net.IP) bool {
	return !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() &&
		!ip.IsLinkLocalUnicast() && !ip.IsLinkLocalMulticast() &&
		!ip.IsInterfaceLocalMulticast() && !ip.IsMulticast()
}

func (s *Source) fetchGCS(ctx context.Context, bucket, object string) ([]byte, error) {
	if s.gcs == nil {
		return nil, errors.New("no gcs client configured")
	}
	r, err := s.gcs.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()
	return s.readAll(r)
}

func (s *Source) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrCourseTooLarge
	}
	return data, nil
}

// ParseGCSKey splits gs://bucket/object.
func ParseGCSKey(key string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(key, gcsScheme)
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" || path.Clean("/"+object) == "/" {
		return "", "", fmt.Errorf("invalid gcs key %q", key)
	}
	return bucket, object, nil
}
