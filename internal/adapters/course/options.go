package course

import (
	"net/http"

	"cloud.google.com/go/storage"
)

// Option applies a configuration option to the Source.
type Option func(*Source)

// WithDir sets the directory local course keys resolve against.
func WithDir(dir string) Option {
	return func(s *Source) {
		s.dir = dir
	}
}

// WithHTTPClient replaces the client used for URL courses.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) {
		if c != nil {
			s.http = c
		}
	}
}

// WithGCS reads bare keys from bucket through c. A gs:// key must name the
// same bucket; without a bucket any gs:// key is read.
func WithGCS(c *storage.Client, bucket string) Option {
	return func(s *Source) {
		s.gcs = c
		s.bucket = bucket
	}
}

// WithMaxBytes bounds the size of a course file.
func WithMaxBytes(n int64) Option {
	return func(s *Source) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithPrivateHosts allows URL courses on loopback, private and link-local
// addresses. Off by default.
func WithPrivateHosts(allow bool) Option {
	return func(s *Source) {
		s.allowPrivate = allow
	}
}
