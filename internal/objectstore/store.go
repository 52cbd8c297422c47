// Package objectstore lists and opens the JSON input objects of the bulk
// loader. It understands s3://bucket/prefix URIs and local paths (plain or
// file://).
package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Store lists objects under a prefix and opens them for reading.
//
// List follows the warehouse COPY convention: the URI is a key prefix, every
// object whose key starts with it is included (recursively), and the result
// is sorted by URI.
type Store interface {
	List(ctx context.Context, uri string) ([]string, error)
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// SplitS3URI splits "s3://bucket/key" into bucket and key. ok is false for
// other schemes.
func SplitS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	return bucket, key, bucket != ""
}

// Router dispatches s3:// URIs to an S3 store and everything else to the
// local filesystem. The S3 client is created on first use, so local-only runs
// never load AWS configuration.
type Router struct {
	local Store
	newS3 func(ctx context.Context) (Store, error)

	mu sync.Mutex
	s3 Store
}

// NewRouter returns a Router whose S3 side is configured by cfg.
func NewRouter(cfg S3Config) *Router {
	return &Router{
		local: Local{},
		newS3: func(ctx context.Context) (Store, error) { return NewS3(ctx, cfg) },
	}
}

func (r *Router) storeFor(ctx context.Context, uri string) (Store, error) {
	if !strings.HasPrefix(uri, "s3://") {
		return r.local, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s3 == nil {
		s, err := r.newS3(ctx)
		if err != nil {
			return nil, fmt.Errorf("objectstore: init s3: %w", err)
		}
		r.s3 = s
	}
	return r.s3, nil
}

func (r *Router) List(ctx context.Context, uri string) ([]string, error) {
	s, err := r.storeFor(ctx, uri)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, uri)
}

func (r *Router) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	s, err := r.storeFor(ctx, uri)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, uri)
}

var _ Store = (*Router)(nil)
