package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// BlobStore adapts a gocloud.dev blob bucket into the hierarchical Store the
// engine consumes. Buckets have a flat keyspace; directories are modelled
// with "/"-delimited listings plus zero-byte marker objects ("dir/") so an
// empty directory is still observable. Writers commit on Close, which gives
// uploads their all-or-nothing merge guarantee.
type BlobStore struct {
	bucket *blob.Bucket
}

// NewBlobStore returns a Store backed by bucket. The caller retains
// ownership of the bucket and closes it when done.
func NewBlobStore(bucket *blob.Bucket) *BlobStore {
	return &BlobStore{bucket: bucket}
}

func (s *BlobStore) NewReader(ctx context.Context, p string, offset, length int64) (io.ReadCloser, error) {
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	r, err := s.bucket.NewRangeReader(ctx, normPath(p), offset, length, nil)
	if err != nil {
		return nil, wrapNotExist(p, err)
	}
	return r, nil
}

func (s *BlobStore) NewWriter(ctx context.Context, p string) (io.WriteCloser, error) {
	w, err := s.bucket.NewWriter(ctx, normPath(p), nil)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *BlobStore) Exists(ctx context.Context, p string) (bool, error) {
	key := normPath(p)
	if key == "" {
		return true, nil
	}
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil || ok {
		return ok, err
	}
	return s.isDir(ctx, key)
}

func (s *BlobStore) Stat(ctx context.Context, p string) (Entry, error) {
	key := normPath(p)
	if key == "" {
		return Entry{Dir: true}, nil
	}
	attrs, err := s.bucket.Attributes(ctx, key)
	if err == nil {
		return Entry{Path: key, Size: attrs.Size}, nil
	}
	if !isNotExist(err) {
		return Entry{}, err
	}
	dir, derr := s.isDir(ctx, key)
	if derr != nil {
		return Entry{}, derr
	}
	if dir {
		return Entry{Path: key, Dir: true}, nil
	}
	return Entry{}, fmt.Errorf("%s: %w", p, ErrNotExist)
}

func (s *BlobStore) Mkdir(ctx context.Context, p string) error {
	key := normPath(p)
	if key == "" {
		return nil
	}
	// Markers for every level so intermediate directories exist too.
	segs := strings.Split(key, "/")
	for i := range segs {
		marker := strings.Join(segs[:i+1], "/") + "/"
		if err := s.bucket.WriteAll(ctx, marker, nil, nil); err != nil {
			return fmt.Errorf("mkdir %s: %w", marker, err)
		}
	}
	return nil
}

func (s *BlobStore) List(ctx context.Context, p string) ([]Entry, error) {
	key := normPath(p)
	prefix := ""
	if key != "" {
		prefix = key + "/"
	}

	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix, Delimiter: "/"})
	var entries []Entry
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if obj.Key == prefix {
			continue // the directory's own marker
		}
		if obj.IsDir || strings.HasSuffix(obj.Key, "/") {
			entries = append(entries, Entry{Path: strings.TrimSuffix(obj.Key, "/"), Dir: true})
			continue
		}
		entries = append(entries, Entry{Path: obj.Key, Size: obj.Size})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (s *BlobStore) Remove(ctx context.Context, p string, recursive bool) error {
	key := normPath(p)

	if recursive {
		iter := s.bucket.List(&blob.ListOptions{Prefix: key + "/"})
		for {
			obj, err := iter.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if err := s.bucket.Delete(ctx, obj.Key); err != nil && !isNotExist(err) {
				return err
			}
		}
	}

	if err := s.bucket.Delete(ctx, key); err != nil && !isNotExist(err) {
		return err
	}
	// Remove the directory marker if one exists.
	if err := s.bucket.Delete(ctx, key+"/"); err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

func (s *BlobStore) Usage(ctx context.Context, p string, deep bool) (map[string]int64, error) {
	key := normPath(p)

	// A plain file reports itself.
	if attrs, err := s.bucket.Attributes(ctx, key); err == nil {
		return map[string]int64{key: attrs.Size}, nil
	}

	prefix := ""
	if key != "" {
		prefix = key + "/"
	}
	usage := map[string]int64{}
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue // directory markers carry no bytes
		}
		if deep {
			usage[obj.Key] += obj.Size
			continue
		}
		// Aggregate by immediate child.
		rest := strings.TrimPrefix(obj.Key, prefix)
		child := rest
		if i := strings.Index(rest, "/"); i >= 0 {
			child = rest[:i]
		}
		usage[prefix+child] += obj.Size
	}
	return usage, nil
}

// Concat streams the parts, in order, into a writer on dst. The writer only
// commits on Close, so a failed merge leaves no object at dst and the parts
// untouched.
func (s *BlobStore) Concat(ctx context.Context, dst string, parts []string) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(wctx, normPath(dst), nil)
	if err != nil {
		return err
	}

	for _, part := range parts {
		r, err := s.bucket.NewReader(ctx, normPath(part), nil)
		if err != nil {
			cancel()
			w.Close()
			return wrapNotExist(part, err)
		}
		_, err = io.Copy(w, r)
		r.Close()
		if err != nil {
			cancel()
			w.Close()
			return fmt.Errorf("copy part %s: %w", part, err)
		}
	}
	return w.Close()
}

// isDir reports whether key has children or a directory marker.
func (s *BlobStore) isDir(ctx context.Context, key string) (bool, error) {
	iter := s.bucket.List(&blob.ListOptions{Prefix: key + "/"})
	_, err := iter.Next(ctx)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// isNotExist reports whether the error indicates a missing object.
func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}

func wrapNotExist(p string, err error) error {
	if isNotExist(err) {
		return fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	return err
}
