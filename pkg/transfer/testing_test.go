package transfer

import (
	"context"
	"io"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
)

// newMemStore returns a Store over an in-memory bucket.
func newMemStore(t *testing.T) *BlobStore {
	t.Helper()
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open mem bucket: %v", err)
	}
	t.Cleanup(func() { bucket.Close() })
	return NewBlobStore(bucket)
}

func writeRemote(t *testing.T, s *BlobStore, path string, data []byte) {
	t.Helper()
	if err := s.bucket.WriteAll(context.Background(), path, data, nil); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readRemote(t *testing.T, s *BlobStore, path string) []byte {
	t.Helper()
	data, err := s.bucket.ReadAll(context.Background(), path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

func writeLocal(t *testing.T, fs billy.Filesystem, path string, data []byte) {
	t.Helper()
	if err := util.WriteFile(fs, path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readLocal(t *testing.T, fs billy.Filesystem, path string) []byte {
	t.Helper()
	f, err := fs.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

// newLocalFS returns an empty in-memory local filesystem.
func newLocalFS() billy.Filesystem {
	return memfs.New()
}

// pattern fills n bytes with a repeating sequence so chunk boundary mixups
// show up as content mismatches.
func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte('a' + i%23)
	}
	return data
}
