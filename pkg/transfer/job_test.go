package transfer

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestDownloadSingleFile(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	writeRemote(t, store, "data/hello.txt", []byte("hello world"))

	j, err := Download(ctx, store, fs, "data/hello.txt", "hello.txt")
	if err != nil {
		t.Fatal(err)
	}
	if j.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", j.Remaining())
	}
	if got := readLocal(t, fs, "hello.txt"); string(got) != "hello world" {
		t.Fatalf("content = %q", got)
	}
}

func TestDownloadSingleFileToDirectory(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	writeRemote(t, store, "data/hello.txt", []byte("hello"))
	if err := fs.MkdirAll("dl", 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := Download(ctx, store, fs, "data/hello.txt", "dl")
	if err != nil {
		t.Fatal(err)
	}
	if got := readLocal(t, fs, "dl/hello.txt"); string(got) != "hello" {
		t.Fatalf("content = %q", got)
	}
}

func TestDownloadMultiChunk(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	data := pattern(10000)
	writeRemote(t, store, "big", data)

	j, err := Download(ctx, store, fs, "big", "big",
		WithChunkSize(1024), WithThreads(4))
	if err != nil {
		t.Fatal(err)
	}
	if len(j.chunks) != 10 {
		t.Fatalf("planned %d chunks, want 10", len(j.chunks))
	}
	if got := readLocal(t, fs, "big"); !bytes.Equal(got, data) {
		t.Fatal("downloaded content differs from source")
	}
}

func TestDownloadEmptyFile(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	writeRemote(t, store, "empty", nil)

	j, err := Download(ctx, store, fs, "empty", "empty")
	if err != nil {
		t.Fatal(err)
	}
	if len(j.chunks) != 1 {
		t.Fatalf("planned %d chunks, want 1", len(j.chunks))
	}
	fi, err := fs.Stat("empty")
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 0 {
		t.Fatalf("size = %d, want 0", fi.Size())
	}
}

func TestDownloadTree(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	writeRemote(t, store, "data/a/x.csv", []byte("ax"))
	writeRemote(t, store, "data/a/y.csv", []byte("ay"))
	writeRemote(t, store, "data/b/x.csv", []byte("bx"))

	j, err := Download(ctx, store, fs, "data", "dl")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"dl/a/x.csv", "dl/a/y.csv", "dl/b/x.csv"}
	if got := j.LocalFiles(); !reflect.DeepEqual(got, want) {
		t.Fatalf("locals = %v, want %v", got, want)
	}
	if got := readLocal(t, fs, "dl/b/x.csv"); string(got) != "bx" {
		t.Fatalf("content = %q", got)
	}
}

func TestDownloadGlobPairing(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	for _, key := range []string{"data/a/x.csv", "data/a/z.txt", "data/b/x.csv"} {
		writeRemote(t, store, key, []byte("123456"))
	}

	j, err := Download(ctx, store, fs, "data/*/*.csv", "dl", WithPlanOnly())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"dl/a/x.csv", "dl/b/x.csv"}
	if got := j.LocalFiles(); !reflect.DeepEqual(got, want) {
		t.Fatalf("locals = %v, want %v", got, want)
	}
	if j.TotalBytes() != 12 {
		t.Fatalf("total = %d, want 12", j.TotalBytes())
	}
	// Plan only: destinations are preallocated but nothing transferred yet.
	if j.Remaining() != 2 {
		t.Fatalf("remaining = %d, want 2", j.Remaining())
	}
	fi, err := fs.Stat("dl/a/x.csv")
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 6 {
		t.Fatalf("preallocated size = %d, want 6", fi.Size())
	}
}

func TestDownloadReplacesLongerExistingFile(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	writeLocal(t, fs, "f", []byte("stale-old-content"))
	writeRemote(t, store, "f", []byte("hi"))

	j, err := Download(ctx, store, fs, "f", "f")
	if err != nil {
		t.Fatal(err)
	}
	if j.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", j.Remaining())
	}
	if got := readLocal(t, fs, "f"); string(got) != "hi" {
		t.Fatalf("content = %q, want %q", got, "hi")
	}
}

func TestChunkSizeClampedToDefault(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	writeRemote(t, store, "f", []byte("123456"))
	writeLocal(t, fs, "up", []byte("123456"))

	j, err := Download(ctx, store, fs, "f", "f", WithChunkSize(0), WithPlanOnly())
	if err != nil {
		t.Fatal(err)
	}
	if j.opts.ChunkSize != defaultOptions().ChunkSize {
		t.Fatalf("chunk size = %d, want default", j.opts.ChunkSize)
	}
	if len(j.chunks) != 1 {
		t.Fatalf("planned %d chunks, want 1", len(j.chunks))
	}

	u, err := Upload(ctx, store, fs, "up", "up",
		WithChunkSize(-1), WithThreads(-3), WithRetries(0), WithPlanOnly())
	if err != nil {
		t.Fatal(err)
	}
	def := defaultOptions()
	if u.opts.ChunkSize != def.ChunkSize || u.opts.Threads != def.Threads || u.opts.Retries != def.Retries {
		t.Fatalf("opts = %+v, want defaults restored", u.opts)
	}
}

func TestDownloadMissingSource(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)

	_, err := Download(ctx, store, newLocalFS(), "nope", "dl")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDownloadChunkErrorAfterRetries(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	writeRemote(t, store, "gone", []byte("data"))

	j, err := Download(ctx, store, fs, "gone", "gone", WithPlanOnly(), WithRetries(2))
	if err != nil {
		t.Fatal(err)
	}

	// The object vanishes between planning and transfer.
	if err := store.Remove(ctx, "gone", false); err != nil {
		t.Fatal(err)
	}

	err = j.Run(ctx)
	if err == nil {
		t.Fatal("expected error for vanished source")
	}
	var ce *ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ChunkError", err)
	}
	if ce.File != "gone" {
		t.Fatalf("ChunkError.File = %q", ce.File)
	}
	if j.Remaining() != 1 {
		t.Fatalf("remaining = %d, want 1", j.Remaining())
	}
	if j.chunks[0].Retries != 2 {
		t.Fatalf("retries = %d, want 2", j.chunks[0].Retries)
	}
}

func TestUploadSingleFile(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	writeLocal(t, fs, "src.txt", []byte("upload me"))

	j, err := Upload(ctx, store, fs, "src.txt", "dest/out.txt")
	if err != nil {
		t.Fatal(err)
	}
	if j.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", j.Remaining())
	}
	if got := readRemote(t, store, "dest/out.txt"); string(got) != "upload me" {
		t.Fatalf("content = %q", got)
	}

	// Staging parts must be gone after the merge.
	ok, err := store.Exists(ctx, partsDir("dest/out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("parts directory left behind after merge")
	}
}

func TestUploadMultiChunk(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	data := pattern(10000)
	writeLocal(t, fs, "big", data)

	j, err := Upload(ctx, store, fs, "big", "big",
		WithChunkSize(1024), WithThreads(4))
	if err != nil {
		t.Fatal(err)
	}
	if len(j.chunks) != 10 {
		t.Fatalf("planned %d chunks, want 10", len(j.chunks))
	}
	if got := readRemote(t, store, "big"); !bytes.Equal(got, data) {
		t.Fatal("uploaded content differs from source")
	}
}

func TestUploadEmptyFile(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	writeLocal(t, fs, "empty", nil)

	_, err := Upload(ctx, store, fs, "empty", "empty")
	if err != nil {
		t.Fatal(err)
	}
	e, err := store.Stat(ctx, "empty")
	if err != nil {
		t.Fatal(err)
	}
	if e.Dir || e.Size != 0 {
		t.Fatalf("entry = %+v, want empty file", e)
	}
}

func TestUploadTree(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	writeLocal(t, fs, "tree/a.txt", []byte("aa"))
	writeLocal(t, fs, "tree/sub/b.txt", []byte("bb"))

	j, err := Upload(ctx, store, fs, "tree", "out")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"out/a.txt", "out/sub/b.txt"}
	if got := j.RemoteFiles(); !reflect.DeepEqual(got, want) {
		t.Fatalf("remotes = %v, want %v", got, want)
	}
	if got := readRemote(t, store, "out/sub/b.txt"); string(got) != "bb" {
		t.Fatalf("content = %q", got)
	}

	usage, err := store.Usage(ctx, "out", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 2 || UsageTotal(usage) != 4 {
		t.Fatalf("usage = %v", usage)
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	writeRemote(t, store, "data/x", []byte("123456"))

	j1, err := Download(ctx, store, fs, "data", "dl", WithPlanOnly(), WithChunkSize(4))
	if err != nil {
		t.Fatal(err)
	}
	j2, err := Download(ctx, store, fs, "data", "dl", WithPlanOnly(), WithChunkSize(4))
	if err != nil {
		t.Fatal(err)
	}
	if j1.Fingerprint() != j2.Fingerprint() {
		t.Fatal("identical plans produced different fingerprints")
	}

	j3, err := Download(ctx, store, fs, "data", "dl", WithPlanOnly(), WithChunkSize(2))
	if err != nil {
		t.Fatal(err)
	}
	if j3.Fingerprint() == j1.Fingerprint() {
		t.Fatal("different chunk size produced the same fingerprint")
	}

	writeLocal(t, fs, "data/x", []byte("123456"))
	j4, err := Upload(ctx, store, fs, "data", "dl", WithPlanOnly(), WithChunkSize(4))
	if err != nil {
		t.Fatal(err)
	}
	if j4.Fingerprint() == j1.Fingerprint() {
		t.Fatal("upload and download share a fingerprint")
	}
}

func TestJobSaveKeep(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	reg := testRegistry(t)
	writeRemote(t, store, "data/x", []byte("123456"))

	j, err := Download(ctx, store, fs, "data/x", "x",
		WithPlanOnly(), WithRegistry(reg))
	if err != nil {
		t.Fatal(err)
	}

	if err := j.Save(true); err != nil {
		t.Fatal(err)
	}
	records, err := reg.Load()
	if err != nil {
		t.Fatal(err)
	}
	rec, ok := records[j.Fingerprint()]
	if !ok {
		t.Fatal("job not in registry after Save(true)")
	}
	if rec.Remaining() != 1 {
		t.Fatalf("record remaining = %d, want 1", rec.Remaining())
	}

	if err := j.Save(false); err != nil {
		t.Fatal(err)
	}
	records, err = reg.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := records[j.Fingerprint()]; ok {
		t.Fatal("job still in registry after Save(false)")
	}
}

func TestJobSaveWithoutRegistry(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	writeRemote(t, store, "x", []byte("1"))

	j, err := Download(ctx, store, newLocalFS(), "x", "x", WithPlanOnly())
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Save(true); err == nil {
		t.Fatal("Save without a registry must fail")
	}
}

func TestCompletedJobClearsRegistry(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	reg := testRegistry(t)
	writeRemote(t, store, "x", []byte("123456"))

	j, err := Download(ctx, store, fs, "x", "x", WithRegistry(reg))
	if err != nil {
		t.Fatal(err)
	}
	records, err := reg.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := records[j.Fingerprint()]; ok {
		t.Fatal("completed job left in registry")
	}
}

func TestDownloadInterruptAndResume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newMemStore(t)
	fs := newLocalFS()
	reg := testRegistry(t)
	data := pattern(65536)
	writeRemote(t, store, "big", data)

	j, err := Download(ctx, store, fs, "big", "big",
		WithChunkSize(1024), WithThreads(1), WithRegistry(reg),
		WithProgressFunc(func(*Chunk) { cancel() }))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if j.Remaining() == 0 {
		t.Fatal("cancelled job reported no remaining chunks")
	}
	if j.Remaining() == 64 {
		t.Fatal("no chunk finished before cancellation took effect")
	}

	// The interrupted state must be in the registry for cross-process resume.
	records, err := reg.Load()
	if err != nil {
		t.Fatal(err)
	}
	rec, ok := records[j.Fingerprint()]
	if !ok {
		t.Fatal("interrupted job not persisted")
	}
	if rec.Remaining() != j.Remaining() {
		t.Fatalf("persisted remaining = %d, in-memory = %d", rec.Remaining(), j.Remaining())
	}

	r, err := Resume(context.Background(), store, fs, j.Fingerprint(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("remaining after resume = %d, want 0", r.Remaining())
	}
	if got := readLocal(t, fs, "big"); !bytes.Equal(got, data) {
		t.Fatal("resumed download content differs from source")
	}

	records, err = reg.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := records[j.Fingerprint()]; ok {
		t.Fatal("completed job left in registry after resume")
	}
}

func TestUploadInterruptAndResume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newMemStore(t)
	fs := newLocalFS()
	reg := testRegistry(t)
	data := pattern(65536)
	writeLocal(t, fs, "big", data)

	j, err := Upload(ctx, store, fs, "big", "big",
		WithChunkSize(1024), WithThreads(1), WithRegistry(reg),
		WithProgressFunc(func(*Chunk) { cancel() }))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if j.Remaining() == 0 || j.Remaining() == 64 {
		t.Fatalf("remaining = %d after cancellation", j.Remaining())
	}

	// The final object must not exist before the merge ran.
	ok, err := store.Exists(context.Background(), "big")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("destination object exists before all chunks uploaded")
	}

	r, err := Resume(context.Background(), store, fs, j.Fingerprint(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("remaining after resume = %d, want 0", r.Remaining())
	}
	if got := readRemote(t, store, "big"); !bytes.Equal(got, data) {
		t.Fatal("resumed upload content differs from source")
	}
	ok, err = store.Exists(context.Background(), partsDir("big"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("parts directory left behind after resumed merge")
	}

	records, err := reg.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := records[j.Fingerprint()]; ok {
		t.Fatal("completed job left in registry after resume")
	}
}

func TestFailedMergeReportedOnce(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	writeLocal(t, fs, "f", []byte("data"))

	// The progress callback fires between the last part upload and the
	// merge; deleting the staging prefix there makes the merge fail.
	_, err := Upload(ctx, store, fs, "f", "f",
		WithProgressFunc(func(*Chunk) {
			_ = store.Remove(ctx, partsDir("f"), true)
		}))
	if err == nil {
		t.Fatal("expected merge failure")
	}

	errs := []error{err}
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		errs = u.Unwrap()
	}
	var merges int
	for _, e := range errs {
		var me *MergeError
		if errors.As(e, &me) {
			if me.Path != "f" {
				t.Fatalf("MergeError.Path = %q", me.Path)
			}
			merges++
		}
	}
	if merges != 1 {
		t.Fatalf("got %d merge errors for one file, want 1", merges)
	}

	// The failed merge must not produce a destination object.
	ok, err2 := store.Exists(ctx, "f")
	if err2 != nil {
		t.Fatal(err2)
	}
	if ok {
		t.Fatal("destination object exists after failed merge")
	}
}

func TestResumeUnknownFingerprint(t *testing.T) {
	store := newMemStore(t)
	reg := testRegistry(t)

	_, err := Resume(context.Background(), store, newLocalFS(), "deadbeef", reg)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResumeCompletedJobIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	reg := testRegistry(t)
	writeRemote(t, store, "x", []byte("123456"))

	j, err := Download(ctx, store, fs, "x", "x", WithRegistry(reg))
	if err != nil {
		t.Fatal(err)
	}
	// Force the finished state back into the registry, as if the process
	// died between the last chunk and the completion cleanup.
	if err := j.Save(true); err != nil {
		t.Fatal(err)
	}

	r, err := Resume(ctx, store, fs, j.Fingerprint(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", r.Remaining())
	}
}

func TestProgressCallbackPerChunk(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	fs := newLocalFS()
	writeRemote(t, store, "big", pattern(4096))

	var done int
	_, err := Download(ctx, store, fs, "big", "big",
		WithChunkSize(1024), WithThreads(1),
		WithProgressFunc(func(c *Chunk) { done++ }))
	if err != nil {
		t.Fatal(err)
	}
	if done != 4 {
		t.Fatalf("progress callback fired %d times, want 4", done)
	}
}
