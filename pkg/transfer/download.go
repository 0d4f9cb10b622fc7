package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"

	"github.com/sreekanth370/lakeferry/internal/bufpool"
)

// Download plans and runs a transfer from the remote store to the local
// filesystem. src is a remote path, directory or wildcard pattern; dest is a
// local file or directory. Intermediate local directories are created at
// plan time. Unless WithPlanOnly is given, the job runs immediately; the
// returned job is valid for inspection and resume even when Run failed.
func Download(ctx context.Context, store Store, localFS billy.Filesystem, src, dest string, options ...Option) (*Job, error) {
	opts := defaultOptions()
	for _, opt := range options {
		opt(&opts)
	}
	opts.clamp()

	kind, files, rels, err := expandSource(storeSource{ctx: ctx, store: store}, src)
	if err != nil {
		return nil, err
	}

	dest = cleanLocal(dest)
	destIsDir := false
	if fi, err := localFS.Stat(dest); err == nil {
		destIsDir = fi.IsDir()
	}

	pairs := make([]FilePair, len(files))
	for i, f := range files {
		local := dest
		if kind != specFile || destIsDir {
			local = path.Join(dest, rels[i])
		}
		pairs[i] = FilePair{Remote: f.Path, Local: local, Size: f.Size}
	}

	// Destinations are sized to the source up front, so a shorter source
	// fully replaces a longer existing file and resumed runs find the file
	// already sized.
	for _, p := range pairs {
		if dir := path.Dir(p.Local); dir != "." {
			if err := localFS.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create local dir %s: %w", dir, err)
			}
		}
		f, err := localFS.OpenFile(p.Local, os.O_WRONLY|os.O_CREATE, 0o644)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", p.Local, err)
		}
		if err := f.Truncate(p.Size); err != nil {
			f.Close()
			return nil, fmt.Errorf("truncate %s: %w", p.Local, err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("close %s: %w", p.Local, err)
		}
	}

	j := &Job{
		direction: DirectionDownload,
		src:       src,
		dest:      dest,
		opts:      opts,
		store:     store,
		fs:        localFS,
		buffers:   bufpool.New(opts.BufferSize),
		pairs:     pairs,
	}
	for i, p := range pairs {
		j.chunks = append(j.chunks, planChunks(i, p.Size, opts.ChunkSize)...)
	}
	j.fileChunks = groupChunks(pairs, j.chunks)
	j.remaining = len(j.chunks)
	j.fp = computeFingerprint(DirectionDownload, src, dest, opts.ChunkSize, pairs)

	if opts.PlanOnly {
		return j, nil
	}
	return j, j.Run(ctx)
}

// downloadChunk transfers one chunk's byte range from the remote object into
// the local file. Writes are positional: each worker opens its own handle
// and seeks to the chunk offset, so completion order across chunks does not
// matter.
func (j *Job) downloadChunk(ctx context.Context, c *Chunk) error {
	j.mu.Lock()
	pair := j.pairs[c.FileIndex]
	j.mu.Unlock()

	f, err := j.fs.OpenFile(pair.Local, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", pair.Local, err)
	}
	defer f.Close()

	// A zero-length chunk only has to materialize the empty file.
	if c.Length == 0 {
		return nil
	}

	r, err := j.store.NewReader(ctx, pair.Remote, c.Offset, c.Length)
	if err != nil {
		return fmt.Errorf("read %s: %w", pair.Remote, err)
	}
	defer r.Close()

	if _, err := f.Seek(c.Offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", pair.Local, err)
	}

	buf := j.buffers.Get()
	defer j.buffers.Put(buf)
	n, err := io.CopyBuffer(f, r, buf)
	if err != nil {
		return fmt.Errorf("write %s: %w", pair.Local, err)
	}
	if n != c.Length {
		return fmt.Errorf("write %s: short chunk: got %d bytes, want %d", pair.Local, n, c.Length)
	}
	return nil
}
