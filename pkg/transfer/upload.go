package transfer

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"

	"github.com/sreekanth370/lakeferry/internal/bufpool"
)

// Upload plans and runs a transfer from the local filesystem to the remote
// store. src is a local path, directory or wildcard pattern; dest is a
// remote file or directory. Intermediate remote directories are created at
// plan time. Unless WithPlanOnly is given, the job runs immediately; the
// returned job is valid for inspection and resume even when Run failed.
//
// Uploads are two-phase: every chunk goes to a uniquely named temporary
// object first, and once all chunks of a file are uploaded the parts are
// concatenated in chunk-index order into the final object. The final object
// is therefore never observable in a partially written state.
func Upload(ctx context.Context, store Store, localFS billy.Filesystem, src, dest string, options ...Option) (*Job, error) {
	opts := defaultOptions()
	for _, opt := range options {
		opt(&opts)
	}
	opts.clamp()

	kind, files, rels, err := expandSource(fsSource{fs: localFS}, src)
	if err != nil {
		return nil, err
	}

	dest = normPath(dest)
	destIsDir := dest == ""
	if !destIsDir {
		if e, err := store.Stat(ctx, dest); err == nil {
			destIsDir = e.Dir
		}
	}

	pairs := make([]FilePair, len(files))
	for i, f := range files {
		remote := dest
		if kind != specFile || destIsDir {
			remote = path.Join(dest, rels[i])
		}
		pairs[i] = FilePair{Remote: remote, Local: f.Path, Size: f.Size}
	}

	made := map[string]bool{}
	for _, p := range pairs {
		dir := path.Dir(p.Remote)
		if dir == "." || dir == "/" || made[dir] {
			continue
		}
		if err := store.Mkdir(ctx, dir); err != nil {
			return nil, fmt.Errorf("create remote dir %s: %w", dir, err)
		}
		made[dir] = true
	}

	j := &Job{
		direction: DirectionUpload,
		src:       src,
		dest:      dest,
		opts:      opts,
		store:     store,
		fs:        localFS,
		token:     uuid.NewString(),
		buffers:   bufpool.New(opts.BufferSize),
		pairs:     pairs,
	}
	j.files = make([]FileState, len(pairs))
	for i, p := range pairs {
		chunks := planChunks(i, p.Size, opts.ChunkSize)
		j.chunks = append(j.chunks, chunks...)
		j.files[i] = FileState{
			Stage: StageCollecting,
			Parts: partNames(p.Remote, j.token, len(chunks)),
		}
	}
	j.fileChunks = groupChunks(pairs, j.chunks)
	j.remaining = len(j.chunks)
	j.fp = computeFingerprint(DirectionUpload, src, dest, opts.ChunkSize, pairs)

	if opts.PlanOnly {
		return j, nil
	}
	return j, j.Run(ctx)
}

// partNames builds the temporary object names for one file's chunks. Names
// are deterministic from the job token and chunk index so a resumed job
// addresses the same parts.
func partNames(remote, token string, n int) []string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s/%s-%06d", partsDir(remote), token, i)
	}
	return parts
}

// partsDir is the staging prefix for one destination object's parts.
func partsDir(remote string) string {
	return remote + ".parts"
}

// uploadChunk transfers one chunk's byte range from the local file to its
// temporary part object. A failed attempt may leave a partial part behind;
// the retry overwrites it under the same name.
func (j *Job) uploadChunk(ctx context.Context, c *Chunk) error {
	j.mu.Lock()
	pair := j.pairs[c.FileIndex]
	part := j.files[c.FileIndex].Parts[c.Index]
	j.mu.Unlock()

	f, err := j.fs.Open(pair.Local)
	if err != nil {
		return fmt.Errorf("open %s: %w", pair.Local, err)
	}
	defer f.Close()

	w, err := j.store.NewWriter(ctx, part)
	if err != nil {
		return fmt.Errorf("create part %s: %w", part, err)
	}

	buf := j.buffers.Get()
	defer j.buffers.Put(buf)
	n, err := io.CopyBuffer(w, io.NewSectionReader(f, c.Offset, c.Length), buf)
	if err != nil {
		w.Close()
		return fmt.Errorf("upload part %s: %w", part, err)
	}
	if n != c.Length {
		w.Close()
		return fmt.Errorf("upload part %s: short read: got %d bytes, want %d", part, n, c.Length)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit part %s: %w", part, err)
	}
	return nil
}

// mergeFile concatenates a file's uploaded parts, in chunk-index order, into
// the final destination object, then removes the staging prefix. On failure
// the parts are preserved and the file stays in StageMerging so a resumed
// run retries only the merge.
func (j *Job) mergeFile(ctx context.Context, idx int) {
	j.mu.Lock()
	pair := j.pairs[idx]
	parts := append([]string(nil), j.files[idx].Parts...)
	j.mu.Unlock()

	if err := j.store.Concat(ctx, pair.Remote, parts); err != nil {
		j.mu.Lock()
		j.errs = append(j.errs, &MergeError{Path: pair.Remote, Err: err})
		if j.mergeFailed == nil {
			j.mergeFailed = map[int]bool{}
		}
		j.mergeFailed[idx] = true
		j.mu.Unlock()
		return
	}

	// The destination is complete; part cleanup is best effort.
	_ = j.store.Remove(ctx, partsDir(pair.Remote), true)

	j.mu.Lock()
	j.files[idx].Stage = StageDone
	j.files[idx].Parts = nil
	j.mu.Unlock()
}

// mergeSettled merges every file whose chunks are all finished but whose
// final object has not been written yet. This runs after the pool drains and
// covers resumed jobs that were interrupted between upload and merge. Files
// whose merge already failed during this run are skipped, so each failure is
// reported once; the next Run retries them.
func (j *Job) mergeSettled(ctx context.Context) {
	j.mu.Lock()
	var pending []int
	for i := range j.files {
		if j.files[i].Stage == StageDone || j.mergeFailed[i] {
			continue
		}
		if j.fileSettled(i) {
			j.files[i].Stage = StageMerging
			pending = append(pending, i)
		}
	}
	j.mu.Unlock()

	for _, idx := range pending {
		j.mergeFile(ctx, idx)
	}
}
