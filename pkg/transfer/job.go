package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"

	"github.com/sreekanth370/lakeferry/internal/bufpool"
)

// Direction identifies which way a job moves bytes.
type Direction string

const (
	// DirectionDownload moves data from the remote store to the local
	// filesystem.
	DirectionDownload Direction = "download"
	// DirectionUpload moves data from the local filesystem to the remote
	// store.
	DirectionUpload Direction = "upload"
)

// FileStage tracks the upload merge state machine for one file.
type FileStage string

const (
	// StageCollecting means chunk parts are still being uploaded.
	StageCollecting FileStage = "collecting"
	// StageMerging means all parts are uploaded and the merge into the
	// final object is pending or failed.
	StageMerging FileStage = "merging"
	// StageDone means the final object exists and the parts are removed.
	StageDone FileStage = "done"
)

// FileState is the per-file upload state persisted for merge recovery.
// Parts are the temporary object names in chunk-index order; they are named
// deterministically from the job token so a resumed job finds them again.
type FileState struct {
	Stage FileStage `json:"stage"`
	Parts []string  `json:"parts,omitempty"`
}

// Options configures a transfer job.
type Options struct {
	// Threads is the number of parallel transfer workers.
	Threads int

	// ChunkSize is the size of each transfer chunk in bytes.
	ChunkSize int64

	// BufferSize is the copy buffer size in bytes.
	BufferSize int

	// Retries is the per-chunk attempt budget before a chunk is marked
	// errored.
	Retries int

	// Registry persists job state for cross-process resume. Nil disables
	// persistence.
	Registry *Registry

	// SaveInterval persists state every N completed chunks when a
	// registry is configured.
	SaveInterval int

	// PlanOnly builds the file and chunk plan without starting the
	// transfer.
	PlanOnly bool

	// Progress, if set, is invoked for every chunk that finishes.
	Progress func(*Chunk)
}

// Option is a functional option for configuring a job.
type Option func(*Options)

// WithThreads sets the number of parallel transfer workers.
func WithThreads(n int) Option {
	return func(o *Options) { o.Threads = n }
}

// WithChunkSize sets the size of each transfer chunk.
func WithChunkSize(size int64) Option {
	return func(o *Options) { o.ChunkSize = size }
}

// WithBufferSize sets the copy buffer size.
func WithBufferSize(size int) Option {
	return func(o *Options) { o.BufferSize = size }
}

// WithRetries sets the per-chunk attempt budget.
func WithRetries(n int) Option {
	return func(o *Options) { o.Retries = n }
}

// WithRegistry enables state persistence through reg.
func WithRegistry(reg *Registry) Option {
	return func(o *Options) { o.Registry = reg }
}

// WithSaveInterval sets how often state is persisted (every N completed
// chunks).
func WithSaveInterval(n int) Option {
	return func(o *Options) { o.SaveInterval = n }
}

// WithPlanOnly builds the job without running it, so callers can inspect the
// resolved file lists or the fingerprint before committing resources.
func WithPlanOnly() Option {
	return func(o *Options) { o.PlanOnly = true }
}

// WithProgressFunc registers a callback invoked for every finished chunk.
func WithProgressFunc(fn func(*Chunk)) Option {
	return func(o *Options) { o.Progress = fn }
}

func defaultOptions() Options {
	return Options{
		Threads:      16,
		ChunkSize:    256 * 1024 * 1024,
		BufferSize:   4 * 1024 * 1024,
		Retries:      5,
		SaveInterval: 10,
	}
}

// clamp resets non-positive tunables to their defaults so a bad option
// cannot break chunk planning or the pool.
func (o *Options) clamp() {
	def := defaultOptions()
	if o.Threads <= 0 {
		o.Threads = def.Threads
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = def.ChunkSize
	}
	if o.BufferSize <= 0 {
		o.BufferSize = def.BufferSize
	}
	if o.Retries <= 0 {
		o.Retries = def.Retries
	}
}

// Job is one logical transfer operation: an ordered list of file pairs, a
// chunk table, and the workers that drain it. A job is resumable: chunks
// already finished are never reprocessed, whether the job object is reused
// in-process or reconstructed from the registry.
type Job struct {
	direction Direction
	src       string
	dest      string
	opts      Options
	store     Store
	fs        billy.Filesystem
	token     string
	fp        string
	buffers   *bufpool.Pool

	mu          sync.Mutex
	pairs       []FilePair
	chunks      []*Chunk
	fileChunks  [][]*Chunk
	files       []FileState
	remaining   int
	sinceSave   int
	errs        []error
	mergeFailed map[int]bool
}

// Fingerprint returns the deterministic hash identifying this job's
// configuration, used as the registry key. It is computed over the
// canonically ordered file pairs and does not change as chunks complete.
func (j *Job) Fingerprint() string { return j.fp }

// Direction returns which way the job moves bytes.
func (j *Job) Direction() Direction { return j.direction }

// Remaining returns the number of chunks not yet finished.
func (j *Job) Remaining() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.remaining
}

// Pairs returns the resolved file pairs in plan order.
func (j *Job) Pairs() []FilePair {
	j.mu.Lock()
	defer j.mu.Unlock()
	pairs := make([]FilePair, len(j.pairs))
	copy(pairs, j.pairs)
	return pairs
}

// RemoteFiles returns the remote side of every file pair, in plan order.
func (j *Job) RemoteFiles() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	names := make([]string, len(j.pairs))
	for i, p := range j.pairs {
		names[i] = p.Remote
	}
	return names
}

// LocalFiles returns the local side of every file pair, in plan order.
func (j *Job) LocalFiles() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	names := make([]string, len(j.pairs))
	for i, p := range j.pairs {
		names[i] = p.Local
	}
	return names
}

// TotalBytes returns the summed size of all source files.
func (j *Job) TotalBytes() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	var total int64
	for _, p := range j.pairs {
		total += p.Size
	}
	return total
}

// Run transfers every chunk not yet finished. Errored chunks from a previous
// run are retried afresh. Run returns once the pool drains or ctx is
// cancelled; on cancellation it returns the context error and the job state
// remains valid and resumable. A fully completed job's Run is a no-op.
func (j *Job) Run(ctx context.Context) error {
	j.mu.Lock()
	var pending []*Chunk
	for _, c := range j.chunks {
		if c.State == ChunkFinished {
			continue
		}
		c.State = ChunkWaiting
		c.Retries = 0
		pending = append(pending, c)
	}
	j.errs = nil
	j.mergeFailed = nil
	j.mu.Unlock()

	if len(pending) > 0 {
		runPool(ctx, pending, j.opts.Threads, j.opts.Retries, j.transfer, j.onChunkDone)
	}

	// Covers files whose parts are all uploaded but whose merge failed or
	// was interrupted before it could run.
	if j.direction == DirectionUpload && ctx.Err() == nil {
		j.mergeSettled(context.WithoutCancel(ctx))
	}

	if err := j.persist(); err != nil {
		j.mu.Lock()
		j.errs = append(j.errs, err)
		j.mu.Unlock()
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	j.mu.Lock()
	errs := make([]error, len(j.errs))
	copy(errs, j.errs)
	j.mu.Unlock()
	return errors.Join(errs...)
}

// Save persists or removes this job's registry entry.
func (j *Job) Save(keep bool) error {
	if j.opts.Registry == nil {
		return errors.New("transfer: no registry configured")
	}
	j.mu.Lock()
	rec := j.record()
	j.mu.Unlock()
	return j.opts.Registry.Save(j.fp, rec, keep)
}

// transfer dispatches a chunk to the direction-specific transfer routine.
func (j *Job) transfer(ctx context.Context, c *Chunk) error {
	if j.direction == DirectionUpload {
		return j.uploadChunk(ctx, c)
	}
	return j.downloadChunk(ctx, c)
}

// onChunkDone is invoked by the pool after every terminal chunk transition.
func (j *Job) onChunkDone(ctx context.Context, c *Chunk, err error) {
	mergeIdx := -1
	var snapshot *Record

	j.mu.Lock()
	switch c.State {
	case ChunkFinished:
		j.remaining--
		if j.direction == DirectionUpload &&
			j.files[c.FileIndex].Stage == StageCollecting &&
			j.fileSettled(c.FileIndex) {
			j.files[c.FileIndex].Stage = StageMerging
			mergeIdx = c.FileIndex
		}
	case ChunkErrored:
		j.errs = append(j.errs, &ChunkError{
			File:  j.sourcePath(c.FileIndex),
			Index: c.Index,
			Err:   err,
		})
	}
	if j.opts.Registry != nil && j.opts.SaveInterval > 0 {
		j.sinceSave++
		if j.sinceSave >= j.opts.SaveInterval {
			j.sinceSave = 0
			rec := j.record()
			snapshot = &rec
		}
	}
	j.mu.Unlock()

	if c.State == ChunkFinished && j.opts.Progress != nil {
		j.opts.Progress(c)
	}
	if mergeIdx >= 0 {
		j.mergeFile(ctx, mergeIdx)
	}
	if snapshot != nil {
		// Best effort: lost intermediate saves only cost re-transferred
		// chunks on resume.
		_ = j.opts.Registry.Save(j.fp, *snapshot, true)
	}
}

// fileSettled reports whether every chunk of a file is finished.
// Must be called with j.mu held.
func (j *Job) fileSettled(idx int) bool {
	for _, c := range j.fileChunks[idx] {
		if c.State != ChunkFinished {
			return false
		}
	}
	return true
}

// sourcePath returns the source-side path of a file pair.
// Must be called with j.mu held.
func (j *Job) sourcePath(idx int) string {
	if j.direction == DirectionUpload {
		return j.pairs[idx].Local
	}
	return j.pairs[idx].Remote
}

// record builds the persisted form of the job.
// Must be called with j.mu held.
func (j *Job) record() Record {
	chunks := make([]*Chunk, len(j.chunks))
	for i, c := range j.chunks {
		cc := *c
		chunks[i] = &cc
	}
	pairs := make([]FilePair, len(j.pairs))
	copy(pairs, j.pairs)
	files := make([]FileState, len(j.files))
	for i, f := range j.files {
		files[i] = FileState{Stage: f.Stage, Parts: append([]string(nil), f.Parts...)}
	}
	return Record{
		Direction:  j.direction,
		Source:     j.src,
		Dest:       j.dest,
		Threads:    j.opts.Threads,
		ChunkSize:  j.opts.ChunkSize,
		BufferSize: j.opts.BufferSize,
		Token:      j.token,
		Pairs:      pairs,
		Chunks:     chunks,
		Files:      files,
	}
}

// persist saves or clears the registry entry depending on completion.
func (j *Job) persist() error {
	if j.opts.Registry == nil {
		return nil
	}
	j.mu.Lock()
	complete := j.remaining == 0
	for _, f := range j.files {
		if f.Stage != StageDone {
			complete = false
		}
	}
	rec := j.record()
	j.mu.Unlock()
	return j.opts.Registry.Save(j.fp, rec, !complete)
}

// computeFingerprint hashes a job's configuration. File pairs must already
// be in canonical (relative-path sorted) order; the fingerprint would
// otherwise differ between planning and resume.
func computeFingerprint(direction Direction, src, dest string, chunkSize int64, pairs []FilePair) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%s\n%d\n", direction, src, dest, chunkSize)
	for _, p := range pairs {
		fmt.Fprintf(h, "%s\x00%s\x00%d\n", p.Remote, p.Local, p.Size)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Remaining returns the number of chunks in a persisted record not yet
// finished.
func (r Record) Remaining() int {
	n := 0
	for _, c := range r.Chunks {
		if c.State != ChunkFinished {
			n++
		}
	}
	return n
}

// Resume reconstructs a job from its persisted registry entry. Chunks left
// in progress by an interrupted run are reset to waiting; only chunks not
// finished are re-queued. Unless WithPlanOnly is given, the job runs
// immediately.
func Resume(ctx context.Context, store Store, localFS billy.Filesystem, fingerprint string, reg *Registry, options ...Option) (*Job, error) {
	records, err := reg.Load()
	if err != nil {
		return nil, err
	}
	rec, ok := records[fingerprint]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", fingerprint, ErrNotFound)
	}

	opts := defaultOptions()
	opts.Registry = reg
	if rec.Threads > 0 {
		opts.Threads = rec.Threads
	}
	if rec.BufferSize > 0 {
		opts.BufferSize = rec.BufferSize
	}
	for _, opt := range options {
		opt(&opts)
	}
	opts.clamp()
	// Chunk size is part of the fingerprint and is never overridable.
	opts.ChunkSize = rec.ChunkSize

	j := &Job{
		direction: rec.Direction,
		src:       rec.Source,
		dest:      rec.Dest,
		opts:      opts,
		store:     store,
		fs:        localFS,
		token:     rec.Token,
		fp:        fingerprint,
		buffers:   bufpool.New(opts.BufferSize),
		pairs:     rec.Pairs,
		chunks:    rec.Chunks,
		files:     rec.Files,
	}
	j.fileChunks = groupChunks(rec.Pairs, rec.Chunks)
	for _, c := range j.chunks {
		if c.State == ChunkInProgress {
			c.State = ChunkWaiting
		}
		if c.State != ChunkFinished {
			j.remaining++
		}
	}

	if opts.PlanOnly {
		return j, nil
	}
	return j, j.Run(ctx)
}

// groupChunks indexes a flat chunk table by file.
func groupChunks(pairs []FilePair, chunks []*Chunk) [][]*Chunk {
	grouped := make([][]*Chunk, len(pairs))
	for _, c := range chunks {
		grouped[c.FileIndex] = append(grouped[c.FileIndex], c)
	}
	return grouped
}

// cleanLocal normalizes a local path to slash form.
func cleanLocal(p string) string {
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}
