// Package transfer is a resumable, multi-threaded bulk transfer engine that
// moves data between a local filesystem and a remote hierarchical store, in
// either direction, across single files, directory trees or wildcard-matched
// file sets.
//
// # Model
//
// Files are split into independently transferable byte-range [Chunk]s and a
// bounded worker pool drains them. Chunks of one file partition it exactly
// and are disjoint, so workers never contend on destination bytes. Download
// writes are positional; uploads stage every chunk as a uniquely named
// temporary object and concatenate the parts into the final object once all
// of a file's chunks are finished, so readers never observe a partial
// destination object.
//
// # Usage
//
//	job, err := transfer.Download(ctx, store, localFS, "data/2024", "/srv/mirror",
//	    transfer.WithThreads(16),
//	    transfer.WithChunkSize(256*1024*1024),
//	    transfer.WithRegistry(reg),
//	)
//
// Pass [WithPlanOnly] to inspect the resolved file pairs or the job
// fingerprint without starting the transfer, then call [Job.Run].
//
// # Resume
//
// Job state is keyed by a deterministic fingerprint over the job's
// configuration and its canonically ordered file pairs. With a [Registry]
// configured, state is persisted periodically and on completion the entry is
// removed. After an interruption, [Resume] rebuilds the job from the
// registry and re-queues only chunks not yet finished.
//
// # Cancellation
//
// Cancellation is cooperative and coarse-grained: a cancelled context stops
// new chunk dispatch while chunks already in flight run to completion.
// Chunks still waiting stay waiting and the job remains resumable.
//
// # Collaborators
//
// The engine performs no network or disk I/O of its own: it consumes a
// [Store] for the remote side and a billy.Filesystem for the local side.
// [BlobStore] adapts any gocloud.dev blob bucket (S3, GCS, in-memory) into a
// Store.
package transfer
