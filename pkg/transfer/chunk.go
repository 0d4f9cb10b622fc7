package transfer

// ChunkState represents the state of a chunk during transfer.
type ChunkState string

const (
	// ChunkWaiting means the chunk has not been dispatched yet.
	ChunkWaiting ChunkState = "waiting"
	// ChunkInProgress means a worker is currently transferring the chunk.
	ChunkInProgress ChunkState = "in_progress"
	// ChunkFinished means the chunk has been transferred successfully.
	ChunkFinished ChunkState = "finished"
	// ChunkErrored means the chunk failed permanently after exhausting
	// its retry budget.
	ChunkErrored ChunkState = "errored"
)

// Chunk is a contiguous byte range of one file, the unit of work and the
// unit of resumability. Chunks of a file are contiguous, non-overlapping,
// and their lengths sum to the file size.
type Chunk struct {
	FileIndex int        `json:"file"`
	Index     int        `json:"index"`
	Offset    int64      `json:"offset"`
	Length    int64      `json:"length"`
	State     ChunkState `json:"state"`
	Retries   int        `json:"retries,omitempty"`
}

// planChunks partitions a file of the given size into chunk ranges. The last
// chunk holds the remainder. A zero-length file yields exactly one zero-length
// chunk so empty files are still represented and created at the destination.
func planChunks(fileIndex int, size, chunkSize int64) []*Chunk {
	if size == 0 {
		return []*Chunk{{FileIndex: fileIndex, State: ChunkWaiting}}
	}

	n := int((size + chunkSize - 1) / chunkSize)
	chunks := make([]*Chunk, 0, n)
	for i := 0; i < n; i++ {
		offset := int64(i) * chunkSize
		length := chunkSize
		if offset+length > size {
			length = size - offset
		}
		chunks = append(chunks, &Chunk{
			FileIndex: fileIndex,
			Index:     i,
			Offset:    offset,
			Length:    length,
			State:     ChunkWaiting,
		})
	}
	return chunks
}
