package transfer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
)

// Record is the persisted form of a job: its configuration, resolved file
// pairs and full chunk table. Records are keyed by fingerprint in the
// registry and carry enough state to resume after a process restart.
type Record struct {
	Direction  Direction   `json:"direction"`
	Source     string      `json:"source"`
	Dest       string      `json:"dest"`
	Threads    int         `json:"threads"`
	ChunkSize  int64       `json:"chunk_size"`
	BufferSize int         `json:"buffer_size,omitempty"`
	Token      string      `json:"token,omitempty"`
	Pairs      []FilePair  `json:"pairs"`
	Chunks     []*Chunk    `json:"chunks"`
	Files      []FileState `json:"files,omitempty"`
	SavedAt    time.Time   `json:"saved_at"`
}

// Registry is the process-wide, file-backed mapping of job fingerprints to
// serialized job state. It is loaded lazily on every access and written
// whole on save; concurrent savers replace entries, not bytes within them.
//
// The registry is an injected collaborator rather than an implicit global so
// tests can point it at a temporary file.
type Registry struct {
	mu   sync.Mutex
	path string
}

// NewRegistry returns a registry backed by the file at path. The file and
// its parent directories are created on first save.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// DefaultRegistryPath returns the per-user registry location.
func DefaultRegistryPath() (string, error) {
	return xdg.DataFile("lakeferry/registry.json")
}

// Load reads the on-disk registry and returns all entries. A missing
// registry file yields an empty map.
func (r *Registry) Load() (map[string]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *Registry) load() (map[string]Record, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}

	records := map[string]Record{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse registry %s: %w", r.path, err)
		}
	}
	return records, nil
}

// Save writes or removes the entry under fingerprint. With keep set the
// record replaces any existing entry; otherwise the entry is removed, and
// removing a non-existent entry is a no-op.
func (r *Registry) Save(fingerprint string, rec Record, keep bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}

	if keep {
		rec.SavedAt = time.Now().UTC()
		records[fingerprint] = rec
	} else {
		delete(records, fingerprint)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}
