package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
)

// FilePair is a matched (remote path, local path) mapping for one file to be
// transferred. Size is the source file's byte length, captured at plan time.
type FilePair struct {
	Remote string `json:"remote"`
	Local  string `json:"local"`
	Size   int64  `json:"size"`
}

// source is the read-only tree view path expansion runs against. It is
// satisfied by both the remote store and the local filesystem so a single
// expansion algorithm serves downloads and uploads.
type source interface {
	stat(name string) (Entry, error)
	// children returns the immediate children of a directory, sorted by name.
	children(name string) ([]Entry, error)
}

type storeSource struct {
	ctx   context.Context
	store Store
}

func (s storeSource) stat(name string) (Entry, error) {
	return s.store.Stat(s.ctx, name)
}

func (s storeSource) children(name string) ([]Entry, error) {
	entries, err := s.store.List(s.ctx, name)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

type fsSource struct {
	fs billy.Filesystem
}

func (s fsSource) stat(name string) (Entry, error) {
	fi, err := s.fs.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, fmt.Errorf("%s: %w", name, ErrNotExist)
		}
		return Entry{}, err
	}
	return Entry{Path: name, Size: fi.Size(), Dir: fi.IsDir()}, nil
}

func (s fsSource) children(name string) ([]Entry, error) {
	infos, err := s.fs.ReadDir(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotExist)
		}
		return nil, err
	}
	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, Entry{
			Path: path.Join(name, fi.Name()),
			Size: fi.Size(),
			Dir:  fi.IsDir(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// specKind classifies a source specification.
type specKind int

const (
	specFile specKind = iota
	specDir
	specGlob
)

// hasWildcard reports whether a path segment contains glob metacharacters.
func hasWildcard(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// normPath cleans a slash-separated path. The empty string denotes the root.
func normPath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// expandSource resolves a source specification into the matched files plus
// each file's path relative to the spec's root. Matching zero files is
// ErrNotFound: an empty job is almost always a misspelled spec, so it is
// surfaced rather than silently producing a no-op transfer.
func expandSource(src source, spec string) (specKind, []Entry, []string, error) {
	spec = normPath(spec)

	if hasWildcard(spec) {
		files, rels, err := matchGlob(src, spec)
		if err != nil {
			return specGlob, nil, nil, err
		}
		if len(files) == 0 {
			return specGlob, nil, nil, fmt.Errorf("%s: %w", spec, ErrNotFound)
		}
		return specGlob, files, rels, nil
	}

	e, err := src.stat(spec)
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return specFile, nil, nil, fmt.Errorf("%s: %w", spec, ErrNotFound)
		}
		return specFile, nil, nil, err
	}

	if !e.Dir {
		return specFile, []Entry{e}, []string{path.Base(spec)}, nil
	}

	files, rels, err := walkFiles(src, spec)
	if err != nil {
		return specDir, nil, nil, err
	}
	return specDir, files, rels, nil
}

// walkFiles enumerates every file beneath root depth-first, children visited
// in lexicographic order. The result is sorted by relative path so job
// fingerprints are stable regardless of enumeration details.
func walkFiles(src source, root string) ([]Entry, []string, error) {
	var files []Entry
	var rels []string

	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		entries, err := src.children(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			name := path.Base(e.Path)
			if e.Dir {
				if err := walk(e.Path, path.Join(rel, name)); err != nil {
					return err
				}
				continue
			}
			files = append(files, e)
			rels = append(rels, path.Join(rel, name))
		}
		return nil
	}
	if err := walk(root, ""); err != nil {
		return nil, nil, err
	}

	sortByRel(files, rels)
	return files, rels, nil
}

// matchGlob expands a wildcard specification segment by segment. Segments
// containing metacharacters are matched with path.Match against the entries
// at that level; literal segments must match exactly. Only files are matched
// by the final segment. Relative paths are taken from the first wildcard
// segment onward.
func matchGlob(src source, pattern string) ([]Entry, []string, error) {
	segs := strings.Split(pattern, "/")

	// Literal prefix segments anchor the search root.
	first := 0
	for first < len(segs) && !hasWildcard(segs[first]) {
		first++
	}
	base := path.Join(segs[:first]...)

	type candidate struct {
		dir string
		rel string
	}
	frontier := []candidate{{dir: base}}

	var files []Entry
	var rels []string

	for i := first; i < len(segs); i++ {
		seg := segs[i]
		last := i == len(segs)-1
		var next []candidate

		for _, c := range frontier {
			if !hasWildcard(seg) {
				p := path.Join(c.dir, seg)
				e, err := src.stat(p)
				if err != nil {
					if errors.Is(err, ErrNotExist) {
						continue
					}
					return nil, nil, err
				}
				rel := path.Join(c.rel, seg)
				if last {
					if !e.Dir {
						files = append(files, e)
						rels = append(rels, rel)
					}
				} else if e.Dir {
					next = append(next, candidate{dir: p, rel: rel})
				}
				continue
			}

			entries, err := src.children(c.dir)
			if err != nil {
				if errors.Is(err, ErrNotExist) {
					continue
				}
				return nil, nil, err
			}
			for _, e := range entries {
				name := path.Base(e.Path)
				ok, err := path.Match(seg, name)
				if err != nil {
					return nil, nil, fmt.Errorf("bad pattern %q: %w", seg, err)
				}
				if !ok {
					continue
				}
				rel := path.Join(c.rel, name)
				if last {
					if !e.Dir {
						files = append(files, e)
						rels = append(rels, rel)
					}
				} else if e.Dir {
					next = append(next, candidate{dir: e.Path, rel: rel})
				}
			}
		}
		frontier = next
	}

	sortByRel(files, rels)
	return files, rels, nil
}

// sortByRel sorts files and rels together, lexicographically by relative path.
func sortByRel(files []Entry, rels []string) {
	idx := make([]int, len(rels))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return rels[idx[i]] < rels[idx[j]] })

	sortedFiles := make([]Entry, len(files))
	sortedRels := make([]string, len(rels))
	for i, k := range idx {
		sortedFiles[i] = files[k]
		sortedRels[i] = rels[k]
	}
	copy(files, sortedFiles)
	copy(rels, sortedRels)
}
