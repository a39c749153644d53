// Package vfs derives a believable, fully synthetic directory tree from a
// seed. Listings, metadata and file contents are pure functions of
// (seed, path): the same query always yields the same answer, no real file
// I/O happens anywhere, and depth and entry counts are capped so crafted
// deep paths cannot exhaust resources.
package vfs

import (
	"errors"
	"hash/fnv"
	"math/rand"
	"path"
	"sort"
	"strings"
	"time"
)

// ErrNotFound marks a path with no corresponding virtual entry.
var ErrNotFound = errors.New("no such virtual entry")

// Entry is the metadata of one virtual file or directory. Entries are
// derived on demand and never persisted.
type Entry struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
	Mode    string // ls-style permission string
}

// Options bound the generated tree.
type Options struct {
	MaxDepth   int // directories below this depth do not exist
	MaxEntries int // cap on entries returned per listing
}

// DefaultOptions mirror a small office file server.
var DefaultOptions = Options{
	MaxDepth:   6,
	MaxEntries: 24,
}

// FS is the deterministic virtual filesystem. It is immutable and safe for
// concurrent use by any number of sessions.
type FS struct {
	seed int64
	opts Options
}

// New creates a virtual filesystem for the given seed.
func New(seed int64, opts Options) *FS {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultOptions.MaxDepth
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultOptions.MaxEntries
	}
	return &FS{seed: seed, opts: opts}
}

var dirNames = []string{
	"documents", "pictures", "backup", "invoices", "private", "projects",
	"archive", "reports", "clients", "scans", "exports", "shared",
	"accounting", "contracts", "upload", "old",
}

var fileStems = []string{
	"invoice", "report", "scan", "backup", "notes", "summary", "roadmap",
	"contract", "draft", "photo", "statement", "inventory", "payroll",
	"offer", "minutes", "overview",
}

var fileExts = []string{
	".pdf", ".xlsx", ".docx", ".txt", ".jpg", ".zip", ".csv", ".odt",
}

// List returns the ordered entries of the directory at p, or ErrNotFound if
// no such directory exists in the virtual tree.
func (f *FS) List(p string) ([]Entry, error) {
	p = Clean(p)
	if !f.dirExists(p) {
		return nil, ErrNotFound
	}
	return f.generate(p), nil
}

// Stat returns the metadata for the entry at p, or ErrNotFound.
func (f *FS) Stat(p string) (*Entry, error) {
	p = Clean(p)
	if p == "/" {
		root := f.dirEntry("/", f.rng("/"))
		return &root, nil
	}
	if !f.dirExists(path.Dir(p)) {
		return nil, ErrNotFound
	}
	name := path.Base(p)
	for _, e := range f.generate(path.Dir(p)) {
		if e.Name == name {
			entry := e
			return &entry, nil
		}
	}
	return nil, ErrNotFound
}

// dirExists walks the path from the root, checking each component against
// its parent's generated listing. Depth beyond the cap does not exist.
func (f *FS) dirExists(p string) bool {
	if p == "/" {
		return true
	}
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if len(segments) > f.opts.MaxDepth {
		return false
	}
	current := "/"
	for _, seg := range segments {
		found := false
		for _, e := range f.generate(current) {
			if e.IsDir && e.Name == seg {
				found = true
				break
			}
		}
		if !found {
			return false
		}
		current = path.Join(current, seg)
	}
	return true
}

// generate produces the listing for an existing directory. Pure function of
// (seed, path).
func (f *FS) generate(p string) []Entry {
	rng := f.rng(p)
	depth := pathDepth(p)

	var entries []Entry

	// Subdirectories thin out with depth but every directory above the cap
	// keeps at least one, so the tree reaches MaxDepth regardless of seed.
	if depth < f.opts.MaxDepth {
		nDirs := 1 + rng.Intn(3-min(depth, 2))
		if depth == 0 {
			nDirs += 2
		}
		for _, name := range pick(rng, dirNames, nDirs) {
			entries = append(entries, f.dirEntry(path.Join(p, name), rng))
		}
	}

	nFiles := 2 + rng.Intn(6)
	stems := pick(rng, fileStems, nFiles)
	for _, stem := range stems {
		name := stem + numberSuffix(rng) + fileExts[rng.Intn(len(fileExts))]
		entries = append(entries, Entry{
			Name:    name,
			Path:    path.Join(p, name),
			Size:    fileSize(rng),
			ModTime: modTime(rng),
			IsDir:   false,
			Mode:    "-rw-r--r--",
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	if len(entries) > f.opts.MaxEntries {
		entries = entries[:f.opts.MaxEntries]
	}
	return entries
}

func (f *FS) dirEntry(p string, rng *rand.Rand) Entry {
	return Entry{
		Name:    path.Base(p),
		Path:    p,
		Size:    4096,
		ModTime: modTime(rng),
		IsDir:   true,
		Mode:    "drwxr-xr-x",
	}
}

// rng derives a PRNG from the seed and the normalized path.
func (f *FS) rng(p string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(p))
	return rand.New(rand.NewSource(f.seed ^ int64(h.Sum64())))
}

// Clean normalizes a virtual path to a rooted, slash-separated form.
func Clean(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func pathDepth(p string) int {
	if p == "/" {
		return 0
	}
	return strings.Count(p, "/")
}

// pick selects n distinct names from pool, deterministically per rng.
func pick(rng *rand.Rand, pool []string, n int) []string {
	if n > len(pool) {
		n = len(pool)
	}
	idx := rng.Perm(len(pool))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = pool[j]
	}
	return out
}

// numberSuffix sometimes appends a year or counter, the way real office
// shares name their files.
func numberSuffix(rng *rand.Rand) string {
	switch rng.Intn(4) {
	case 0:
		return "_2023"
	case 1:
		return "_2024"
	case 2:
		return "_final"
	default:
		return ""
	}
}

// fileSize skews small with an occasional large archive.
func fileSize(rng *rand.Rand) int64 {
	if rng.Intn(10) == 0 {
		return int64(rng.Intn(900)+100) * 1024 * 1024 // 100MB..1GB
	}
	return int64(rng.Intn(4*1024*1024) + 512)
}

// modTime is derived from the rng alone so listings never move with the
// wall clock. Anchored to a fixed recent epoch, spread over ~10 months.
var modTimeEpoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func modTime(rng *rand.Rand) time.Time {
	return modTimeEpoch.Add(time.Duration(rng.Int63n(int64(300*24*time.Hour)))).Truncate(time.Minute)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
