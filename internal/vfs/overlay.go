package vfs

import (
	"path"
	"sort"
	"strings"
	"time"
)

// Overlay holds one session's mutations on top of the derived tree:
// uploads, created directories, deletions and renames. The derived model
// itself never changes; the overlay is consulted first and discarded with
// the session. An Overlay belongs to a single session and is not shared.
type Overlay struct {
	deleted map[string]bool
	entries map[string]Entry // created or renamed entries by path
}

// NewOverlay creates an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{
		deleted: make(map[string]bool),
		entries: make(map[string]Entry),
	}
}

// AddFile records an uploaded file so later listings show it.
func (o *Overlay) AddFile(p string, size int64, mod time.Time) {
	p = Clean(p)
	delete(o.deleted, p)
	o.entries[p] = Entry{
		Name:    path.Base(p),
		Path:    p,
		Size:    size,
		ModTime: mod,
		Mode:    "-rw-r--r--",
	}
}

// AddDir records a directory created via MKD.
func (o *Overlay) AddDir(p string, mod time.Time) {
	p = Clean(p)
	delete(o.deleted, p)
	o.entries[p] = Entry{
		Name:    path.Base(p),
		Path:    p,
		Size:    4096,
		ModTime: mod,
		IsDir:   true,
		Mode:    "drwxr-xr-x",
	}
}

// Delete hides an entry (and everything under it) from the session's view.
func (o *Overlay) Delete(p string) {
	p = Clean(p)
	delete(o.entries, p)
	prefix := p + "/"
	for child := range o.entries {
		if strings.HasPrefix(child, prefix) {
			delete(o.entries, child)
		}
	}
	o.deleted[p] = true
}

// Rename moves entry (with its metadata) from oldPath to newPath.
func (o *Overlay) Rename(oldPath, newPath string, entry Entry) {
	o.Delete(oldPath)
	entry.Name = path.Base(Clean(newPath))
	entry.Path = Clean(newPath)
	delete(o.deleted, entry.Path)
	o.entries[entry.Path] = entry
}

// Deleted reports whether p or one of its ancestors was deleted.
func (o *Overlay) Deleted(p string) bool {
	p = Clean(p)
	for {
		if o.deleted[p] {
			return true
		}
		if p == "/" {
			return false
		}
		p = path.Dir(p)
	}
}

// Lookup returns the overlay entry at p, if any.
func (o *Overlay) Lookup(p string) (Entry, bool) {
	e, ok := o.entries[Clean(p)]
	return e, ok
}

// Merge applies the overlay to a base listing of dir: hidden entries are
// dropped, overlay children are added, and the result stays name-ordered.
func (o *Overlay) Merge(dir string, base []Entry) []Entry {
	dir = Clean(dir)

	merged := base[:0:0]
	for _, e := range base {
		if o.Deleted(e.Path) {
			continue
		}
		if _, shadowed := o.entries[e.Path]; shadowed {
			continue
		}
		merged = append(merged, e)
	}
	for p, e := range o.entries {
		if path.Dir(p) == dir && !o.Deleted(p) {
			merged = append(merged, e)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return merged
}
