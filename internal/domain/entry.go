package domain

import (
	"path"
	"time"
)

// Entry is one element of a remote listing response
type Entry struct {
	// ParentPath is the remote directory containing the entry ("" for the listing root)
	ParentPath string

	// Name is the last path element
	Name string

	// FileID is the remote identifier, stable across renames within an account
	FileID string

	// ETag is the remote version stamp
	ETag string

	Size    int64
	ModTime time.Time
	IsDir   bool

	// Permissions is the remote permission string (e.g. "RGDNVCK")
	Permissions string

	Encrypted bool

	// RichWorkspace is an optional rich-content marker for directories
	RichWorkspace string

	// Favorite is the remote favorite flag, when the backend reports one
	Favorite bool
}

// Path returns the full remote path of the entry
func (e Entry) Path() string {
	return JoinPath(e.ParentPath, e.Name)
}

// MetadataRecord is the cached representation of an Entry
type MetadataRecord struct {
	Account    string    `json:"account"`
	FileID     string    `json:"file_id"`
	ParentPath string    `json:"parent_path"`
	Name       string    `json:"name"`
	ETag       string    `json:"etag"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mod_time"`
	IsDir      bool      `json:"is_dir"`

	Permissions   string `json:"permissions,omitempty"`
	Encrypted     bool   `json:"encrypted,omitempty"`
	RichWorkspace string `json:"rich_workspace,omitempty"`

	// Session is the active transfer session tag, empty when idle
	Session string `json:"session,omitempty"`

	Favorite bool     `json:"favorite,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Path returns the full remote path of the record
func (r MetadataRecord) Path() string {
	return JoinPath(r.ParentPath, r.Name)
}

// InWorkingSet reports whether the record belongs to the working set view
func (r MetadataRecord) InWorkingSet() bool {
	return r.Favorite || len(r.Tags) > 0
}

// VisibleTo reports whether the record may be delivered to an enumerator
// running under the given background session. Encrypted records and records
// busy in another session are hidden.
func (r MetadataRecord) VisibleTo(session string) bool {
	if r.Encrypted {
		return false
	}
	return r.Session == "" || r.Session == session
}

// NewRecord converts a remote entry into a record for the given account.
// Local-only state (session tag, tags) is carried over from prev when present.
func NewRecord(account string, e Entry, prev *MetadataRecord) MetadataRecord {
	rec := MetadataRecord{
		Account:       account,
		FileID:        e.FileID,
		ParentPath:    CleanPath(e.ParentPath),
		Name:          e.Name,
		ETag:          e.ETag,
		Size:          e.Size,
		ModTime:       e.ModTime.UTC(),
		IsDir:         e.IsDir,
		Permissions:   e.Permissions,
		Encrypted:     e.Encrypted,
		RichWorkspace: e.RichWorkspace,
		Favorite:      e.Favorite,
	}
	if prev != nil {
		rec.Session = prev.Session
		if len(prev.Tags) > 0 {
			rec.Tags = append([]string(nil), prev.Tags...)
		}
	}
	return rec
}

// DirectoryState records the last merged etag of one container path
type DirectoryState struct {
	Account   string    `json:"account"`
	Path      string    `json:"path"`
	ETag      string    `json:"etag"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CleanPath normalizes a remote path to a rooted, slash separated form
func CleanPath(p string) string {
	if p == "" || p == "." {
		return "/"
	}
	return path.Clean("/" + p)
}

// JoinPath joins a parent path and a name
func JoinPath(parent, name string) string {
	if name == "" {
		return CleanPath(parent)
	}
	return path.Join(CleanPath(parent), name)
}
