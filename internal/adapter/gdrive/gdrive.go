package gdrive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Ning0612/Syncenum/internal/adapter"
	"github.com/Ning0612/Syncenum/internal/domain"
)

const (
	// MimeTypeFolder is the MIME type for Google Drive folders
	MimeTypeFolder = "application/vnd.google-apps.folder"
	// PageSize is the number of files to fetch per request
	PageSize = 100

	fileFields = "id, name, mimeType, size, modifiedTime, md5Checksum, version, starred, " +
		"capabilities(canEdit, canDelete, canRename, canAddChildren, canDownload)"
)

// Lister implements adapter.Lister for Google Drive
type Lister struct {
	service *drive.Service
	root    string   // Root folder path in Drive (e.g., "/Syncenum/alice")
	cache   *idCache // Cache for path -> ID mapping
}

var _ adapter.Lister = (*Lister)(nil)

// idCache caches folder ID lookups with thread-safe access
type idCache struct {
	mu    sync.RWMutex
	paths map[string]string // path -> folder ID
}

func newIDCache() *idCache {
	return &idCache{
		paths: make(map[string]string),
	}
}

func (c *idCache) get(path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.paths[path]
	return id, ok
}

func (c *idCache) set(path, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths[path] = id
}

// New creates a Drive lister using the stored OAuth token
func New(ctx context.Context, clientID, clientSecret, tokenPath, root string) (*Lister, error) {
	auth := NewAuthenticator(clientID, clientSecret, tokenPath)

	token, err := auth.Token(ctx)
	if err != nil {
		return nil, err
	}

	// 長時間執行時 refresh 後的 token 會寫回檔案
	client := oauth2.NewClient(ctx, auth.TokenSource(ctx, token))
	service, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return NewWithService(ctx, service, root)
}

// NewWithService creates a lister over an existing Drive service
func NewWithService(ctx context.Context, service *drive.Service, root string) (*Lister, error) {
	l := &Lister{
		service: service,
		root:    normalizeRoot(root),
		cache:   newIDCache(),
	}

	rootID, err := l.getFileID(ctx, l.root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root folder: %w", err)
	}
	l.cache.set(l.root, rootID)
	return l, nil
}

// normalizeRoot normalizes the root path
func normalizeRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" || root == "/" {
		return ""
	}
	// Ensure leading slash, no trailing slash
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	return strings.TrimSuffix(root, "/")
}

// List implements adapter.Lister
func (l *Lister) List(ctx context.Context, remotePath string, depth adapter.Depth) ([]domain.Entry, error) {
	remotePath = domain.CleanPath(remotePath)
	folderID, err := l.getFileID(ctx, l.drivePath(remotePath))
	if err != nil {
		return nil, err
	}

	folder, err := l.service.Files.Get(folderID).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return nil, l.mapError(err)
	}
	if folder.MimeType != MimeTypeFolder {
		return nil, domain.ErrNotDirectory
	}

	container := entryFromDrive(path.Dir(remotePath), folder)
	if remotePath == "/" {
		container.ParentPath, container.Name = "/", ""
	}

	result := []domain.Entry{container}
	if depth == adapter.DepthChildren {
		children, err := l.listChildren(ctx, folderID, remotePath, 0, 0)
		if err != nil {
			return nil, err
		}
		result = append(result, children...)
	}
	return result, nil
}

// ListPage implements adapter.Lister
func (l *Lister) ListPage(ctx context.Context, remotePath string, offset, limit int) ([]domain.Entry, error) {
	remotePath = domain.CleanPath(remotePath)
	folderID, err := l.getFileID(ctx, l.drivePath(remotePath))
	if err != nil {
		return nil, err
	}
	return l.listChildren(ctx, folderID, remotePath, offset, limit)
}

// listChildren pages through a folder ordered by name, skipping offset entries
// and stopping after limit (0 = all)
func (l *Lister) listChildren(ctx context.Context, folderID, parent string, offset, limit int) ([]domain.Entry, error) {
	var result []domain.Entry
	pageToken := ""
	skipped := 0

	for {
		query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQueryString(folderID))
		call := l.service.Files.List().
			Q(query).
			OrderBy("name").
			PageSize(PageSize).
			Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")"))

		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		fileList, err := call.Context(ctx).Do()
		if err != nil {
			return nil, l.mapError(err)
		}

		for _, f := range fileList.Files {
			if skipped < offset {
				skipped++
				continue
			}
			e := entryFromDrive(parent, f)
			if e.IsDir {
				l.cache.set(l.drivePath(e.Path()), f.Id)
			}
			result = append(result, e)
			if limit > 0 && len(result) >= limit {
				return result, nil
			}
		}

		pageToken = fileList.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return result, nil
}

// Close releases any resources
func (l *Lister) Close() error {
	return nil
}

// Root returns the root path of this lister
func (l *Lister) Root() string {
	return l.root
}

// drivePath maps a remote path below the lister root to an absolute Drive path
func (l *Lister) drivePath(remotePath string) string {
	clean := domain.CleanPath(remotePath)
	if clean == "/" {
		return l.root
	}
	return l.root + clean
}

// escapeQueryString escapes special characters in Drive query strings
func escapeQueryString(s string) string {
	// Escape backslash first, then single quote
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "'", "\\'")
	return s
}

// getFileID returns the ID of a file or folder at the given Drive path
func (l *Lister) getFileID(ctx context.Context, fullPath string) (string, error) {
	if id, ok := l.cache.get(fullPath); ok {
		return id, nil
	}

	// Empty path means root of Drive
	if fullPath == "" {
		return "root", nil
	}

	// Walk the path from root
	parts := strings.Split(strings.TrimPrefix(fullPath, "/"), "/")
	currentID := "root"

	for i, part := range parts {
		if part == "" {
			continue
		}

		partialPath := "/" + strings.Join(parts[:i+1], "/")
		if id, ok := l.cache.get(partialPath); ok {
			currentID = id
			continue
		}

		// Escape single quotes to prevent query injection
		query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
			escapeQueryString(part), currentID)
		fileList, err := l.service.Files.List().
			Q(query).
			PageSize(1).
			Fields("files(id, mimeType)").
			Context(ctx).Do()
		if err != nil {
			return "", l.mapError(err)
		}

		if len(fileList.Files) == 0 {
			return "", domain.ErrNotFound
		}

		currentID = fileList.Files[0].Id
		if fileList.Files[0].MimeType == MimeTypeFolder {
			l.cache.set(partialPath, currentID)
		}
	}

	return currentID, nil
}

// entryFromDrive converts a Drive file to domain.Entry
func entryFromDrive(parentPath string, file *drive.File) domain.Entry {
	modTime := time.Time{}
	if file.ModifiedTime != "" {
		modTime, _ = time.Parse(time.RFC3339, file.ModifiedTime)
	}

	isDir := file.MimeType == MimeTypeFolder

	// Folder versions advance when children change; files prefer content hashes
	tag := strconv.FormatInt(file.Version, 10)
	if !isDir && file.Md5Checksum != "" {
		tag = file.Md5Checksum + ":" + tag
	}

	return domain.Entry{
		ParentPath:  domain.CleanPath(parentPath),
		Name:        file.Name,
		FileID:      file.Id,
		ETag:        tag,
		Size:        file.Size,
		ModTime:     modTime,
		IsDir:       isDir,
		Permissions: permissions(file.Capabilities),
		Favorite:    file.Starred,
	}
}

// permissions renders Drive capabilities as a WebDAV style permission string
func permissions(c *drive.FileCapabilities) string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	if c.CanDownload {
		b.WriteString("G")
	}
	if c.CanDelete {
		b.WriteString("D")
	}
	if c.CanRename {
		b.WriteString("NV")
	}
	if c.CanEdit {
		b.WriteString("W")
	}
	if c.CanAddChildren {
		b.WriteString("CK")
	}
	return b.String()
}

// mapError converts Google API errors to domain errors
func (l *Lister) mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 404:
			return domain.ErrNotFound
		case apiErr.Code == 429 || (apiErr.Code == 403 && isRateLimitReason(apiErr)):
			return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
		case apiErr.Code == 403:
			return domain.ErrPermissionDenied
		case apiErr.Code >= 500:
			return fmt.Errorf("%w: %w", domain.ErrNetworkError, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}

	// Fallback to string matching for non-googleapi errors
	if strings.Contains(err.Error(), "notFound") {
		return domain.ErrNotFound
	}

	return err
}

func isRateLimitReason(apiErr *googleapi.Error) bool {
	for _, e := range apiErr.Errors {
		if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}
