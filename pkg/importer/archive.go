package importer

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrArchiveCorrupt is returned for archives that cannot be read as
	// a zip.
	ErrArchiveCorrupt = errors.New("archive is corrupt")
	// ErrUnsafeArchive is returned for archives containing entries that
	// would escape the extraction root. The whole archive is rejected
	// before anything is written.
	ErrUnsafeArchive = errors.New("archive contains unsafe paths")
)

// repackArchive extracts the provider archive into a temporary
// workspace and rebuilds it as a normalized zip: the provider's
// top-level wrapper directory is stripped, and when subPath is set only
// entries under that prefix survive, re-rooted. The workspace is
// removed in every outcome.
func repackArchive(raw []byte, subPath string) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
	}

	entries, err := planEntries(reader, subPath)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		if subPath != "" {
			return nil, fmt.Errorf("%w: sub path %q not present", ErrArchiveCorrupt, subPath)
		}
		return nil, fmt.Errorf("%w: no files", ErrArchiveCorrupt)
	}

	workspace, err := os.MkdirTemp("", "pkghub-import-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workspace)

	for _, entry := range entries {
		if err := extractEntry(workspace, entry); err != nil {
			return nil, err
		}
	}

	return packWorkspace(workspace, entries)
}

type archiveEntry struct {
	file *zip.File
	name string
}

// planEntries validates every entry name before anything touches disk
// and computes the normalized name each surviving file will get.
func planEntries(reader *zip.Reader, subPath string) ([]archiveEntry, error) {
	for _, file := range reader.File {
		if !safeEntryName(file.Name) {
			return nil, fmt.Errorf("%w: %q", ErrUnsafeArchive, file.Name)
		}
	}

	root := commonRoot(reader.File)
	prefix := ""
	if subPath != "" {
		prefix = strings.Trim(subPath, "/") + "/"
	}

	entries := make([]archiveEntry, 0, len(reader.File))
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		name := strings.TrimPrefix(file.Name, root)
		if name == "" {
			continue
		}
		if prefix != "" {
			trimmed := strings.TrimPrefix(name, prefix)
			if trimmed == name || trimmed == "" {
				continue
			}
			name = trimmed
		}
		entries = append(entries, archiveEntry{file: file, name: name})
	}
	return entries, nil
}

func safeEntryName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}
	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return false
	}
	return true
}

// commonRoot returns the single top-level directory shared by every
// entry, or "" when the archive has no wrapper directory.
func commonRoot(files []*zip.File) string {
	root := ""
	for _, file := range files {
		segment, _, found := strings.Cut(file.Name, "/")
		if !found {
			return ""
		}
		if root == "" {
			root = segment
			continue
		}
		if segment != root {
			return ""
		}
	}
	if root == "" {
		return ""
	}
	return root + "/"
}

func extractEntry(workspace string, entry archiveEntry) error {
	target := filepath.Join(workspace, filepath.FromSlash(entry.name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := entry.file.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
	}
	return dst.Close()
}

func packWorkspace(workspace string, entries []archiveEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)

	for _, entry := range entries {
		dst, err := writer.Create(entry.name)
		if err != nil {
			return nil, err
		}
		src, err := os.Open(filepath.Join(workspace, filepath.FromSlash(entry.name)))
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(dst, src); err != nil {
			_ = src.Close()
			return nil, err
		}
		_ = src.Close()
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
