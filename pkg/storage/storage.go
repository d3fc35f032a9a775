package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const detectedPrefix = "detected_"

// Layout resolves where uploads and rendered results live on disk and how
// they are reported back to clients.
type Layout struct {
	root      string
	uploadDir string
	resultDir string
}

func NewLayout(root, uploadDir, resultDir string) (*Layout, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	l := &Layout{
		root:      absRoot,
		uploadDir: resolve(absRoot, uploadDir),
		resultDir: resolve(absRoot, resultDir),
	}

	for _, dir := range []string{l.uploadDir, l.resultDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return l, nil
}

func resolve(root, dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(root, dir)
}

func (l *Layout) Root() string      { return l.root }
func (l *Layout) UploadDir() string { return l.uploadDir }
func (l *Layout) ResultDir() string { return l.resultDir }

func (l *Layout) UploadPath(name string) string {
	return filepath.Join(l.uploadDir, name)
}

// DetectedPath is deterministic in the source filename, so a repeat upload
// overwrites the previous rendering.
func (l *Layout) DetectedPath(sourceFilename string) string {
	return filepath.Join(l.resultDir, DetectedName(sourceFilename))
}

func DetectedName(sourceFilename string) string {
	base := filepath.Base(sourceFilename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return detectedPrefix + stem + ".jpg"
}

// Relative returns p relative to the project root with forward slashes.
// Paths outside the root are returned as given.
func (l *Layout) Relative(p string) string {
	rel, err := filepath.Rel(l.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// SaveUpload writes src under the upload directory as name, replacing any
// previous file of that name.
func (l *Layout) SaveUpload(src io.Reader, name string) (string, error) {
	dst := l.UploadPath(name)

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create upload %s: %w", name, err)
	}

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return "", fmt.Errorf("write upload %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close upload %s: %w", name, err)
	}
	return dst, nil
}

func BaseName(p string) string {
	return filepath.Base(p)
}
