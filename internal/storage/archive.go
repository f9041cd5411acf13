package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
	"github.com/joseph-ayodele/cv-pipeline/internal/utils"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Archive keeps a copy of every downloaded CV on the local filesystem.
type Archive struct {
	dir string
	log *slog.Logger
}

func NewArchive(dir string, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{dir: dir, log: logger}
}

// Dir returns the archive root.
func (a *Archive) Dir() string { return a.dir }

// Save writes doc under the archive root and returns the absolute path.
// Writes go through a temp file in the same directory so a crash never
// leaves a truncated CV behind.
func (a *Archive) Save(ctx context.Context, c entity.Candidate, doc entity.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := constants.NormalizeExt(filepath.Ext(doc.Filename))
	if !AllowedExt(ext) {
		return "", fmt.Errorf("archive %q: extension %q: %w", doc.Filename, ext, common.ErrUnsupportedFormat)
	}
	if doc.Size() == 0 {
		return "", fmt.Errorf("archive %q: %w", doc.Filename, common.ErrEmptyDocument)
	}
	start := time.Now()

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("archive mkdir %s: %w: %v", a.dir, common.ErrIO, err)
	}
	name := FileName(c, doc)
	dst := filepath.Join(a.dir, name)

	tmp, err := os.CreateTemp(a.dir, ".cv-*.tmp")
	if err != nil {
		return "", fmt.Errorf("archive temp file: %w: %v", common.ErrIO, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(doc.Data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("archive write %s: %w: %v", name, common.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("archive close %s: %w: %v", name, common.ErrIO, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("archive rename %s: %w: %v", name, common.ErrIO, err)
	}

	abs, err := filepath.Abs(dst)
	if err != nil {
		abs = dst
	}
	a.log.Debug("storage.archive.saved",
		"candidate_id", c.ID,
		"path", abs,
		"bytes", doc.Size(),
		"sha256", utils.SHA256Hex(doc.Data)[:12],
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return abs, nil
}

// FileName builds a stable, filesystem-safe name: the candidate id prefix keeps
// two candidates with the same original filename apart.
func FileName(c entity.Candidate, doc entity.Document) string {
	base := strings.TrimSuffix(filepath.Base(doc.Filename), filepath.Ext(doc.Filename))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "._")
	if base == "" {
		base = "cv"
	}
	id := strings.Trim(unsafeChars.ReplaceAllString(c.ID, "_"), "._")
	if id == "" {
		id = "unknown"
	}
	ext := constants.NormalizeExt(filepath.Ext(doc.Filename))
	if strings.HasPrefix(base, "CV_"+id+"_") {
		return base + "." + ext
	}
	return id + "_" + base + "." + ext
}

// List returns the archived CVs, skipping hidden and temp files.
func (a *Archive) List() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("archive list %s: %w: %v", a.dir, common.ErrIO, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || IsHidden(e.Name()) {
			continue
		}
		if !AllowedExt(filepath.Ext(e.Name())) {
			continue
		}
		out = append(out, filepath.Join(a.dir, e.Name()))
	}
	return out, nil
}

// AllowedExt checks if a file extension is in the allowed set.
func AllowedExt(ext string) bool {
	ext = constants.NormalizeExt(ext)
	_, ok := constants.AllowedExtensions[ext]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
