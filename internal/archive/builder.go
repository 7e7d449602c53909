// Package archive packages finished transcripts for download.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/subgen/api/internal/storage"
)

// ErrMissingArtifact means a completed job lacks an expected transcript.
var ErrMissingArtifact = errors.New("expected artifact is missing")

// DisplayBase is the client-facing name without its extension.
func DisplayBase(displayName string) string {
	base := storage.Stem(filepath.Base(displayName))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "subtitles"
	}
	return base
}

// FileName is the download name for an archive of displayName.
func FileName(displayName string) string {
	return DisplayBase(displayName) + "_subtitles.zip"
}

// Build returns a zip holding <base>.srt and, when translation was
// requested, <base>_translated.srt. Nothing is returned unless every
// expected entry was written and the archive closed.
func Build(displayName, transcriptPath, translatedPath string, wantsTranslation bool) ([]byte, error) {
	base := DisplayBase(displayName)

	entries := []struct{ name, path string }{
		{base + ".srt", transcriptPath},
	}
	if wantsTranslation {
		entries = append(entries, struct{ name, path string }{base + "_translated.srt", translatedPath})
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		data, err := os.ReadFile(e.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, filepath.Base(e.path))
			}
			return nil, fmt.Errorf("read %s: %w", filepath.Base(e.path), err)
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.name,
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", e.name, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("write %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}

	return buf.Bytes(), nil
}
