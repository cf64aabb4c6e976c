// Package zipexpand flattens ZIP uploads into their PDF entries before
// they reach the match engine.
package zipexpand

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/scanworks/reportbroker/internal/core/domain"
)

const reportContentType = "application/pdf"

// maxEntrySize caps a single decompressed entry to keep a hostile
// archive from exhausting memory.
const maxEntrySize = 64 << 20

type Expander struct{}

func New() *Expander {
	return &Expander{}
}

// Expand walks the archive and materializes every PDF entry under its
// basename. Directory entries and non-PDF entries are skipped; a
// corrupt archive fails as a whole and the caller treats that as a
// per-item error.
func (e *Expander) Expand(data []byte) ([]domain.UploadedFile, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip archive: %w", err)
	}

	var files []domain.UploadedFile
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		base := path.Base(entry.Name)
		if !strings.EqualFold(path.Ext(base), ".pdf") {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip entry %s: %w", entry.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
		closeErr := rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read zip entry %s: %w", entry.Name, err)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("close zip entry %s: %w", entry.Name, closeErr)
		}
		if len(content) > maxEntrySize {
			return nil, fmt.Errorf("zip entry %s exceeds %d bytes", entry.Name, maxEntrySize)
		}

		files = append(files, domain.UploadedFile{
			Name:        base,
			ContentType: reportContentType,
			Data:        content,
		})
	}
	return files, nil
}
