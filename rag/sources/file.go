package sources

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/mudler/xlog"
)

// SupportedExtensions lists the file types ReadFile understands.
var SupportedExtensions = []string{".txt", ".md", ".pdf"}

// ReadFile loads a text, markdown or PDF file.
func ReadFile(path string) (Document, error) {
	if _, err := os.Stat(path); err != nil {
		return Document{}, fmt.Errorf("file does not exist: %s", path)
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	extension := strings.ToLower(filepath.Ext(path))
	switch extension {
	case ".pdf":
		r, err := pdf.Open(path)
		if err != nil {
			return Document{}, err
		}
		var buf bytes.Buffer
		b, err := r.GetPlainText()
		if err != nil {
			return Document{}, err
		}
		if _, err := buf.ReadFrom(b); err != nil {
			return Document{}, err
		}
		return Document{Title: title, Path: path, Text: buf.String()}, nil
	case ".txt", ".md":
		xlog.Debug("Reading text file", "path", path)
		content, err := os.ReadFile(path)
		if err != nil {
			return Document{}, err
		}
		return Document{Title: title, Path: path, Text: string(content)}, nil
	}

	return Document{}, fmt.Errorf("unsupported file type: %s", extension)
}

// ReadDir loads every supported file below dir.
func ReadDir(dir string) ([]Document, error) {
	docs := []Document{}
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isSupported(p) {
			return nil
		}
		doc, err := ReadFile(p)
		if err != nil {
			xlog.Warn("Skipping file", "path", p, "error", err)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	return docs, err
}

func isSupported(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}
