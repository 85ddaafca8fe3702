package sources

import (
	"os"
	"strings"

	"github.com/mudler/xlog"
)

// Document is raw text waiting to be chunked.
type Document struct {
	Title string
	URL   string
	Path  string
	Text  string
}

// Source returns where the document came from, preferring the URL.
func (d Document) Source() string {
	if d.URL != "" {
		return d.URL
	}
	return d.Path
}

// SourceRouter loads the documents behind source: a sitemap, a web page, a directory or a
// single file.
func SourceRouter(source string) ([]Document, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		xlog.Info("Downloading content from", "url", source)
		if strings.HasSuffix(source, "sitemap.xml") {
			docs, err := GetWebSitemapContent(source)
			if err != nil {
				return nil, err
			}
			xlog.Info("Downloaded all content from sitemap", "url", source, "pages", len(docs))
			return docs, nil
		}
		doc, err := GetWebPage(source)
		if err != nil {
			return nil, err
		}
		return []Document{doc}, nil
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return ReadDir(source)
	}
	doc, err := ReadFile(source)
	if err != nil {
		return nil, err
	}
	return []Document{doc}, nil
}
