package sources

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/mudler/xlog"
	sitemap "github.com/oxffaa/gopher-parse-sitemap"
	"jaytaylor.com/html2text"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// GetWebPage downloads a page and returns it as plain text.
func GetWebPage(pageURL string) (Document, error) {
	resp, err := httpClient.Get(pageURL)
	if err != nil {
		return Document{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Document{}, fmt.Errorf("fetching %s: unexpected status %s", pageURL, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, err
	}
	text, err := html2text.FromString(string(body), html2text.Options{PrettyTables: true})
	if err != nil {
		return Document{}, fmt.Errorf("converting %s to text: %w", pageURL, err)
	}

	return Document{
		Title: titleFromURL(pageURL),
		URL:   pageURL,
		Text:  text,
	}, nil
}

// GetWebSitemapContent downloads every page listed in a sitemap. Pages that fail are
// skipped.
func GetWebSitemapContent(sitemapURL string) ([]Document, error) {
	docs := []Document{}
	err := sitemap.ParseFromSite(sitemapURL, func(e sitemap.Entry) error {
		xlog.Info("Sitemap page", "url", e.GetLocation())
		doc, err := GetWebPage(e.GetLocation())
		if err != nil {
			xlog.Warn("Skipping sitemap page", "url", e.GetLocation(), "error", err)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	return docs, err
}

func titleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if base == "." || base == "/" || base == "" {
		return u.Hostname()
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return strings.ReplaceAll(base, "_", " ")
}
