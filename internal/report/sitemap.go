package report

import (
	"context"
	"encoding/xml"
	"fmt"

	"digiprofile/api/internal/catalog"
)

const (
	sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
	xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
)

type sitemapURL struct {
	XMLName    xml.Name `xml:"url"`
	Loc        string   `xml:"loc"`
	LastMod    string   `xml:"lastmod,omitempty"`
	ChangeFreq string   `xml:"changefreq,omitempty"`
	Priority   float64  `xml:"priority,omitempty"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

var languages = []catalog.Lang{catalog.LangEnglish, catalog.LangNepali}

// Sitemap lists the index and every report page in both languages. A
// report's lastmod is the latest update among its records.
func (r *Renderer) Sitemap(ctx context.Context) ([]byte, error) {
	datasets := r.catalog.All()
	loaded, err := r.loadAll(ctx, datasets)
	if err != nil {
		return nil, fmt.Errorf("load sitemap datasets: %w", err)
	}

	set := urlSet{XMLNS: sitemapNS}
	for _, lang := range languages {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        r.baseURL + IndexPath(lang),
			ChangeFreq: "weekly",
			Priority:   0.8,
		})
	}
	for i, ds := range datasets {
		lastmod := ""
		if modified := lastModified(loaded[i]); !modified.IsZero() {
			lastmod = modified.UTC().Format("2006-01-02")
		}
		for _, lang := range languages {
			set.URLs = append(set.URLs, sitemapURL{
				Loc:        r.baseURL + ReportPath(ds.Slug, lang),
				LastMod:    lastmod,
				ChangeFreq: "monthly",
				Priority:   0.6,
			})
		}
	}

	body, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode sitemap: %w", err)
	}
	return append([]byte(xmlHeader), body...), nil
}
