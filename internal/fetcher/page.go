package fetcher

import (
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
)

// pageMeta accumulates what the HTML callbacks find. The first match of
// each field wins.
type pageMeta struct {
	title      string
	ogTitle    string
	icon       string
	canonical  string
	amp        string
	themeColor domain.Color
	hasTheme   bool
}

func (m *pageMeta) register(c *colly.Collector) {
	c.OnHTML("head > title", func(e *colly.HTMLElement) {
		if m.title == "" {
			m.title = collapseSpaces(e.Text)
		}
	})

	c.OnHTML(`meta[property="og:title"]`, func(e *colly.HTMLElement) {
		if m.ogTitle == "" {
			m.ogTitle = collapseSpaces(e.Attr("content"))
		}
	})

	c.OnHTML(`meta[name="theme-color"]`, func(e *colly.HTMLElement) {
		if m.hasTheme {
			return
		}
		if color, err := domain.ParseColor(e.Attr("content")); err == nil && color.Valid() {
			m.themeColor = color
			m.hasTheme = true
		}
	})

	c.OnHTML("link[rel][href]", func(e *colly.HTMLElement) {
		href := e.Request.AbsoluteURL(strings.TrimSpace(e.Attr("href")))
		if href == "" {
			return
		}
		for _, rel := range strings.Fields(strings.ToLower(e.Attr("rel"))) {
			switch rel {
			case "icon":
				if m.icon == "" {
					m.icon = href
				}
			case "canonical":
				if m.canonical == "" {
					m.canonical = href
				}
			case "amphtml":
				if m.amp == "" {
					m.amp = href
				}
			}
		}
	})
}

func (m *pageMeta) website(requested string, final *url.URL, now time.Time) domain.Website {
	w := domain.Website{
		URL:           requested,
		CanonicalURL:  m.canonical,
		AmpURL:        m.amp,
		Title:         m.title,
		FaviconURL:    m.icon,
		ThemeColor:    domain.NoColor,
		CreatedAt:     now,
		LastVisitedAt: now,
		VisitCount:    1,
	}
	if w.Title == "" {
		w.Title = m.ogTitle
	}
	if m.hasTheme {
		w.ThemeColor = m.themeColor
	}
	if w.FaviconURL == "" && final != nil {
		w.FaviconURL = (&url.URL{Scheme: final.Scheme, Host: final.Host, Path: "/favicon.ico"}).String()
	}
	return w
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
