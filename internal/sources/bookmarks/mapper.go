package bookmarks

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
)

var ErrNoBookmarks = errors.New("no valid bookmarks found")

// Websites converts a parsed file into bookmarked websites, one per
// normalized URL, ordered by URL. Entries without an absolute http(s) href
// are skipped. The item name becomes the title; abbr is used when the name
// is empty.
func Websites(file File) ([]domain.Website, error) {
	seen := make(map[string]domain.Website)

	for _, group := range file {
		for _, items := range group {
			for _, item := range items {
				for name, node := range item {
					entry, ok := decodeEntry(node)
					if !ok || !isWebURL(entry.Href) {
						continue
					}

					title := strings.TrimSpace(name)
					if title == "" {
						title = entry.Abbr
					}

					key := domain.NormalizeURL(entry.Href)
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = domain.Website{
						URL:        key,
						Title:      title,
						ThemeColor: domain.NoColor,
						Bookmarked: true,
						VisitCount: 1,
					}
				}
			}
		}
	}

	if len(seen) == 0 {
		return nil, ErrNoBookmarks
	}

	websites := make([]domain.Website, 0, len(seen))
	for _, w := range seen {
		websites = append(websites, w)
	}
	sort.Slice(websites, func(i, j int) bool { return websites[i].URL < websites[j].URL })
	return websites, nil
}

// decodeEntry accepts the bookmark layout (a list holding one entry) and
// the service layout (a single mapping).
func decodeEntry(node yaml.Node) (Entry, bool) {
	var entry Entry
	switch node.Kind {
	case yaml.MappingNode:
		if err := node.Decode(&entry); err != nil {
			return Entry{}, false
		}
		return entry, true
	case yaml.SequenceNode:
		var entries []Entry
		if err := node.Decode(&entries); err != nil || len(entries) == 0 {
			return Entry{}, false
		}
		return entries[0], true
	default:
		return Entry{}, false
	}
}

func isWebURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Load reads path and maps it in one step.
func Load(path string) ([]domain.Website, error) {
	file, err := NewLoader(path).Load()
	if err != nil {
		return nil, err
	}
	websites, err := Websites(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return websites, nil
}
