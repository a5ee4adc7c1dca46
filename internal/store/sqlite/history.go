// Package sqlite implements the durable history store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS websites (
		url             TEXT PRIMARY KEY,
		requested_url   TEXT NOT NULL,
		canonical_url   TEXT NOT NULL DEFAULT '',
		amp_url         TEXT NOT NULL DEFAULT '',
		title           TEXT NOT NULL DEFAULT '',
		favicon_url     TEXT NOT NULL DEFAULT '',
		theme_color     INTEGER NOT NULL DEFAULT -1,
		bookmarked      BOOLEAN NOT NULL DEFAULT 0,
		created_at      INTEGER NOT NULL,
		last_visited_at INTEGER NOT NULL,
		visit_count     INTEGER NOT NULL DEFAULT 1 CHECK (visit_count >= 1)
	);

	CREATE INDEX IF NOT EXISTS idx_websites_last_visited ON websites(last_visited_at);
	CREATE INDEX IF NOT EXISTS idx_websites_visit_count ON websites(visit_count);
`

// Metadata columns only take non-empty incoming values so a bare revisit
// never erases what an earlier fetch learned.
const upsertVisitQuery = `
	INSERT INTO websites (url, requested_url, canonical_url, amp_url, title, favicon_url,
		theme_color, bookmarked, created_at, last_visited_at, visit_count)
	VALUES (:url, :requested_url, :canonical_url, :amp_url, :title, :favicon_url,
		:theme_color, 0, :created_at, :last_visited_at, 1)
	ON CONFLICT(url) DO UPDATE SET
		canonical_url   = CASE WHEN excluded.canonical_url <> '' THEN excluded.canonical_url ELSE websites.canonical_url END,
		amp_url         = CASE WHEN excluded.amp_url <> '' THEN excluded.amp_url ELSE websites.amp_url END,
		title           = CASE WHEN excluded.title <> '' THEN excluded.title ELSE websites.title END,
		favicon_url     = CASE WHEN excluded.favicon_url <> '' THEN excluded.favicon_url ELSE websites.favicon_url END,
		theme_color     = CASE WHEN excluded.theme_color > 0 THEN excluded.theme_color ELSE websites.theme_color END,
		last_visited_at = excluded.last_visited_at,
		visit_count     = websites.visit_count + 1
`

const upsertBookmarkQuery = `
	INSERT INTO websites (url, requested_url, canonical_url, amp_url, title, favicon_url,
		theme_color, bookmarked, created_at, last_visited_at, visit_count)
	VALUES (:url, :requested_url, :canonical_url, :amp_url, :title, :favicon_url,
		:theme_color, 1, :created_at, :last_visited_at, 1)
	ON CONFLICT(url) DO UPDATE SET
		title      = CASE WHEN excluded.title <> '' THEN excluded.title ELSE websites.title END,
		bookmarked = 1
`

const selectColumns = `
	SELECT url, requested_url, canonical_url, amp_url, title, favicon_url,
		theme_color, bookmarked, created_at, last_visited_at, visit_count
	FROM websites
`

// record is the row layout of the websites table.
type record struct {
	Key           string `db:"url"`
	URL           string `db:"requested_url"`
	CanonicalURL  string `db:"canonical_url"`
	AmpURL        string `db:"amp_url"`
	Title         string `db:"title"`
	FaviconURL    string `db:"favicon_url"`
	ThemeColor    int64  `db:"theme_color"`
	Bookmarked    bool   `db:"bookmarked"`
	CreatedAt     int64  `db:"created_at"`      // unix millis
	LastVisitedAt int64  `db:"last_visited_at"` // unix millis
	VisitCount    int64  `db:"visit_count"`
}

func toRecord(w domain.Website, now time.Time) record {
	color := int64(domain.NoColor)
	if w.ThemeColor.Valid() {
		color = int64(w.ThemeColor)
	}
	created := w.CreatedAt
	if created.IsZero() {
		created = now
	}
	return record{
		Key:           w.Key(),
		URL:           w.URL,
		CanonicalURL:  w.CanonicalURL,
		AmpURL:        w.AmpURL,
		Title:         w.Title,
		FaviconURL:    w.FaviconURL,
		ThemeColor:    color,
		CreatedAt:     created.UnixMilli(),
		LastVisitedAt: now.UnixMilli(),
	}
}

func (r record) website() domain.Website {
	color := domain.Color(r.ThemeColor)
	if !color.Valid() {
		color = domain.NoColor
	}
	return domain.Website{
		URL:           r.URL,
		CanonicalURL:  r.CanonicalURL,
		AmpURL:        r.AmpURL,
		Title:         r.Title,
		FaviconURL:    r.FaviconURL,
		ThemeColor:    color,
		Bookmarked:    r.Bookmarked,
		CreatedAt:     time.UnixMilli(r.CreatedAt),
		LastVisitedAt: time.UnixMilli(r.LastVisitedAt),
		VisitCount:    r.VisitCount,
	}
}

// History is the SQLite-backed domain.HistoryStore.
type History struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*History, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; visit increments stay atomic without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &History{db: db, now: time.Now}, nil
}

// Get returns the recorded website or (nil, nil) when never visited.
func (h *History) Get(ctx context.Context, url string) (*domain.Website, error) {
	var r record
	err := h.db.GetContext(ctx, &r, selectColumns+` WHERE url = ?`, domain.NormalizeURL(url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get website: %w", err)
	}
	w := r.website()
	return &w, nil
}

// Upsert records one visit in a single statement.
func (h *History) Upsert(ctx context.Context, website domain.Website) error {
	if _, err := h.db.NamedExecContext(ctx, upsertVisitQuery, toRecord(website, h.now())); err != nil {
		return fmt.Errorf("failed to upsert website: %w", err)
	}
	return nil
}

// Search matches query against URL and title, most visited first.
// An empty query lists everything; limit <= 0 is unbounded.
func (h *History) Search(ctx context.Context, query string, limit int) ([]domain.Website, error) {
	if limit <= 0 {
		limit = -1
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"

	var records []record
	err := h.db.SelectContext(ctx, &records, selectColumns+`
		WHERE url LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\'
		ORDER BY visit_count DESC, last_visited_at DESC, url ASC
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search history: %w", err)
	}

	websites := make([]domain.Website, 0, len(records))
	for _, r := range records {
		websites = append(websites, r.website())
	}
	return websites, nil
}

// ReplaceBookmarks flags exactly the given websites as bookmarked. Missing
// rows are created without counting a visit.
func (h *History) ReplaceBookmarks(ctx context.Context, websites []domain.Website) (int, error) {
	tx, err := h.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE websites SET bookmarked = 0 WHERE bookmarked = 1`); err != nil {
		return 0, fmt.Errorf("failed to reset bookmarks: %w", err)
	}

	now := h.now()
	for _, w := range websites {
		if _, err := tx.NamedExecContext(ctx, upsertBookmarkQuery, toRecord(w, now)); err != nil {
			return 0, fmt.Errorf("failed to mark bookmark %s: %w", w.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bookmarks: %w", err)
	}
	return len(websites), nil
}

// Prune removes non-bookmarked websites last visited before cutoff.
func (h *History) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx,
		`DELETE FROM websites WHERE bookmarked = 0 AND last_visited_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	return n, nil
}

// Ping reports whether the database answers.
func (h *History) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

func (h *History) Close() error {
	return h.db.Close()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
