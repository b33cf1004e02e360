package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/reddradar/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

// Timestamps are stored as unix milliseconds so range filters compare numbers.
const schema = `
CREATE TABLE IF NOT EXISTS leads (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	subreddit TEXT NOT NULL,
	url TEXT NOT NULL,
	score INTEGER NOT NULL,
	author TEXT NOT NULL,
	created_ms INTEGER NOT NULL,
	num_comments INTEGER NOT NULL,
	run_id TEXT NOT NULL,
	matched_keywords TEXT NOT NULL,
	matched_keywords_folded TEXT NOT NULL DEFAULT '[]',
	first_seen_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS leads_first_seen ON leads (first_seen_ms);

CREATE TABLE IF NOT EXISTS replies (
	id TEXT PRIMARY KEY,
	post_title TEXT NOT NULL,
	post_body TEXT NOT NULL,
	post_url TEXT NOT NULL,
	subreddit TEXT NOT NULL,
	reply TEXT NOT NULL,
	tone TEXT NOT NULL,
	provider TEXT NOT NULL,
	tokens_used INTEGER NOT NULL,
	created_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS replies_created ON replies (created_ms);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) SaveLead(ctx context.Context, lead *storage.LeadRecord) (bool, error) {
	keywords, err := json.Marshal(nonNil(lead.MatchedKeywords))
	if err != nil {
		return false, fmt.Errorf("encode keywords: %w", err)
	}
	// SQLite's lower() only folds ASCII, so the filter column is folded here.
	folded, err := json.Marshal(foldAll(lead.MatchedKeywords))
	if err != nil {
		return false, fmt.Errorf("encode keywords: %w", err)
	}

	query := `
	INSERT INTO leads (
		id, title, body, subreddit, url, score, author, created_ms, num_comments, run_id, matched_keywords, matched_keywords_folded, first_seen_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO NOTHING
	`

	res, err := b.db.ExecContext(ctx, query,
		lead.ID,
		lead.Title,
		lead.Body,
		lead.Subreddit,
		lead.URL,
		lead.Score,
		lead.Author,
		lead.Created,
		lead.NumComments,
		lead.RunID,
		string(keywords),
		string(folded),
		lead.FirstSeen.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("insert lead %s: %w", lead.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert lead %s: %w", lead.ID, err)
	}
	return n > 0, nil
}

func (b *sqliteBackend) QueryLeads(ctx context.Context, filter storage.LeadFilter) ([]*storage.LeadRecord, error) {
	query := `SELECT id, title, body, subreddit, url, score, author, created_ms, num_comments, run_id, matched_keywords, first_seen_ms FROM leads WHERE 1=1`
	args := []any{}

	if filter.Subreddit != "" {
		query += ` AND subreddit = ? COLLATE NOCASE`
		args = append(args, filter.Subreddit)
	}
	if filter.Keyword != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(leads.matched_keywords_folded) WHERE json_each.value = ?)`
		args = append(args, fold(filter.Keyword))
	}
	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Since != nil {
		query += ` AND first_seen_ms >= ?`
		args = append(args, filter.Since.UnixMilli())
	}

	query += ` ORDER BY first_seen_ms DESC, score DESC`
	query, args = limitOffset(query, args, filter.Limit, filter.Offset)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	results := []*storage.LeadRecord{}
	for rows.Next() {
		var r storage.LeadRecord
		var keywords string
		var firstSeen int64

		err := rows.Scan(
			&r.ID, &r.Title, &r.Body, &r.Subreddit, &r.URL, &r.Score, &r.Author,
			&r.Created, &r.NumComments, &r.RunID, &keywords, &firstSeen,
		)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}

		if err := json.Unmarshal([]byte(keywords), &r.MatchedKeywords); err != nil {
			return nil, fmt.Errorf("decode keywords of %s: %w", r.ID, err)
		}
		r.FirstSeen = time.UnixMilli(firstSeen).UTC()

		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) SaveReply(ctx context.Context, reply *storage.ReplyRecord) error {
	query := `
	INSERT INTO replies (
		id, post_title, post_body, post_url, subreddit, reply, tone, provider, tokens_used, created_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := b.db.ExecContext(ctx, query,
		reply.ID,
		reply.PostTitle,
		reply.PostBody,
		reply.PostURL,
		reply.Subreddit,
		reply.Reply,
		reply.Tone,
		reply.Provider,
		reply.TokensUsed,
		reply.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert reply %s: %w", reply.ID, err)
	}

	return nil
}

func (b *sqliteBackend) QueryReplies(ctx context.Context, filter storage.ReplyFilter) ([]*storage.ReplyRecord, error) {
	query := `SELECT id, post_title, post_body, post_url, subreddit, reply, tone, provider, tokens_used, created_ms FROM replies WHERE 1=1`
	args := []any{}

	if filter.Subreddit != "" {
		query += ` AND subreddit = ? COLLATE NOCASE`
		args = append(args, filter.Subreddit)
	}
	if filter.Since != nil {
		query += ` AND created_ms >= ?`
		args = append(args, filter.Since.UnixMilli())
	}

	query += ` ORDER BY created_ms DESC, rowid DESC`
	query, args = limitOffset(query, args, filter.Limit, filter.Offset)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}
	defer rows.Close()

	results := []*storage.ReplyRecord{}
	for rows.Next() {
		var r storage.ReplyRecord
		var created int64

		err := rows.Scan(
			&r.ID, &r.PostTitle, &r.PostBody, &r.PostURL, &r.Subreddit,
			&r.Reply, &r.Tone, &r.Provider, &r.TokensUsed, &created,
		)
		if err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		r.CreatedAt = time.UnixMilli(created).UTC()

		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) DeleteReply(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM replies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reply %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reply %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete reply %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (b *sqliteBackend) Usage(ctx context.Context, since time.Time) (storage.Usage, error) {
	var u storage.Usage
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(tokens_used), 0) FROM replies WHERE created_ms >= ?`,
		since.UnixMilli(),
	).Scan(&u.Replies, &u.TokensUsed)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return storage.Usage{}, fmt.Errorf("query usage: %w", err)
	}
	return u, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

// migrate adds columns introduced after a database was first created.
func migrate(db *sql.DB) error {
	_, err := db.Exec(`ALTER TABLE leads ADD COLUMN matched_keywords_folded TEXT NOT NULL DEFAULT '[]'`)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate column") {
			return nil
		}
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}
	// Rows written before the column existed get an ASCII-only fold.
	if _, err := db.Exec(`UPDATE leads SET matched_keywords_folded = lower(matched_keywords)`); err != nil {
		return fmt.Errorf("backfill folded keywords: %w", err)
	}
	return nil
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func foldAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fold(s)
	}
	return out
}

func limitOffset(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	} else if offset > 0 {
		query += ` LIMIT -1`
	}
	if offset > 0 {
		query += ` OFFSET ?`
		args = append(args, offset)
	}
	return query, args
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
