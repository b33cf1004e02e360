package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/reddradar/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS leads (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	subreddit TEXT NOT NULL,
	url TEXT NOT NULL,
	score INTEGER NOT NULL,
	author TEXT NOT NULL,
	created_ms BIGINT NOT NULL,
	num_comments INTEGER NOT NULL,
	run_id TEXT NOT NULL,
	matched_keywords TEXT[] NOT NULL DEFAULT '{}',
	first_seen TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS leads_first_seen ON leads (first_seen);

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
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS replies_created_at ON replies (created_at);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) SaveLead(ctx context.Context, lead *storage.LeadRecord) (bool, error) {
	keywords := lead.MatchedKeywords
	if keywords == nil {
		keywords = []string{}
	}

	query := `
	INSERT INTO leads (
		id, title, body, subreddit, url, score, author, created_ms, num_comments, run_id, matched_keywords, first_seen
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO NOTHING
	`

	tag, err := b.pool.Exec(ctx, query,
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
		keywords,
		lead.FirstSeen,
	)
	if err != nil {
		return false, fmt.Errorf("insert lead %s: %w", lead.ID, err)
	}

	return tag.RowsAffected() > 0, nil
}

func (b *postgresBackend) QueryLeads(ctx context.Context, filter storage.LeadFilter) ([]*storage.LeadRecord, error) {
	query := `SELECT id, title, body, subreddit, url, score, author, created_ms, num_comments, run_id, matched_keywords, first_seen FROM leads WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Subreddit != "" {
		query += fmt.Sprintf(` AND lower(subreddit) = lower($%d)`, paramCount)
		args = append(args, filter.Subreddit)
		paramCount++
	}
	if filter.Keyword != "" {
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM unnest(matched_keywords) k WHERE lower(k) = lower($%d))`, paramCount)
		args = append(args, strings.TrimSpace(filter.Keyword))
		paramCount++
	}
	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, paramCount)
		args = append(args, filter.RunID)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND first_seen >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY first_seen DESC, score DESC`
	query, args = limitOffset(query, args, paramCount, filter.Limit, filter.Offset)

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	results := []*storage.LeadRecord{}
	for rows.Next() {
		var r storage.LeadRecord

		err := rows.Scan(
			&r.ID, &r.Title, &r.Body, &r.Subreddit, &r.URL, &r.Score, &r.Author,
			&r.Created, &r.NumComments, &r.RunID, &r.MatchedKeywords, &r.FirstSeen,
		)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		r.FirstSeen = r.FirstSeen.UTC()

		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) SaveReply(ctx context.Context, reply *storage.ReplyRecord) error {
	query := `
	INSERT INTO replies (
		id, post_title, post_body, post_url, subreddit, reply, tone, provider, tokens_used, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := b.pool.Exec(ctx, query,
		reply.ID,
		reply.PostTitle,
		reply.PostBody,
		reply.PostURL,
		reply.Subreddit,
		reply.Reply,
		reply.Tone,
		reply.Provider,
		reply.TokensUsed,
		reply.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reply %s: %w", reply.ID, err)
	}

	return nil
}

func (b *postgresBackend) QueryReplies(ctx context.Context, filter storage.ReplyFilter) ([]*storage.ReplyRecord, error) {
	query := `SELECT id, post_title, post_body, post_url, subreddit, reply, tone, provider, tokens_used, created_at FROM replies WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Subreddit != "" {
		query += fmt.Sprintf(` AND lower(subreddit) = lower($%d)`, paramCount)
		args = append(args, filter.Subreddit)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC`
	query, args = limitOffset(query, args, paramCount, filter.Limit, filter.Offset)

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*storage.ReplyRecord, error) {
		var r storage.ReplyRecord
		err := row.Scan(
			&r.ID, &r.PostTitle, &r.PostBody, &r.PostURL, &r.Subreddit,
			&r.Reply, &r.Tone, &r.Provider, &r.TokensUsed, &r.CreatedAt,
		)
		r.CreatedAt = r.CreatedAt.UTC()
		return &r, err
	})
	if err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}
	if results == nil {
		results = []*storage.ReplyRecord{}
	}

	return results, nil
}

func (b *postgresBackend) DeleteReply(ctx context.Context, id string) error {
	tag, err := b.pool.Exec(ctx, `DELETE FROM replies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reply %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete reply %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (b *postgresBackend) Usage(ctx context.Context, since time.Time) (storage.Usage, error) {
	var u storage.Usage
	err := b.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(tokens_used), 0) FROM replies WHERE created_at >= $1`,
		since,
	).Scan(&u.Replies, &u.TokensUsed)
	if err != nil {
		return storage.Usage{}, fmt.Errorf("query usage: %w", err)
	}
	return u, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func limitOffset(query string, args []any, paramCount, limit, offset int) (string, []any) {
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, limit)
		paramCount++
	}
	if offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, offset)
	}
	return query, args
}
