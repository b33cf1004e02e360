package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/FranksOps/reddradar/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

const (
	leadsFile   = "leads.jsonl"
	repliesFile = "replies.jsonl"

	maxLine = 4 << 20
)

type jsonBackend struct {
	mu      sync.Mutex
	leads   *os.File
	replies *os.File
	seen    map[string]struct{}
}

// New creates an NDJSON-backed storage.Backend keeping one file per record
// kind inside dir.
func New(dir string) (storage.Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	leads, err := os.OpenFile(filepath.Join(dir, leadsFile), os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open leads file: %w", err)
	}
	replies, err := os.OpenFile(filepath.Join(dir, repliesFile), os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		_ = leads.Close()
		return nil, fmt.Errorf("open replies file: %w", err)
	}

	b := &jsonBackend{leads: leads, replies: replies, seen: make(map[string]struct{})}
	err = readAll(leads, func(r *storage.LeadRecord) {
		b.seen[r.ID] = struct{}{}
	})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("load leads: %w", err)
	}

	return b, nil
}

func (b *jsonBackend) SaveLead(ctx context.Context, lead *storage.LeadRecord) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.seen[lead.ID]; ok {
		return false, nil
	}
	if err := appendLine(b.leads, lead); err != nil {
		return false, fmt.Errorf("write lead %s: %w", lead.ID, err)
	}
	b.seen[lead.ID] = struct{}{}
	return true, nil
}

func (b *jsonBackend) QueryLeads(ctx context.Context, filter storage.LeadFilter) ([]*storage.LeadRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	results := []*storage.LeadRecord{}
	err := readAll(b.leads, func(r *storage.LeadRecord) {
		if filter.Match(r) {
			results = append(results, r)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("read leads: %w", err)
	}

	// Newest first, then strongest score.
	sort.SliceStable(results, func(i, j int) bool {
		if !results[i].FirstSeen.Equal(results[j].FirstSeen) {
			return results[i].FirstSeen.After(results[j].FirstSeen)
		}
		return results[i].Score > results[j].Score
	})

	return storage.Page(results, filter.Offset, filter.Limit), nil
}

func (b *jsonBackend) SaveReply(ctx context.Context, reply *storage.ReplyRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := appendLine(b.replies, reply); err != nil {
		return fmt.Errorf("write reply %s: %w", reply.ID, err)
	}
	return nil
}

func (b *jsonBackend) QueryReplies(ctx context.Context, filter storage.ReplyFilter) ([]*storage.ReplyRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	all, err := b.loadReplies()
	if err != nil {
		return nil, err
	}

	results := []*storage.ReplyRecord{}
	for _, r := range all {
		if filter.Match(r) {
			results = append(results, r)
		}
	}
	return storage.Page(results, filter.Offset, filter.Limit), nil
}

func (b *jsonBackend) DeleteReply(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var kept []*storage.ReplyRecord
	found := false
	err := readAll(b.replies, func(r *storage.ReplyRecord) {
		if r.ID == id {
			found = true
			return
		}
		kept = append(kept, r)
	})
	if err != nil {
		return fmt.Errorf("read replies: %w", err)
	}
	if !found {
		return fmt.Errorf("delete reply %s: %w", id, storage.ErrNotFound)
	}

	if err := b.replies.Truncate(0); err != nil {
		return fmt.Errorf("truncate replies: %w", err)
	}
	for _, r := range kept {
		if err := appendLine(b.replies, r); err != nil {
			return fmt.Errorf("rewrite replies: %w", err)
		}
	}
	return nil
}

func (b *jsonBackend) Usage(ctx context.Context, since time.Time) (storage.Usage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var u storage.Usage
	err := readAll(b.replies, func(r *storage.ReplyRecord) {
		if r.CreatedAt.Before(since) {
			return
		}
		u.Replies++
		u.TokensUsed += r.TokensUsed
	})
	if err != nil {
		return storage.Usage{}, fmt.Errorf("read replies: %w", err)
	}
	return u, nil
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	errLeads := b.leads.Close()
	errReplies := b.replies.Close()
	if errLeads != nil {
		return errLeads
	}
	return errReplies
}

// loadReplies returns every reply newest first. Records written later win
// ties on CreatedAt.
func (b *jsonBackend) loadReplies() ([]*storage.ReplyRecord, error) {
	var all []*storage.ReplyRecord
	if err := readAll(b.replies, func(r *storage.ReplyRecord) { all = append(all, r) }); err != nil {
		return nil, fmt.Errorf("read replies: %w", err)
	}

	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all, nil
}

func appendLine(f *os.File, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// readAll decodes every line of f from the start. The file offset is restored
// to the end for appends.
func readAll[T any](f *os.File, fn func(*T)) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	defer func() {
		_, _ = f.Seek(0, io.SeekEnd)
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r T
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		fn(&r)
	}
	return scanner.Err()
}
