package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "votebot/pkg/logx"
)

// fileStore is a dependency-free journal backend.
//
// Votes live in <prefix>.votes.jsonl as append-only JSON Lines. Pruning
// rewrites the file through a temp file + rename so a crash mid-prune never
// loses the journal.
type fileStore struct {
	log logx.Logger

	mu    sync.Mutex
	path  string
	votes *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	votesPath := filepath.Join(dir, base) + ".votes.jsonl"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(votesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{log: log, path: votesPath, votes: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.votes == nil {
		return nil
	}
	err := s.votes.Close()
	s.votes = nil
	return err
}

func (s *fileStore) AppendVote(ctx context.Context, r VoteRecord) error {
	_ = ctx
	if r.At.IsZero() {
		r.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.votes == nil {
		return errors.New("vote journal closed")
	}
	return json.NewEncoder(s.votes).Encode(r)
}

func (s *fileStore) RecentVotes(ctx context.Context, limit int) ([]VoteRecord, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAllLocked()
	if err != nil {
		return nil, err
	}

	// Newest last on disk; return newest first.
	out := make([]VoteRecord, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *fileStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAllLocked()
	if err != nil {
		return 0, err
	}

	keep := all[:0]
	var dropped int64
	for _, r := range all {
		if r.At.Before(cutoff) {
			dropped++
			continue
		}
		keep = append(keep, r)
	}
	if dropped == 0 {
		return 0, nil
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(f)
	for _, r := range keep {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return 0, err
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}

	if s.votes != nil {
		_ = s.votes.Close()
		s.votes = nil
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return 0, err
	}
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return dropped, err
	}
	s.votes = nf

	s.log.Debug("vote journal pruned", logx.Int64("dropped", dropped))
	return dropped, nil
}

func (s *fileStore) readAllLocked() ([]VoteRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []VoteRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r VoteRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			// Skip torn/corrupt lines rather than failing the whole read.
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
