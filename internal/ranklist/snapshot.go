package ranklist

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

// ObjectSource opens a named snapshot object.
type ObjectSource interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Snapshot is an immutable rank table loaded from a "rank,domain" CSV.
type Snapshot struct {
	ranks map[string]int
}

// ParseSnapshot reads a Tranco style CSV. Blank lines and a header row are
// skipped; duplicate domains keep the best rank.
func ParseSnapshot(r io.Reader) (*Snapshot, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	ranks := make(map[string]int)
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read snapshot line %d: %w", line, err)
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("snapshot line %d: expected rank,domain", line)
		}
		rank, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("snapshot line %d: bad rank %q", line, record[0])
		}
		domain := strings.ToLower(strings.TrimSpace(record[1]))
		if rank <= 0 || domain == "" {
			continue
		}
		if prev, ok := ranks[domain]; !ok || rank < prev {
			ranks[domain] = rank
		}
	}
	return &Snapshot{ranks: ranks}, nil
}

// LoadSnapshot opens name from src and parses it.
func LoadSnapshot(ctx context.Context, src ObjectSource, name string) (*Snapshot, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", name, err)
	}
	defer rc.Close()
	snap, err := ParseSnapshot(rc)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", name, err)
	}
	return snap, nil
}

// Len returns the number of listed domains.
func (s *Snapshot) Len() int {
	return len(s.ranks)
}

// Rank looks up domain, falling back to its registrable domain since the
// list ranks registrable domains only.
func (s *Snapshot) Rank(_ context.Context, domain string) (int, error) {
	if rank, ok := s.ranks[domain]; ok {
		return rank, nil
	}
	if base, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil && base != domain {
		if rank, ok := s.ranks[base]; ok {
			return rank, nil
		}
	}
	return 0, traffic.ErrNotListed
}
