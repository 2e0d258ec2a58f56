package internal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Record is one line of a pool export: an item with its precomputed
// uncertainty and embedding.
type Record struct {
	Name        string    `json:"name"`
	Uncertainty *float64  `json:"uncertainty"`
	Embedding   []float64 `json:"embedding"`
}

const maxRecordBytes = 64 << 20

// ReadRecords parses newline-delimited JSON records. Blank lines are skipped.
func ReadRecords(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)

	var records []Record
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidArgument, line, err)
		}
		if rec.Uncertainty == nil {
			return nil, fmt.Errorf("%w: line %d: missing uncertainty", ErrInvalidArgument, line)
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	return records, nil
}

func ReadRecordsFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadRecords(f)
}

var (
	_ UncertaintyOracle = (*StaticSource)(nil)
	_ EmbeddingProducer = (*StaticSource)(nil)
)

// StaticSource answers oracle and producer queries from records computed
// elsewhere.
type StaticSource struct {
	names  []Name
	byName map[Name]Record
}

func NewStaticSource(records []Record) (*StaticSource, error) {
	s := &StaticSource{byName: make(map[Name]Record, len(records))}
	for _, rec := range records {
		name, err := NewName(rec.Name)
		if err != nil {
			return nil, err
		}
		if _, dup := s.byName[name]; dup {
			return nil, fmt.Errorf("%w: item %q appears twice", ErrAlreadyExists, name)
		}
		s.byName[name] = rec
		s.names = append(s.names, name)
	}
	return s, nil
}

// Names lists the items in record order.
func (s *StaticSource) Names() []Name {
	return s.names
}

func (s *StaticSource) Score(ctx context.Context, names []Name) ([]float64, error) {
	out := make([]float64, len(names))
	for i, n := range names {
		rec, ok := s.byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: item %q", ErrNotFound, n)
		}
		out[i] = *rec.Uncertainty
	}
	return out, nil
}

func (s *StaticSource) Embed(ctx context.Context, names []Name) ([][]float64, error) {
	out := make([][]float64, len(names))
	for i, n := range names {
		rec, ok := s.byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: item %q", ErrNotFound, n)
		}
		out[i] = rec.Embedding
	}
	return out, nil
}
