package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mkravets/consultrag/internal/infrastructure/lexical"
)

// record is one corpus line: {"id": "...", "title": "...", "origin": "...", "text": "..."}.
type record struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Origin string `json:"origin"`
	Text   string `json:"text"`
}

// Loader reads per-collection JSONL corpus files from a directory. Each
// <collection>.jsonl file becomes one BM25 index.
type Loader struct {
	dir    string
	params lexical.Parameters
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, params: lexical.DefaultParameters()}
}

// LoadInto builds an index for every .jsonl file in the corpus directory and
// registers it with the store. A missing directory is not an error: the
// engine can run with vector search alone.
func (l *Loader) LoadInto(store *lexical.Store) error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read corpus dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		collection := strings.TrimSuffix(entry.Name(), ".jsonl")
		docs, err := l.loadFile(filepath.Join(l.dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("load collection %s: %w", collection, err)
		}
		store.Register(collection, lexical.NewIndex(docs, l.params))
	}
	return nil
}

func (l *Loader) loadFile(path string) ([]lexical.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []lexical.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.ID == "" {
			rec.ID = fmt.Sprintf("%s#%d", filepath.Base(path), line)
		}
		docs = append(docs, lexical.Document{
			ID:     rec.ID,
			Title:  rec.Title,
			Origin: rec.Origin,
			Text:   rec.Text,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
