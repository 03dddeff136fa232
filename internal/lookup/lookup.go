// Package lookup reads and writes the lookup document JSON file that bridges
// discovery and download.
package lookup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
)

// FileName returns event_lookup__<start>__<end>__<TYPE>.json with the date
// separators replaced by underscores.
func FileName(start, end crawler.Date, eventType crawler.EventType) string {
	return fmt.Sprintf("event_lookup__%s__%s__%s.json",
		strings.ReplaceAll(start.String(), "-", "_"),
		strings.ReplaceAll(end.String(), "-", "_"),
		eventType.Value(),
	)
}

// Save writes doc to dir/name through a temporary file and a rename, so a
// reader never sees a half-written document. An empty dir means the working
// directory. It returns the final path.
func Save(dir, name string, doc crawler.LookupDocument) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		dir = wd
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create lookup directory: %w", err)
	}
	if doc == nil {
		doc = crawler.LookupDocument{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode lookup document: %w", err)
	}

	path := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp lookup file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write lookup file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close lookup file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("rename lookup file: %w", err)
	}
	return path, nil
}

// Load reads a lookup document written by Save.
func Load(path string) (crawler.LookupDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lookup file: %w", err)
	}
	var doc crawler.LookupDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode lookup file %s: %w", path, err)
	}
	if doc == nil {
		doc = crawler.LookupDocument{}
	}
	return doc, nil
}
