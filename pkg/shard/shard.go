// Package shard regroups harvested JSON documents into a fixed number of
// size-balanced shard files and merges shard files back together.
package shard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Sternrassler/patent-harvester/pkg/checkpoint"
	"github.com/rs/zerolog/log"
)

// FileName returns the file name of the shard at zero-based index i.
func FileName(i int) string {
	return fmt.Sprintf("shard_%03d.json", i+1)
}

// Size estimates the serialised size of item: its compact JSON plus two
// bytes for the separator and indentation.
func Size(item json.RawMessage) int {
	var buf bytes.Buffer
	if err := json.Compact(&buf, item); err != nil {
		return len(item) + 2
	}
	return buf.Len() + 2
}

// Collect reads every *.json file of dirs in name order. A file holding an
// array contributes its elements; any other value is one item. Unreadable
// files are logged and skipped.
func Collect(dirs ...string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	for _, dir := range dirs {
		files, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		sort.Strings(files)

		for _, name := range files {
			got, err := readItems(name)
			if err != nil {
				log.Warn().Err(err).Str("file", name).Msg("Skipping unreadable JSON file")
				continue
			}
			items = append(items, got...)
		}
	}
	return items, nil
}

func readItems(name string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("invalid JSON")
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}

// Split distributes items over n shards, largest first, always into the
// shard with the smallest running size. Ties go to the lowest index.
// It returns the shards and their estimated sizes.
func Split(items []json.RawMessage, n int) ([][]json.RawMessage, []int, error) {
	if n < 1 {
		return nil, nil, fmt.Errorf("shard count must be >= 1 (got %d)", n)
	}

	type sized struct {
		item json.RawMessage
		size int
	}
	ordered := make([]sized, len(items))
	for i, it := range items {
		ordered[i] = sized{item: it, size: Size(it)}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].size > ordered[j].size
	})

	shards := make([][]json.RawMessage, n)
	sizes := make([]int, n)
	for i := range shards {
		shards[i] = []json.RawMessage{}
	}
	for _, it := range ordered {
		idx := 0
		for i := 1; i < n; i++ {
			if sizes[i] < sizes[idx] {
				idx = i
			}
		}
		shards[idx] = append(shards[idx], it.item)
		sizes[idx] += it.size
	}
	return shards, sizes, nil
}

// Save writes each shard to dir as shard_001.json, shard_002.json, ...
// and returns the written paths.
func Save(dir string, shards [][]json.RawMessage) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create shard directory: %w", err)
	}

	paths := make([]string, 0, len(shards))
	for i, s := range shards {
		path := filepath.Join(dir, FileName(i))
		if err := writeJSON(path, s); err != nil {
			return paths, err
		}
		log.Info().Str("file", path).Int("items", len(s)).Msg("Shard written")
		paths = append(paths, path)
	}
	return paths, nil
}

// Merge concatenates the items of every *.json file in dir into a single
// array written to out. It returns the number of items written.
func Merge(dir, out string) (int, error) {
	items, err := Collect(dir)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}
	if err := writeJSON(out, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

func writeJSON(path string, items []json.RawMessage) error {
	if items == nil {
		items = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := checkpoint.WriteFileAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
