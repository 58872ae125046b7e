package shard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestFileName(t *testing.T) {
	if got := FileName(0); got != "shard_001.json" {
		t.Errorf("FileName(0) = %q", got)
	}
	if got := FileName(24); got != "shard_025.json" {
		t.Errorf("FileName(24) = %q", got)
	}
}

func TestSize(t *testing.T) {
	if got := Size(raw(`{ "a" : 1 }`)); got != len(`{"a":1}`)+2 {
		t.Errorf("Size() = %d", got)
	}
}

func TestSplit(t *testing.T) {
	items := []json.RawMessage{
		raw(`"aaaaaaaaaa"`), // 12 + 2
		raw(`"a"`),          // 3 + 2
		raw(`"aaaaa"`),      // 7 + 2
		raw(`"aaaaaaaa"`),   // 10 + 2
	}

	shards, sizes, err := Split(items, 2)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	// 14 -> shard 0, 12 -> shard 1, 9 -> shard 1 (12 < 14), 5 -> shard 0 (14 < 21)
	want := [][]string{
		{`"aaaaaaaaaa"`, `"a"`},
		{`"aaaaaaaa"`, `"aaaaa"`},
	}
	for i := range want {
		if len(shards[i]) != len(want[i]) {
			t.Fatalf("shard %d = %s", i, shards[i])
		}
		for j := range want[i] {
			if string(shards[i][j]) != want[i][j] {
				t.Errorf("shard %d item %d = %s, want %s", i, j, shards[i][j], want[i][j])
			}
		}
	}
	if sizes[0] != 19 || sizes[1] != 21 {
		t.Errorf("sizes = %v, want [19 21]", sizes)
	}
}

func TestSplit_TiesGoToLowestIndex(t *testing.T) {
	items := []json.RawMessage{raw(`1`), raw(`2`), raw(`3`)}
	shards, _, err := Split(items, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"1", "2", "3"} {
		if len(shards[i]) != 1 || string(shards[i][0]) != want {
			t.Errorf("shard %d = %s, want [%s]", i, shards[i], want)
		}
	}
	if len(shards[3]) != 0 || len(shards[4]) != 0 {
		t.Error("trailing shards should be empty")
	}
}

func TestSplit_InvalidCount(t *testing.T) {
	if _, _, err := Split(nil, 0); err == nil {
		t.Error("expected error for zero shards")
	}
}

func TestCollectSaveMerge(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"a.json":   `[{"id": "P1"}, {"id": "P2"}]`,
		"b.json":   `{"id": "P3"}`,
		"bad.json": `{"id": `,
		"note.txt": `ignored`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(src, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	items, err := Collect(src)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}

	shards, _, err := Split(items, 2)
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "shards")
	paths, err := Save(out, shards)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(paths) != 2 || filepath.Base(paths[1]) != "shard_002.json" {
		t.Errorf("paths = %v", paths)
	}

	merged := filepath.Join(t.TempDir(), "dataset.json")
	n, err := Merge(out, merged)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if n != 3 {
		t.Errorf("merged items = %d, want 3", n)
	}

	data, err := os.ReadFile(merged)
	if err != nil {
		t.Fatal(err)
	}
	var back []map[string]string
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("merged file is not an array: %v", err)
	}
	seen := map[string]bool{}
	for _, obj := range back {
		seen[obj["id"]] = true
	}
	if !seen["P1"] || !seen["P2"] || !seen["P3"] {
		t.Errorf("merged ids = %v", seen)
	}
	if strings.Contains(string(data), "null") {
		t.Error("merged output contains null")
	}
}
