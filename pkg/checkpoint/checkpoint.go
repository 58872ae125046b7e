// Package checkpoint persists run state snapshots as JSON files that are
// replaced atomically, so a reader never observes a partial write.
package checkpoint

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sternrassler/patent-harvester/pkg/document"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default file names.
const (
	DefaultCheckpointFile = "found_chunks_checkpoint.json"
	DefaultFinalFile      = "found_chunks.json"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
	bufSize  = 64 * 1024
)

var (
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patent_checkpoint_writes_total",
		Help: "State file writes by kind and result",
	}, []string{"kind", "result"})

	recordsWritten = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "patent_checkpoint_records",
		Help: "Records in the last written state file by kind",
	}, []string{"kind"})
)

// FileStore writes the run state to a checkpoint file after every batch and
// to a final file once the run completes.
type FileStore struct {
	CheckpointPath string
	FinalPath      string
}

// NewFileStore creates the parent directories of both paths up front so an
// unwritable location fails before any work starts.
func NewFileStore(checkpointPath, finalPath string) (*FileStore, error) {
	if checkpointPath == "" || finalPath == "" {
		return nil, fmt.Errorf("checkpoint and final paths are required")
	}
	for _, p := range []string{checkpointPath, finalPath} {
		if err := os.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
			return nil, fmt.Errorf("create output directory for %s: %w", p, err)
		}
	}
	return &FileStore{CheckpointPath: checkpointPath, FinalPath: finalPath}, nil
}

// WriteCheckpoint overwrites the checkpoint file with state.
func (s *FileStore) WriteCheckpoint(state document.RunState) error {
	return write("checkpoint", s.CheckpointPath, state)
}

// WriteFinal overwrites the final output file with state.
func (s *FileStore) WriteFinal(state document.RunState) error {
	return write("final", s.FinalPath, state)
}

func write(kind, path string, state document.RunState) error {
	if state == nil {
		state = document.RunState{}
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		writesTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	data = append(data, '\n')

	if err := WriteFileAtomic(path, data); err != nil {
		writesTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("write %s %s: %w", kind, path, err)
	}

	writesTotal.WithLabelValues(kind, "ok").Inc()
	recordsWritten.WithLabelValues(kind).Set(float64(len(state)))
	return nil
}

// WriteFileAtomic writes data to a temporary file in the directory of dest,
// syncs it and renames it over dest.
func WriteFileAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, filePerm)

	bw := bufio.NewWriterSize(tmp, bufSize)
	if _, err := bw.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Load reads a state file written by FileStore.
func Load(path string) (document.RunState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	state := document.RunState{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", path, err)
	}
	return state, nil
}
