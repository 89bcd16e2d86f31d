package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Writer persists run artifacts under a base directory:
//
//	<dir>/runs/<run_id>.json   one file per run
//	<dir>/latest.json          always the most recent run
//
// Both files are written via temp file + rename so readers never observe a
// half-written artifact.
type Writer struct {
	dir string
}

// NewWriter returns a writer rooted at dir. The directory is created on
// first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the base directory artifacts are written under.
func (w *Writer) Dir() string { return w.dir }

// WriteRun serializes the artifact and installs it as both the per-run file
// and latest.json. Non-finite floats are sanitized first; a marshal failure
// leaves any previous artifact untouched.
func (w *Writer) WriteRun(a RunArtifact) (string, error) {
	if err := validateRunID(a.RunID); err != nil {
		return "", err
	}

	Sanitize(&a)
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run artifact: %w", err)
	}
	data = append(data, '\n')

	runPath := filepath.Join(w.dir, "runs", a.RunID+".json")
	if err := writeFileAtomic(runPath, data); err != nil {
		return "", fmt.Errorf("failed to write run artifact: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(w.dir, "latest.json"), data); err != nil {
		return "", fmt.Errorf("failed to update latest artifact: %w", err)
	}
	return runPath, nil
}

// ReadLatest loads the most recent artifact.
func (w *Writer) ReadLatest() (RunArtifact, error) {
	return readArtifact(filepath.Join(w.dir, "latest.json"))
}

// ReadRun loads the artifact for a specific run ID.
func (w *Writer) ReadRun(runID string) (RunArtifact, error) {
	if err := validateRunID(runID); err != nil {
		return RunArtifact{}, err
	}
	return readArtifact(filepath.Join(w.dir, "runs", runID+".json"))
}

func readArtifact(path string) (RunArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunArtifact{}, fmt.Errorf("failed to read artifact: %w", err)
	}
	var a RunArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return RunArtifact{}, fmt.Errorf("failed to parse artifact %s: %w", filepath.Base(path), err)
	}
	return a, nil
}

// validateRunID keeps run IDs usable as file names and blocks path escapes,
// since IDs arrive via the HTTP API as well as the pipeline.
func validateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("run ID is empty")
	}
	if strings.ContainsAny(runID, `/\`) || runID != filepath.Base(runID) || strings.HasPrefix(runID, ".") {
		return fmt.Errorf("invalid run ID %q", runID)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
