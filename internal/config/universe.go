package config

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// UniverseFile is the on-disk shape of the symbol universe.
type UniverseFile struct {
	Name    string   `yaml:"name"`
	Symbols []string `yaml:"symbols"`
}

// LoadUniverse reads the symbol list for a scan. YAML is the native format;
// .csv and .txt files are read as one symbol per row, first column, with an
// optional "symbol" header. Symbols are upper-cased, trimmed, and
// de-duplicated preserving first occurrence; an empty universe is an error
// because a scan over nothing is always a bug upstream.
func LoadUniverse(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe file %s: %w", path, err)
	}

	var listed []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		listed, err = parseSymbolRows(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse universe file %s: %w", path, err)
		}
	default:
		var uf UniverseFile
		if err := yaml.Unmarshal(data, &uf); err != nil {
			return nil, fmt.Errorf("failed to parse universe file %s: %w", path, err)
		}
		listed = uf.Symbols
	}

	seen := make(map[string]bool, len(listed))
	symbols := make([]string, 0, len(listed))
	for _, raw := range listed {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}

	if len(symbols) == 0 {
		return nil, fmt.Errorf("universe file %s contains no symbols", path)
	}
	return symbols, nil
}

// parseSymbolRows reads the first column of a csv or plain symbol list.
// A leading "symbol" header row and # comments are skipped.
func parseSymbolRows(data []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.Comment = '#'

	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell := strings.TrimSpace(row[0])
		if i == 0 && strings.EqualFold(cell, "symbol") {
			continue
		}
		out = append(out, cell)
	}
	return out, nil
}
