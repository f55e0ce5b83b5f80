package rules

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("unsupported rule file format")

// yamlRule mirrors one sheet row in a YAML rule file.
type yamlRule struct {
	Scope       string `yaml:"scope"`
	ParentID    string `yaml:"parent_id"`
	TargetID    string `yaml:"target_id"`
	MatchText   string `yaml:"match_text"`
	MatchSender string `yaml:"match_sender"`
	Priority    string `yaml:"priority"`
}

type yamlRuleFile struct {
	Rules []yamlRule `yaml:"rules"`
}

// LoadFile reads a rule file, choosing the reader by extension:
// .csv, .tsv, .yaml or .yml.
func LoadFile(path string) (Store, IngestStats, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadDelimited(path, ',')
	case ".tsv":
		return loadDelimited(path, '\t')
	case ".yaml", ".yml":
		return loadYAML(path)
	default:
		return Store{}, IngestStats{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ReadRows reads every record of a delimited source. Records may have
// differing field counts; short rows are filtered later. Empty cells keep
// their position in tab-separated input.
func ReadRows(r io.Reader, delim rune) ([][]string, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	// csv counts a tab as leading space, which would swallow blank TSV cells.
	reader.TrimLeadingSpace = delim != '\t'
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rule rows: %w", err)
	}
	return rows, nil
}

func loadDelimited(path string, delim rune) (Store, IngestStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Store{}, IngestStats{}, fmt.Errorf("open rule file: %w", err)
	}
	defer f.Close()
	rows, err := ReadRows(f, delim)
	if err != nil {
		return Store{}, IngestStats{}, err
	}
	store, stats := FromRows(rows)
	return store, stats, nil
}

func loadYAML(path string) (Store, IngestStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Store{}, IngestStats{}, fmt.Errorf("read rule file: %w", err)
	}
	var file yamlRuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Store{}, IngestStats{}, fmt.Errorf("parse rule yaml: %w", err)
	}
	rows := make([][]string, 0, len(file.Rules))
	for _, r := range file.Rules {
		rows = append(rows, []string{r.Scope, r.ParentID, r.TargetID, r.MatchText, r.MatchSender, r.Priority})
	}
	store, stats := FromDataRows(rows)
	return store, stats, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
