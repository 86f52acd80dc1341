package topology

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Document is the on-disk form of a topology: ordered node and edge lists.
type Document struct {
	Directed bool   `json:"directed" yaml:"directed"`
	Nodes    []Node `json:"nodes" yaml:"nodes"`
	Edges    []Edge `json:"edges" yaml:"edges"`
}

// Build validates the document and returns a fresh topology.
func (d *Document) Build() (*Topology, error) {
	return New(d.Nodes, d.Edges, d.Directed)
}

// NewDocument captures the static part of t. Residual capacities are not persisted.
func NewDocument(t *Topology) *Document {
	return &Document{
		Directed: t.Directed(),
		Nodes:    t.Nodes(),
		Edges:    t.Edges(),
	}
}

// DecodeFile reads path into v, choosing JSON or YAML by the file extension.
func DecodeFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if isJSON(path) {
		err = json.Unmarshal(data, v)
	} else {
		err = yaml.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// EncodeFile writes v to path, choosing JSON or YAML by the file extension.
func EncodeFile(path string, v interface{}) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = yaml.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// Load reads a topology document from path and builds it.
func Load(path string) (*Topology, error) {
	var doc Document
	if err := DecodeFile(path, &doc); err != nil {
		return nil, err
	}
	t, err := doc.Build()
	if err != nil {
		return nil, fmt.Errorf("topology file %s: %w", path, err)
	}
	log.Infof("topology.Load: loaded %s, node num: %d, edge num: %d", path, t.NodeCount(), t.EdgeCount())
	return t, nil
}

// Save writes the static part of t to path.
func Save(path string, t *Topology) error {
	return EncodeFile(path, NewDocument(t))
}
