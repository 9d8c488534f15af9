package engine

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"onecam/internal/domain"
)

// Template variable names.
const (
	VarPrompt = "prompt"
	VarImage  = "image"
)

//go:embed workflows/img2img.json
var defaultWorkflow []byte

// Binding points a template variable at one input of one graph node.
type Binding struct {
	Node  string `json:"node"`
	Input string `json:"input"`
}

// Template is a job graph with named substitution points. The graph is kept
// as raw JSON so every Build starts from an untouched copy.
type Template struct {
	Name     string
	graph    json.RawMessage
	bindings map[string]Binding
}

type templateFile struct {
	Name     string             `json:"name"`
	Bindings map[string]Binding `json:"bindings"`
	Graph    json.RawMessage    `json:"graph"`
}

// DefaultTemplate returns the embedded image-to-image workflow.
func DefaultTemplate() (*Template, error) {
	return ParseTemplate(defaultWorkflow)
}

// LoadTemplate reads a workflow file from disk, or the embedded default when
// path is empty.
func LoadTemplate(path string) (*Template, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTemplate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read workflow: %w", err)
	}
	tpl, err := ParseTemplate(raw)
	if err != nil {
		return nil, fmt.Errorf("engine: workflow %s: %w", path, err)
	}
	return tpl, nil
}

// ParseTemplate decodes a workflow document and checks that every binding
// resolves to an existing node input.
func ParseTemplate(raw []byte) (*Template, error) {
	var file templateFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	if len(file.Graph) == 0 {
		return nil, errors.New("workflow graph is empty")
	}
	for _, name := range []string{VarPrompt, VarImage} {
		if _, ok := file.Bindings[name]; !ok {
			return nil, fmt.Errorf("workflow binding %q missing", name)
		}
	}
	tpl := &Template{Name: file.Name, graph: file.Graph, bindings: file.Bindings}
	if _, err := tpl.build(nil); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Variables lists the binding names in sorted order.
func (t *Template) Variables() []string {
	names := make([]string, 0, len(t.bindings))
	for name := range t.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build returns a fresh job document with every bound input replaced by the
// matching value in vars. All bindings must be supplied.
func (t *Template) Build(vars map[string]string) (domain.JobDocument, error) {
	for _, name := range t.Variables() {
		if _, ok := vars[name]; !ok {
			return nil, fmt.Errorf("engine: template variable %q not supplied", name)
		}
	}
	return t.build(vars)
}

func (t *Template) build(vars map[string]string) (domain.JobDocument, error) {
	// UseNumber keeps large integer inputs such as seeds exact.
	dec := json.NewDecoder(bytes.NewReader(t.graph))
	dec.UseNumber()
	var doc domain.JobDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode workflow graph: %w", err)
	}
	for _, name := range t.Variables() {
		b := t.bindings[name]
		node, ok := doc[b.Node].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("binding %q: node %q not in graph", name, b.Node)
		}
		inputs, ok := node["inputs"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("binding %q: node %q has no inputs", name, b.Node)
		}
		if _, ok := inputs[b.Input]; !ok {
			return nil, fmt.Errorf("binding %q: node %q has no input %q", name, b.Node, b.Input)
		}
		if vars != nil {
			inputs[b.Input] = vars[name]
		}
	}
	return doc, nil
}
