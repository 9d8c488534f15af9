package engine

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDefaultTemplateBuildSubstitutesBindings(t *testing.T) {
	tpl, err := DefaultTemplate()
	if err != nil {
		t.Fatalf("DefaultTemplate error: %v", err)
	}
	doc, err := tpl.Build(map[string]string{VarPrompt: "a red fox", VarImage: "cam_0001.png"})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	text := doc["6"].(map[string]any)["inputs"].(map[string]any)["text"]
	if text != "a red fox" {
		t.Fatalf("prompt not substituted: %v", text)
	}
	image := doc["13"].(map[string]any)["inputs"].(map[string]any)["image"]
	if image != "cam_0001.png" {
		t.Fatalf("image not substituted: %v", image)
	}
	negative := doc["7"].(map[string]any)["inputs"].(map[string]any)["text"]
	if negative != "text, watermark" {
		t.Fatalf("unbound node changed: %v", negative)
	}
}

func TestBuildDoesNotLeakBetweenCalls(t *testing.T) {
	tpl, err := DefaultTemplate()
	if err != nil {
		t.Fatalf("DefaultTemplate error: %v", err)
	}
	first, err := tpl.Build(map[string]string{VarPrompt: "first", VarImage: "a.png"})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	first["6"].(map[string]any)["inputs"].(map[string]any)["clip"] = "mutated"

	second, err := tpl.Build(map[string]string{VarPrompt: "second", VarImage: "b.png"})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if _, ok := second["6"].(map[string]any)["inputs"].(map[string]any)["clip"].([]any); !ok {
		t.Fatalf("second build saw mutation from first")
	}
}

func TestBuildKeepsSeedExact(t *testing.T) {
	tpl, err := DefaultTemplate()
	if err != nil {
		t.Fatalf("DefaultTemplate error: %v", err)
	}
	doc, err := tpl.Build(map[string]string{VarPrompt: "p", VarImage: "i.png"})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	raw, err := json.Marshal(doc["3"])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"seed":331335407035282`) {
		t.Fatalf("seed not preserved: %s", raw)
	}
}

func TestBuildRequiresAllVariables(t *testing.T) {
	tpl, err := DefaultTemplate()
	if err != nil {
		t.Fatalf("DefaultTemplate error: %v", err)
	}
	if _, err := tpl.Build(map[string]string{VarPrompt: "only prompt"}); err == nil {
		t.Fatalf("expected error for missing image variable")
	}
}

func TestParseTemplateRejectsDanglingBinding(t *testing.T) {
	raw := []byte(`{
		"bindings": {"prompt": {"node": "1", "input": "text"}, "image": {"node": "9", "input": "image"}},
		"graph": {"1": {"inputs": {"text": ""}}}
	}`)
	if _, err := ParseTemplate(raw); err == nil {
		t.Fatalf("expected error for binding to missing node")
	}

	raw = []byte(`{
		"bindings": {"prompt": {"node": "1", "input": "text"}, "image": {"node": "1", "input": "picture"}},
		"graph": {"1": {"inputs": {"text": ""}}}
	}`)
	if _, err := ParseTemplate(raw); err == nil {
		t.Fatalf("expected error for binding to missing input")
	}
}

func TestParseTemplateRequiresBindings(t *testing.T) {
	raw := []byte(`{"bindings": {"prompt": {"node": "1", "input": "text"}}, "graph": {"1": {"inputs": {"text": ""}}}}`)
	if _, err := ParseTemplate(raw); err == nil {
		t.Fatalf("expected error when image binding is missing")
	}
}
