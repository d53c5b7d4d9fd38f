package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultTemplate(t *testing.T) {
	tpl := Default()

	if tpl.Prompts.System == "" {
		t.Fatalf("expected system prompt in default template")
	}
	if tpl.Parameters.Temperature != 0.2 {
		t.Fatalf("unexpected default temperature: %v", tpl.Parameters.Temperature)
	}
	if tpl.Parameters.MaxTokens != 64 {
		t.Fatalf("unexpected default max tokens: %d", tpl.Parameters.MaxTokens)
	}
}

func TestRenderSubstitutesBothPlaceholders(t *testing.T) {
	tpl := Default()

	rendered := tpl.Render("東京は晴れ", "大阪は雨")

	if !strings.Contains(rendered, "東京は晴れ") || !strings.Contains(rendered, "大阪は雨") {
		t.Fatalf("rendered prompt is missing an input text: %s", rendered)
	}
	if strings.Contains(rendered, "{text1}") || strings.Contains(rendered, "{text2}") {
		t.Fatalf("rendered prompt still contains placeholders: %s", rendered)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	var terr *TemplateError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TemplateError, got %v", err)
	}
}

func TestLoadRejectsMissingPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	content := "prompts:\n  system: sys\n  user: \"compare {text1} with nothing\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing template: %v", err)
	}

	_, err := Load(path)

	var terr *TemplateError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TemplateError, got %v", err)
	}
	if !strings.Contains(err.Error(), "{text2}") {
		t.Fatalf("error should name the missing placeholder: %v", err)
	}
}

func TestLoadAppliesParameterDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	content := "prompts:\n  user: \"{text1} vs {text2}\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing template: %v", err)
	}

	tpl, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tpl.Parameters.Temperature != 0.2 || tpl.Parameters.MaxTokens != 64 {
		t.Fatalf("expected defaults to be merged, got %+v", tpl.Parameters)
	}
}
