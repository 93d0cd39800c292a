package main

import (
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

func TestLoadConfigDiscoversFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "app.asm")
	conf := "[capability]\ninterface = \"Demo.ICloseable\"\nmethod = \"Close\"\n"
	if err := os.WriteFile(filepath.Join(dir, "autodispose.toml"), []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(options{verify: true}, input)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Capability.Interface != "Demo.ICloseable" || cfg.Capability.Method != "Close" {
		t.Errorf("capability = %+v", cfg.Capability)
	}
	if !cfg.Verify {
		t.Error("-verify not applied")
	}
}

func TestLoadConfigMissingReference(t *testing.T) {
	_, err := loadConfig(options{refs: filepath.Join(t.TempDir(), "missing.adm")}, "app.adm")
	if err == nil {
		t.Fatal("missing reference accepted")
	}
}

func TestRunInteractiveNeedsTerminal(t *testing.T) {
	input := filepath.Join(t.TempDir(), "app.asm")
	if err := os.WriteFile(input, []byte("module App\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := run(options{asmFile: input, interactive: true}, zap.NewNop())
	if err == nil || err.Error() != "interactive mode needs a terminal" {
		t.Errorf("err = %v", err)
	}
}

func TestInteractiveFilter(t *testing.T) {
	m := newInteractiveModel("app.asm", []methodView{
		{name: "App.Program::Main", regions: 1},
		{name: "App.Program::Run"},
		{name: "App.Worker::Run", regions: 2},
	})
	if len(m.visible) != 3 {
		t.Fatalf("visible = %v", m.visible)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if m.selected != 2 {
		t.Fatalf("selected = %d", m.selected)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	for _, r := range "worker" {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	if len(m.visible) != 1 || m.current().name != "App.Worker::Run" {
		t.Errorf("filtered to %v", m.visible)
	}
}
