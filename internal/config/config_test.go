package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"flowcc/internal/ir"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
top        = "VecAdd"
sources    = ["vadd.go", "load.go"]
output_dir = "build"
format     = "yaml"
workers    = 3
standalone = true
build_tags = ["sim"]
formatter  = "gofmt"

defines = {
  Tile  = 64
  Lanes = env.LANES
}

target {
  technology = "hls"
  vendor     = "xilinx"
}

host {
  enabled = false
}

diagnostics {
  format = "json"
  color  = false
}
`)
	cfg, err := Load(path, map[string]string{"LANES": "8"})
	require.NoError(t, err)

	want := Config{
		Top:        "VecAdd",
		Sources:    []string{"vadd.go", "load.go"},
		OutputDir:  "build",
		Format:     "yaml",
		Workers:    3,
		Standalone: true,
		BuildTags:  []string{"sim"},
		Formatter:  "gofmt",
		Defines:    map[string]int64{"Tile": 64, "Lanes": 8},
		Target:     ir.DefaultTarget,
		HostShim:   false,
		DiagFormat: "json",
		Color:      false,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `top = "Top"`), nil)
	require.NoError(t, err)
	def := Default()
	def.Top = "Top"
	if diff := cmp.Diff(def, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"syntax", `top = `, "failed to parse"},
		{"unknown attribute", `speed = 3`, "failed to decode"},
		{"bad format", `format = "toml"`, `format must be "json" or "yaml"`},
		{"fractional define", `defines = { N = 1.5 }`, "define N must be a 64-bit integer"},
		{"string define", `defines = { N = "many" }`, "define N must be a number"},
		{"list defines", `defines = [1, 2]`, "defines must be an object"},
		{"missing env", `defines = { N = env.N }`, "failed to evaluate defines"},
		{"negative workers", `workers = -1`, "workers must not be negative"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body), nil)
			require.ErrorContains(t, err, tc.want)
		})
	}
}
