package assemble

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/posprint/relkit/pkg/manifest"
	"github.com/twpayne/go-vfs/vfst"
)

func newManifest() *manifest.Manifest {
	m := &manifest.Manifest{}
	m.Append(
		manifest.Entry{Name: "executable", Source: "dist/POSPrinter", Required: true},
		manifest.Entry{Name: "printer config", Source: "printer_config.json", Required: true},
		manifest.Entry{Name: "env", Source: ".env"},
		manifest.Entry{Name: "docs", Source: "docs"},
	)
	return m
}

func TestAssemble(t *testing.T) {
	fs, clean, err := vfst.NewTestFS(map[string]interface{}{
		"/proj/dist/POSPrinter":      "binary",
		"/proj/printer_config.json":  `{"printer": "EPSON"}`,
		"/proj/.env":                 "DEBUG=False",
		"/proj/docs/README.md":       "readme",
		"/proj/docs/guide/USAGE.md":  "usage",
		"/proj/release/stale":        "left over from the previous run",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer clean()

	a, err := New(FS(fs), WD("/proj"))
	if err != nil {
		t.Fatal(err)
	}

	bundle, err := a.Assemble(newManifest(), "release")
	if err != nil {
		t.Fatal(err)
	}

	expected := []string{
		".env",
		"POSPrinter",
		"docs/README.md",
		"docs/guide/USAGE.md",
		"printer_config.json",
	}
	if diff := cmp.Diff(expected, bundle.Files); diff != "" {
		t.Errorf("unexpected bundle contents: %s", diff)
	}

	// Prior contents must be destroyed
	if _, err := fs.Stat("/proj/release/stale"); !os.IsNotExist(err) {
		t.Errorf("stale file survived reassembly: err=%v", err)
	}

	data, err := fs.ReadFile("/proj/release/printer_config.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"printer": "EPSON"}` {
		t.Errorf("unexpected copied content: got=%s", string(data))
	}
}

func TestAssembleOptionalMissing(t *testing.T) {
	fs, clean, err := vfst.NewTestFS(map[string]interface{}{
		"/proj/dist/POSPrinter":     "binary",
		"/proj/printer_config.json": "{}",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer clean()

	a, err := New(FS(fs), WD("/proj"))
	if err != nil {
		t.Fatal(err)
	}

	bundle, err := a.Assemble(newManifest(), "release")
	if err != nil {
		t.Fatal(err)
	}

	expected := []string{"POSPrinter", "printer_config.json"}
	if diff := cmp.Diff(expected, bundle.Files); diff != "" {
		t.Errorf("unexpected bundle contents: %s", diff)
	}
}

func TestAssembleRequiredMissing(t *testing.T) {
	fs, clean, err := vfst.NewTestFS(map[string]interface{}{
		"/proj/dist/POSPrinter": "binary",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer clean()

	a, err := New(FS(fs), WD("/proj"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.Assemble(newManifest(), "release")
	mrf, ok := err.(*MissingRequiredFileError)
	if !ok {
		t.Fatalf("unexpected error type: %T: %v", err, err)
	}
	if mrf.Name != "printer config" {
		t.Errorf("unexpected entry in error: got=%s", mrf.Name)
	}
}

func TestAssembleIdempotent(t *testing.T) {
	fs, clean, err := vfst.NewTestFS(map[string]interface{}{
		"/proj/dist/POSPrinter":     "binary",
		"/proj/printer_config.json": "{}",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer clean()

	a, err := New(FS(fs), WD("/proj"))
	if err != nil {
		t.Fatal(err)
	}

	first, err := a.Assemble(newManifest(), "release")
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Assemble(newManifest(), "release")
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(first.Files, second.Files); diff != "" {
		t.Errorf("assembly not idempotent: %s", diff)
	}
}
