package archive

import (
	"archive/zip"
	"bytes"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/twpayne/go-vfs/vfst"
)

func TestName(t *testing.T) {
	actual := Name("POSPrinter", "1.2.16")
	expected := "POSPrinter_v1.2.16.zip"
	if actual != expected {
		t.Errorf("unexpected archive name: expected=%s, got=%s", expected, actual)
	}
}

func TestZip(t *testing.T) {
	fs, clean, err := vfst.NewTestFS(map[string]interface{}{
		"/proj/release/POSPrinter":          "binary",
		"/proj/release/printer_config.json": "{}",
		"/proj/release/docs/README.md":      "readme",
		"/proj/POSPrinter_v1.2.16.zip":      "stale archive to be overwritten",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer clean()

	if err := Zip(fs, "/proj/release", "/proj/POSPrinter_v1.2.16.zip"); err != nil {
		t.Fatal(err)
	}

	data, err := fs.ReadFile("/proj/POSPrinter_v1.2.16.zip")
	if err != nil {
		t.Fatal(err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)

	expected := []string{"POSPrinter", "docs/README.md", "printer_config.json"}
	if diff := cmp.Diff(expected, names); diff != "" {
		t.Errorf("unexpected archive contents: %s", diff)
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	content := &bytes.Buffer{}
	if _, err := content.ReadFrom(rc); err != nil {
		t.Fatal(err)
	}
	if content.String() != "binary" {
		t.Errorf("unexpected member content: got=%s", content.String())
	}
}
