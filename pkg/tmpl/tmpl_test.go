package tmpl

import (
	"testing"
)

func TestRender(t *testing.T) {
	actual, err := Render("greeting", "hello {{.name}}", map[string]interface{}{"name": "relkit"})
	if err != nil {
		t.Fatal(err)
	}
	expected := "hello relkit"
	if actual != expected {
		t.Errorf("unexpected render: expected=%s, got=%s", expected, actual)
	}
}

func TestRenderMissingKey(t *testing.T) {
	_, err := Render("greeting", "hello {{.nam}}", map[string]interface{}{"name": "relkit"})
	if err == nil {
		t.Error("expected error on missing key")
	}
}
