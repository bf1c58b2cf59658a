package tmpl

import (
	"bytes"
	"text/template"
)

func Render(name, text string, data interface{}) (string, error) {
	return RenderFuncs(name, text, data, nil)
}

// RenderFuncs renders text with missingkey=error so that a typo'd
// placeholder fails the generation instead of emitting "<no value>" into a
// script someone will later run as root.
func RenderFuncs(name, text string, data interface{}, funcs template.FuncMap) (string, error) {
	tpl := template.New(name).Option("missingkey=error")
	if funcs != nil {
		tpl = tpl.Funcs(funcs)
	}
	tpl, err := tpl.Parse(text)
	if err != nil {
		return "", err
	}
	buf := &bytes.Buffer{}
	if err := tpl.Execute(buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
