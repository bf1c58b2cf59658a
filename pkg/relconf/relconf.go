package relconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/posprint/relkit/pkg/manifest"
	"github.com/posprint/relkit/pkg/packager"
	"github.com/twpayne/go-vfs"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultFileName is looked up in the working directory when no config
	// path is given. A missing file is not an error: every field has a
	// default that reproduces the stock POSPrinter build.
	DefaultFileName = "relkit.yaml"

	DefaultProduct = "POSPrinter"
	DefaultEntry   = "main.py"
)

var defaultHiddenImports = []string{
	"PySide6.QtCore",
	"PySide6.QtWidgets",
	"PySide6.QtGui",
	"websockets",
	"requests",
	"python_escpos",
	"psutil",
	"usb",
	"serial",
}

// The stock build embeds the src tree and the printer config into the
// executable itself, on top of whatever the distribution manifest ships
// alongside it.
var defaultAddData = []string{
	"src:src",
	"printer_config.json:.",
}

type Packaging struct {
	Mode          string   `yaml:"mode"`
	IncludeLibusb bool     `yaml:"includeLibusb"`
	Windowed      *bool    `yaml:"windowed"`
	AddData       []string `yaml:"addData"`
	HiddenImports []string `yaml:"hiddenImports"`
}

// File is one entry of the distribution manifest as written in the config
// file. Dest defaults to the source's base name.
type File struct {
	Name     string `yaml:"name"`
	Source   string `yaml:"source"`
	Dest     string `yaml:"dest"`
	Required bool   `yaml:"required"`
}

type Config struct {
	Product  string `yaml:"product"`
	Entry    string `yaml:"entry"`
	Icon     string `yaml:"icon"`
	SpecFile string `yaml:"specFile"`

	Packaging Packaging `yaml:"packaging"`

	Manifest []File   `yaml:"manifest"`
	Docs     []string `yaml:"docs"`
}

var schema = map[string]interface{}{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]interface{}{
		"product":  map[string]interface{}{"type": "string"},
		"entry":    map[string]interface{}{"type": "string"},
		"icon":     map[string]interface{}{"type": "string"},
		"specFile": map[string]interface{}{"type": "string"},
		"packaging": map[string]interface{}{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]interface{}{
				"mode":          map[string]interface{}{"type": "string", "enum": []string{"onefile", "onedir"}},
				"includeLibusb": map[string]interface{}{"type": "boolean"},
				"windowed":      map[string]interface{}{"type": "boolean"},
				"addData":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"hiddenImports": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			},
		},
		"manifest": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"name", "source"},
				"properties": map[string]interface{}{
					"name":     map[string]interface{}{"type": "string"},
					"source":   map[string]interface{}{"type": "string"},
					"dest":     map[string]interface{}{"type": "string"},
					"required": map[string]interface{}{"type": "boolean"},
				},
			},
		},
		"docs": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
	},
}

// Load reads and validates the config at path. A missing file yields the
// stock defaults. An invalid file is an error, never silently corrected.
func Load(fs vfs.FS, path string) (*Config, error) {
	conf := &Config{}

	bytes, err := fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(conf)
			return conf, nil
		}
		return nil, err
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(bytes, &raw); err != nil {
		return nil, fmt.Errorf("loading %s: %v", path, err)
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	docLoader := gojsonschema.NewGoLoader(raw)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("validate: %v", err)
	}
	if !result.Valid() {
		msgs := []string{}
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid config %s: %s", path, strings.Join(msgs, "; "))
	}

	if err := yaml.Unmarshal(bytes, conf); err != nil {
		return nil, fmt.Errorf("loading %s: %v", path, err)
	}

	applyDefaults(conf)

	return conf, nil
}

func applyDefaults(conf *Config) {
	if conf.Product == "" {
		conf.Product = DefaultProduct
	}
	if conf.Entry == "" {
		conf.Entry = DefaultEntry
	}
	if conf.Packaging.Mode == "" {
		conf.Packaging.Mode = string(packager.OneFile)
	}
	if conf.Packaging.Windowed == nil {
		windowed := true
		conf.Packaging.Windowed = &windowed
	}
	if conf.Packaging.AddData == nil {
		conf.Packaging.AddData = defaultAddData
	}
	if conf.Packaging.HiddenImports == nil {
		conf.Packaging.HiddenImports = defaultHiddenImports
	}
	if conf.Manifest == nil {
		conf.Manifest = []File{
			{Name: "printer config", Source: "printer_config.json", Required: true},
			{Name: "environment file", Source: ".env", Required: false},
		}
	}
	if conf.Packaging.IncludeLibusb {
		conf.Manifest = append(conf.Manifest, File{
			Name:     "libusb runtime",
			Source:   "libusb-1.0.dll",
			Required: false,
		})
	}
}

// BuildSpec translates the config into the packager invocation.
func (c *Config) BuildSpec() packager.BuildSpec {
	return packager.BuildSpec{
		SpecFile:      c.SpecFile,
		Product:       c.Product,
		Entry:         c.Entry,
		Icon:          c.Icon,
		Mode:          packager.Mode(c.Packaging.Mode),
		Windowed:      *c.Packaging.Windowed,
		AddData:       c.Packaging.AddData,
		HiddenImports: c.Packaging.HiddenImports,
	}
}

// BundleManifest translates the config's manifest and docs lists into the
// assembler's manifest. Docs land under a docs/ subdirectory of the bundle.
func (c *Config) BundleManifest() manifest.Manifest {
	m := manifest.Manifest{}
	for _, f := range c.Manifest {
		m.Append(manifest.Entry{
			Name:     f.Name,
			Source:   f.Source,
			Dest:     f.Dest,
			Required: f.Required,
		})
	}
	for _, d := range c.Docs {
		m.Append(manifest.Entry{
			Name:     d,
			Source:   d,
			Dest:     "docs/" + filepath.Base(d),
			Required: false,
		})
	}
	return m
}
