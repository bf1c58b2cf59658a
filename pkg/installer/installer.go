package installer

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/posprint/relkit/pkg/tmpl"
	"k8s.io/klog/klogr"
)

// Platform supplies everything that differs between operating systems:
// the script dialect, the privilege-check/elevated-relaunch idiom, the
// shortcut (or desktop-entry) primitives, and the install location. The
// synthesizer itself carries no platform knowledge, so adding a target is
// a matter of implementing this interface.
type Platform interface {
	Name() string
	ScriptExt() string
	ExeName(product string) string
	DefaultInstallDir(product string) string

	// InstallTemplate and UninstallTemplate return the full script template
	// for this platform, rendered with Params.
	InstallTemplate() string
	UninstallTemplate() string
}

// Params parameterizes the generated scripts. Everything else in them is
// literal text.
type Params struct {
	Version       string
	Product       string
	Exe           string
	InstallDir    string
	ShortcutLabel string
	DesktopFile   string
}

// Scripts holds the two synthesized scripts. They are written into the
// distribution bundle to be run later, detached from the pipeline; the
// pipeline never executes them.
type Scripts struct {
	Install       string
	Uninstall     string
	InstallName   string
	UninstallName string
}

type Synthesizer struct {
	Product string
	Exe     string

	Logger logr.Logger

	platform Platform
}

type Option interface {
	SetOption(s *Synthesizer) error
}

func Logger(logger logr.Logger) Option {
	return &loggerOption{l: logger}
}

type loggerOption struct {
	l logr.Logger
}

func (o *loggerOption) SetOption(s *Synthesizer) error {
	s.Logger = o.l
	return nil
}

func ForPlatform(p Platform) Option {
	return &platformOption{p: p}
}

type platformOption struct {
	p Platform
}

func (o *platformOption) SetOption(s *Synthesizer) error {
	s.platform = o.p
	return nil
}

func Product(name string) Option {
	return &productOption{n: name}
}

type productOption struct {
	n string
}

func (o *productOption) SetOption(s *Synthesizer) error {
	s.Product = o.n
	return nil
}

func New(opts ...Option) (*Synthesizer, error) {
	s := &Synthesizer{}

	for _, o := range opts {
		if err := o.SetOption(s); err != nil {
			return nil, err
		}
	}

	if s.Logger == nil {
		s.Logger = klogr.New()
	}

	if s.platform == nil {
		s.platform = &Windows{}
	}

	if s.Product == "" {
		return nil, fmt.Errorf("installer: product name is required")
	}

	if s.Exe == "" {
		s.Exe = s.platform.ExeName(s.Product)
	}

	return s, nil
}

// Synthesize renders the install and uninstall scripts for version. The
// scripts embed all privilege, copy, and shortcut logic as literal text and
// are designed to run standalone on an end user's machine.
func (s *Synthesizer) Synthesize(version string) (*Scripts, error) {
	if version == "" {
		return nil, fmt.Errorf("installer: version is required")
	}

	params := Params{
		Version:       version,
		Product:       s.Product,
		Exe:           s.Exe,
		InstallDir:    s.platform.DefaultInstallDir(s.Product),
		ShortcutLabel: s.Product,
		DesktopFile:   desktopFileName(s.Product),
	}

	install, err := tmpl.Render("install", s.platform.InstallTemplate(), params)
	if err != nil {
		return nil, err
	}

	uninstall, err := tmpl.Render("uninstall", s.platform.UninstallTemplate(), params)
	if err != nil {
		return nil, err
	}

	s.Logger.V(1).Info("installer.synthesized", "platform", s.platform.Name(), "version", version)

	return &Scripts{
		Install:       install,
		Uninstall:     uninstall,
		InstallName:   "install" + s.platform.ScriptExt(),
		UninstallName: "uninstall" + s.platform.ScriptExt(),
	}, nil
}
