package toolchain

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/posprint/relkit/pkg/httpget"
	"github.com/posprint/relkit/pkg/semver"
	"github.com/posprint/relkit/pkg/shell"
	"k8s.io/klog/klogr"
)

const (
	DefaultRuntime  = "python3"
	DefaultPackager = "pyinstaller"
)

// Status is the result of a pure capability query: either the tool is
// present at some version, or it is absent. Probing never installs.
type Status struct {
	Present bool
	Version *semver.Version
}

type ToolVersions struct {
	Runtime  *semver.Version
	Packager *semver.Version
}

type ToolchainMissingError struct {
	Tool string
}

func (e *ToolchainMissingError) Error() string {
	return fmt.Sprintf("required tool %q is not available", e.Tool)
}

type PackagerInstallError struct {
	Output string
}

func (e *PackagerInstallError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("installing packager: %s", e.Output)
	}
	return "installing packager failed"
}

type Probe struct {
	Runtime  string
	Packager string

	Logger logr.Logger

	sh         *shell.Shell
	httpGetter httpget.Getter
}

type Option interface {
	SetOption(p *Probe) error
}

func Logger(logger logr.Logger) Option {
	return &loggerOption{l: logger}
}

type loggerOption struct {
	l logr.Logger
}

func (s *loggerOption) SetOption(p *Probe) error {
	p.Logger = s.l
	return nil
}

func Commander(exec shell.Exec) Option {
	return &commanderOption{e: exec}
}

type commanderOption struct {
	e shell.Exec
}

func (s *commanderOption) SetOption(p *Probe) error {
	p.sh = &shell.Shell{Exec: s.e}
	return nil
}

func HTTPGetter(g httpget.Getter) Option {
	return &httpGetterOption{g: g}
}

type httpGetterOption struct {
	g httpget.Getter
}

func (s *httpGetterOption) SetOption(p *Probe) error {
	p.httpGetter = s.g
	return nil
}

func New(opts ...Option) (*Probe, error) {
	p := &Probe{}

	for _, o := range opts {
		if err := o.SetOption(p); err != nil {
			return nil, err
		}
	}

	if p.Logger == nil {
		p.Logger = klogr.New()
	}

	if p.sh == nil {
		p.sh = shell.New()
	}

	if p.httpGetter == nil {
		p.httpGetter = httpget.New()
	}

	if p.Runtime == "" {
		p.Runtime = DefaultRuntime
	}

	if p.Packager == "" {
		p.Packager = DefaultPackager
	}

	return p, nil
}

func (p *Probe) RuntimeStatus() *Status {
	return p.status(p.Runtime)
}

func (p *Probe) PackagerStatus() *Status {
	return p.status(p.Packager)
}

func (p *Probe) status(tool string) *Status {
	res, err := p.sh.Capture(&shell.Command{Name: tool, Args: []string{"--version"}})
	if err != nil {
		p.Logger.V(1).Info("toolchain.probe", "tool", tool, "err", err.Error())
		return &Status{Present: false}
	}

	v, err := parseVersionOutput(res.Stdout)
	if err != nil {
		// The tool answered but with something we cannot parse. It exists,
		// which is what Present reports; the version stays unknown.
		p.Logger.V(1).Info("toolchain.parse", "tool", tool, "stdout", res.Stdout, "err", err.Error())
		return &Status{Present: true}
	}

	return &Status{Present: true, Version: v}
}

// parseVersionOutput extracts the version from outputs like "Python 3.12.4"
// or a bare "6.10.0"
func parseVersionOutput(out string) (*semver.Version, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty version output")
	}
	return semver.Parse(fields[len(fields)-1])
}

// EnsureToolchain verifies the runtime and the packager are available. A
// missing runtime is fatal. A missing packager triggers the single
// opt-in install attempt via InstallPackager; there are no retries.
func (p *Probe) EnsureToolchain() (*ToolVersions, error) {
	rt := p.RuntimeStatus()
	if !rt.Present {
		return nil, &ToolchainMissingError{Tool: p.Runtime}
	}

	pk := p.PackagerStatus()
	if !pk.Present {
		p.Logger.Info("toolchain.packager.absent", "packager", p.Packager)
		if err := p.InstallPackager(); err != nil {
			return nil, err
		}

		pk = p.PackagerStatus()
		if !pk.Present {
			return nil, &PackagerInstallError{Output: "packager still absent after install"}
		}
	}

	p.Logger.V(1).Info("toolchain.ok", "runtime", versionString(rt.Version), "packager", versionString(pk.Version))

	return &ToolVersions{Runtime: rt.Version, Packager: pk.Version}, nil
}

// InstallPackager mutates the local toolchain. It is deliberately separate
// from the probes, which stay read-only.
func (p *Probe) InstallPackager() error {
	res, err := p.sh.Capture(&shell.Command{
		Name: p.Runtime,
		Args: []string{"-m", "pip", "install", p.Packager},
	})
	if err != nil {
		out := ""
		if res != nil {
			out = strings.TrimSpace(res.Stderr)
		}
		return &PackagerInstallError{Output: out}
	}
	return nil
}

// HooksDir reports the directory the packager loads its bundled hook
// modules from, by asking the runtime where the hooks package lives.
func (p *Probe) HooksDir() (string, error) {
	res, err := p.sh.Capture(&shell.Command{
		Name: p.Runtime,
		Args: []string{"-c", "import os, PyInstaller.hooks; print(os.path.dirname(PyInstaller.hooks.__file__))"},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

func versionString(v *semver.Version) string {
	if v == nil {
		return "unknown"
	}
	return v.String()
}
