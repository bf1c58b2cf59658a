package packager

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/posprint/relkit/pkg/shell"
	"github.com/twpayne/go-vfs"
	"k8s.io/klog/klogr"
)

const DefaultTool = "pyinstaller"

type Mode string

const (
	OneFile Mode = "onefile"
	OneDir  Mode = "onedir"
)

// BuildSpec describes one packager invocation. When SpecFile (or the
// conventional <Product>.spec) exists it wins; the remaining fields are the
// inline fallback equivalent to the original build scripts.
type BuildSpec struct {
	SpecFile string

	Product       string
	Entry         string
	Icon          string
	Mode          Mode
	Windowed      bool
	AddData       []string
	HiddenImports []string
}

// Artifact is the verified packager output under dist/.
type Artifact struct {
	Path string
	Dir  bool
}

type BuildError struct {
	ExitStatus int
	Output     string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("packager exited with status %d: %s", e.ExitStatus, e.Output)
}

type ArtifactNotFoundError struct {
	Path string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("packager reported success but %q does not exist", e.Path)
}

type Builder struct {
	Tool string

	Logger logr.Logger

	fs vfs.FS
	sh *shell.Shell

	AbsWorkDir string
}

type Option interface {
	SetOption(b *Builder) error
}

func Logger(logger logr.Logger) Option {
	return &loggerOption{l: logger}
}

type loggerOption struct {
	l logr.Logger
}

func (s *loggerOption) SetOption(b *Builder) error {
	b.Logger = s.l
	return nil
}

func FS(fs vfs.FS) Option {
	return &fsOption{f: fs}
}

type fsOption struct {
	f vfs.FS
}

func (s *fsOption) SetOption(b *Builder) error {
	b.fs = s.f
	return nil
}

func Commander(exec shell.Exec) Option {
	return &commanderOption{e: exec}
}

type commanderOption struct {
	e shell.Exec
}

func (s *commanderOption) SetOption(b *Builder) error {
	b.sh = &shell.Shell{Exec: s.e}
	return nil
}

func WD(wd string) Option {
	return &wdOption{d: wd}
}

type wdOption struct {
	d string
}

func (s *wdOption) SetOption(b *Builder) error {
	b.AbsWorkDir = s.d
	return nil
}

func New(opts ...Option) (*Builder, error) {
	b := &Builder{}

	for _, o := range opts {
		if err := o.SetOption(b); err != nil {
			return nil, err
		}
	}

	if b.Logger == nil {
		b.Logger = klogr.New()
	}

	if b.fs == nil {
		b.fs = vfs.HostOSFS
	}

	if b.sh == nil {
		b.sh = shell.New()
	}

	if b.Tool == "" {
		b.Tool = DefaultTool
	}

	if b.AbsWorkDir == "" {
		path, err := os.Getwd()
		if err != nil {
			return nil, err
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		b.AbsWorkDir = abs
	}

	return b, nil
}

// Build runs the packager and verifies its output. Packaging always starts
// from a clean cache and never prompts; a non-zero exit is fatal and
// carries the captured output. Even a zero exit is distrusted: the
// expected executable (or directory) under dist/ must exist.
func (b *Builder) Build(spec BuildSpec) (*Artifact, error) {
	args, err := b.args(spec)
	if err != nil {
		return nil, err
	}

	res, err := b.sh.Capture(&shell.Command{
		Name: b.Tool,
		Args: args,
		Dir:  b.AbsWorkDir,
	})
	if err != nil {
		out := ""
		status := 1
		if res != nil {
			out = strings.TrimSpace(res.Stderr + "\n" + res.Stdout)
			status = res.ExitStatus
		}
		return nil, &BuildError{ExitStatus: status, Output: out}
	}

	artifact := b.expectedArtifact(spec)
	if _, err := b.fs.Stat(artifact.Path); err != nil {
		return nil, &ArtifactNotFoundError{Path: artifact.Path}
	}

	b.Logger.V(1).Info("packager.built", "artifact", artifact.Path)

	return artifact, nil
}

func (b *Builder) args(spec BuildSpec) ([]string, error) {
	// Clean cache, no prompts: repeated builds must not depend on packager
	// state left by the previous run
	args := []string{"--clean", "--noconfirm"}

	specFile := spec.SpecFile
	if specFile == "" && spec.Product != "" {
		specFile = spec.Product + ".spec"
	}
	if specFile != "" {
		if _, err := b.fs.Stat(filepath.Join(b.AbsWorkDir, specFile)); err == nil {
			return append(args, specFile), nil
		}
	}

	if spec.Entry == "" {
		return nil, fmt.Errorf("no packaging spec file found and no entry point configured")
	}

	switch spec.Mode {
	case OneDir:
		args = append(args, "--onedir")
	case OneFile, "":
		args = append(args, "--onefile")
	default:
		return nil, fmt.Errorf("unsupported packaging mode %q", spec.Mode)
	}

	if spec.Windowed {
		args = append(args, "--windowed")
	}
	if spec.Product != "" {
		args = append(args, "--name="+spec.Product)
	}
	if spec.Icon != "" {
		args = append(args, "--icon="+spec.Icon)
	}
	for _, d := range spec.AddData {
		args = append(args, "--add-data="+d)
	}
	for _, h := range spec.HiddenImports {
		args = append(args, "--hidden-import="+h)
	}

	return append(args, spec.Entry), nil
}

func (b *Builder) expectedArtifact(spec BuildSpec) *Artifact {
	name := spec.Product
	if name == "" {
		name = strings.TrimSuffix(spec.Entry, filepath.Ext(spec.Entry))
	}

	return &Artifact{
		Path: filepath.Join(b.AbsWorkDir, "dist", name),
		Dir:  spec.Mode == OneDir,
	}
}
