package assemble

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-logr/logr"
	"github.com/posprint/relkit/pkg/fetch"
	"github.com/posprint/relkit/pkg/manifest"
	"github.com/twpayne/go-vfs"
	"k8s.io/klog/klogr"
)

type MissingRequiredFileError struct {
	Name   string
	Source string
}

func (e *MissingRequiredFileError) Error() string {
	return fmt.Sprintf("required file %q is missing: %s", e.Name, e.Source)
}

// Bundle is the assembled distribution directory.
type Bundle struct {
	Dir string

	// Files are the bundle-relative paths that were copied in, sorted.
	Files []string
}

type Assembler struct {
	Logger logr.Logger

	fs  vfs.FS
	dep *fetch.Resolver

	AbsWorkDir string
}

type Option interface {
	SetOption(a *Assembler) error
}

func Logger(logger logr.Logger) Option {
	return &loggerOption{l: logger}
}

type loggerOption struct {
	l logr.Logger
}

func (s *loggerOption) SetOption(a *Assembler) error {
	a.Logger = s.l
	return nil
}

func FS(fs vfs.FS) Option {
	return &fsOption{f: fs}
}

type fsOption struct {
	f vfs.FS
}

func (s *fsOption) SetOption(a *Assembler) error {
	a.fs = s.f
	return nil
}

func WD(wd string) Option {
	return &wdOption{d: wd}
}

type wdOption struct {
	d string
}

func (s *wdOption) SetOption(a *Assembler) error {
	a.AbsWorkDir = s.d
	return nil
}

func Resolver(dep *fetch.Resolver) Option {
	return &resolverOption{r: dep}
}

type resolverOption struct {
	r *fetch.Resolver
}

func (s *resolverOption) SetOption(a *Assembler) error {
	a.dep = s.r
	return nil
}

func New(opts ...Option) (*Assembler, error) {
	a := &Assembler{}

	for _, o := range opts {
		if err := o.SetOption(a); err != nil {
			return nil, err
		}
	}

	if a.Logger == nil {
		a.Logger = klogr.New()
	}

	if a.fs == nil {
		a.fs = vfs.HostOSFS
	}

	if a.AbsWorkDir == "" {
		path, err := os.Getwd()
		if err != nil {
			return nil, err
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		a.AbsWorkDir = abs
	}

	if a.dep == nil {
		dep, err := fetch.New(
			fetch.Home(filepath.Join(a.AbsWorkDir, ".relkit", "cache")),
			fetch.Logger(a.Logger),
			fetch.FS(a.fs),
		)
		if err != nil {
			return nil, err
		}
		a.dep = dep
	}

	return a, nil
}

// Assemble recreates outputDir from scratch and copies every manifest entry
// into it. A missing required entry fails the assembly; a missing optional
// entry is logged and skipped. The resulting content set is a deterministic
// function of the manifest and the source tree at call time.
func (a *Assembler) Assemble(m *manifest.Manifest, outputDir string) (*Bundle, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(a.AbsWorkDir, outputDir)
	}

	// Destroy-then-create keeps assembly idempotent across runs
	if err := a.fs.RemoveAll(outputDir); err != nil {
		return nil, err
	}
	if err := vfs.MkdirAll(a.fs, outputDir, 0755); err != nil {
		return nil, err
	}

	bundle := &Bundle{Dir: outputDir}

	for _, e := range m.Entries {
		src, err := a.dep.ResolveFile(e.Source)
		if err != nil {
			if e.Required {
				return nil, &MissingRequiredFileError{Name: e.Name, Source: e.Source}
			}
			a.Logger.Info("assemble.skip", "name", e.Name, "source", e.Source, "err", err.Error())
			continue
		}

		if !filepath.IsAbs(src) {
			src = filepath.Join(a.AbsWorkDir, src)
		}

		info, err := a.fs.Stat(src)
		if err != nil {
			if e.Required {
				return nil, &MissingRequiredFileError{Name: e.Name, Source: e.Source}
			}
			a.Logger.Info("assemble.skip", "name", e.Name, "source", e.Source)
			continue
		}

		dst := filepath.Join(outputDir, e.DestPath())

		if info.IsDir() {
			copied, err := a.copyDir(src, dst)
			if err != nil {
				return nil, err
			}
			for _, c := range copied {
				rel, _ := filepath.Rel(outputDir, c)
				bundle.Files = append(bundle.Files, rel)
			}
		} else {
			if err := a.copyFile(src, dst, info.Mode()); err != nil {
				return nil, err
			}
			bundle.Files = append(bundle.Files, e.DestPath())
		}

		a.Logger.V(1).Info("assemble.copied", "name", e.Name, "dst", dst)
	}

	sort.Strings(bundle.Files)

	return bundle, nil
}

func (a *Assembler) copyFile(src, dst string, mode os.FileMode) error {
	data, err := a.fs.ReadFile(src)
	if err != nil {
		return err
	}
	if err := vfs.MkdirAll(a.fs, filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return a.fs.WriteFile(dst, data, mode.Perm())
}

func (a *Assembler) copyDir(src, dst string) ([]string, error) {
	if err := vfs.MkdirAll(a.fs, dst, 0755); err != nil {
		return nil, err
	}

	infos, err := a.fs.ReadDir(src)
	if err != nil {
		return nil, err
	}

	var copied []string
	for _, info := range infos {
		s := filepath.Join(src, info.Name())
		d := filepath.Join(dst, info.Name())
		if info.IsDir() {
			sub, err := a.copyDir(s, d)
			if err != nil {
				return nil, err
			}
			copied = append(copied, sub...)
		} else {
			if err := a.copyFile(s, d, info.Mode()); err != nil {
				return nil, err
			}
			copied = append(copied, d)
		}
	}
	return copied, nil
}
