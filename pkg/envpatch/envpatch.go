package envpatch

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/twpayne/go-vfs"
	"k8s.io/klog/klogr"
)

// BackupSuffix is appended to a patched file's path while the patch is in
// effect.
const BackupSuffix = ".disabled"

// Resolver locates the file to be patched. Returning exists=false is not an
// error: the target legitimately may not be installed, in which case the
// patch is a no-op.
type Resolver func() (path string, exists bool, err error)

// Patch records one reversible filesystem mutation.
type Patch struct {
	OriginalPath string
	BackupPath   string
	Applied      bool
}

type Patcher struct {
	fs vfs.FS

	Logger logr.Logger
}

type Option interface {
	SetOption(p *Patcher) error
}

func Logger(logger logr.Logger) Option {
	return &loggerOption{l: logger}
}

type loggerOption struct {
	l logr.Logger
}

func (s *loggerOption) SetOption(p *Patcher) error {
	p.Logger = s.l
	return nil
}

func FS(fs vfs.FS) Option {
	return &fsOption{f: fs}
}

type fsOption struct {
	f vfs.FS
}

func (s *fsOption) SetOption(p *Patcher) error {
	p.fs = s.f
	return nil
}

func New(opts ...Option) (*Patcher, error) {
	p := &Patcher{}

	for _, o := range opts {
		if err := o.SetOption(p); err != nil {
			return nil, err
		}
	}

	if p.Logger == nil {
		p.Logger = klogr.New()
	}

	if p.fs == nil {
		p.fs = vfs.HostOSFS
	}

	return p, nil
}

// WithPatch moves the resolved target aside for the duration of body and
// guarantees its restoration on every exit path: body success, body error,
// and body panic (the patch is restored before the panic resumes
// propagation). When the resolver reports the target absent, body runs with
// no patch applied; a repeated invocation after a restore is therefore a
// no-op, not an error.
func (p *Patcher) WithPatch(resolve Resolver, body func() error) (err error) {
	patch, err := p.apply(resolve)
	if err != nil {
		return err
	}

	defer func() {
		if restoreErr := p.restore(patch); restoreErr != nil {
			p.Logger.Error(restoreErr, "envpatch.restore", "original", patch.OriginalPath, "backup", patch.BackupPath)
			if err == nil {
				err = restoreErr
			}
		}
	}()

	return body()
}

func (p *Patcher) apply(resolve Resolver) (*Patch, error) {
	path, exists, err := resolve()
	if err != nil {
		return nil, err
	}

	patch := &Patch{
		OriginalPath: path,
		BackupPath:   path + BackupSuffix,
	}

	if !exists {
		p.Logger.V(1).Info("envpatch.skip", "path", path)
		return patch, nil
	}

	if err := p.fs.Rename(patch.OriginalPath, patch.BackupPath); err != nil {
		return nil, err
	}
	patch.Applied = true

	p.Logger.V(1).Info("envpatch.apply", "original", patch.OriginalPath, "backup", patch.BackupPath)

	return patch, nil
}

func (p *Patcher) restore(patch *Patch) error {
	if patch == nil || !patch.Applied {
		return nil
	}

	if _, err := p.fs.Stat(patch.BackupPath); err != nil {
		if os.IsNotExist(err) {
			// Already restored
			patch.Applied = false
			return nil
		}
		return err
	}

	if err := p.fs.Rename(patch.BackupPath, patch.OriginalPath); err != nil {
		return err
	}
	patch.Applied = false

	p.Logger.V(1).Info("envpatch.restore", "original", patch.OriginalPath)

	return nil
}
