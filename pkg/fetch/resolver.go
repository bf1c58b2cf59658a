package fetch

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	getter "github.com/hashicorp/go-getter"
	"github.com/twpayne/go-vfs"
	"k8s.io/klog/klogr"
)

// Resolver resolves manifest sources. Local paths pass through untouched;
// go-getter URLs are fetched once into a cache directory under Home and the
// cached copy's path is returned.
type Resolver struct {
	Logger logr.Logger

	// Home is where fetched files are cached.
	Home string

	// GoGetterHome is the working directory used by go-getter for the actual
	// download. It differs from Home only when testing with go-vfs/vfst.
	GoGetterHome string

	// Getter is the underlying fetch implementation.
	Getter Getter

	fs vfs.FS
}

type Option interface {
	SetOption(r *Resolver) error
}

func Home(dir string) Option {
	return &homeOption{d: dir}
}

type homeOption struct {
	d string
}

func (s *homeOption) SetOption(r *Resolver) error {
	r.Home = s.d
	return nil
}

func GoGetterHome(dir string) Option {
	return &goGetterHomeOption{d: dir}
}

type goGetterHomeOption struct {
	d string
}

func (s *goGetterHomeOption) SetOption(r *Resolver) error {
	r.GoGetterHome = s.d
	return nil
}

func Logger(logger logr.Logger) Option {
	return &loggerOption{l: logger}
}

type loggerOption struct {
	l logr.Logger
}

func (s *loggerOption) SetOption(r *Resolver) error {
	r.Logger = s.l
	return nil
}

func FS(fs vfs.FS) Option {
	return &fsOption{f: fs}
}

type fsOption struct {
	f vfs.FS
}

func (s *fsOption) SetOption(r *Resolver) error {
	r.fs = s.f
	return nil
}

func WithGetter(g Getter) Option {
	return &getterOption{g: g}
}

type getterOption struct {
	g Getter
}

func (s *getterOption) SetOption(r *Resolver) error {
	r.Getter = s.g
	return nil
}

func New(opts ...Option) (*Resolver, error) {
	r := &Resolver{}

	for _, o := range opts {
		if err := o.SetOption(r); err != nil {
			return nil, err
		}
	}

	if r.Logger == nil {
		r.Logger = klogr.New()
	}

	if r.fs == nil {
		r.fs = vfs.HostOSFS
	}

	if r.GoGetterHome == "" {
		r.GoGetterHome = r.Home
	}

	if r.Getter == nil {
		r.Getter = &GoGetter{Logger: r.Logger}
	}

	return r, nil
}

type InvalidURLError struct {
	err string
}

func (e InvalidURLError) Error() string {
	return e.err
}

// IsRemote reports whether src looks like a fetchable URL rather than a
// local path
func IsRemote(src string) bool {
	u, err := url.Parse(src)
	return err == nil && u.Scheme != ""
}

// ResolveFile takes an URL to a remote file or a path to a local file.
// Local paths are returned as-is; remote files are fetched into the cache
// and the cached path is returned. Repeated resolves of the same source
// reuse the cached copy.
func (r *Resolver) ResolveFile(urlOrPath string) (string, error) {
	if !IsRemote(urlOrPath) {
		return urlOrPath, nil
	}
	return r.fetchFile(urlOrPath)
}

func (r *Resolver) fetchFile(src string) (string, error) {
	if r.Home == "" {
		return "", fmt.Errorf("fetch: no cache home configured for remote source %q", src)
	}

	file := filepath.Base(strings.SplitN(src, "?", 2)[0])

	replacer := strings.NewReplacer(":", "", "//", "_", "/", "_", ".", "_", "&", "_", "?", ".")
	cacheDir := filepath.Join(r.Home, replacer.Replace(src))
	cached := filepath.Join(cacheDir, file)

	if s, err := r.fs.Stat(cached); err == nil && !s.IsDir() {
		r.Logger.V(1).Info("fetch.cached", "src", src, "path", cached)
		return cached, nil
	}

	// go-getter silently fails when the destination directory already
	// exists, so only the parent is pre-created
	if err := vfs.MkdirAll(r.fs, filepath.Dir(cacheDir), 0755); err != nil {
		return "", err
	}

	dst := filepath.Join(strings.TrimPrefix(cacheDir, r.Home), file)

	r.Logger.V(1).Info("fetch.download", "src", src, "dst", dst)

	if err := r.Getter.Get(r.GoGetterHome, src, dst); err != nil {
		if err2 := r.fs.RemoveAll(cacheDir); err2 != nil {
			return "", err2
		}
		return "", err
	}

	return cached, nil
}

type Getter interface {
	Get(wd, src, dst string) error
}

type GoGetter struct {
	Logger logr.Logger
}

func (g *GoGetter) Get(wd, src, dst string) error {
	ctx := context.Background()

	get := &getter.Client{
		Ctx:     ctx,
		Src:     src,
		Dst:     filepath.Join(wd, dst),
		Pwd:     wd,
		Mode:    getter.ClientModeFile,
		Options: []getter.ClientOption{},
	}

	g.Logger.V(1).Info("fetch.get", "wd", wd, "src", src, "dst", dst)

	if err := get.Get(); err != nil {
		return fmt.Errorf("get: %v", err)
	}

	return nil
}
