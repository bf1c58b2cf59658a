package pipeline

import (
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/posprint/relkit/pkg/gitops"
	"github.com/posprint/relkit/pkg/installer"
	"github.com/posprint/relkit/pkg/relconf"
	"github.com/posprint/relkit/pkg/shell"
	"github.com/posprint/relkit/pkg/telemetry"
	"github.com/posprint/relkit/pkg/toolchain"
	"github.com/twpayne/go-vfs"
	"k8s.io/klog/klogr"

	"github.com/posprint/relkit/pkg/ghrelease"
)

// State is where a run currently is. Every run walks the states in order;
// Failed is reachable from any of them and still gets best-effort cleanup.
type State string

const (
	Initial         State = "initial"
	CheckingTree    State = "checking-tree"
	UpdatingVersion State = "updating-version"
	Building        State = "building"
	Archiving       State = "archiving"
	Tagging         State = "tagging"
	Publishing      State = "publishing"
	CleaningUp      State = "cleaning-up"
	Done            State = "done"
	Failed          State = "failed"
)

const (
	DefaultOutputPath = "release"

	// DefaultHookFile is the packager hook that probes USB hardware at
	// build time and hangs headless builders. It is disabled for the
	// duration of the build and always restored.
	DefaultHookFile = "hook-usb.py"
)

// Request is one pipeline invocation. FullRelease runs the git, tag, and
// publish stages; without it the run stops after the archive is produced.
type Request struct {
	Version        string
	OutputPath     string
	Message        string
	FullRelease    bool
	NonInteractive bool
}

// Result reports what a run produced. Partial results are returned on
// failure too, so the caller can say how far the run got.
type Result struct {
	State       State
	BundleDir   string
	ArchivePath string
	Tag         string
	ReleaseURL  string
}

type Pipeline struct {
	Conf *relconf.Config

	Logger logr.Logger

	fs   vfs.FS
	cmdr shell.Exec

	AbsWorkDir string
	HookFile   string

	probe    *toolchain.Probe
	git      *gitops.Client
	pub      ghrelease.Publisher
	tel      *telemetry.Telemeter
	platform installer.Platform

	in  io.Reader
	out io.Writer
	now func() time.Time

	state State
}

type Option interface {
	SetOption(p *Pipeline) error
}

func Logger(logger logr.Logger) Option {
	return &loggerOption{l: logger}
}

type loggerOption struct {
	l logr.Logger
}

func (o *loggerOption) SetOption(p *Pipeline) error {
	p.Logger = o.l
	return nil
}

func FS(fs vfs.FS) Option {
	return &fsOption{f: fs}
}

type fsOption struct {
	f vfs.FS
}

func (o *fsOption) SetOption(p *Pipeline) error {
	p.fs = o.f
	return nil
}

func Commander(exec shell.Exec) Option {
	return &commanderOption{e: exec}
}

type commanderOption struct {
	e shell.Exec
}

func (o *commanderOption) SetOption(p *Pipeline) error {
	p.cmdr = o.e
	return nil
}

func WD(wd string) Option {
	return &wdOption{d: wd}
}

type wdOption struct {
	d string
}

func (o *wdOption) SetOption(p *Pipeline) error {
	p.AbsWorkDir = o.d
	return nil
}

func Publisher(pub ghrelease.Publisher) Option {
	return &publisherOption{p: pub}
}

type publisherOption struct {
	p ghrelease.Publisher
}

func (o *publisherOption) SetOption(p *Pipeline) error {
	p.pub = o.p
	return nil
}

func Telemeter(tel *telemetry.Telemeter) Option {
	return &telemeterOption{t: tel}
}

type telemeterOption struct {
	t *telemetry.Telemeter
}

func (o *telemeterOption) SetOption(p *Pipeline) error {
	p.tel = o.t
	return nil
}

func ForPlatform(pf installer.Platform) Option {
	return &platformOption{pf: pf}
}

type platformOption struct {
	pf installer.Platform
}

func (o *platformOption) SetOption(p *Pipeline) error {
	p.platform = o.pf
	return nil
}

func Input(r io.Reader) Option {
	return &inputOption{r: r}
}

type inputOption struct {
	r io.Reader
}

func (o *inputOption) SetOption(p *Pipeline) error {
	p.in = o.r
	return nil
}

func Output(w io.Writer) Option {
	return &outputOption{w: w}
}

type outputOption struct {
	w io.Writer
}

func (o *outputOption) SetOption(p *Pipeline) error {
	p.out = o.w
	return nil
}

func Clock(now func() time.Time) Option {
	return &clockOption{f: now}
}

type clockOption struct {
	f func() time.Time
}

func (o *clockOption) SetOption(p *Pipeline) error {
	p.now = o.f
	return nil
}

func HookFile(name string) Option {
	return &hookFileOption{n: name}
}

type hookFileOption struct {
	n string
}

func (o *hookFileOption) SetOption(p *Pipeline) error {
	p.HookFile = o.n
	return nil
}

func New(conf *relconf.Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		Conf:  conf,
		state: Initial,
	}

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

	if p.cmdr == nil {
		p.cmdr = shell.DefaultExec
	}

	if p.AbsWorkDir == "" {
		abs, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		p.AbsWorkDir = abs
	}

	if p.HookFile == "" {
		p.HookFile = DefaultHookFile
	}

	if p.platform == nil {
		p.platform = &installer.Windows{}
	}

	if p.in == nil {
		p.in = os.Stdin
	}

	if p.out == nil {
		p.out = os.Stdout
	}

	if p.now == nil {
		p.now = time.Now
	}

	probe, err := toolchain.New(
		toolchain.Logger(p.Logger),
		toolchain.Commander(p.cmdr),
	)
	if err != nil {
		return nil, err
	}
	p.probe = probe

	p.git = gitops.New(
		gitops.WD(p.AbsWorkDir),
		gitops.Commander(p.cmdr),
	)

	return p, nil
}

// CurrentState returns where the last run ended up.
func (p *Pipeline) CurrentState() State {
	return p.state
}
