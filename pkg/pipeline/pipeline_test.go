package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/posprint/relkit/pkg/ghrelease"
	"github.com/posprint/relkit/pkg/relconf"
	"github.com/posprint/relkit/pkg/shell"
	"github.com/posprint/relkit/pkg/toolchain"
	"github.com/twpayne/go-vfs/vfst"
)

const hooksQuery = "import os, PyInstaller.hooks; print(os.path.dirname(PyInstaller.hooks.__file__))"

func buildClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)
	}
}

func gitInput(args ...string) shell.FakeInput {
	return shell.NewFakeInput("git", args, nil)
}

func buildArgs(conf *relconf.Config) []string {
	args := []string{"--clean", "--noconfirm", "--onefile", "--windowed", "--name=" + conf.Product}
	for _, d := range conf.Packaging.AddData {
		args = append(args, "--add-data="+d)
	}
	for _, h := range conf.Packaging.HiddenImports {
		args = append(args, "--hidden-import="+h)
	}
	return append(args, conf.Entry)
}

func toolchainExpectations(conf *relconf.Config) map[shell.FakeInput]shell.FakeOutput {
	return map[shell.FakeInput]shell.FakeOutput{
		shell.NewFakeInput("python3", []string{"--version"}, nil):      {Stdout: "Python 3.12.4\n"},
		shell.NewFakeInput("pyinstaller", []string{"--version"}, nil):  {Stdout: "6.10.0\n"},
		shell.NewFakeInput("python3", []string{"-c", hooksQuery}, nil): {Stdout: "/py/hooks\n"},
		shell.NewFakeInput("pyinstaller", buildArgs(conf), nil):        {Stdout: "done\n"},
	}
}

type fakePublisher struct {
	owner, repo string
	rec         ghrelease.Record
	assets      []string
	calls       int
}

func (f *fakePublisher) Publish(ctx context.Context, owner, repo string, rec ghrelease.Record, assetPaths []string) (string, error) {
	f.calls++
	f.owner = owner
	f.repo = repo
	f.rec = rec
	f.assets = assetPaths
	return "https://github.com/" + owner + "/" + repo + "/releases/tag/" + rec.TagName, nil
}

func newProjectFS(t *testing.T) (*vfst.TestFS, func()) {
	t.Helper()
	fs, clean, err := vfst.NewTestFS(map[string]interface{}{
		"/proj/main.py":             "print('hi')",
		"/proj/printer_config.json": "{}",
		"/proj/.env":                "WS_PORT=8765",
		"/proj/dist/POSPrinter":     "binary",
		"/py/hooks/hook-usb.py":     "import usb",
	})
	if err != nil {
		t.Fatal(err)
	}
	return fs, clean
}

func TestRunBuildOnly(t *testing.T) {
	fs, clean := newProjectFS(t)
	defer clean()

	conf, err := relconf.Load(fs, "/proj/relkit.yaml")
	if err != nil {
		t.Fatal(err)
	}

	// No git expectations: a build-only run must never shell out to git.
	fake := shell.NewFake(toolchainExpectations(conf))

	p, err := New(conf,
		FS(fs),
		Commander(fake),
		WD("/proj"),
		Clock(buildClock()),
		Input(strings.NewReader("")),
		Output(&bytes.Buffer{}),
	)
	if err != nil {
		t.Fatal(err)
	}

	res, err := p.Run(context.Background(), Request{Version: "1.2.16"})
	if err != nil {
		t.Fatal(err)
	}

	if res.State != Done {
		t.Errorf("unexpected state: %s", res.State)
	}
	if res.BundleDir != "/proj/release" {
		t.Errorf("unexpected bundle dir: %s", res.BundleDir)
	}
	if res.ArchivePath != "/proj/POSPrinter_v1.2.16.zip" {
		t.Errorf("unexpected archive path: %s", res.ArchivePath)
	}

	for _, f := range []string{
		"/proj/release/POSPrinter",
		"/proj/release/printer_config.json",
		"/proj/release/.env",
		"/proj/release/install.ps1",
		"/proj/release/uninstall.ps1",
		"/proj/release/version.json",
		"/proj/POSPrinter_v1.2.16.zip",
	} {
		if _, err := fs.Stat(f); err != nil {
			t.Errorf("expected %s in the output: %v", f, err)
		}
	}

	install, err := fs.ReadFile("/proj/release/install.ps1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(install), "POSPrinter v1.2.16") {
		t.Errorf("install script does not mention the release: %s", install)
	}

	version, err := fs.ReadFile("/proj/version.json")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"version": "1.2.16"`, `"build_date": "2026-08-24 10:30:00"`} {
		if !strings.Contains(string(version), want) {
			t.Errorf("version.json is missing %s:\n%s", want, version)
		}
	}

	// The hook disabled around the build must be back in place.
	if _, err := fs.Stat("/py/hooks/hook-usb.py"); err != nil {
		t.Errorf("hook was not restored: %v", err)
	}
	if _, err := fs.Stat("/py/hooks/hook-usb.py.disabled"); err == nil {
		t.Error("hook backup was left behind")
	}
}

func TestRunFullRelease(t *testing.T) {
	fs, clean := newProjectFS(t)
	defer clean()

	conf, err := relconf.Load(fs, "/proj/relkit.yaml")
	if err != nil {
		t.Fatal(err)
	}

	exp := toolchainExpectations(conf)
	exp[gitInput("status", "--porcelain")] = shell.FakeOutput{Stdout: ""}
	exp[gitInput("tag", "-l", "v1.2.16")] = shell.FakeOutput{Stdout: ""}
	exp[gitInput("tag", "-a", "v1.2.16", "-m", "Release v1.2.16")] = shell.FakeOutput{}
	exp[gitInput("push", "origin", "HEAD")] = shell.FakeOutput{}
	exp[gitInput("push", "origin", "v1.2.16")] = shell.FakeOutput{}
	exp[gitInput("remote", "get-url", "--push", "origin")] = shell.FakeOutput{Stdout: "git@github.com:posprint/pos-printer.git\n"}

	pub := &fakePublisher{}

	p, err := New(conf,
		FS(fs),
		Commander(shell.NewFake(exp)),
		WD("/proj"),
		Publisher(pub),
		Clock(buildClock()),
		Input(strings.NewReader("")),
		Output(&bytes.Buffer{}),
	)
	if err != nil {
		t.Fatal(err)
	}

	res, err := p.Run(context.Background(), Request{
		Version:        "1.2.16",
		FullRelease:    true,
		NonInteractive: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if res.State != Done {
		t.Errorf("unexpected state: %s", res.State)
	}
	if res.Tag != "v1.2.16" {
		t.Errorf("unexpected tag: %s", res.Tag)
	}
	if res.ReleaseURL != "https://github.com/posprint/pos-printer/releases/tag/v1.2.16" {
		t.Errorf("unexpected release url: %s", res.ReleaseURL)
	}

	if pub.calls != 1 {
		t.Fatalf("expected exactly one publish call, got %d", pub.calls)
	}
	if pub.owner != "posprint" || pub.repo != "pos-printer" {
		t.Errorf("unexpected repository: %s/%s", pub.owner, pub.repo)
	}
	if pub.rec.Name != "POSPrinter v1.2.16" {
		t.Errorf("unexpected release name: %s", pub.rec.Name)
	}
	if diff := cmp.Diff([]string{"/proj/POSPrinter_v1.2.16.zip"}, pub.assets); diff != "" {
		t.Errorf("unexpected assets: %s", diff)
	}

	// CleaningUp removes packager residue and the uploaded archive but
	// keeps the bundle.
	if _, err := fs.Stat("/proj/dist"); err == nil {
		t.Error("expected dist/ to be cleaned up")
	}
	if _, err := fs.Stat("/proj/POSPrinter_v1.2.16.zip"); err == nil {
		t.Error("expected the local archive to be deleted after publishing")
	}
	if _, err := fs.Stat("/proj/release/POSPrinter"); err != nil {
		t.Errorf("bundle should survive cleanup: %v", err)
	}
}

func TestRunDirtyTreeDeclined(t *testing.T) {
	fs, clean := newProjectFS(t)
	defer clean()

	conf, err := relconf.Load(fs, "/proj/relkit.yaml")
	if err != nil {
		t.Fatal(err)
	}

	// Only git status is expected: declining the commit must abort the run
	// before any tool is probed or any artifact is built.
	exp := map[shell.FakeInput]shell.FakeOutput{
		gitInput("status", "--porcelain"): {Stdout: " M main.py\n"},
	}

	out := &bytes.Buffer{}
	p, err := New(conf,
		FS(fs),
		Commander(shell.NewFake(exp)),
		WD("/proj"),
		Clock(buildClock()),
		Input(strings.NewReader("n\n")),
		Output(out),
	)
	if err != nil {
		t.Fatal(err)
	}

	res, err := p.Run(context.Background(), Request{
		Version:     "1.2.16",
		FullRelease: true,
	})
	if err == nil {
		t.Fatal("expected the run to abort")
	}
	if _, ok := err.(*DirtyTreeError); !ok {
		t.Fatalf("unexpected error type: %v", err)
	}
	if res.State != Failed {
		t.Errorf("unexpected state: %s", res.State)
	}
	if !strings.Contains(out.String(), "Commit all changes and continue?") {
		t.Errorf("expected a confirmation prompt, got: %s", out.String())
	}

	// Failure still cleans up packager residue.
	if _, err := fs.Stat("/proj/dist"); err == nil {
		t.Error("expected dist/ to be cleaned up after failure")
	}
	// Nothing was built and the version metadata was not touched.
	if _, err := fs.Stat("/proj/release"); err == nil {
		t.Error("expected no bundle to be produced")
	}
	if _, err := fs.Stat("/proj/version.json"); err == nil {
		t.Error("expected version metadata to stay untouched")
	}
}

func TestPublishExisting(t *testing.T) {
	fs, clean, err := vfst.NewTestFS(map[string]interface{}{
		"/proj/main.py":                "print('hi')",
		"/proj/POSPrinter_v1.2.16.zip": "archive",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer clean()

	conf, err := relconf.Load(fs, "/proj/relkit.yaml")
	if err != nil {
		t.Fatal(err)
	}

	exp := map[shell.FakeInput]shell.FakeOutput{
		gitInput("remote", "get-url", "--push", "origin"): {Stdout: "https://github.com/posprint/pos-printer.git\n"},
	}

	pub := &fakePublisher{}

	p, err := New(conf,
		FS(fs),
		Commander(shell.NewFake(exp)),
		WD("/proj"),
		Publisher(pub),
	)
	if err != nil {
		t.Fatal(err)
	}

	res, err := p.PublishExisting(context.Background(), Request{Version: "1.2.16"})
	if err != nil {
		t.Fatal(err)
	}

	if res.State != Done {
		t.Errorf("unexpected state: %s", res.State)
	}
	if pub.rec.TagName != "v1.2.16" {
		t.Errorf("unexpected tag: %s", pub.rec.TagName)
	}
	if diff := cmp.Diff([]string{"/proj/POSPrinter_v1.2.16.zip"}, pub.assets); diff != "" {
		t.Errorf("unexpected assets: %s", diff)
	}
}

func TestPublishExistingRequiresArchive(t *testing.T) {
	fs, clean, err := vfst.NewTestFS(map[string]interface{}{
		"/proj/main.py": "",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer clean()

	conf, err := relconf.Load(fs, "/proj/relkit.yaml")
	if err != nil {
		t.Fatal(err)
	}

	pub := &fakePublisher{}
	p, err := New(conf, FS(fs), Commander(shell.NewFake(nil)), WD("/proj"), Publisher(pub))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.PublishExisting(context.Background(), Request{Version: "1.2.16"}); err == nil {
		t.Fatal("expected an error when the archive is missing")
	}
	if pub.calls != 0 {
		t.Error("nothing must be published without an archive")
	}
}

func TestRunNonInteractiveDirtyTree(t *testing.T) {
	fs, clean := newProjectFS(t)
	defer clean()

	conf, err := relconf.Load(fs, "/proj/relkit.yaml")
	if err != nil {
		t.Fatal(err)
	}

	exp := map[shell.FakeInput]shell.FakeOutput{
		gitInput("status", "--porcelain"): {Stdout: " M main.py\n"},
	}

	out := &bytes.Buffer{}
	p, err := New(conf,
		FS(fs),
		Commander(shell.NewFake(exp)),
		WD("/proj"),
		Clock(buildClock()),
		Input(strings.NewReader("y\n")),
		Output(out),
	)
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Run(context.Background(), Request{
		Version:        "1.2.16",
		FullRelease:    true,
		NonInteractive: true,
	})
	if _, ok := err.(*DirtyTreeError); !ok {
		t.Fatalf("expected DirtyTreeError, got: %v", err)
	}
	if strings.Contains(out.String(), "continue?") {
		t.Error("non-interactive runs must not prompt")
	}
}

func TestRunTagExists(t *testing.T) {
	fs, clean := newProjectFS(t)
	defer clean()

	conf, err := relconf.Load(fs, "/proj/relkit.yaml")
	if err != nil {
		t.Fatal(err)
	}

	exp := toolchainExpectations(conf)
	exp[gitInput("status", "--porcelain")] = shell.FakeOutput{Stdout: ""}
	exp[gitInput("tag", "-l", "v1.2.16")] = shell.FakeOutput{Stdout: "v1.2.16\n"}

	pub := &fakePublisher{}

	p, err := New(conf,
		FS(fs),
		Commander(shell.NewFake(exp)),
		WD("/proj"),
		Publisher(pub),
		Clock(buildClock()),
		Input(strings.NewReader("")),
		Output(&bytes.Buffer{}),
	)
	if err != nil {
		t.Fatal(err)
	}

	res, err := p.Run(context.Background(), Request{
		Version:        "1.2.16",
		FullRelease:    true,
		NonInteractive: true,
	})
	if _, ok := err.(*TagExistsError); !ok {
		t.Fatalf("expected TagExistsError, got: %v", err)
	}
	if res.State != Failed {
		t.Errorf("unexpected state: %s", res.State)
	}
	if pub.calls != 0 {
		t.Errorf("nothing must be published when the tag exists, got %d calls", pub.calls)
	}
}

func TestRunBuildOnlyMissingPackager(t *testing.T) {
	fs, clean := newProjectFS(t)
	defer clean()

	conf, err := relconf.Load(fs, "/proj/relkit.yaml")
	if err != nil {
		t.Fatal(err)
	}

	// Build-only runs must report the missing packager instead of
	// installing it, so no pip invocation is expected here.
	exp := map[shell.FakeInput]shell.FakeOutput{
		shell.NewFakeInput("python3", []string{"--version"}, nil):     {Stdout: "Python 3.12.4\n"},
		shell.NewFakeInput("pyinstaller", []string{"--version"}, nil): {ExitStatus: 127},
	}

	p, err := New(conf,
		FS(fs),
		Commander(shell.NewFake(exp)),
		WD("/proj"),
		Clock(buildClock()),
		Input(strings.NewReader("")),
		Output(&bytes.Buffer{}),
	)
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Run(context.Background(), Request{Version: "1.2.16"})
	if _, ok := err.(*toolchain.ToolchainMissingError); !ok {
		t.Fatalf("expected ToolchainMissingError, got: %v", err)
	}
}

func TestRunRejectsBadVersion(t *testing.T) {
	fs, clean := newProjectFS(t)
	defer clean()

	conf, err := relconf.Load(fs, "/proj/relkit.yaml")
	if err != nil {
		t.Fatal(err)
	}

	p, err := New(conf, FS(fs), WD("/proj"), Commander(shell.NewFake(nil)))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Run(context.Background(), Request{Version: "not-a-version"}); err == nil {
		t.Error("expected an error for a malformed version")
	}
	if _, err := p.Run(context.Background(), Request{}); err == nil {
		t.Error("expected an error for a missing version")
	}
}
