package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/posprint/relkit/pkg/archive"
	"github.com/posprint/relkit/pkg/assemble"
	"github.com/posprint/relkit/pkg/envpatch"
	"github.com/posprint/relkit/pkg/ghrelease"
	"github.com/posprint/relkit/pkg/installer"
	"github.com/posprint/relkit/pkg/manifest"
	"github.com/posprint/relkit/pkg/packager"
	"github.com/posprint/relkit/pkg/semver"
	"github.com/posprint/relkit/pkg/telemetry"
	"github.com/posprint/relkit/pkg/toolchain"
	"github.com/posprint/relkit/pkg/versionfile"
)

// transientDirs is the packager residue removed by cleanup. The bundle and
// the archive are deliverables and survive.
var transientDirs = []string{"build", "dist", "__pycache__"}

// Run executes the pipeline for req. On any stage failure the run moves to
// Failed, cleanup still happens best-effort, and the partial Result is
// returned along with the error.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Version == "" {
		return nil, fmt.Errorf("a version is required")
	}
	if _, err := semver.Parse(req.Version); err != nil {
		return nil, fmt.Errorf("invalid version %q: %v", req.Version, err)
	}
	if req.OutputPath == "" {
		req.OutputPath = DefaultOutputPath
	}
	if req.Message == "" {
		req.Message = fmt.Sprintf("Release v%s", req.Version)
	}

	res := &Result{State: Initial}

	err := p.span(ctx, telemetry.KindRelease, "release-v"+req.Version, func(ctx context.Context) error {
		return p.run(ctx, req, res)
	})
	if err != nil {
		p.enter(Failed, res)
		p.cleanupFS()
		return res, err
	}

	p.enter(Done, res)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, res *Result) error {
	if req.FullRelease {
		if err := p.stage(ctx, CheckingTree, res, func(ctx context.Context) error {
			return p.checkTree(req)
		}); err != nil {
			return err
		}
	}

	if err := p.stage(ctx, UpdatingVersion, res, func(ctx context.Context) error {
		return p.updateVersion(req)
	}); err != nil {
		return err
	}

	if err := p.stage(ctx, Building, res, func(ctx context.Context) error {
		return p.build(req, res)
	}); err != nil {
		return err
	}

	if err := p.stage(ctx, Archiving, res, func(ctx context.Context) error {
		return p.archive(req, res)
	}); err != nil {
		return err
	}

	if !req.FullRelease {
		return nil
	}

	if err := p.stage(ctx, Tagging, res, func(ctx context.Context) error {
		return p.tag(req, res)
	}); err != nil {
		return err
	}

	if err := p.stage(ctx, Publishing, res, func(ctx context.Context) error {
		return p.publish(ctx, req, res)
	}); err != nil {
		return err
	}

	return p.stage(ctx, CleaningUp, res, func(ctx context.Context) error {
		p.cleanupFS()
		// The archive has been uploaded; the local copy is residue now.
		if res.ArchivePath != "" {
			if err := p.fs.RemoveAll(res.ArchivePath); err != nil {
				p.Logger.V(1).Info("cleanup.skipped", "path", res.ArchivePath, "err", err.Error())
			}
		}
		return nil
	})
}

// PublishExisting creates the hosting-platform release for an
// already-pushed tag, uploading the archive produced by an earlier build.
// This is the tag-triggered CI entry point: the tag exists by definition
// there, so the Tagging stage's collision check must not run.
func (p *Pipeline) PublishExisting(ctx context.Context, req Request) (*Result, error) {
	if req.Version == "" {
		return nil, fmt.Errorf("a version is required")
	}
	if _, err := semver.Parse(req.Version); err != nil {
		return nil, fmt.Errorf("invalid version %q: %v", req.Version, err)
	}
	if req.Message == "" {
		req.Message = fmt.Sprintf("Release v%s", req.Version)
	}

	res := &Result{
		State:       Initial,
		Tag:         "v" + req.Version,
		ArchivePath: filepath.Join(p.AbsWorkDir, archive.Name(p.Conf.Product, req.Version)),
	}

	if _, err := p.fs.Stat(res.ArchivePath); err != nil {
		p.enter(Failed, res)
		return res, fmt.Errorf("archive %s not found; run a build first", res.ArchivePath)
	}

	err := p.stage(ctx, Publishing, res, func(ctx context.Context) error {
		return p.publish(ctx, req, res)
	})
	if err != nil {
		p.enter(Failed, res)
		return res, err
	}

	p.enter(Done, res)
	return res, nil
}

func (p *Pipeline) stage(ctx context.Context, s State, res *Result, body func(ctx context.Context) error) error {
	p.enter(s, res)
	return p.span(ctx, telemetry.KindStage, string(s), body)
}

func (p *Pipeline) span(ctx context.Context, kind telemetry.SpanKind, name string, body func(ctx context.Context) error) error {
	if p.tel == nil {
		return body(ctx)
	}
	return p.tel.WithSpan(ctx, kind, name, body)
}

func (p *Pipeline) enter(s State, res *Result) {
	p.Logger.V(1).Info("pipeline.state", "from", string(p.state), "to", string(s))
	p.state = s
	res.State = s
}

// checkTree refuses to release from a dirty working tree. Interactively the
// user may choose to commit everything and continue; declining, or running
// non-interactively, aborts before anything is built.
func (p *Pipeline) checkTree(req Request) error {
	clean, err := p.git.IsClean()
	if err != nil {
		return err
	}
	if clean {
		return nil
	}

	status, err := p.git.Status()
	if err != nil {
		return err
	}

	if req.NonInteractive {
		return &DirtyTreeError{Status: status}
	}

	fmt.Fprintf(p.out, "You have uncommitted changes:\n%s\n", status)
	fmt.Fprintf(p.out, "Commit all changes and continue? (y/n): ")

	scanner := bufio.NewScanner(p.in)
	scanner.Scan()
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	if answer != "y" && answer != "yes" {
		return &DirtyTreeError{Status: status}
	}

	if err := p.git.Add("."); err != nil {
		return err
	}
	return p.git.Commit(fmt.Sprintf("WIP before release v%s", req.Version))
}

// updateVersion rewrites the version metadata file in the working tree,
// preserving any keys relkit does not own, and commits the bump on full
// releases.
func (p *Pipeline) updateVersion(req Request) error {
	meta := versionfile.New(req.Version, p.now())
	path := filepath.Join(p.AbsWorkDir, versionfile.DefaultPath)
	if err := versionfile.Write(p.fs, path, meta); err != nil {
		return err
	}

	if !req.FullRelease {
		return nil
	}

	clean, err := p.git.IsClean()
	if err != nil {
		return err
	}
	if clean {
		// Re-releasing the same version: nothing to commit.
		return nil
	}

	if err := p.git.Add(versionfile.DefaultPath); err != nil {
		return err
	}
	return p.git.Commit(fmt.Sprintf("Bump version to v%s", req.Version))
}

func (p *Pipeline) build(req Request, res *Result) error {
	if err := p.ensureToolchain(req); err != nil {
		return err
	}

	builder, err := packager.New(
		packager.Logger(p.Logger),
		packager.FS(p.fs),
		packager.Commander(p.cmdr),
		packager.WD(p.AbsWorkDir),
	)
	if err != nil {
		return err
	}

	patcher, err := envpatch.New(
		envpatch.Logger(p.Logger),
		envpatch.FS(p.fs),
	)
	if err != nil {
		return err
	}

	var artifact *packager.Artifact
	err = patcher.WithPatch(p.hookResolver(), func() error {
		var buildErr error
		artifact, buildErr = builder.Build(p.Conf.BuildSpec())
		return buildErr
	})
	if err != nil {
		return err
	}

	m := p.Conf.BundleManifest()
	m.Append(manifest.Entry{
		Name:     "application",
		Source:   artifact.Path,
		Required: true,
	})

	asm, err := assemble.New(
		assemble.Logger(p.Logger),
		assemble.FS(p.fs),
		assemble.WD(p.AbsWorkDir),
	)
	if err != nil {
		return err
	}

	bundleDir := req.OutputPath
	if !filepath.IsAbs(bundleDir) {
		bundleDir = filepath.Join(p.AbsWorkDir, bundleDir)
	}

	if _, err := asm.Assemble(&m, bundleDir); err != nil {
		return err
	}

	if err := p.writeInstallers(req.Version, bundleDir); err != nil {
		return err
	}

	// The bundle carries its own version metadata so an installed copy can
	// report what it is.
	bundleMeta := versionfile.New(req.Version, p.now())
	if err := versionfile.Write(p.fs, filepath.Join(bundleDir, versionfile.DefaultPath), bundleMeta); err != nil {
		return err
	}

	res.BundleDir = bundleDir
	return nil
}

// ensureToolchain verifies the build tools. Only a full release may
// install the missing packager; a plain build never mutates the local
// toolchain and reports what is absent instead.
func (p *Pipeline) ensureToolchain(req Request) error {
	if req.FullRelease {
		vers, err := p.probe.EnsureToolchain()
		if err != nil {
			return err
		}
		p.Logger.Info("toolchain.ready", "runtime", vers.Runtime, "packager", vers.Packager)
		return nil
	}

	if st := p.probe.RuntimeStatus(); !st.Present {
		return &toolchain.ToolchainMissingError{Tool: toolchain.DefaultRuntime}
	}
	if st := p.probe.PackagerStatus(); !st.Present {
		return &toolchain.ToolchainMissingError{Tool: toolchain.DefaultPackager}
	}
	return nil
}

// hookResolver locates the packager hook to disable for the build. A
// missing hooks dir or hook file is not an error: there is nothing to
// patch, and the build proceeds unpatched.
func (p *Pipeline) hookResolver() envpatch.Resolver {
	return func() (string, bool, error) {
		dir, err := p.probe.HooksDir()
		if err != nil {
			p.Logger.V(1).Info("envpatch.hooks-dir-unavailable", "err", err.Error())
			return "", false, nil
		}
		path := filepath.Join(dir, p.HookFile)
		if _, err := p.fs.Stat(path); err != nil {
			return path, false, nil
		}
		return path, true, nil
	}
}

func (p *Pipeline) writeInstallers(version, bundleDir string) error {
	syn, err := installer.New(
		installer.Logger(p.Logger),
		installer.ForPlatform(p.platform),
		installer.Product(p.Conf.Product),
	)
	if err != nil {
		return err
	}

	scripts, err := syn.Synthesize(version)
	if err != nil {
		return err
	}

	if err := p.fs.WriteFile(filepath.Join(bundleDir, scripts.InstallName), []byte(scripts.Install), 0755); err != nil {
		return err
	}
	return p.fs.WriteFile(filepath.Join(bundleDir, scripts.UninstallName), []byte(scripts.Uninstall), 0755)
}

func (p *Pipeline) archive(req Request, res *Result) error {
	outPath := filepath.Join(p.AbsWorkDir, archive.Name(p.Conf.Product, req.Version))
	if err := archive.Zip(p.fs, res.BundleDir, outPath); err != nil {
		return err
	}
	res.ArchivePath = outPath
	return nil
}

func (p *Pipeline) tag(req Request, res *Result) error {
	tag := "v" + req.Version

	exists, err := p.git.TagExists(tag)
	if err != nil {
		return err
	}
	if exists {
		return &TagExistsError{Tag: tag}
	}

	if err := p.git.TagAnnotated(tag, req.Message); err != nil {
		return err
	}

	if err := p.git.Push("HEAD"); err != nil {
		return err
	}
	if err := p.git.PushTag(tag); err != nil {
		// The local tag is ours; drop it so a retry starts from scratch.
		if derr := p.git.DeleteTag(tag); derr != nil {
			p.Logger.V(1).Info("tag.rollback-failed", "tag", tag, "err", derr.Error())
		}
		return err
	}

	res.Tag = tag
	return nil
}

func (p *Pipeline) publish(ctx context.Context, req Request, res *Result) error {
	if p.pub == nil {
		p.Logger.Info("publish.skipped", "reason", "no publisher configured")
		return nil
	}

	repo, err := p.git.Repo()
	if err != nil {
		return err
	}
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 {
		return fmt.Errorf("cannot determine owner/repo from push URL %q", repo)
	}

	rec := ghrelease.Record{
		TagName: res.Tag,
		Name:    fmt.Sprintf("%s v%s", p.Conf.Product, req.Version),
		Notes:   req.Message,
	}

	url, err := p.pub.Publish(ctx, parts[0], parts[1], rec, []string{res.ArchivePath})
	if err != nil {
		return err
	}

	res.ReleaseURL = url
	return nil
}

// cleanupFS removes packager residue. Deleting is idempotent, so running it
// on an already-clean tree, or twice, is fine.
func (p *Pipeline) cleanupFS() {
	for _, d := range transientDirs {
		path := filepath.Join(p.AbsWorkDir, d)
		if err := p.fs.RemoveAll(path); err != nil {
			p.Logger.V(1).Info("cleanup.skipped", "path", path, "err", err.Error())
		}
	}
}
