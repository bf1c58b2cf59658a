package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/posprint/relkit/pkg/ghrelease"
	"github.com/posprint/relkit/pkg/installer"
	"github.com/posprint/relkit/pkg/loginfra"
	"github.com/posprint/relkit/pkg/pipeline"
	"github.com/posprint/relkit/pkg/relconf"
	"github.com/posprint/relkit/pkg/telemetry"
	"github.com/posprint/relkit/pkg/toolchain"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/twpayne/go-vfs"
	"k8s.io/klog/klogr"
)

func Execute() {
	log := klogr.New()

	var configPath string

	cmd := cobra.Command{
		Use:   "relkit",
		Short: "Build, version, and publish POSPrinter distributions",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", relconf.DefaultFileName, "path to the relkit config file")

	{
		var version, output, mode string
		var includeLibusb bool
		build := &cobra.Command{
			Use:   "build",
			Short: "Package the application and assemble the distribution bundle",
			RunE: func(cmd *cobra.Command, args []string) error {
				conf, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				if mode != "" {
					conf.Packaging.Mode = mode
				}
				if includeLibusb && !conf.Packaging.IncludeLibusb {
					conf.Packaging.IncludeLibusb = true
					conf.Manifest = append(conf.Manifest, relconf.File{
						Name:   "libusb runtime",
						Source: "libusb-1.0.dll",
					})
				}

				p, err := pipeline.New(conf, pipeline.Logger(log))
				if err != nil {
					return err
				}

				res, err := p.Run(context.Background(), pipeline.Request{
					Version:    version,
					OutputPath: output,
				})
				if err != nil {
					return err
				}

				fmt.Printf("Bundle: %s\nArchive: %s\n", res.BundleDir, res.ArchivePath)
				return nil
			},
		}
		build.Flags().StringVar(&version, "version", "", "version to build, e.g. 1.2.16")
		build.Flags().StringVar(&output, "output", pipeline.DefaultOutputPath, "bundle output directory")
		build.Flags().StringVar(&mode, "mode", "", "packaging mode: onefile or onedir")
		build.Flags().BoolVar(&includeLibusb, "include-libusb", false, "bundle the libusb runtime library")
		cmd.AddCommand(build)
	}

	{
		var version, output, message, pushGateway string
		var nonInteractive bool
		release := &cobra.Command{
			Use:   "release",
			Short: "Run the full pipeline: build, archive, tag, and publish",
			RunE: func(cmd *cobra.Command, args []string) error {
				conf, err := loadConfig(configPath)
				if err != nil {
					return err
				}

				ctx := context.Background()

				tel := telemetry.New("relkit", []telemetry.SpanKind{telemetry.KindRelease, telemetry.KindStage})
				tel.PushEndpoint = pushGateway
				defer func() {
					if err := tel.Push(); err != nil {
						log.V(1).Info("telemetry.push", "err", err.Error())
					}
				}()

				opts := []pipeline.Option{
					pipeline.Logger(log),
					pipeline.Telemeter(tel),
				}
				if os.Getenv("GITHUB_TOKEN") != "" {
					opts = append(opts, pipeline.Publisher(ghrelease.NewClient(ctx)))
				} else {
					log.Info("release.publish.disabled", "reason", "GITHUB_TOKEN is not set")
				}

				p, err := pipeline.New(conf, opts...)
				if err != nil {
					return err
				}

				res, err := p.Run(ctx, pipeline.Request{
					Version:        version,
					OutputPath:     output,
					Message:        message,
					FullRelease:    true,
					NonInteractive: nonInteractive,
				})
				if err != nil {
					return err
				}

				fmt.Printf("Released %s\n", res.Tag)
				if res.ReleaseURL != "" {
					fmt.Printf("  %s\n", res.ReleaseURL)
				}
				return nil
			},
		}
		release.Flags().StringVar(&version, "version", "", "version to release, e.g. 1.2.16")
		release.Flags().StringVar(&output, "output", pipeline.DefaultOutputPath, "bundle output directory")
		release.Flags().StringVar(&message, "message", "", "tag and release message, defaults to \"Release v<version>\"")
		release.Flags().StringVar(&pushGateway, "push-gateway", "", "pushgateway base URL for run metrics, e.g. http://localhost:9091")
		release.Flags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; fail instead")
		cmd.AddCommand(release)
	}

	{
		var version, message string
		publish := &cobra.Command{
			Use:   "publish",
			Short: "Create the hosting-platform release for an already-pushed tag",
			Long:  "Uploads the archive produced by an earlier `relkit build` as a release of tag v<version>. Intended for tag-triggered CI, where the tag already exists.",
			RunE: func(cmd *cobra.Command, args []string) error {
				conf, err := loadConfig(configPath)
				if err != nil {
					return err
				}

				ctx := context.Background()

				p, err := pipeline.New(conf,
					pipeline.Logger(log),
					pipeline.Publisher(ghrelease.NewClient(ctx)),
				)
				if err != nil {
					return err
				}

				res, err := p.PublishExisting(ctx, pipeline.Request{
					Version: version,
					Message: message,
				})
				if err != nil {
					return err
				}

				fmt.Printf("Published %s\n", res.ReleaseURL)
				return nil
			},
		}
		publish.Flags().StringVar(&version, "version", "", "version whose tag to publish, e.g. 1.2.16")
		publish.Flags().StringVar(&message, "message", "", "release notes, defaults to \"Release v<version>\"")
		cmd.AddCommand(publish)
	}

	{
		var version, platform, output string
		inst := &cobra.Command{
			Use:   "installer",
			Short: "Synthesize the install and uninstall scripts without building",
			RunE: func(cmd *cobra.Command, args []string) error {
				conf, err := loadConfig(configPath)
				if err != nil {
					return err
				}

				var pf installer.Platform
				switch platform {
				case "windows", "":
					pf = &installer.Windows{}
				case "linux":
					pf = &installer.Linux{}
				default:
					return fmt.Errorf("unsupported platform %q", platform)
				}

				syn, err := installer.New(
					installer.Logger(log),
					installer.ForPlatform(pf),
					installer.Product(conf.Product),
				)
				if err != nil {
					return err
				}

				scripts, err := syn.Synthesize(version)
				if err != nil {
					return err
				}

				fs := vfs.HostOSFS
				if err := fs.WriteFile(filepath.Join(output, scripts.InstallName), []byte(scripts.Install), 0755); err != nil {
					return err
				}
				if err := fs.WriteFile(filepath.Join(output, scripts.UninstallName), []byte(scripts.Uninstall), 0755); err != nil {
					return err
				}

				fmt.Printf("Wrote %s and %s to %s\n", scripts.InstallName, scripts.UninstallName, output)
				return nil
			},
		}
		inst.Flags().StringVar(&version, "version", "", "version the scripts should install")
		inst.Flags().StringVar(&platform, "platform", "windows", "target platform: windows or linux")
		inst.Flags().StringVar(&output, "output", ".", "directory to write the scripts into")
		cmd.AddCommand(inst)
	}

	{
		tc := &cobra.Command{
			Use:   "toolchain",
			Short: "Inspect or provision the packaging toolchain",
		}

		status := &cobra.Command{
			Use:   "status",
			Short: "Report whether the runtime and the packager are available",
			RunE: func(cmd *cobra.Command, args []string) error {
				probe, err := toolchain.New(toolchain.Logger(log))
				if err != nil {
					return err
				}

				printStatus(toolchain.DefaultRuntime, probe.RuntimeStatus())
				printStatus(toolchain.DefaultPackager, probe.PackagerStatus())

				latest, err := probe.LatestPackagerVersion()
				if err != nil {
					log.V(1).Info("toolchain.latest", "err", err.Error())
				} else {
					fmt.Printf("%s latest: %s\n", toolchain.DefaultPackager, latest)
				}
				return nil
			},
		}
		tc.AddCommand(status)

		ensure := &cobra.Command{
			Use:   "ensure",
			Short: "Verify the toolchain, installing the packager if it is missing",
			RunE: func(cmd *cobra.Command, args []string) error {
				probe, err := toolchain.New(toolchain.Logger(log))
				if err != nil {
					return err
				}

				vers, err := probe.EnsureToolchain()
				if err != nil {
					return err
				}

				fmt.Printf("%s %v\n%s %v\n", toolchain.DefaultRuntime, vers.Runtime, toolchain.DefaultPackager, vers.Packager)
				return nil
			},
		}
		tc.AddCommand(ensure)

		cmd.AddCommand(tc)
	}

	cmd.SilenceErrors = true

	fs := loginfra.Init()

	// Hand parsing of remaining flags to pflags and cobra
	pflag.CommandLine.AddGoFlagSet(fs)

	if err := cmd.Execute(); err != nil {
		log.Error(err, err.Error())
		os.Exit(1)
	}
}

func loadConfig(path string) (*relconf.Config, error) {
	return relconf.Load(vfs.HostOSFS, path)
}

func printStatus(tool string, st *toolchain.Status) {
	if !st.Present {
		fmt.Printf("%s: not found\n", tool)
		return
	}
	if st.Version == nil {
		fmt.Printf("%s: present, version unknown\n", tool)
		return
	}
	fmt.Printf("%s: %s\n", tool, st.Version)
}
