package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/op/go-logging.v1"

	cliconfig "github.com/antonkrylov/cargo-offload/internal/cli/config"
	"github.com/antonkrylov/cargo-offload/internal/engine"
	"github.com/antonkrylov/cargo-offload/internal/hostspec"
	"github.com/antonkrylov/cargo-offload/internal/project"
	"github.com/antonkrylov/cargo-offload/internal/rsync"
	"github.com/antonkrylov/cargo-offload/internal/sshexec"
	"github.com/antonkrylov/cargo-offload/internal/toolchain"
	"github.com/antonkrylov/cargo-offload/internal/tunnel"
)

const (
	defaultTarget = "x86_64-unknown-linux-gnu"

	// envLogLevel selects verbosity: error|warning|info|debug.
	envLogLevel = "CARGO_OFFLOAD_LOG"

	exitUsage = 2
	exitInfra = 4
)

type rootOptions struct {
	host        string
	port        uint16
	target      string
	envVars     []string
	copyAll     bool
	forwards    []string
	configPath  string
	contextName string

	// toolchainOverride is the +channel argument stripped before cobra
	// sees the command line, cargo style.
	toolchainOverride string
}

func main() {
	setupLogging()

	opts := &rootOptions{}
	rootCmd := newRootCmd(opts)

	opts.toolchainOverride, os.Args = stripToolchainArg(os.Args)
	rootCmd.SetArgs(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cargo-offload: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cargo-offload",
		Short:         "Build, test and run Rust projects on a remote host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultConfig := os.Getenv("CARGO_OFFLOAD_CONFIG")
	if defaultConfig == "" {
		defaultConfig = cliconfig.DefaultConfigPath()
	}
	rootCmd.PersistentFlags().StringVar(&opts.host, "host", "", "remote host as user@host[:port] (overrides "+hostspec.EnvHost+" and config)")
	rootCmd.PersistentFlags().Uint16Var(&opts.port, "port", 0, "ssh port (overrides any port in --host)")
	rootCmd.PersistentFlags().StringVar(&opts.target, "target", "", "target triple (default "+defaultTarget+")")
	rootCmd.PersistentFlags().StringArrayVarP(&opts.envVars, "env", "e", nil, "environment variable KEY=VALUE for the remote command (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&opts.copyAll, "copy-all-artifacts", false, "copy the whole remote target directory back, lifting artifact exclusions")
	rootCmd.PersistentFlags().StringArrayVar(&opts.forwards, "forward", nil, "port forward as PORT or LOCAL:REMOTE (repeatable, run-remote only)")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "path to config file (default $HOME/.cargo-offload/config)")
	rootCmd.PersistentFlags().StringVar(&opts.contextName, "context", "", "context name within the config (overrides currentContext)")

	rootCmd.AddCommand(newBuildCmd(opts))
	rootCmd.AddCommand(newRunLocalCmd(opts))
	rootCmd.AddCommand(newRunRemoteCmd(opts))
	rootCmd.AddCommand(newTestCmd(opts))
	rootCmd.AddCommand(newClippyCmd(opts))
	rootCmd.AddCommand(newCleanCmd(opts))
	rootCmd.AddCommand(newToolchainCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	return rootCmd
}

// stripToolchainArg removes a cargo-style "+channel" given as the first
// argument, e.g. "cargo-offload +nightly build". cobra would otherwise
// reject it as an unknown command.
func stripToolchainArg(argv []string) (string, []string) {
	if len(argv) > 1 && strings.HasPrefix(argv[1], "+") {
		return strings.TrimPrefix(argv[1], "+"), append(argv[:1:1], argv[2:]...)
	}
	return "", argv
}

func setupLogging() {
	level := logging.WARNING
	switch strings.ToLower(os.Getenv(envLogLevel)) {
	case "debug":
		level = logging.DEBUG
	case "info":
		level = logging.INFO
	case "error":
		level = logging.ERROR
	}
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatter := logging.MustStringFormatter("%{level:-7s} %{module}: %{message}")
	leveled := logging.AddModuleLevel(logging.NewBackendFormatter(backend, formatter))
	leveled.SetLevel(level, "")
	logging.SetBackend(leveled)
}

// exitCode classifies the failure. A failing remote command propagates
// its exit code; a failing local binary does the same. Ambiguous binary
// selection is a usage problem; everything else is infrastructure.
// Infrastructure wrappers are checked first: a MirrorError or
// ToolchainError often carries a RemoteExitError from the underlying ssh
// command, but the failing thing is the pipeline, not the user's code.
func exitCode(err error) int {
	var mirror *engine.MirrorError
	if errors.As(err, &mirror) {
		return exitInfra
	}
	var tc *engine.ToolchainError
	if errors.As(err, &tc) {
		return exitInfra
	}
	var remote *sshexec.RemoteExitError
	if errors.As(err, &remote) {
		return remote.ExitCode
	}
	var local *engine.LocalExitError
	if errors.As(err, &local) {
		return local.ExitCode
	}
	var ambiguous *engine.AmbiguousBinaryError
	if errors.As(err, &ambiguous) {
		return exitUsage
	}
	return exitInfra
}

// execute resolves host, toolchain and transports, then hands the
// operation to the controller. The ssh control master lives exactly as
// long as this call.
func (r *rootOptions) execute(ctx context.Context, op engine.Operation) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	proj, err := project.Load(cwd)
	if err != nil {
		return err
	}

	cfg, err := cliconfig.Load(r.configPath)
	if err != nil {
		return err
	}
	cliCtx, _, err := cfg.Resolve(r.contextName)
	if err != nil {
		return err
	}

	configHost := ""
	var sshOpts, rsyncOpts []string
	if cliCtx != nil {
		configHost = cliCtx.Host
		if cliCtx.Port != 0 && configHost != "" {
			configHost = fmt.Sprintf("%s:%d", configHost, cliCtx.Port)
		}
		if sshOpts, err = cliCtx.SplitSSHOptions(); err != nil {
			return err
		}
		if rsyncOpts, err = cliCtx.SplitRsyncOptions(); err != nil {
			return err
		}
	}
	host, err := hostspec.Resolve(r.host, r.port, configHost)
	if err != nil {
		return err
	}

	if op.Target == "" {
		op.Target = r.target
	}
	if op.Target == "" && cliCtx != nil {
		op.Target = cliCtx.Target
	}
	if op.Target == "" {
		op.Target = defaultTarget
	}
	op.Env = r.envVars

	spec, err := toolchain.Resolve(proj.Root, r.toolchainOverride)
	if err != nil {
		return err
	}

	if op.Kind == engine.RunRemote {
		op.Forwards, err = tunnel.ParseSpecs(r.forwards)
		if err != nil {
			return err
		}
	} else if len(r.forwards) > 0 {
		return fmt.Errorf("--forward only applies to run-remote")
	}

	client := sshexec.NewClient(host, sshOpts)
	defer client.Close()
	runner := rsync.NewRunner(client, rsyncOpts)

	ctrl := engine.New(proj, host, spec, client, runner, r.copyAll)
	return ctrl.Run(ctx, op)
}

type cargoFlags struct {
	release bool
	bin     string
	example string
}

func (f *cargoFlags) register(cmd *cobra.Command, selectors bool) {
	cmd.Flags().BoolVar(&f.release, "release", false, "build with the release profile")
	if selectors {
		cmd.Flags().StringVar(&f.bin, "bin", "", "build and select a specific binary")
		cmd.Flags().StringVar(&f.example, "example", "", "build and select a specific example")
	}
	// cargo owns a large and growing flag surface (--features, -j, ...),
	// so these commands parse their own flags and forward everything
	// unrecognized to the remote cargo invocation instead of erroring.
	cmd.DisableFlagParsing = true
}

func newBuildCmd(root *rootOptions) *cobra.Command {
	opts := &cargoFlags{}
	cmd := &cobra.Command{
		Use:   "build [cargo args]",
		Short: "Build remotely and copy the artifacts back",
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, pass, help, err := parseCargoArgs(cmd, args)
			if err != nil {
				return err
			}
			if help {
				return cmd.Help()
			}
			if len(pass) > 0 {
				return fmt.Errorf("build takes no arguments after --; pass cargo flags directly")
			}
			return root.execute(cmd.Context(), engine.Operation{
				Kind:      engine.Build,
				Release:   opts.release,
				Bin:       opts.bin,
				Example:   opts.example,
				ExtraArgs: extra,
			})
		},
	}
	opts.register(cmd, true)
	return cmd
}

func newRunLocalCmd(root *rootOptions) *cobra.Command {
	opts := &cargoFlags{}
	cmd := &cobra.Command{
		Use:     "run [cargo args] [-- program args]",
		Aliases: []string{"run-local"},
		Short:   "Build remotely, then run the binary on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, pass, help, err := parseCargoArgs(cmd, args)
			if err != nil {
				return err
			}
			if help {
				return cmd.Help()
			}
			return root.execute(cmd.Context(), engine.Operation{
				Kind:        engine.RunLocal,
				Release:     opts.release,
				Bin:         opts.bin,
				Example:     opts.example,
				ExtraArgs:   extra,
				Passthrough: pass,
			})
		},
	}
	opts.register(cmd, true)
	return cmd
}

func newRunRemoteCmd(root *rootOptions) *cobra.Command {
	opts := &cargoFlags{}
	cmd := &cobra.Command{
		Use:   "run-remote [cargo args] [-- program args]",
		Short: "Build and run on the remote host with an interactive terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, pass, help, err := parseCargoArgs(cmd, args)
			if err != nil {
				return err
			}
			if help {
				return cmd.Help()
			}
			return root.execute(cmd.Context(), engine.Operation{
				Kind:        engine.RunRemote,
				Release:     opts.release,
				Bin:         opts.bin,
				Example:     opts.example,
				ExtraArgs:   extra,
				Passthrough: pass,
			})
		},
	}
	opts.register(cmd, true)
	return cmd
}

func newTestCmd(root *rootOptions) *cobra.Command {
	opts := &cargoFlags{}
	cmd := &cobra.Command{
		Use:   "test [cargo args] [-- test harness args]",
		Short: "Run the test suite on the remote host",
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, pass, help, err := parseCargoArgs(cmd, args)
			if err != nil {
				return err
			}
			if help {
				return cmd.Help()
			}
			return root.execute(cmd.Context(), engine.Operation{
				Kind:        engine.Test,
				Release:     opts.release,
				ExtraArgs:   extra,
				Passthrough: pass,
			})
		},
	}
	opts.register(cmd, false)
	return cmd
}

func newClippyCmd(root *rootOptions) *cobra.Command {
	opts := &cargoFlags{}
	cmd := &cobra.Command{
		Use:   "clippy [cargo args] [-- lint args]",
		Short: "Run clippy on the remote host",
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, pass, help, err := parseCargoArgs(cmd, args)
			if err != nil {
				return err
			}
			if help {
				return cmd.Help()
			}
			return root.execute(cmd.Context(), engine.Operation{
				Kind:        engine.Clippy,
				Release:     opts.release,
				ExtraArgs:   extra,
				Passthrough: pass,
			})
		},
	}
	opts.register(cmd, false)
	return cmd
}

func newCleanCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the remote mirror and local offloaded artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.execute(cmd.Context(), engine.Operation{Kind: engine.Clean})
		},
	}
}

func newToolchainCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolchain [rustup toolchain args]",
		Short: "Manage rustup toolchains on the remote host",
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, pass, help, err := parseCargoArgs(cmd, args)
			if err != nil {
				return err
			}
			if help {
				return cmd.Help()
			}
			return root.execute(cmd.Context(), engine.Operation{
				Kind:          engine.Toolchain,
				ToolchainArgs: append(extra, pass...),
			})
		},
	}
	cmd.DisableFlagParsing = true
	return cmd
}
