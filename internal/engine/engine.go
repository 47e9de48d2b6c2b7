package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/antonkrylov/cargo-offload/internal/artifacts"
	"github.com/antonkrylov/cargo-offload/internal/hostspec"
	"github.com/antonkrylov/cargo-offload/internal/project"
	"github.com/antonkrylov/cargo-offload/internal/remotecmd"
	"github.com/antonkrylov/cargo-offload/internal/rsync"
	"github.com/antonkrylov/cargo-offload/internal/sshexec"
	"github.com/antonkrylov/cargo-offload/internal/toolchain"
	"github.com/antonkrylov/cargo-offload/internal/tunnel"
)

var log = logging.MustGetLogger("engine")

// Kind selects which cargo-offload operation the controller drives.
type Kind int

const (
	Build Kind = iota
	Test
	Clippy
	Clean
	Toolchain
	RunLocal
	RunRemote
)

func (k Kind) String() string {
	switch k {
	case Build:
		return "build"
	case Test:
		return "test"
	case Clippy:
		return "clippy"
	case Clean:
		return "clean"
	case Toolchain:
		return "toolchain"
	case RunLocal:
		return "run-local"
	case RunRemote:
		return "run-remote"
	}
	return "unknown"
}

// State tracks where the controller is in its pipeline. Used for
// debug logging only; transitions are linear per operation kind.
type State int

const (
	StateInit State = iota
	StateSynced
	StateToolchainReady
	StateRemoteExecuting
	StateArtifactsTransferring
	StateTunnelOpen
	StateLocalExecuting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSynced:
		return "synced"
	case StateToolchainReady:
		return "toolchain-ready"
	case StateRemoteExecuting:
		return "remote-executing"
	case StateArtifactsTransferring:
		return "artifacts-transferring"
	case StateTunnelOpen:
		return "tunnel-open"
	case StateLocalExecuting:
		return "local-executing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Operation describes a single invocation. All fields are resolved by
// the CLI before the controller sees them; the controller never reads
// flags or the environment.
type Operation struct {
	Kind        Kind
	Target      string
	Release     bool
	Bin         string
	Example     string
	ExtraArgs   []string
	Passthrough []string
	Env         []string
	Forwards    []tunnel.ForwardSpec

	// ToolchainArgs is the raw argument list for Kind == Toolchain.
	ToolchainArgs []string
}

func (op Operation) profile() string {
	if op.Release {
		return "release"
	}
	return "debug"
}

// remoteShell is the slice of sshexec.Client the controller needs.
type remoteShell interface {
	Output(ctx context.Context, command string) ([]byte, error)
	Run(ctx context.Context, command string) error
	Interactive(ctx context.Context, command string, forwardArgs []string) error
}

type syncer interface {
	SyncSource(ctx context.Context, localRoot, remoteDir string) error
}

type transferrer interface {
	Plan(ctx context.Context, remoteDir string) ([]artifacts.Artifact, error)
	Transfer(ctx context.Context, remoteDir, localDir string, plan []artifacts.Artifact) error
}

// Controller drives one operation end to end against a single remote
// host: sync, toolchain, remote command, then the per-kind tail.
type Controller struct {
	Project   *project.Project
	Host      hostspec.RemoteHost
	Toolchain toolchain.Spec
	CopyAll   bool

	shell   remoteShell
	sync    syncer
	xfer    transferrer
	execBin func(ctx context.Context, path string, args []string) error

	state State
}

// New wires a controller to a live ssh client and rsync runner.
// The caller owns the client and closes it after Run returns.
func New(proj *project.Project, host hostspec.RemoteHost, spec toolchain.Spec, client *sshexec.Client, runner *rsync.Runner, copyAll bool) *Controller {
	runner.CopyAll = copyAll
	return &Controller{
		Project:   proj,
		Host:      host,
		Toolchain: spec,
		CopyAll:   copyAll,
		shell:     client,
		sync:      runner,
		xfer:      &artifacts.Engine{Remote: client, Copier: runner, CopyAll: copyAll},
		execBin:   runLocalBinary,
	}
}

func (c *Controller) setState(s State) {
	log.Debug("state %s -> %s", c.state, s)
	c.state = s
}

// Run executes the operation. On failure the returned error carries
// enough type information for the CLI to pick an exit code.
func (c *Controller) Run(ctx context.Context, op Operation) error {
	start := time.Now()
	err := c.run(ctx, op)
	if err != nil {
		c.setState(StateFailed)
		return err
	}
	c.setState(StateDone)
	log.Info("%s finished in %s", op.Kind, time.Since(start).Truncate(time.Millisecond))
	return nil
}

func (c *Controller) run(ctx context.Context, op Operation) error {
	switch op.Kind {
	case Clean:
		return c.clean(ctx)
	case Toolchain:
		c.setState(StateRemoteExecuting)
		return c.shell.Run(ctx, remotecmd.ToolchainAdmin(op.ToolchainArgs))
	}

	mirror := c.Project.MirrorDir()
	log.Info("syncing %s to %s:%s", c.Project.Root, c.Host.Target(), mirror)
	if _, err := c.shell.Output(ctx, remotecmd.Mkdir(mirror)); err != nil {
		return &MirrorError{Err: err}
	}
	if err := c.sync.SyncSource(ctx, c.Project.Root, mirror); err != nil {
		return err
	}
	c.setState(StateSynced)

	if err := c.ensureToolchain(ctx, mirror, op.Target); err != nil {
		return err
	}
	c.setState(StateToolchainReady)

	cmd := c.remoteCommand(mirror, op)
	c.setState(StateRemoteExecuting)

	if op.Kind == RunRemote {
		if err := tunnel.Preflight(op.Forwards); err != nil {
			return err
		}
		if len(op.Forwards) > 0 {
			c.setState(StateTunnelOpen)
		}
		return c.shell.Interactive(ctx, cmd, tunnel.SSHArgs(op.Forwards))
	}

	log.Debug("remote command: %s", cmd)
	if err := c.shell.Run(ctx, cmd); err != nil {
		return err
	}

	switch op.Kind {
	case Build, Test, RunLocal:
		plan, err := c.transferArtifacts(ctx, op)
		if err != nil {
			return err
		}
		if op.Kind == RunLocal {
			return c.execSelected(ctx, op, plan)
		}
	}
	return nil
}

func (c *Controller) clean(ctx context.Context) error {
	c.setState(StateRemoteExecuting)
	if _, err := c.shell.Output(ctx, remotecmd.RemoveDir(c.Project.MirrorDir())); err != nil {
		return err
	}
	local := filepath.Join(c.Project.Root, "target", "offload")
	log.Debug("removing %s", local)
	return os.RemoveAll(local)
}

// ensureToolchain installs the pinned channel if any, verifies it is
// actually listed afterwards, and adds the cross target.
func (c *Controller) ensureToolchain(ctx context.Context, mirror, target string) error {
	ch := c.Toolchain.Channel
	if !c.Toolchain.Unspecified() {
		log.Info("ensuring toolchain %s on %s", ch, c.Host.Target())
		if _, err := c.shell.Output(ctx, remotecmd.ToolchainInstall(mirror, ch)); err != nil {
			return &ToolchainError{Channel: ch, Err: err}
		}
		out, err := c.shell.Output(ctx, remotecmd.ToolchainList())
		if err != nil {
			return &ToolchainError{Channel: ch, Err: err}
		}
		if !toolchainListed(string(out), ch) {
			return &ToolchainError{Channel: ch, Err: fmt.Errorf("not present after install")}
		}
	}
	if _, err := c.shell.Output(ctx, remotecmd.TargetAdd(mirror, target, ch)); err != nil {
		return &ToolchainError{Channel: ch, Err: fmt.Errorf("target %s: %w", target, err)}
	}
	return nil
}

func toolchainListed(listing, channel string) bool {
	for _, line := range strings.Split(listing, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), channel) {
			return true
		}
	}
	return false
}

func (c *Controller) remoteCommand(mirror string, op Operation) string {
	cmd := remotecmd.Command{
		Dir:         mirror,
		Toolchain:   c.Toolchain.Channel,
		Target:      op.Target,
		Release:     op.Release,
		Bin:         op.Bin,
		Example:     op.Example,
		ExtraArgs:   op.ExtraArgs,
		Env:         op.Env,
		Passthrough: op.Passthrough,
	}
	switch op.Kind {
	case Test:
		cmd.Subcommand = "test"
	case Clippy:
		cmd.Subcommand = "clippy"
	case RunRemote:
		cmd.Subcommand = "run"
	default:
		// Build and RunLocal both build remotely; run-local executes
		// the produced binary on this machine afterwards.
		cmd.Subcommand = "build"
		cmd.Passthrough = nil
	}
	return cmd.String()
}

// remoteArtifactDir is the cargo output directory inside the mirror.
func (c *Controller) remoteArtifactDir(op Operation) string {
	return path.Join(c.Project.MirrorDir(), "target", op.Target, op.profile())
}

// localArtifactDir keeps offloaded output out of the way of any local
// cargo builds.
func (c *Controller) localArtifactDir(op Operation) string {
	return filepath.Join(c.Project.Root, "target", "offload", op.Target, op.profile())
}

// transferArtifacts plans and copies the build output, returning the
// plan so binary selection works off the same listing the transfer used.
func (c *Controller) transferArtifacts(ctx context.Context, op Operation) ([]artifacts.Artifact, error) {
	c.setState(StateArtifactsTransferring)
	remoteDir := c.remoteArtifactDir(op)

	var plan []artifacts.Artifact
	switch {
	case op.Example != "":
		plan = []artifacts.Artifact{{RelPath: path.Join("examples", op.Example), Executable: true}}
	case op.Bin != "" && op.Kind == RunLocal:
		plan = []artifacts.Artifact{{RelPath: op.Bin, Executable: true}}
	default:
		var err error
		plan, err = c.xfer.Plan(ctx, remoteDir)
		if err != nil {
			return nil, err
		}
	}
	if len(plan) == 0 {
		log.Warning("no artifacts found in %s", remoteDir)
		return nil, nil
	}
	log.Info("copying %d artifact(s) to %s", len(plan), c.localArtifactDir(op))
	if err := c.xfer.Transfer(ctx, remoteDir, c.localArtifactDir(op), plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// execSelected picks the binary to run locally and executes it with
// the passthrough arguments and the invocation's environment.
func (c *Controller) execSelected(ctx context.Context, op Operation, plan []artifacts.Artifact) error {
	rel, err := selectBinary(op, plan)
	if err != nil {
		return err
	}
	c.setState(StateLocalExecuting)
	bin := filepath.Join(c.localArtifactDir(op), filepath.FromSlash(rel))
	log.Info("running %s", bin)
	return c.execBin(ctx, bin, op.Passthrough)
}

func selectBinary(op Operation, plan []artifacts.Artifact) (string, error) {
	if op.Example != "" {
		return path.Join("examples", op.Example), nil
	}
	if op.Bin != "" {
		return op.Bin, nil
	}
	var candidates []string
	for _, a := range plan {
		if !a.Executable || strings.ContainsRune(a.RelPath, '/') {
			continue
		}
		if strings.HasPrefix(a.RelPath, "lib") {
			continue
		}
		candidates = append(candidates, a.RelPath)
	}
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("no runnable binary among %d artifact(s)", len(plan))
	case 1:
		return candidates[0], nil
	}
	return "", &AmbiguousBinaryError{Candidates: candidates}
}

func runLocalBinary(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if exitErr, ok := err.(*exec.ExitError); ok {
		return &LocalExitError{ExitCode: exitErr.ExitCode()}
	}
	return err
}
