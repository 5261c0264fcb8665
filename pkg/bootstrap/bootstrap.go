// Package bootstrap makes sure the external tools needed for LogMark's
// WebAssembly build are present before they are invoked. The pattern is
// always the same: check whether the tool resolves on PATH, install it
// through cargo if it doesn't, then run it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Tool describes an external executable and the cargo crate that provides it.
type Tool struct {
	// Name is the executable name on PATH. Defaults to Crate when empty.
	Name    string `yaml:"name,omitempty"`
	Crate   string `yaml:"crate"`
	Version string `yaml:"version,omitempty"`
	Locked  bool   `yaml:"locked,omitempty"`
}

// Trunk builds the web front-end and writes its output to ./dist.
var Trunk = Tool{Name: "trunk", Crate: "trunk", Locked: true}

// Command returns the executable name the tool resolves as.
func (t Tool) Command() string {
	if t.Name != "" {
		return t.Name
	}

	return t.Crate
}

// InstallError indicates that cargo failed to install a tool. The install is
// never retried; the whole run aborts.
type InstallError struct {
	Tool string
	Err  error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("failed to install %s", e.Tool)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// BuildError indicates that an invoked tool exited with a non-zero status.
type BuildError struct {
	Tool string
	Args []string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s %s failed", e.Tool, strings.Join(e.Args, " "))
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error chain to a process exit status. If the chain
// carries the exit status of a failed subprocess, that status is returned
// unchanged so callers see the same code the tool produced.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return code
		}
	}

	return 1
}

// Commander runs external commands. The default implementation shells out
// with inherited stdio; tests substitute a recording fake.
type Commander interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

type execCommander struct{}

func (execCommander) Run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

// Runner is the bootstrap-and-build pipeline. The zero value is not usable,
// call NewRunner.
type Runner struct {
	// Look resolves an executable on PATH, defaults to exec.LookPath.
	Look     func(name string) (string, error)
	Commands Commander
	// Out receives the human-readable progress lines.
	Out io.Writer
	// Dir is the working directory for invoked tools ("" = inherit).
	Dir string
}

func NewRunner() *Runner {
	return &Runner{
		Look:     exec.LookPath,
		Commands: execCommander{},
		Out:      os.Stdout,
	}
}

// ToolAvailable reports whether the named executable resolves on PATH.
// The result is never cached, every call queries the environment again.
func (r *Runner) ToolAvailable(name string) bool {
	_, err := r.Look(name)
	return err == nil
}

// Install fetches the tool through cargo. Only called for missing tools.
func (r *Runner) Install(ctx context.Context, tool Tool) error {
	args := []string{"install", tool.Crate}
	if tool.Version != "" {
		args = append(args, "--version", tool.Version)
	}
	if tool.Locked {
		args = append(args, "--locked")
	}

	err := r.Commands.Run(ctx, r.Dir, "cargo", args...)
	if err != nil {
		return &InstallError{Tool: tool.Command(), Err: err}
	}

	return nil
}

// EnsureTool checks that the tool is available and installs it if it isn't.
// A failed install is fatal, the guarded action must not run after it.
func (r *Runner) EnsureTool(ctx context.Context, tool Tool) error {
	if r.ToolAvailable(tool.Command()) {
		return nil
	}

	fmt.Fprintf(r.Out, "%s not found. Installing...\n", tool.Command())
	return r.Install(ctx, tool)
}

// Run invokes the named tool and waits for it to finish. Stdout and stderr
// are inherited so the tool's own output is what the user sees.
func (r *Runner) Run(ctx context.Context, name string, args ...string) error {
	err := r.Commands.Run(ctx, r.Dir, name, args...)
	if err != nil {
		return &BuildError{Tool: name, Args: args, Err: err}
	}

	return nil
}

// BuildWeb runs the release build of the web front-end: make sure trunk is
// installed, then let it write the artifacts to ./dist. Strictly sequential,
// the first failure aborts the whole run.
func (r *Runner) BuildWeb(ctx context.Context) error {
	err := r.EnsureTool(ctx, Trunk)
	if err != nil {
		return err
	}

	fmt.Fprintln(r.Out, "Building LogMark for WebAssembly...")

	err = r.Run(ctx, Trunk.Command(), "build", "--release")
	if err != nil {
		return err
	}

	fmt.Fprintln(r.Out, "Build complete! Files are in ./dist/")
	fmt.Fprintln(r.Out, "To serve locally: trunk serve")
	return nil
}

// ServeWeb serves the front-end locally with trunk's dev server, using the
// same bootstrap guard as BuildWeb.
func (r *Runner) ServeWeb(ctx context.Context) error {
	err := r.EnsureTool(ctx, Trunk)
	if err != nil {
		return err
	}

	return r.Run(ctx, Trunk.Command(), "serve")
}
