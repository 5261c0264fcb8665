package bootstrap

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

type fakeCommander struct {
	calls   []call
	failOn  string
	failErr error
}

func (f *fakeCommander) Run(ctx context.Context, dir, name string, args ...string) error {
	f.calls = append(f.calls, call{name: name, args: args})

	if f.failOn != "" && name == f.failOn {
		if f.failErr != nil {
			return f.failErr
		}
		return eris.Errorf("%s failed", name)
	}

	return nil
}

func newTestRunner(available map[string]bool, commands *fakeCommander) (*Runner, *strings.Builder) {
	out := &strings.Builder{}
	runner := &Runner{
		Look: func(name string) (string, error) {
			if available[name] {
				return "/usr/bin/" + name, nil
			}
			return "", exec.ErrNotFound
		},
		Commands: commands,
		Out:      out,
	}

	return runner, out
}

func TestBuildWebToolPresent(t *testing.T) {
	commands := &fakeCommander{}
	runner, out := newTestRunner(map[string]bool{"trunk": true}, commands)

	err := runner.BuildWeb(context.Background())
	require.NoError(t, err)

	require.Len(t, commands.calls, 1)
	assert.Equal(t, "trunk", commands.calls[0].name)
	assert.Equal(t, []string{"build", "--release"}, commands.calls[0].args)

	assert.Equal(t,
		"Building LogMark for WebAssembly...\n"+
			"Build complete! Files are in ./dist/\n"+
			"To serve locally: trunk serve\n",
		out.String())
}

func TestBuildWebInstallsMissingTool(t *testing.T) {
	commands := &fakeCommander{}
	runner, out := newTestRunner(nil, commands)

	err := runner.BuildWeb(context.Background())
	require.NoError(t, err)

	require.Len(t, commands.calls, 2)
	assert.Equal(t, "cargo", commands.calls[0].name)
	assert.Equal(t, []string{"install", "trunk", "--locked"}, commands.calls[0].args)
	assert.Equal(t, "trunk", commands.calls[1].name)

	assert.True(t, strings.HasPrefix(out.String(), "trunk not found. Installing...\n"))
}

func TestBuildWebSkipsInstallOnSecondRun(t *testing.T) {
	commands := &fakeCommander{}
	runner, out := newTestRunner(map[string]bool{"trunk": true}, commands)

	require.NoError(t, runner.BuildWeb(context.Background()))
	first := out.String()
	require.NoError(t, runner.BuildWeb(context.Background()))

	// both runs produce the same messages and no install is ever attempted
	assert.Equal(t, first+first, out.String())
	for _, c := range commands.calls {
		assert.NotEqual(t, "cargo", c.name)
	}
}

func TestBuildWebAbortsWhenInstallFails(t *testing.T) {
	commands := &fakeCommander{failOn: "cargo"}
	runner, _ := newTestRunner(nil, commands)

	err := runner.BuildWeb(context.Background())
	require.Error(t, err)

	var installErr *InstallError
	require.ErrorAs(t, err, &installErr)
	assert.Equal(t, "trunk", installErr.Tool)

	// the build must never run after a failed install
	require.Len(t, commands.calls, 1)
	assert.Equal(t, "cargo", commands.calls[0].name)
}

func TestBuildWebReportsBuildFailure(t *testing.T) {
	commands := &fakeCommander{failOn: "trunk"}
	runner, out := newTestRunner(map[string]bool{"trunk": true}, commands)

	err := runner.BuildWeb(context.Background())
	require.Error(t, err)

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "trunk", buildErr.Tool)

	// the completion messages are only printed on success
	assert.Equal(t, "Building LogMark for WebAssembly...\n", out.String())
}

func TestServeWebUsesBootstrapGuard(t *testing.T) {
	commands := &fakeCommander{}
	runner, _ := newTestRunner(nil, commands)

	require.NoError(t, runner.ServeWeb(context.Background()))

	require.Len(t, commands.calls, 2)
	assert.Equal(t, "cargo", commands.calls[0].name)
	assert.Equal(t, []string{"serve"}, commands.calls[1].args)
}

func TestInstallVersionedTool(t *testing.T) {
	commands := &fakeCommander{}
	runner, _ := newTestRunner(nil, commands)

	tool := Tool{Name: "wasm-bindgen", Crate: "wasm-bindgen-cli", Version: "0.2.93"}
	require.NoError(t, runner.Install(context.Background(), tool))

	require.Len(t, commands.calls, 1)
	assert.Equal(t, []string{"install", "wasm-bindgen-cli", "--version", "0.2.93"}, commands.calls[0].args)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(eris.New("some failure")))

	// exit statuses from failed subprocesses are propagated unchanged
	cmd := exec.Command("sh", "-c", "exit 3")
	err := cmd.Run()
	require.Error(t, err)

	wrapped := &BuildError{Tool: "trunk", Args: []string{"build"}, Err: err}
	assert.Equal(t, 3, ExitCode(wrapped))
}

func TestToolAvailableHasNoSideEffects(t *testing.T) {
	commands := &fakeCommander{}
	runner, out := newTestRunner(map[string]bool{"trunk": true}, commands)

	assert.True(t, runner.ToolAvailable("trunk"))
	assert.False(t, runner.ToolAvailable("wasm-opt"))
	assert.Empty(t, commands.calls)
	assert.Empty(t, out.String())
}
