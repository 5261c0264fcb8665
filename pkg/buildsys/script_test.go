package buildsys

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logmark/build-tools/pkg/bootstrap"
)

func testCtx() context.Context {
	logger := zerolog.Nop()
	return WithLogger(context.Background(), &logger)
}

func writeScript(t *testing.T, content string) (string, string) {
	t.Helper()

	root := t.TempDir()
	path := filepath.Join(root, "tasks.star")
	require.NoError(t, os.WriteFile(path, []byte(content), 0660))
	return path, root
}

func TestRunScriptDeclaresTasks(t *testing.T) {
	path, root := writeScript(t, `
trunk_bin = option("trunk", default="trunk", help="Name of the trunk binary")

def configure():
    task(
        "build-web",
        desc="Build the front-end for WebAssembly",
        inputs=["//index.html"],
        outputs=["//dist/**"],
        env={"RUSTFLAGS": "-Copt-level=s"},
        cmds=["%s build --release" % trunk_bin],
    )
`)

	tasks, options, err := RunScript(testCtx(), path, root, nil)
	require.NoError(t, err)

	require.Contains(t, options, "trunk")
	assert.Equal(t, "trunk", options["trunk"].Default())

	require.Contains(t, tasks, "build-web")
	task := tasks["build-web"]
	assert.Equal(t, "Build the front-end for WebAssembly", task.Desc)
	assert.Equal(t, []string{"//index.html"}, task.Inputs)
	assert.Equal(t, "-Copt-level=s", task.Env["RUSTFLAGS"])
	require.Len(t, task.Cmds, 1)
	assert.Equal(t, ShellCmd{TaskName: "build-web", Content: "trunk build --release"}, task.Cmds[0])
}

func TestRunScriptOptionOverride(t *testing.T) {
	path, root := writeScript(t, `
trunk_bin = option("trunk", default="trunk")

def configure():
    task("build-web", cmds=["%s build --release" % trunk_bin])
`)

	tasks, _, err := RunScript(testCtx(), path, root, map[string]string{"trunk": "trunk-nightly"})
	require.NoError(t, err)

	cmd := tasks["build-web"].Cmds[0].(ShellCmd)
	assert.Equal(t, "trunk-nightly build --release", cmd.Content)
}

func TestRunScriptEnvOverridesApplyToTasks(t *testing.T) {
	path, root := writeScript(t, `
def configure():
    setenv("TRUNK_STAGING", "/tmp/staging")
    task("build-web", cmds=["trunk build"])
    task("serve", env={"TRUNK_STAGING": "/custom"}, cmds=["trunk serve"])
`)

	tasks, _, err := RunScript(testCtx(), path, root, nil)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/staging", tasks["build-web"].Env["TRUNK_STAGING"])
	// per-task env wins over configure-level overrides
	assert.Equal(t, "/custom", tasks["serve"].Env["TRUNK_STAGING"])
}

func TestRunScriptTaskRefs(t *testing.T) {
	path, root := writeScript(t, `
def configure():
    clean = task("clean", cmds=["rm -rf dist"])
    task("rebuild", cmds=[clean, "trunk build --release"])
`)

	tasks, _, err := RunScript(testCtx(), path, root, nil)
	require.NoError(t, err)

	require.Len(t, tasks["rebuild"].Cmds, 2)
	ref, ok := tasks["rebuild"].Cmds[0].(TaskRef)
	require.True(t, ok)
	assert.Equal(t, "clean", ref.Task.Name)
}

func TestRunScriptReservedTaskName(t *testing.T) {
	path, root := writeScript(t, `
def configure():
    task("configure", cmds=["true"])
`)

	_, _, err := RunScript(testCtx(), path, root, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestRunScriptMissingConfigure(t *testing.T) {
	path, root := writeScript(t, `x = 1`)

	_, _, err := RunScript(testCtx(), path, root, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configure")
}

func TestRunScriptOptionOutsideInitPhase(t *testing.T) {
	path, root := writeScript(t, `
def configure():
    option("late", default="no")
`)

	_, _, err := RunScript(testCtx(), path, root, nil)
	require.Error(t, err)
}

func TestRequireToolInstallsMissingTool(t *testing.T) {
	commands := &recordingCommander{}
	restore := newBootstrapRunner
	newBootstrapRunner = func() *bootstrap.Runner {
		return &bootstrap.Runner{
			Look:     func(string) (string, error) { return "", exec.ErrNotFound },
			Commands: commands,
			Out:      os.Stderr,
		}
	}
	t.Cleanup(func() { newBootstrapRunner = restore })

	path, root := writeScript(t, `
def configure():
    require_tool("trunk", version="0.21.7")
    task("build-web", cmds=["trunk build --release"])
`)

	_, _, err := RunScript(testCtx(), path, root, nil)
	require.NoError(t, err)

	require.Len(t, commands.calls, 1)
	assert.Equal(t, []string{"install", "trunk", "--version", "0.21.7"}, commands.calls[0])
}

type recordingCommander struct {
	calls [][]string
}

func (r *recordingCommander) Run(ctx context.Context, dir, name string, args ...string) error {
	r.calls = append(r.calls, args)
	return nil
}
