package buildsys

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellTask(name, base string, cmds ...string) *Task {
	task := &Task{
		Name: name,
		Base: base,
		Env:  map[string]string{},
		Cmds: make([]TaskCmd, len(cmds)),
	}

	for idx, cmd := range cmds {
		task.Cmds[idx] = ShellCmd{TaskName: name, Content: cmd, Index: idx}
	}

	return task
}

func TestRunTaskExecutesCommands(t *testing.T) {
	root := t.TempDir()
	tasks := TaskList{
		"hello": shellTask("hello", root, "echo hello world > out.txt"),
	}

	require.NoError(t, RunTask(testCtx(), root, "hello", tasks, false, false))

	content, err := os.ReadFile(filepath.Join(root, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", string(content))
}

func TestRunTaskUnknownTask(t *testing.T) {
	err := RunTask(testCtx(), t.TempDir(), "nope", TaskList{}, false, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRunTaskRunsDepsFirst(t *testing.T) {
	root := t.TempDir()
	prepare := shellTask("prepare", root, "echo prepare > order.txt")
	build := shellTask("build", root, "echo build >> order.txt")
	build.Deps = []string{"prepare"}

	tasks := TaskList{"prepare": prepare, "build": build}
	require.NoError(t, RunTask(testCtx(), root, "build", tasks, false, false))

	content, err := os.ReadFile(filepath.Join(root, "order.txt"))
	require.NoError(t, err)
	assert.Equal(t, "prepare\nbuild\n", string(content))
}

func TestRunTaskRunsSharedDepOnce(t *testing.T) {
	root := t.TempDir()
	prepare := shellTask("prepare", root, "echo prepare >> order.txt")
	web := shellTask("web", root, "echo web >> order.txt")
	web.Deps = []string{"prepare"}
	all := shellTask("all", root, "echo all >> order.txt")
	all.Deps = []string{"prepare", "web"}

	tasks := TaskList{"prepare": prepare, "web": web, "all": all}
	require.NoError(t, RunTask(testCtx(), root, "all", tasks, false, false))

	content, err := os.ReadFile(filepath.Join(root, "order.txt"))
	require.NoError(t, err)
	assert.Equal(t, "prepare\nweb\nall\n", string(content))
}

func TestRunTaskDetectsRecursion(t *testing.T) {
	root := t.TempDir()
	task := shellTask("loop", root, "echo never > out.txt")
	task.Deps = []string{"loop"}

	err := RunTask(testCtx(), root, "loop", TaskList{"loop": task}, false, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recursively")
	assert.NoFileExists(t, filepath.Join(root, "out.txt"))
}

func TestRunTaskDryRun(t *testing.T) {
	root := t.TempDir()
	tasks := TaskList{
		"hello": shellTask("hello", root, "echo hello > out.txt"),
	}

	require.NoError(t, RunTask(testCtx(), root, "hello", tasks, true, false))
	assert.NoFileExists(t, filepath.Join(root, "out.txt"))
}

func TestRunTaskSkipIfExists(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "marker"), []byte("x"), 0660))

	task := shellTask("guarded", root, "echo ran > out.txt")
	task.SkipIfExists = []string{"marker"}

	require.NoError(t, RunTask(testCtx(), root, "guarded", TaskList{"guarded": task}, false, false))
	assert.NoFileExists(t, filepath.Join(root, "out.txt"))
}

func TestRunTaskSkipsFreshOutputs(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "input.rs")
	output := filepath.Join(root, "output.wasm")

	require.NoError(t, os.WriteFile(input, []byte("in"), 0660))
	require.NoError(t, os.WriteFile(output, []byte("out"), 0660))

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(input, old, old))

	task := shellTask("build", root, "echo rebuilt > output.wasm")
	task.Inputs = []string{"input.rs"}
	task.Outputs = []string{"output.wasm"}
	tasks := TaskList{"build": task}

	require.NoError(t, RunTask(testCtx(), root, "build", tasks, false, false))
	content, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "out", string(content))

	// force overrides the freshness check
	require.NoError(t, RunTask(testCtx(), root, "build", tasks, false, true))
	content, err = os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "rebuilt\n", string(content))
}

func TestRunTaskRebuildsStaleOutputs(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "input.rs")
	output := filepath.Join(root, "output.wasm")

	require.NoError(t, os.WriteFile(input, []byte("in"), 0660))
	require.NoError(t, os.WriteFile(output, []byte("out"), 0660))

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(output, old, old))

	task := shellTask("build", root, "echo rebuilt > output.wasm")
	task.Inputs = []string{"input.rs"}
	task.Outputs = []string{"output.wasm"}

	require.NoError(t, RunTask(testCtx(), root, "build", TaskList{"build": task}, false, false))
	content, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "rebuilt\n", string(content))
}

func TestRunTaskFailedCommandAborts(t *testing.T) {
	root := t.TempDir()
	task := shellTask("failing", root, "false", "echo after > out.txt")

	err := RunTask(testCtx(), root, "failing", TaskList{"failing": task}, false, false)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(root, "out.txt"))
}

func TestRunTaskRefRunsReferencedTask(t *testing.T) {
	root := t.TempDir()
	hidden := shellTask("auto#1", root, "echo hidden > hidden.txt")
	hidden.Hidden = true

	outer := shellTask("outer", root)
	outer.Cmds = []TaskCmd{TaskRef{Task: hidden}, ShellCmd{TaskName: "outer", Content: "echo outer > outer.txt", Index: 1}}

	require.NoError(t, RunTask(testCtx(), root, "outer", TaskList{"outer": outer}, false, false))
	assert.FileExists(t, filepath.Join(root, "hidden.txt"))
	assert.FileExists(t, filepath.Join(root, "outer.txt"))
}

func TestRunTaskOptimizePassRewritesBuiltArtifacts(t *testing.T) {
	root := t.TempDir()
	build := shellTask("build-web", root, "echo code > app.wasm", "echo code > app_bg.wasm")
	opt := shellTask("wasm-opt", root, `for f in *.wasm; do echo optimized >> "$f"; done`)
	opt.Deps = []string{"build-web"}

	tasks := TaskList{"build-web": build, "wasm-opt": opt}
	require.NoError(t, RunTask(testCtx(), root, "wasm-opt", tasks, false, false))

	for _, name := range []string{"app.wasm", "app_bg.wasm"} {
		content, err := os.ReadFile(filepath.Join(root, name))
		require.NoError(t, err)
		assert.Equal(t, "code\noptimized\n", string(content))
	}
}

func TestCacheRoundtrip(t *testing.T) {
	root := t.TempDir()
	cacheFile := filepath.Join(root, "tasks.cache")

	build := shellTask("build-web", root, "trunk build --release")
	build.Inputs = []string{"//index.html"}
	options := map[string]string{"trunk": "trunk"}

	require.NoError(t, WriteCache(cacheFile, options, TaskList{"build-web": build}))

	loadedOptions, loadedTasks, err := ReadCache(cacheFile)
	require.NoError(t, err)
	assert.Equal(t, options, loadedOptions)
	require.Contains(t, loadedTasks, "build-web")
	assert.Equal(t, build.Inputs, loadedTasks["build-web"].Inputs)
	assert.Equal(t, build.Cmds, loadedTasks["build-web"].Cmds)
}
