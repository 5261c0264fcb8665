package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/logmark/build-tools/pkg/buildsys"
)

var taskCmd = &cobra.Command{
	Use:   "task [tasks and name=value options]",
	Short: "Runs tasks from the project's tasks.star file",
	Long: `Parses the first tasks.star file found in the current or any parent
directory and executes the given tasks. Without arguments, the available
tasks are listed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		taskArgs := make([]string, 0)
		options := make(map[string]string)
		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		for _, part := range args {
			pos := strings.Index(part, "=")
			if pos > -1 {
				options[part[:pos]] = part[pos+1:]
			} else {
				taskArgs = append(taskArgs, part)
			}
		}

		logger := zerolog.New(NewConsoleWriter())
		ctx := buildsys.WithLogger(cmd.Context(), &logger)

		taskPath, err := findTaskScript()
		if err != nil {
			return err
		}

		taskList, err := loadTasks(ctx, taskPath, options)
		if err != nil {
			return err
		}

		for _, name := range taskArgs {
			err = buildsys.RunTask(ctx, filepath.Dir(taskPath), name, taskList, dryRun, force)
			if err != nil {
				return eris.Wrapf(err, "failed task %s", name)
			}
		}

		if len(taskArgs) == 0 {
			printTaskList(taskList)
		}

		return nil
	},
}

// findTaskScript walks up from the working directory until it finds a
// tasks.star file.
func findTaskScript() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", eris.Wrap(err, "failed to retrieve the current working directory")
	}

	path := wd
	for {
		taskPath := filepath.Join(path, "tasks.star")
		_, err := os.Stat(taskPath)
		if err == nil {
			relPath, err := filepath.Rel(wd, taskPath)
			if err == nil {
				return relPath, nil
			}
			return taskPath, nil
		}
		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "failed to check %s", taskPath)
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", eris.New("no tasks.star file found")
		}

		path = parent
	}
}

// loadTasks returns the parsed task list, preferring the cache when the
// script hasn't changed and the options match.
func loadTasks(ctx context.Context, taskPath string, options map[string]string) (buildsys.TaskList, error) {
	cachePath := filepath.Join(filepath.Dir(taskPath), ".tasks.cache")

	scriptInfo, err := os.Stat(taskPath)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to check %s", taskPath)
	}

	cacheInfo, err := os.Stat(cachePath)
	if err == nil && cacheInfo.ModTime().After(scriptInfo.ModTime()) {
		cachedOptions, taskList, err := buildsys.ReadCache(cachePath)
		if err == nil && reflect.DeepEqual(cachedOptions, options) {
			return taskList, nil
		}
		// a stale or unreadable cache is simply rebuilt
	}

	taskList, _, err := buildsys.RunScript(ctx, taskPath, filepath.Dir(taskPath), options)
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse tasks")
	}

	err = buildsys.WriteCache(cachePath, options, taskList)
	if err != nil {
		return nil, eris.Wrap(err, "failed to write task cache")
	}

	return taskList, nil
}

func printTaskList(taskList buildsys.TaskList) {
	fmt.Println("Available tasks:")
	maxNameLen := 0
	sortedNames := make([]string, 0, len(taskList))
	for _, task := range taskList {
		if len(task.Name) > maxNameLen {
			maxNameLen = len(task.Name)
		}

		sortedNames = append(sortedNames, task.Name)
	}

	sort.Strings(sortedNames)

	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range sortedNames {
		fmt.Printf(lineFmt, name+":", taskList[name].Desc)
	}
}

func init() {
	taskCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	taskCmd.Flags().BoolP("force", "f", false, "always execute the passed tasks even if they don't have to run")
	rootCmd.AddCommand(taskCmd)
}
