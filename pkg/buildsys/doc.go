// Package buildsys implements a small build system for the LogMark
// toolchain: tasks are declared in a Starlark script (tasks.star) and their
// commands run through the mvdan.cc/sh interpreter, which keeps the build
// portable without requiring a host shell.
package buildsys
