package main

import (
	"github.com/logmark/build-tools/cmd"
)

func main() {
	cmd.Execute()
}
