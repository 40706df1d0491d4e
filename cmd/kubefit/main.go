package main

import (
	"fmt"
	"os"

	"github.com/kubefit/kubefit/internal/cli"
	"github.com/kubefit/kubefit/internal/util"
)

// Version is set at build time via -ldflags
var Version = "0.1.0"

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		util.Exit(util.ExitRuntimeError)
	}
}
