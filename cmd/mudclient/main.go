// Package main runs the mudclient console.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cory-johannsen/mudclient/internal/cli"
)

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func main() {
	if err := cli.NewRootCmd(Version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cli.AppName, err)
		os.Exit(1)
	}
}
