package main

import (
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"github.com/platinummonkey/orgscope/pkg/cli"
)

func main() {
	rootCmd := cli.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
