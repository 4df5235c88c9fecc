package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "prompt-exec",
		Short: "Prompt Executor - turn a prompt into a project on disk",
		Long: `Prompt Executor sends a prompt to a language model, requires a JSON
description of a project in return, checks it against the output contract
and writes the files into a per-project directory under the output root.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
