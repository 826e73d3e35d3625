package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/intellinote/intellinote/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "intellinoted",
		Short: "Intellinote daemon",
		Long:  "Intellinote daemon for running the document ingestion API server and workers",
	}

	rootCmd.AddCommand(admin.ServeCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
