// Command pomassist answers completion, hover and diagnostics requests on
// Maven POM files from the command line. Results are printed as JSON.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "pomassist",
		Short:         "Editing assistant for Maven POM files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (YAML)")

	cmd.AddCommand(
		completeCmd(&configPath),
		hoverCmd(&configPath),
		diagnoseCmd(&configPath),
		localIndexCmd(&configPath),
		checkCmd(&configPath),
	)
	return cmd
}
