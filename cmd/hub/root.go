package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hub",
	Short: "Buster hub coordinates captcha solving across browser contexts",
	Long: `The hub serves the WebSocket endpoint that content scripts, the options page
and the browser shim connect to, and runs transcription, frame geometry and
native helper requests on their behalf.`,
	RunE: serveCmd.RunE,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
