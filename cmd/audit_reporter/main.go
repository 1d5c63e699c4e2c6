// Package main provides the entry point for the audit report generator server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "audit_reporter",
	Short: "Accessibility audit report generator",
	Long:  "Audit Reporter turns uploaded accessibility-audit CSV exports into categorized DOCX summary reports via a text-generation backend.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
