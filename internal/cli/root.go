// Package cli implements the askmydoc command line: the server and thin HTTP clients for it.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8081"

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "askmydoc",
	Short: "Ingest documents and ask questions about them",
	Long: `askmydoc extracts text from uploaded files, inline payloads and web pages,
derives embeddings and summaries, and answers questions scoped to one document.`,
	SilenceUsage: true,
}

func init() {
	def := os.Getenv("ASKMYDOC_SERVER")
	if def == "" {
		def = defaultServer
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", def, "base URL of a running askmydoc server")
}

func Execute() error {
	return rootCmd.Execute()
}
