// Package cmd wires the CLI entry points: serve runs the HTTP API, ingest
// loads textbook content into the vector store.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "ragchat - textbook question answering backend",
	Long: `ragchat answers student questions from the textbook using retrieval
augmented generation. It serves a streaming HTTP API backed by PostgreSQL
for sessions, Milvus for vector search and Gemini for generation.

Run 'ragchat serve' to start the API, 'ragchat ingest' to load content.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
