package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"askmydoc/internal/pipeline"
)

var (
	uploadName       string
	uploadEmbeddings bool
	uploadSummary    bool
	uploadRAGFormat  string
	uploadKeyPrefix  string
	uploadJSON       bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a file for ingestion",
	Long: `Uploads a local file to the server, which extracts its text and derives the
requested artifacts. Prints the new document id.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "document name (defaults to the file name)")
	uploadCmd.Flags().BoolVar(&uploadEmbeddings, "embeddings", true, "derive an embedding")
	uploadCmd.Flags().BoolVar(&uploadSummary, "summary", false, "derive a summary")
	uploadCmd.Flags().StringVar(&uploadRAGFormat, "rag-format", "", "RAG payload format: plain, json or markdown")
	uploadCmd.Flags().StringVar(&uploadKeyPrefix, "key-prefix", "", "write derived artifacts under this object key prefix")
	uploadCmd.Flags().BoolVar(&uploadJSON, "json", false, "print the full response as JSON")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := filepath.Clean(args[0])
	data, err := os.ReadFile(path) // #nosec G304 -- path is the user's own argument
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	query := url.Values{}
	query.Set("embeddings", strconv.FormatBool(uploadEmbeddings))
	query.Set("summary", strconv.FormatBool(uploadSummary))
	if uploadRAGFormat != "" {
		query.Set("rag_format", uploadRAGFormat)
	}
	if uploadKeyPrefix != "" {
		query.Set("keyPrefix", uploadKeyPrefix)
	}

	var res pipeline.Result
	if err := newAPIClient(serverURL).upload(context.Background(), path, data, uploadName, query, &res); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	if uploadJSON {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(out))
		return nil
	}

	cmd.Printf("Uploaded %s\n", res.Name)
	cmd.Printf("  id:         %s\n", res.ID)
	cmd.Printf("  characters: %d\n", len([]rune(res.ExtractedText)))
	cmd.Printf("  embedding:  %t\n", len(res.Embedding) > 0)
	if res.Summary != "" {
		cmd.Printf("  summary:    %s\n", res.Summary)
	}
	return nil
}
