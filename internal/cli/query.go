package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"askmydoc/internal/retrieval"
)

var queryJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [doc-id] [question]",
	Short: "Ask a question about a document",
	Long:  `Sends the question with the document's full text to the generative model and prints the reply.`,
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAsk,
}

var searchCmd = &cobra.Command{
	Use:   "search [doc-id] [query]",
	Short: "Semantic search within a document",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSearch,
}

func init() {
	askCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	searchCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(askCmd, searchCmd)
}

func documentPath(id, action string) string {
	return "/documents/" + url.PathEscape(id) + "/" + action
}

func runAsk(cmd *cobra.Command, args []string) error {
	id, question := args[0], strings.Join(args[1:], " ")

	var ans retrieval.Answer
	body := map[string]string{"question": question}
	if err := newAPIClient(serverURL).postJSON(context.Background(), documentPath(id, "ask"), body, &ans); err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if queryJSON {
		return printJSON(cmd, ans)
	}
	cmd.Println(ans.Answer)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	id, query := args[0], strings.Join(args[1:], " ")

	var results []retrieval.SimilarResult
	body := map[string]string{"query": query}
	if err := newAPIClient(serverURL).postJSON(context.Background(), documentPath(id, "search"), body, &results); err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		return printJSON(cmd, results)
	}
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, r := range results {
		cmd.Printf("[%d] %s (distance %.4f)\n", i+1, r.ID, r.Distance)
		cmd.Printf("    %s\n", snippet(r.Text, 200))
	}
	return nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max]) + "..."
}
