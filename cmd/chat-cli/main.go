package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chat-cli",
	Short: "Interactive terminal chat against an OpenAI-compatible model server",
	Long: `chat-cli runs the chat turn orchestrator in-process and streams replies
to the terminal. Conversations are kept in memory for the lifetime of the process.

Commands inside the prompt:
  /new               start a new conversation
  /regen             regenerate the last reply
  /list              list conversations
  /select <id>       switch to a conversation
  /delete <id>       delete a conversation
  /model [name]      show or change the model
  /quota             show remaining quota
  /exit              quit

Examples:
  chat-cli --model jan-v1-4b
  MODEL_PROVIDER_URL=http://localhost:8001/v1 chat-cli --daily-limit 0`,
	Version: version,
	RunE:    runChat,
}

func init() {
	rootCmd.Flags().String("provider-url", "", "Model server base URL (overrides MODEL_PROVIDER_URL)")
	rootCmd.Flags().String("api-key", "", "Model server API key (overrides MODEL_PROVIDER_API_KEY)")
	rootCmd.Flags().StringP("model", "m", "", "Model to use (overrides DEFAULT_MODEL)")
	rootCmd.Flags().String("owner", "", "Act as this owner id instead of anonymously")
	rootCmd.Flags().Int("daily-limit", -1, "Anonymous daily message limit, 0 disables (defaults to QUOTA_DAILY_LIMIT)")
	rootCmd.Flags().Bool("no-color", false, "Disable colored output")
	rootCmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
}
