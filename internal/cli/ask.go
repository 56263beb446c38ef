package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/repochat/repochat/internal/client"
)

var askCmd = &cobra.Command{
	Use:   "ask <thread-id> <question>",
	Short: "Ask a question about an ingested repository",
	Long: `Ask a question about an ingested repository and print the answer.

The question is sent to the server, which retrieves relevant file
fragments and synthesizes an answer. The command waits for the reply.

Examples:
  repochat ask 4f1c... "where is the http server set up?"
  repochat ask 4f1c... how does authentication work`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	threadID := args[0]
	question := strings.Join(args[1:], " ")

	if _, err := apiClient.SendMessage(cmd.Context(), threadID, question); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	result, err := apiClient.WatchResult(cmd.Context(), threadID, func(update client.Result) {
		if verbose && !update.Terminal() {
			fmt.Printf("[%s]\n", update.RunStatus)
		}
	})
	if err != nil {
		return fmt.Errorf("wait for reply: %w", err)
	}

	if result.RunStatus == "failed" {
		if result.Error != nil {
			return fmt.Errorf("turn failed: %s", *result.Error)
		}
		return fmt.Errorf("turn failed")
	}
	if result.Reply == nil {
		return fmt.Errorf("no reply received")
	}

	fmt.Println(*result.Reply)
	return nil
}
