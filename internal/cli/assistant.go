package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var assistantModel string

var assistantCmd = &cobra.Command{
	Use:   "assistant <name>",
	Short: "Create an assistant",
	Long: `Create a named assistant configuration, or fetch it if it already exists.

The returned assistant ID is passed to 'repochat process'.

Examples:
  repochat assistant reviewer
  repochat assistant reviewer --model gpt-4o`,
	Args: cobra.ExactArgs(1),
	RunE: runAssistant,
}

func init() {
	assistantCmd.Flags().StringVarP(&assistantModel, "model", "m", "", "model the assistant should use")
}

func runAssistant(cmd *cobra.Command, args []string) error {
	assistant, err := apiClient.CreateAssistant(cmd.Context(), args[0], assistantModel)
	if err != nil {
		return fmt.Errorf("create assistant: %w", err)
	}

	fmt.Printf("Assistant %q ready.\n", assistant.Name)
	fmt.Printf("  ID:    %s\n", assistant.ID)
	if assistant.Model != "" {
		fmt.Printf("  Model: %s\n", assistant.Model)
	}
	return nil
}
