package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <thread-id>",
	Short: "Show the state of a repository ingestion",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	repo, err := apiClient.CheckRepo(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("check ingestion: %w", err)
	}

	fmt.Printf("Repository: %s/%s\n", repo.Owner, repo.Name)
	fmt.Printf("Status:     %s\n", repo.Status)
	fmt.Printf("Files:      %d/%d\n", repo.FilesProcessed, repo.FileCount)
	fmt.Printf("Fragments:  %d\n", repo.FragmentCount)
	if repo.Error != nil {
		fmt.Printf("Error:      %s\n", *repo.Error)
	}
	if repo.CompletedAt != nil {
		fmt.Printf("Finished:   %s\n", repo.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
