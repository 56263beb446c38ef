package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/repochat/repochat/internal/client"
)

var (
	processAssistant string
	processNoWait    bool
	processThread    string
)

var processCmd = &cobra.Command{
	Use:   "process <repository>",
	Short: "Ingest a GitHub repository",
	Long: `Ingest a GitHub repository into a searchable index.

The repository can be a full URL or an owner/name shorthand. Ingestion
runs on the server; this command follows its progress unless --no-wait
is given. The printed thread ID identifies the conversation for
'repochat ask'.

Examples:
  repochat process golang/go --assistant <id>
  repochat process https://github.com/acme/widget --assistant <id> --no-wait
  repochat process --thread <id>`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processAssistant, "assistant", "a", "", "assistant ID")
	processCmd.Flags().BoolVar(&processNoWait, "no-wait", false, "start ingestion and return immediately")
	processCmd.Flags().StringVarP(&processThread, "thread", "t", "", "re-run ingestion for an existing thread")
}

func runProcess(cmd *cobra.Command, args []string) error {
	var (
		repo *client.Repo
		err  error
	)
	switch {
	case processThread != "":
		repo, err = apiClient.ReprocessRepo(cmd.Context(), processThread)
	case len(args) == 1 && processAssistant != "":
		repo, err = apiClient.ProcessRepo(cmd.Context(), processAssistant, args[0])
	default:
		return fmt.Errorf("either a repository with --assistant or --thread is required")
	}
	if err != nil {
		return fmt.Errorf("start ingestion: %w", err)
	}

	fmt.Printf("Ingesting %s/%s\n", repo.Owner, repo.Name)
	fmt.Printf("Thread ID: %s\n", repo.ThreadID)

	if processNoWait {
		fmt.Printf("\nCheck progress with 'repochat status %s'.\n", repo.ThreadID)
		return nil
	}

	// Interactive progress bar on a TTY, plain polling otherwise.
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunIngestProgress(apiClient, repo)
	}
	return pollIngest(cmd.Context(), repo.ThreadID)
}

// pollIngest follows ingestion without a TTY, printing one line per poll.
func pollIngest(ctx context.Context, threadID string) error {
	for {
		repo, err := apiClient.CheckRepo(ctx, threadID)
		if err != nil {
			return fmt.Errorf("check ingestion: %w", err)
		}

		fmt.Printf("[%s] %d/%d files, %d fragments\n",
			repo.Status, repo.FilesProcessed, repo.FileCount, repo.FragmentCount)

		switch repo.Status {
		case "completed":
			fmt.Printf("\nDone. Ask questions with 'repochat ask %s <question>'.\n", threadID)
			return nil
		case "failed":
			return fmt.Errorf("ingestion failed: %s", errorText(repo))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func errorText(repo *client.Repo) string {
	if repo.Error != nil {
		return *repo.Error
	}
	return "unknown error"
}
