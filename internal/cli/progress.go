package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/repochat/repochat/internal/client"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the ingestion status
type tickMsg time.Time

// repoUpdateMsg carries the updated ingestion state
type repoUpdateMsg struct {
	repo *client.Repo
	err  error
}

// progressModel is the bubbletea model for ingestion progress.
type progressModel struct {
	client   *client.Client
	threadID string
	repo     *client.Repo
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

// newProgressModel creates a new progress model.
func newProgressModel(c *client.Client, repo *client.Repo) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		client:   c,
		threadID: repo.ThreadID,
		repo:     repo,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchRepo()

	case repoUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch ingestion status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.repo = msg.repo

		switch m.repo.Status {
		case "completed":
			m.done = true
			return m, tea.Quit
		case "failed":
			m.done = true
			if m.repo.Error != nil {
				m.err = fmt.Errorf("%s", *m.repo.Error)
			} else {
				m.err = fmt.Errorf("ingestion failed with unknown error")
			}
			return m, tea.Quit
		}

		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.repo == nil {
		return "Loading ingestion status...\n"
	}

	var pct float64
	if m.repo.FileCount > 0 {
		pct = float64(m.repo.FilesProcessed) / float64(m.repo.FileCount)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.repo.Status))
	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d files", m.repo.FilesProcessed, m.repo.FileCount)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, counts, hint)
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nIngestion continues in background.\nUse 'repochat status %s' to check progress.\n",
			m.threadID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Ingestion failed: %s\n", m.err))
	}

	if m.repo != nil {
		var output string
		output += m.theme.completedStyle().Render("✓ Completed") + "\n\n"
		output += fmt.Sprintf("  Files processed: %d\n", m.repo.FilesProcessed)
		output += fmt.Sprintf("  Fragments:       %d\n", m.repo.FragmentCount)
		output += fmt.Sprintf("\nAsk questions with 'repochat ask %s <question>'.\n", m.threadID)
		return output
	}

	return m.theme.completedStyle().Render("✓ Completed\n")
}

// fetchRepo fetches the current ingestion state from the server.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m progressModel) fetchRepo() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		repo, err := m.client.CheckRepo(ctx, m.threadID)
		return repoUpdateMsg{repo: repo, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunIngestProgress runs the interactive progress UI for an ingestion
// job. Returns nil on success or Ctrl+C (background), error on failure.
func RunIngestProgress(c *client.Client, repo *client.Repo) error {
	model := newProgressModel(c, repo)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}
