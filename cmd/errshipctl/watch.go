package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"errship.dev/sdk"
	"errship.dev/sdk/internal/config"
	"errship.dev/sdk/internal/health"
)

var (
	watchPrimary = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	watchMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	watchGood    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	watchWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	watchBad     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

const watchPollInterval = 2 * time.Second

type statsTickMsg struct {
	stats      health.Stats
	assessment health.Assessment
}

type watchModel struct {
	reporter *errship.Reporter
	spinner  spinner.Model
	stats    health.Stats
	assess   health.Assessment
	ready    bool
	width    int
}

func newWatchModel(r *errship.Reporter) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = watchPrimary
	return watchModel{reporter: r, spinner: s}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

func (m watchModel) poll() tea.Cmd {
	return tea.Tick(watchPollInterval, func(time.Time) tea.Msg {
		return statsTickMsg{
			stats:      m.reporter.GetStats(),
			assessment: m.reporter.GetSDKHealth(),
		}
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}

	case statsTickMsg:
		m.stats = msg.stats
		m.assess = msg.assessment
		m.ready = true
		return m, m.poll()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func statusStyle(s health.Status) lipgloss.Style {
	switch s {
	case health.StatusHealthy:
		return watchGood
	case health.StatusDegraded:
		return watchWarn
	default:
		return watchBad
	}
}

func (m watchModel) View() string {
	title := watchPrimary.Render("errshipctl watch") + watchMuted.Render("  (live SDK health, ctrl+c to quit)")

	if !m.ready {
		return fmt.Sprintf("%s\n\n  %s collecting first sample...\n", title, m.spinner.View())
	}

	status := statusStyle(m.assess.Status).Render(string(m.assess.Status))
	body := fmt.Sprintf(
		"%s\n\n"+
			"  status:              %s  (score %d/100)\n"+
			"  errors reported:     %d\n"+
			"  errors suppressed:   %d\n"+
			"  retry attempts:      %d\n"+
			"  avg response time:   %s\n"+
			"  queue size:          %d\n"+
			"  heap in use:         %s\n",
		title,
		status, m.assess.Score,
		m.stats.ErrorsReported,
		m.stats.ErrorsSuppressed,
		m.stats.RetryAttempts,
		m.stats.AverageResponseTime,
		m.stats.OfflineQueueSize,
		formatBytes(m.stats.MemoryUsageBytes),
	)

	if len(m.assess.Issues) > 0 {
		body += "\n  " + watchWarn.Render("issues:") + "\n"
		for _, issue := range m.assess.Issues {
			body += "    - " + issue + "\n"
		}
	}
	if len(m.assess.Recommendations) > 0 {
		body += "\n  " + watchMuted.Render("recommendations:") + "\n"
		for _, rec := range m.assess.Recommendations {
			body += "    - " + rec + "\n"
		}
	}

	return body
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func watchCmd() *cobra.Command {
	var webhookURL, project, environment string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live terminal dashboard of SDK health",
		RunE: func(cmd *cobra.Command, args []string) error {
			if webhookURL == "" {
				return fmt.Errorf("--webhook-url is required")
			}

			cfg := config.Default()
			cfg.WebhookURL = webhookURL
			cfg.ProjectName = project
			cfg.Environment = environment

			r, err := errship.New(cfg)
			if err != nil {
				return fmt.Errorf("construct reporter: %w", err)
			}
			defer r.Destroy()

			p := tea.NewProgram(newWatchModel(r))
			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().StringVar(&webhookURL, "webhook-url", "", "target webhook URL")
	cmd.Flags().StringVar(&project, "project", "errshipctl-watch", "project name")
	cmd.Flags().StringVar(&environment, "environment", "development", "environment name")

	return cmd
}
