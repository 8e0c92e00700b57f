package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/ganttly/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard over the editing session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if os.Getenv("GANTTLY_SKIP_DASHBOARD_RUN") == "true" {
			return nil
		}
		services, err := loadServicesForCurrentDir()
		if err != nil {
			return err
		}
		defer services.Session.Close()

		if err := services.Session.Load(context.Background()); err != nil {
			return err
		}

		p := tea.NewProgram(initialModel(services))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("dashboard run failed: %w", err)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(dashboardCmd)
}

// Styles
var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	BorderForeground(lipgloss.Color("240"))

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4")).
	PaddingLeft(1).
	PaddingRight(1)

var statusClean = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
var statusDirty = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
var statusErr = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type dashModel struct {
	services *wiring.AppServices
	table    table.Model
	flash    string
}

func initialModel(services *wiring.AppServices) dashModel {
	columns := []table.Column{
		{Title: "Task", Width: 28},
		{Title: "Start", Width: 10},
		{Title: "End", Width: 10},
		{Title: "Progress", Width: 8},
		{Title: "ID", Width: 24},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(taskRows(services.Session.Tasks())),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240"))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229"))
	t.SetStyles(s)

	return dashModel{services: services, table: t}
}

func taskRows(tasks []task.Task) []table.Row {
	rows := make([]table.Row, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, table.Row{
			t.Name,
			t.Start.Format("2006-01-02"),
			t.End.Format("2006-01-02"),
			fmt.Sprintf("%d%%", t.Progress),
			t.ID,
		})
	}
	return rows
}

func (m dashModel) Init() tea.Cmd { return tick() }

func (m dashModel) selectedTaskID() string {
	row := m.table.SelectedRow()
	if row == nil {
		return ""
	}
	return row[len(row)-1]
}

func (m dashModel) bumpProgress(delta int) dashModel {
	id := m.selectedTaskID()
	if id == "" {
		return m
	}
	t, ok := m.services.Session.Task(id)
	if !ok {
		return m
	}
	p := t.Progress + delta
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if _, err := m.services.Session.Edit(id, task.Change{Progress: &p}, "progress"); err != nil {
		m.flash = err.Error()
		return m
	}
	m.flash = fmt.Sprintf("%s -> %d%% (auto-save queued)", t.Name, p)
	return m
}

func (m dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tickMsg:
		m.table.SetRows(taskRows(m.services.Session.Tasks()))
		return m, tick()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.services.Session.State().IsDirty {
				_ = m.services.Session.SaveNow()
			}
			return m, tea.Quit
		case "u":
			if m.services.Session.Undo() {
				m.flash = "undid last edit"
			} else {
				m.flash = "nothing to undo"
			}
			m.table.SetRows(taskRows(m.services.Session.Tasks()))
			return m, nil
		case "r":
			if m.services.Session.Redo() {
				m.flash = "redid last edit"
			} else {
				m.flash = "nothing to redo"
			}
			m.table.SetRows(taskRows(m.services.Session.Tasks()))
			return m, nil
		case "s":
			if err := m.services.Session.SaveNow(); err != nil {
				m.flash = "save failed: " + err.Error()
			} else {
				m.flash = "saved"
			}
			return m, nil
		case "+", "=":
			m = m.bumpProgress(10)
			m.table.SetRows(taskRows(m.services.Session.Tasks()))
			return m, nil
		case "-":
			m = m.bumpProgress(-10)
			m.table.SetRows(taskRows(m.services.Session.Tasks()))
			return m, nil
		}
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m dashModel) View() string {
	header := headerStyle.Render(fmt.Sprintf("ganttly %s", m.services.Session.ProjectID()))

	state := m.services.Session.State()
	var statusLine string
	switch {
	case state.Error != "":
		statusLine = statusErr.Render(fmt.Sprintf("save failed (retry %d): %s", state.RetryCount, state.Error))
	case state.IsSaving:
		statusLine = statusDirty.Render("saving...")
	case state.IsDirty:
		statusLine = statusDirty.Render("unsaved changes")
	default:
		statusLine = statusClean.Render("all changes saved")
	}
	if !state.LastSaved.IsZero() {
		statusLine += fmt.Sprintf("  last saved %s", state.LastSaved.Format("15:04:05"))
	}
	statusLine += fmt.Sprintf("  history %d/%d", state.HistoryIndex, state.HistoryLen)

	flash := ""
	if m.flash != "" {
		flash = "\n" + m.flash
	}

	return baseStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			statusLine,
			m.table.View(),
			flash,
			"\n[+/-] Progress  [u] Undo  [r] Redo  [s] Save  [q] Quit",
		),
	) + "\n"
}
