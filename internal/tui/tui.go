// Package tui provides a Bubble Tea terminal user interface for
// octatrack-manager.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davidferlay/octatrack-manager/internal/cache"
	"github.com/davidferlay/octatrack-manager/internal/config"
	"github.com/davidferlay/octatrack-manager/internal/loader"
	"github.com/davidferlay/octatrack-manager/internal/model"
	"github.com/davidferlay/octatrack-manager/internal/provider"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)

	bankLoadedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#95E1A3"))
	bankFailedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	bankPendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C757D"))
	bankActiveStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F8B500"))
)

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StateLoading
	StateComplete
	StateError
)

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	settings  *config.Settings

	loader *loader.Loader
	store  *cache.Store
	events <-chan loader.Event

	snap    loader.Snapshot
	haveRun bool
	logs    []string
	err     error

	// Failed-banks warning: auto-hidden after a bounded duration, but the
	// details stay inspectable with 'w' while the session is live.
	warningVisible bool
	warningSeq     int

	// Load context
	ctx    context.Context
	cancel context.CancelFunc

	width  int
	height int
}

// NewModel creates a new TUI model. events may be nil; when set, loader
// events are drained into the log pane on every tick.
func NewModel(settings *config.Settings, ld *loader.Loader, store *cache.Store, events <-chan loader.Event) Model {
	ti := textinput.New()
	ti.Placeholder = "/Volumes/OCTATRACK/SET1/MYPROJECT"
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:     StateInput,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		settings:  settings,
		loader:    ld,
		store:     store,
		events:    events,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Message types
type (
	// LoadDoneMsg is sent when a full load session settles.
	LoadDoneMsg struct {
		Snap loader.Snapshot
		Err  error
	}

	// TickMsg drives periodic snapshot polling during a load.
	TickMsg struct{}

	// WarningExpiredMsg auto-hides the failed-banks warning. Seq guards
	// against a stale timer hiding a newer warning.
	WarningExpiredMsg struct{ Seq int }
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 80 {
			m.progress.Width = 80
		}
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateInput {
				return m, tea.Quit
			}
			if m.state == StateLoading {
				m.cancel()
				m.state = StateError
				m.err = fmt.Errorf("cancelled by user")
			}

		case "enter":
			if m.state == StateInput && m.textInput.Value() != "" {
				m.state = StateLoading
				return m, tea.Batch(m.startLoad(false), m.tickProgress(), m.spinner.Tick)
			}

		case "f":
			if m.state == StateComplete {
				// Force a full reload, bypassing the cache.
				m.state = StateLoading
				m.err = nil
				return m, tea.Batch(m.startLoad(true), m.tickProgress(), m.spinner.Tick)
			}

		case "w":
			if m.haveRun && len(m.snap.Failed) > 0 {
				m.warningVisible = !m.warningVisible
			}

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}

		case "r":
			if m.state == StateComplete || m.state == StateError {
				// Reset for a new project
				m.cancel()
				m.state = StateInput
				m.err = nil
				m.snap = loader.Snapshot{}
				m.haveRun = false
				m.warningVisible = false
				m.ctx, m.cancel = context.WithCancel(context.Background())
				m.textInput.SetValue("")
				m.textInput.Focus()
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case LoadDoneMsg:
		m.haveRun = true
		m.drainEvents()
		if msg.Err != nil && m.ctx.Err() == nil {
			m.state = StateError
			m.err = msg.Err
		} else if m.ctx.Err() != nil {
			m.state = StateError
			m.err = fmt.Errorf("cancelled by user")
		} else {
			m.snap = msg.Snap
			m.state = StateComplete
			if len(m.snap.Failed) > 0 {
				m.warningVisible = true
				m.warningSeq++
				cmds = append(cmds, m.expireWarning(m.warningSeq))
			}
		}

	case WarningExpiredMsg:
		if msg.Seq == m.warningSeq {
			m.warningVisible = false
		}

	case TickMsg:
		m.drainEvents()
		if m.state == StateLoading {
			if snap, ok := m.loader.Snapshot(); ok {
				m.snap = snap
				m.haveRun = true
			}
			percent := float64(len(m.snap.Loaded)) / float64(model.NumBanks)
			cmds = append(cmds, m.progress.SetPercent(percent), m.tickProgress())
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	// Update text input
	if m.state == StateInput {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// drainEvents moves pending loader events into the log pane, keeping the
// most recent entries.
func (m *Model) drainEvents() {
	if m.events == nil {
		return
	}
	for {
		select {
		case ev := <-m.events:
			prefix := "  "
			switch ev.Level {
			case loader.LevelError:
				prefix = errorStyle.Render("✗ ")
			case loader.LevelWarning:
				prefix = warningStyle.Render("! ")
			case loader.LevelSuccess:
				prefix = successStyle.Render("✓ ")
			case loader.LevelInfo:
				prefix = infoStyle.Render("• ")
			}
			m.logs = append(m.logs, prefix+ev.Message)
			if len(m.logs) > 10 {
				m.logs = m.logs[len(m.logs)-10:]
			}
		default:
			return
		}
	}
}

// tickProgress returns a command to poll the loader snapshot.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// expireWarning schedules the auto-hide of the failed-banks warning.
func (m Model) expireWarning(seq int) tea.Cmd {
	d := time.Duration(m.settings.WarningAutoHideSeconds) * time.Second
	if d <= 0 {
		d = 8 * time.Second
	}
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return WarningExpiredMsg{Seq: seq}
	})
}

// startLoad kicks off a load session for the entered project path.
func (m *Model) startLoad(refresh bool) tea.Cmd {
	path := strings.TrimSpace(m.textInput.Value())
	ctx := m.ctx
	ld := m.loader
	return func() tea.Msg {
		var snap loader.Snapshot
		var err error
		if refresh {
			snap, err = ld.Refresh(ctx, path)
		} else {
			snap, err = ld.Load(ctx, path)
		}
		return LoadDoneMsg{Snap: snap, Err: err}
	}
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Octatrack Manager"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Browse Octatrack projects, banks and sample slots"))
	b.WriteString("\n\n")

	switch m.state {
	case StateInput:
		b.WriteString(m.viewInput())
	case StateLoading:
		b.WriteString(m.viewLoading())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Enter project path:"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")
	if m.store != nil {
		stats := m.store.Stats(context.Background())
		b.WriteString(dimStyle.Render(fmt.Sprintf(
			"Cache: %d project(s), %d bank(s)", stats.ProjectCount, stats.BankCount)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) viewLoading() string {
	var b strings.Builder

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	if m.snap.Metadata == nil {
		b.WriteString(subtitleStyle.Render("Reading project..."))
	} else {
		b.WriteString(subtitleStyle.Render(fmt.Sprintf(
			"Loading banks (%.1f BPM, OS %s)...",
			m.snap.Metadata.Tempo, m.snap.Metadata.OSVersion)))
	}
	b.WriteString("\n\n")

	b.WriteString(m.renderBankGrid())
	b.WriteString("\n")

	percent := float64(len(m.snap.Loaded)) / float64(model.NumBanks)
	b.WriteString(m.progress.ViewAs(percent))
	b.WriteString("\n")
	b.WriteString(infoStyle.Render(fmt.Sprintf(
		"Banks: %d/%d", len(m.snap.Loaded), model.NumBanks)))
	b.WriteString("\n")
	b.WriteString(m.renderWarning())
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewComplete() string {
	var b strings.Builder

	tempo := 0.0
	osVersion := "?"
	if m.snap.Metadata != nil {
		tempo = m.snap.Metadata.Tempo
		osVersion = m.snap.Metadata.OSVersion
	}

	box := boxStyle.Render(fmt.Sprintf(
		"Project loaded\n\n"+
			"Path:  %s\n"+
			"Tempo: %.1f BPM\n"+
			"OS:    %s\n"+
			"Banks: %d on disk, %d failed",
		m.snap.Path,
		tempo,
		osVersion,
		len(m.snap.Banks)+len(m.snap.Failed),
		len(m.snap.Failed),
	))
	b.WriteString(box)
	b.WriteString("\n\n")
	b.WriteString(m.renderBankGrid())
	b.WriteString("\n")
	b.WriteString(m.renderWarning())

	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("Failed to open project:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.err.Error()))
	}
	b.WriteString("\n")

	return b.String()
}

// renderBankGrid shows one cell per bank letter: loaded, failed, pending,
// with the active bank highlighted.
func (m Model) renderBankGrid() string {
	var active model.BankIndex = -1
	if m.snap.Metadata != nil {
		active = m.snap.Metadata.CurrentState.Bank
	}

	loaded := make(map[model.BankIndex]bool, len(m.snap.Loaded))
	for _, idx := range m.snap.Loaded {
		loaded[idx] = true
	}

	var cells []string
	for idx := model.BankIndex(0); idx < model.NumBanks; idx++ {
		letter := idx.Letter()
		var cell string
		switch {
		case m.snap.Failed[idx] != "":
			cell = bankFailedStyle.Render(letter + "!")
		case m.snap.Banks[idx] != nil:
			cell = bankLoadedStyle.Render(letter + " ")
		case loaded[idx]:
			cell = dimStyle.Render(letter + "-") // no bank file on disk
		default:
			cell = bankPendingStyle.Render(letter + "?")
		}
		if idx == active {
			cell = bankActiveStyle.Render("[") + cell + bankActiveStyle.Render("]")
		} else {
			cell = " " + cell + " "
		}
		cells = append(cells, cell)
	}
	return strings.Join(cells, "")
}

func (m Model) renderLogs() string {
	if len(m.logs) == 0 {
		return ""
	}
	return "\n" + strings.Join(m.logs, "\n") + "\n"
}

func (m Model) renderWarning() string {
	if !m.warningVisible || len(m.snap.Failed) == 0 {
		return ""
	}
	letters := strings.Join(m.snap.FailedLetters(), ", ")
	return warningStyle.Render(fmt.Sprintf(
		"! Bank(s) %s could not be read (possibly written by newer firmware). "+
			"Other banks are unaffected.", letters)) + "\n"
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateInput:
		return "enter: open project • esc: quit"
	case StateLoading:
		return "esc: cancel"
	case StateComplete:
		if len(m.snap.Failed) > 0 {
			return "f: refresh • w: toggle warning • r: new project • q: quit"
		}
		return "f: refresh • r: new project • q: quit"
	case StateError:
		return "r: new project • q: quit"
	}
	return ""
}

// Run starts the TUI application with dependencies built from settings.
func Run(settings *config.Settings) error {
	p := provider.NewOctatool(settings.OctatoolPath, settings.OctatoolTimeout)

	var store *cache.Store
	if settings.CacheEnabled {
		var err error
		store, err = cache.Open(settings.CachePath, cache.Options{
			QuotaBytes: settings.CacheQuotaBytes,
			KeepRecent: settings.CacheKeepRecent,
		})
		if err != nil {
			// The tool must work with zero caching.
			store = nil
		} else {
			defer store.Close()
		}
	}

	events := make(chan loader.Event, 64)
	ld := loader.New(p, store, loader.Options{
		MinBatch: settings.MinBatchSize,
		MaxBatch: settings.MaxBatchSize,
		OnEvent: func(ev loader.Event) {
			// Never block the loader on a full log pane.
			select {
			case events <- ev:
			default:
			}
		},
	})

	prog := tea.NewProgram(NewModel(settings, ld, store, events), tea.WithAltScreen())
	_, err := prog.Run()
	return err
}
