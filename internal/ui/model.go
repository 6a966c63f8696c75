package ui

import (
	"context"

	"github.com/RichardoC/padchat/internal/llm"
	"github.com/RichardoC/padchat/internal/session"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

const (
	inputPrompt    = "> "
	minHistoryRows = 1

	defaultWidth  = 80
	defaultHeight = 24
)

// Operations are the backend calls the UI dispatches. *session.Controller
// implements it.
type Operations interface {
	Generate(ctx context.Context, prompt, model string) session.Result
	Fetch(ctx context.Context) session.Result
	Clear(ctx context.Context) session.Result
}

// Estimator sizes the prompt being typed. *llm.Service implements it.
type Estimator interface {
	EstimatePrompt(ctx context.Context, model, text string) (llm.Estimate, error)
}

type Options struct {
	Markdown  bool
	Estimator Estimator
	Logger    *zap.Logger
}

type resultMsg struct{ session.Result }

type estimateMsg struct {
	estimate llm.Estimate
	err      error
}

// Model is the bubbletea root of a chat session. It owns the session state
// and is the only place that state is mutated.
type Model struct {
	ctx    context.Context
	ops    Operations
	state  *session.State
	logger *zap.Logger

	estimator Estimator
	estimate  *llm.Estimate

	keys     keyMap
	help     help.Model
	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	history  *historyRenderer

	// submitted is the prompt of the last generate request, used to
	// clear the input once that request succeeds.
	submitted string

	width  int
	height int
}

func New(ctx context.Context, ops Operations, state *session.State, opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	keys := defaultKeyMap()

	ta := textarea.New()
	ta.Placeholder = "Enter your prompt"
	ta.Prompt = inputPrompt
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.MaxHeight = 0
	ta.KeyMap.InsertNewline = keys.Newline
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := Model{
		ctx:       ctx,
		ops:       ops,
		state:     state,
		logger:    logger,
		estimator: opts.Estimator,
		keys:      keys,
		help:      help.New(),
		input:     ta,
		viewport:  viewport.New(defaultWidth, defaultHeight),
		spinner:   s,
		history:   newHistoryRenderer(opts.Markdown),
		width:     defaultWidth,
		height:    defaultHeight,
	}
	m.layout()
	return m
}

// State exposes the session state for inspection after the program exits.
func (m Model) State() *session.State { return m.state }

// Init loads the server's chat log.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), textarea.Blink)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 1)
		m.height = max(msg.Height, 1)
		m.help.Width = m.width
		m.layout()
		m.refreshHistory(false)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case resultMsg:
		return m.handleResult(msg.Result)

	case estimateMsg:
		if msg.err != nil {
			m.logger.Debug("Prompt estimate failed", zap.Error(msg.err))
			return m, nil
		}
		// Only the estimate for what is in the input right now is kept.
		if msg.estimate.Text == m.state.Prompt && msg.estimate.Model == m.state.Models.Current() {
			est := msg.estimate
			m.estimate = &est
		}
		return m, nil

	case spinner.TickMsg:
		if !m.state.InFlight() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		prompt := m.input.Value()
		m.submitted = prompt
		m.state.Begin(session.OpGenerate)
		m.layout()
		return m, tea.Batch(m.generate(prompt, m.state.Models.Current()), m.spinner.Tick)

	case key.Matches(msg, m.keys.ToggleModel):
		m.state.Models.Toggle()
		m.estimate = nil
		m.logger.Debug("Model toggled", zap.String("model", m.state.Models.Current()))
		return m, m.estimatePrompt()

	case key.Matches(msg, m.keys.Clear):
		m.state.Begin(session.OpClear)
		return m, m.clear()

	case key.Matches(msg, m.keys.Refresh):
		m.state.Begin(session.OpFetch)
		return m, m.fetch()

	case key.Matches(msg, m.keys.ScrollUp, m.keys.ScrollDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() == m.state.Prompt {
		return m, cmd
	}

	m.state.Prompt = m.input.Value()
	m.layout()
	return m, tea.Batch(cmd, m.estimatePrompt())
}

func (m Model) handleResult(res session.Result) (tea.Model, tea.Cmd) {
	if !m.state.Apply(res) {
		return m, nil
	}

	if res.Err == nil && res.Op == session.OpGenerate && m.input.Value() == m.submitted {
		m.clearInput()
	}
	m.layout()
	m.refreshHistory(res.Err == nil)
	return m, nil
}

// clearInput empties the prompt; the next layout reflows its height.
func (m *Model) clearInput() {
	m.input.Reset()
	m.state.Prompt = ""
	m.estimate = nil
}

// refreshHistory re-renders the log into the viewport, jumping to the
// newest entry when toBottom is set.
func (m *Model) refreshHistory(toBottom bool) {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.history.Render(m.state.Log, m.viewport.Width))
	if toBottom || atBottom {
		m.viewport.GotoBottom()
	}
}

// layout sizes the input to its content and gives the history pane the rest.
func (m *Model) layout() {
	textWidth := max(m.width-lipgloss.Width(inputPrompt), 1)
	m.input.SetWidth(m.width)

	available := m.height - m.chromeHeight()
	inputRows := min(InputHeight(m.input.Value(), textWidth), max(available-minHistoryRows, 1))
	m.input.SetHeight(inputRows)

	m.viewport.Width = m.width
	m.viewport.Height = max(available-inputRows, minHistoryRows)
}

// chromeHeight counts the rows drawn around the history pane and the input.
func (m *Model) chromeHeight() int {
	rows := 3 // header, status, help
	if m.state.LastErr != nil {
		rows++
	}
	if m.state.LastReply != "" {
		rows++
	}
	return rows
}

func (m Model) generate(prompt, model string) tea.Cmd {
	ctx, ops := m.ctx, m.ops
	return func() tea.Msg {
		return resultMsg{ops.Generate(ctx, prompt, model)}
	}
}

func (m Model) fetch() tea.Cmd {
	ctx, ops := m.ctx, m.ops
	return func() tea.Msg {
		return resultMsg{ops.Fetch(ctx)}
	}
}

func (m Model) clear() tea.Cmd {
	ctx, ops := m.ctx, m.ops
	return func() tea.Msg {
		return resultMsg{ops.Clear(ctx)}
	}
}

func (m Model) estimatePrompt() tea.Cmd {
	if m.estimator == nil {
		return nil
	}
	ctx, est := m.ctx, m.estimator
	model, text := m.state.Models.Current(), m.state.Prompt
	return func() tea.Msg {
		e, err := est.EstimatePrompt(ctx, model, text)
		return estimateMsg{estimate: e, err: err}
	}
}
