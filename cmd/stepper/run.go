package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/stepper/pkg/logging"
	"github.com/gwillem/stepper/pkg/program"
	"github.com/gwillem/stepper/pkg/stepper"
)

type RunCommand struct {
	Hz       int  `long:"hz" default:"30" description:"Readiness polling frequency"`
	Headless bool `long:"headless" description:"Run without the TUI, logging to stderr"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Colors handed out to motors in name order.
var palette = []string{"196", "46", "51", "208", "226", "201", "33", "129", "214"}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type runModel struct {
	ctrl     *program.Controller
	chart    *streamlinechart.Model
	names    []string
	colors   map[string]string
	steps    int
	state    program.State
	width    int
	height   int
	logs     []string
	done     bool
	quitting bool
}

// Messages from the controller
type stateMsg program.State
type logMsg string
type doneMsg struct{ err error }

func waitForState(ctrl *program.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *program.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func (m *runModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *runModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

// maxBusySeconds estimates the longest busy window any rotate step of the
// program can produce, to scale the chart.
func maxBusySeconds(cfg *stepper.Config) float64 {
	delays := make(map[string]int32)
	for name, mc := range cfg.Motors {
		delays[name] = mc.Delay
		if delays[name] == 0 {
			delays[name] = stepper.DefaultStepDelay
		}
	}

	longest := 1.0
	for _, s := range cfg.Program {
		switch s.Action {
		case stepper.ActionDelay:
			delays[s.Motor] = s.Delay
		case stepper.ActionRotate:
			ms := int64(s.Steps) * int64(delays[s.Motor]) / 1000
			longest = math.Max(longest, float64(ms+ms/10)/1000)
		}
	}
	return math.Ceil(longest)
}

func newRunModel(ctrl *program.Controller, cfg *stepper.Config) runModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, maxBusySeconds(cfg)),
	)

	names := ctrl.Motors()
	slices.Sort(names)
	colors := make(map[string]string, len(names))
	for i, name := range names {
		colors[name] = palette[i%len(palette)]
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(colors[name]))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}

	return runModel{
		ctrl:   ctrl,
		chart:  &chart,
		names:  names,
		colors: colors,
		steps:  len(cfg.Program),
	}
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.chartSize()
		m.chart.Resize(w, h)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		m.state = program.State(msg)
		for name, ms := range m.state.Motors {
			m.chart.PushDataSet(name, ms.Remaining.Seconds())
		}
		m.chart.DrawAll()
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)

	case doneMsg:
		m.done = true
		if msg.err != nil {
			m.addLog(fmt.Sprintf("Error: %v", msg.err))
		} else {
			m.addLog("Program finished, press 'q' to quit")
		}
		return m, nil
	}

	return m, nil
}

func (m runModel) View() string {
	if m.quitting {
		return "Program stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Stepper Run"))
	sb.WriteString(fmt.Sprintf(" - step %d/%d", min(m.state.Step+1, m.steps), m.steps))
	if m.done {
		sb.WriteString(statusStyle.Render("  [done]"))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(m.renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m runModel) renderLegend() string {
	var items []string
	for _, name := range m.names {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.colors[name])).Bold(true)
		status := "ready"
		if ms, ok := m.state.Motors[name]; ok && !ms.Ready {
			status = fmt.Sprintf("%.1fs", ms.Remaining.Seconds())
		}
		items = append(items, colorStyle.Render("━━")+" "+name+" "+statusStyle.Render(status))
	}
	return strings.Join(items, "  ")
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := stepper.LoadConfigFrom(opts.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "No configuration found. Run 'stepper setup' first.")
		os.Exit(1)
	}
	if len(cfg.Program) == 0 {
		fmt.Fprintf(os.Stderr, "No program in %s.\n", opts.Config)
		os.Exit(1)
	}

	// The TUI owns the terminal; structured logs are only written headless.
	logger := logging.Discard()
	if c.Headless {
		logger = newLogger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool := newPool(logger)
	defer pool.Close()

	motors, err := createMotors(pool, cfg)
	if err != nil {
		return err
	}

	ctrl, err := program.NewController(program.Config{
		Motors: motors,
		Steps:  cfg.Program,
		Hz:     c.Hz,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	if c.Headless {
		return runHeadless(ctx, ctrl)
	}
	return runTUI(ctx, tea.NewProgram(newRunModel(ctrl, cfg), tea.WithAltScreen(), tea.WithContext(ctx)), ctrl)
}

// createMotors creates the motors used by the program, with their
// configured delays.
func createMotors(pool *stepper.Pool, cfg *stepper.Config) (map[string]*stepper.Motor, error) {
	motors := make(map[string]*stepper.Motor)
	for _, s := range cfg.Program {
		if _, ok := motors[s.Motor]; ok {
			continue
		}
		mc, ok := cfg.Motors[s.Motor]
		if !ok {
			return nil, fmt.Errorf("step uses unknown motor %q", s.Motor)
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("Connecting %s on %s...", s.Motor, mc.Port)))
		m, err := pool.Create(mc.Port, mc.Pins)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", s.Motor, err)
		}
		if mc.Delay != 0 {
			if err := m.SetDelay(mc.Delay); err != nil {
				return nil, fmt.Errorf("set delay on %s: %w", s.Motor, err)
			}
		}
		motors[s.Motor] = m
	}
	return motors, nil
}

// runHeadless runs the program until it finishes or ctx is cancelled. An
// interrupt is a clean stop: the controller has already turned the motors off.
func runHeadless(ctx context.Context, ctrl *program.Controller) error {
	err := ctrl.Start(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Println(subHeaderStyle.Render("Interrupted, motors stopped"))
		return nil
	}
	return err
}

// tuiProgram is the part of tea.Program used to drive the run view.
type tuiProgram interface {
	Run() (tea.Model, error)
	Send(msg tea.Msg)
}

// runTUI runs the program behind the TUI. The controller is stopped and
// joined before returning, so the caller can safely close the pool.
func runTUI(ctx context.Context, p tuiProgram, ctrl *program.Controller) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		err := ctrl.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return
		}
		p.Send(doneMsg{err: err})
	}()

	_, err := p.Run()

	// Stop the program before the pool disconnects its motors
	cancel()
	<-finished

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}
