// Package tui is a terminal front end for a live session. It polls the
// session status on a timer and stages commands typed on its prompt.
package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/outofphase/liveseq"
	"github.com/outofphase/liveseq/live"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fff"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	liveStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8f8"))
	queuedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fc6"))
	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f66"))
	changedStyle  = lipgloss.NewStyle().Reverse(true)

	alertStyles = map[live.AlertPriority]lipgloss.Style{
		live.Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("#8cf")),
		live.Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("#fc6")),
		live.Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#f66")).Bold(true),
	}
)

type (
	Model struct {
		ctrl     *live.Controller
		broker   *live.Broker
		interval time.Duration
		caser    cases.Caser
		now      func() time.Time

		input    []rune
		snap     live.StatusSnapshot
		board    []live.BoardRow
		alerts   []shownAlert
		stopped  bool
		quitting bool
	}

	shownAlert struct {
		live.Alert
		until time.Time
	}

	tickMsg time.Time

	brokerMsg struct {
		v any
	}
)

const (
	loopBarWidth = 32
	helpText     = "enter:stage  ctrl+s:commit  ctrl+t:mute  esc:clear  ctrl+c:quit"
)

var ErrBadInput = errors.New("expected <track|*> <command> or @<track> <param> <value>")

// New creates a Model polling ctrl every interval. broker may be nil.
func New(ctrl *live.Controller, broker *live.Broker, interval time.Duration) Model {
	return Model{
		ctrl:     ctrl,
		broker:   broker,
		interval: interval,
		caser:    cases.Title(language.English),
		now:      time.Now,
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func listen(b *live.Broker) tea.Cmd {
	if b == nil {
		return nil
	}
	return func() tea.Msg { return brokerMsg{<-b.ToUI} }
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), listen(m.broker))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.key(msg)
	case tickMsg:
		m.refresh()
		return m, tick(m.interval)
	case brokerMsg:
		m.receive(msg.v)
		return m, listen(m.broker)
	}
	return m, nil
}

func (m *Model) refresh() {
	m.snap = m.ctrl.Snapshot()
	m.board = m.ctrl.Refresh()
	now := m.now()
	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if now.Before(a.until) {
			kept = append(kept, a)
		}
	}
	m.alerts = kept
}

func (m *Model) receive(v any) {
	switch v := v.(type) {
	case live.Alert:
		m.alert(v)
	case *liveseq.ArgumentError:
		m.alert(live.Alert{Name: "ArgumentError", Priority: live.Warning, Message: v.Error(), Duration: 5 * time.Second})
	case live.StoppedMsg:
		m.stopped = true
		if v.Err == nil {
			m.alert(live.Alert{Name: "Stopped", Priority: live.Info, Message: "playback stopped", Duration: time.Hour})
		}
	}
}

// alert shows a, replacing an alert with the same name.
func (m *Model) alert(a live.Alert) {
	if a.Duration <= 0 {
		a.Duration = 3 * time.Second
	}
	shown := shownAlert{Alert: a, until: m.now().Add(a.Duration)}
	for i := range m.alerts {
		if m.alerts[i].Name == a.Name {
			m.alerts[i] = shown
			return
		}
	}
	m.alerts = append(m.alerts, shown)
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "enter":
		if err := m.Submit(string(m.input)); err != nil {
			m.alert(live.Alert{Name: "Input", Priority: live.Warning, Message: err.Error()})
			return m, nil
		}
		m.input = nil
	case "ctrl+s":
		n := m.ctrl.Commit()
		m.alert(live.Alert{Name: "Commit", Priority: live.Info, Message: fmt.Sprintf("committed %d command(s)", n)})
	case "ctrl+t":
		m.ctrl.SetMute(!m.ctrl.Mute())
	case "esc":
		m.input = nil
	case "backspace":
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	default:
		if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
			m.input = append(m.input, msg.Runes...)
			if msg.Type == tea.KeySpace && len(msg.Runes) == 0 {
				m.input = append(m.input, ' ')
			}
		}
	}
	return m, nil
}

// Submit handles one prompt line. "<track> <command>" stages a command, with
// "*" addressing every track; "@<track> <param> <value>" sets a parameter on
// the board.
func (m Model) Submit(line string) error {
	line = strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(line, "@"); ok {
		f := strings.Fields(rest)
		if len(f) != 3 {
			return ErrBadInput
		}
		v, err := strconv.ParseFloat(f[2], 64)
		if err != nil {
			return fmt.Errorf("bad value %q: %w", f[2], err)
		}
		_, err = m.ctrl.SetParam(liveseq.TrackID(f[0]), f[1], v)
		return err
	}
	track, command, ok := strings.Cut(line, " ")
	if !ok || track == "" {
		return ErrBadInput
	}
	if track == "*" {
		track = ""
	}
	m.ctrl.Stage(liveseq.TrackID(track), command)
	return nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("liveseq"))
	if m.snap.Muted {
		b.WriteString(" " + criticalStyle.Render("MUTED"))
	}
	if m.stopped {
		b.WriteString(" " + dimStyle.Render("stopped"))
	}
	b.WriteString("\n\n")
	b.WriteString(m.loopBar() + "\n")
	fmt.Fprintf(&b, "peak  %s\n", meterBar(m.snap.ShortBars, m.snap.LongBars))
	fmt.Fprintf(&b, "%s\n\n", dimStyle.Render(fmt.Sprintf("duty %.1f%%  buffer %.2fs  underruns %d", m.snap.Duty, m.snap.Buffered, m.snap.Underruns)))

	staged := make(map[liveseq.TrackID]string)
	for _, r := range m.ctrl.Staged() {
		staged[r.Track] = r.Command
	}
	for _, t := range m.snap.Tracks {
		name := fmt.Sprintf("%-12s", m.caser.String(string(t.Track)))
		seq := t.Sequence
		if seq == "" {
			seq = "-"
		}
		line := name + " " + seq
		switch {
		case t.PendingDelete:
			line = dimStyle.Render(line + " (deleting)")
		case t.Live:
			line = liveStyle.Render(line)
		default:
			line = dimStyle.Render(line)
		}
		if t.HasQueued {
			line += queuedStyle.Render(" > " + t.Queued)
		}
		if cmd, ok := staged[t.Track]; ok {
			line += dimStyle.Render(" [" + cmd + "]")
		}
		b.WriteString(line + "\n")
	}
	if cmd, ok := staged[""]; ok {
		b.WriteString(dimStyle.Render("*            ["+cmd+"]") + "\n")
	}
	if len(m.board) > 0 {
		b.WriteString("\n")
		for _, row := range m.board {
			text := fmt.Sprintf("%-24s %8.3f", row.Moniker.String(), row.Value)
			if row.Changed {
				text = changedStyle.Render(text)
			}
			b.WriteString(text + "\n")
		}
	}
	if len(m.alerts) > 0 {
		b.WriteString("\n")
		for _, a := range m.alerts {
			b.WriteString(alertStyles[a.Priority].Render(a.Message) + "\n")
		}
	}
	b.WriteString("\n> " + string(m.input) + "\n")
	b.WriteString(dimStyle.Render(helpText))
	return b.String()
}

// loopBar draws the loop position with a mark at the critical threshold.
func (m Model) loopBar() string {
	pos := int(m.snap.Position / 100 * loopBarWidth)
	crit := int(m.snap.Critical / 100 * loopBarWidth)
	var b strings.Builder
	for i := 0; i < loopBarWidth; i++ {
		switch {
		case i == crit:
			b.WriteByte('|')
		case i < pos:
			b.WriteByte('=')
		default:
			b.WriteByte(' ')
		}
	}
	bar := "loop  [" + b.String() + "]"
	if m.snap.Position >= m.snap.Critical {
		return criticalStyle.Render(bar)
	}
	return bar
}

func meterBar(short, long int) string {
	var b strings.Builder
	for i := 0; i < live.MeterBars; i++ {
		switch {
		case i < short:
			b.WriteByte('#')
		case i == long-1:
			b.WriteByte('|')
		default:
			b.WriteByte('.')
		}
	}
	return b.String()
}
