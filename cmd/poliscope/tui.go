// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// The interactive session UI follows The Elm Architecture via
// bubbletea: the model holds all state, Update folds messages into a
// new model, View renders it. Run events arrive over the server's
// websocket on a channel; each delivered event re-arms a command that
// waits for the next one.

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

// sessionState represents which screen the session UI is on.
type sessionState int

const (
	stateInput   sessionState = iota // Waiting for a query
	stateRunning                     // A run is streaming events
	stateResult                      // Final briefing on screen
)

// exampleQueries seed the input screen so a first-time user sees what
// the service is for.
var exampleQueries = []string{
	"What is the status of the federal budget negotiations?",
	"Summarize the arguments for and against the new voting rights bill.",
	"What are the geopolitical implications of the latest trade sanctions?",
}

// Stage rows shown in the progress panel, in graph entry order.
// REDIRECT is appended only when a run actually visits it.
var stagePanelOrder = []string{
	"CLASSIFY",
	"PLAN",
	"RESEARCH",
	"SYNTHESIZE",
	"AUDIT_NEUTRALITY",
	"AUDIT_FACTS",
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1)
	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5C07B"))
	doneMark   = lipgloss.NewStyle().Foreground(lipgloss.Color("#98C379")).Render("✓")
	failMark   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75")).Render("✗")
	activeMark = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Render("▸")
)

// streamRequest is the first frame sent on the websocket.
type streamRequest struct {
	Query string `json:"query"`
}

// streamEvent mirrors the server's run event frames.
type streamEvent struct {
	Kind          string `json:"kind"`
	RunID         string `json:"run_id"`
	Seq           int    `json:"seq"`
	Stage         string `json:"stage,omitempty"`
	Next          string `json:"next,omitempty"`
	DurationMS    int64  `json:"duration_ms,omitempty"`
	RevisionCount int    `json:"revision_count"`
	Degraded      bool   `json:"degraded,omitempty"`
	Error         string `json:"error,omitempty"`
	FinalText     string `json:"final_text,omitempty"`
}

// eventStream carries run events from the websocket reader goroutine
// into the bubbletea message loop.
type eventStream struct {
	events chan streamEvent
}

type streamOpenedMsg struct {
	stream *eventStream
}

type streamEventMsg streamEvent

type streamClosedMsg struct {
	err error
}

// stageRow is one line of the progress panel.
type stageRow struct {
	name       string
	visits     int
	active     bool
	degraded   bool
	durationMS int64
}

// chatModel is the interactive session model. Holds ALL UI state.
type chatModel struct {
	baseURL string
	state   sessionState

	input   textinput.Model
	spin    spinner.Model
	stream  *eventStream
	query   string
	runID   string
	rows    []stageRow
	current string

	finalText     string
	revisionCount int
	degraded      bool
	runErr        string
	statusMsg     string

	width  int
	height int
}

func newChatModel(baseURL string) *chatModel {
	input := textinput.New()
	input.Placeholder = "Ask a political question..."
	input.Prompt = "> "
	input.CharLimit = 2000
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))

	return &chatModel{
		baseURL:   baseURL,
		state:     stateInput,
		input:     input,
		spin:      spin,
		rows:      freshStageRows(),
		statusMsg: "Enter a political question to start a briefing",
	}
}

func freshStageRows() []stageRow {
	rows := make([]stageRow, 0, len(stagePanelOrder)+1)
	for _, name := range stagePanelOrder {
		rows = append(rows, stageRow{name: name})
	}
	return rows
}

// Init is called once when the program starts.
func (m *chatModel) Init() tea.Cmd {
	return textinput.Blink
}

// openStream dials the server's websocket, sends the query, and
// launches the reader goroutine. The channel closes when the run's
// terminal event has been delivered or the connection drops.
func openStream(baseURL, query string) tea.Cmd {
	return func() tea.Msg {
		wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/v1/briefings/stream"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			return streamClosedMsg{err: fmt.Errorf("cannot reach %s: %w", wsURL, err)}
		}
		if err := conn.WriteJSON(streamRequest{Query: query}); err != nil {
			conn.Close()
			return streamClosedMsg{err: err}
		}

		stream := &eventStream{events: make(chan streamEvent, 64)}
		go func() {
			defer conn.Close()
			defer close(stream.events)
			for {
				var ev streamEvent
				if err := conn.ReadJSON(&ev); err != nil {
					return
				}
				stream.events <- ev
				if ev.Kind == "run_completed" || ev.Kind == "run_failed" {
					return
				}
			}
		}()
		return streamOpenedMsg{stream: stream}
	}
}

// waitForStreamEvent blocks on the next event. Re-armed after every
// delivery so the UI drains the stream one message at a time.
func waitForStreamEvent(s *eventStream) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-s.events
		if !ok {
			return streamClosedMsg{}
		}
		return streamEventMsg(ev)
	}
}

// Update is called when a message is received.
func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(20, msg.Width-10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.state == stateResult {
				return m.resetForNextQuery()
			}
			if m.state == stateInput {
				return m, tea.Quit
			}
		case "enter":
			if m.state == stateInput {
				return m.submitQuery()
			}
			if m.state == stateResult {
				return m.resetForNextQuery()
			}
		}

	case streamOpenedMsg:
		m.stream = msg.stream
		return m, waitForStreamEvent(m.stream)

	case streamEventMsg:
		cmd := m.applyEvent(streamEvent(msg))
		return m, cmd

	case streamClosedMsg:
		if m.state == stateRunning {
			m.state = stateResult
			if msg.err != nil {
				m.runErr = msg.err.Error()
				m.statusMsg = "Stream failed"
			} else if m.finalText == "" && m.runErr == "" {
				m.runErr = "connection closed before the run finished"
				m.statusMsg = "Stream interrupted"
			}
		}
		m.stream = nil
		return m, nil

	case spinner.TickMsg:
		if m.state != stateRunning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	if m.state == stateInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *chatModel) submitQuery() (tea.Model, tea.Cmd) {
	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		m.statusMsg = "Type a question first"
		return m, nil
	}
	m.query = query
	m.state = stateRunning
	m.rows = freshStageRows()
	m.current = ""
	m.runID = ""
	m.finalText = ""
	m.revisionCount = 0
	m.degraded = false
	m.runErr = ""
	m.statusMsg = "Submitting run..."
	m.input.Blur()
	return m, tea.Batch(openStream(m.baseURL, query), m.spin.Tick)
}

func (m *chatModel) resetForNextQuery() (tea.Model, tea.Cmd) {
	m.state = stateInput
	m.input.SetValue("")
	m.input.Focus()
	m.statusMsg = "Enter a political question to start a briefing"
	return m, textinput.Blink
}

// applyEvent folds one run event into the model and re-arms the wait.
func (m *chatModel) applyEvent(ev streamEvent) tea.Cmd {
	switch ev.Kind {
	case "run_started":
		m.runID = ev.RunID
		m.statusMsg = fmt.Sprintf("Run %s started", ev.RunID)

	case "stage_started":
		m.current = ev.Stage
		m.markStageActive(ev.Stage)
		m.statusMsg = fmt.Sprintf("Running %s", ev.Stage)

	case "stage_completed":
		m.markStageDone(ev)
		m.revisionCount = ev.RevisionCount
		if ev.Degraded {
			m.degraded = true
		}

	case "run_completed":
		m.state = stateResult
		m.current = ""
		m.finalText = ev.FinalText
		m.revisionCount = ev.RevisionCount
		if ev.Degraded {
			m.degraded = true
		}
		m.statusMsg = "Briefing complete"

	case "run_failed":
		m.state = stateResult
		m.current = ""
		m.runErr = ev.Error
		m.statusMsg = "Run failed"
	}

	if m.stream != nil && m.state == stateRunning {
		return waitForStreamEvent(m.stream)
	}
	if m.stream != nil {
		// Drain the close notification so the reader goroutine exits.
		return waitForStreamEvent(m.stream)
	}
	return nil
}

func (m *chatModel) markStageActive(name string) {
	idx := m.stageRowIndex(name)
	if idx < 0 {
		m.rows = append(m.rows, stageRow{name: name})
		idx = len(m.rows) - 1
	}
	for i := range m.rows {
		m.rows[i].active = false
	}
	m.rows[idx].active = true
}

func (m *chatModel) markStageDone(ev streamEvent) {
	idx := m.stageRowIndex(ev.Stage)
	if idx < 0 {
		m.rows = append(m.rows, stageRow{name: ev.Stage})
		idx = len(m.rows) - 1
	}
	m.rows[idx].active = false
	m.rows[idx].visits++
	m.rows[idx].durationMS = ev.DurationMS
	if ev.Degraded {
		m.rows[idx].degraded = true
	}
}

func (m *chatModel) stageRowIndex(name string) int {
	for i, row := range m.rows {
		if row.name == name {
			return i
		}
	}
	return -1
}

// View renders the current state to a string.
func (m *chatModel) View() string {
	width := m.width
	if width <= 0 {
		width = 100
	}
	rightWidth := max(30, width/3)
	leftWidth := width - rightWidth - 4
	if leftWidth < 40 {
		leftWidth = width - 4
		rightWidth = 0
	}

	header := headerStyle.Render("⬡ POLISCOPE")
	left := panelStyle.Width(max(20, leftWidth)).Render(m.renderMainPanel(leftWidth - 4))

	body := left
	if rightWidth > 0 {
		right := panelStyle.Width(max(20, rightWidth)).Render(m.renderStagePanel())
		body = lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	}

	footer := hintStyle.Render(m.renderFooter())
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *chatModel) renderMainPanel(width int) string {
	title := panelTitleStyle.Render("Briefing")
	var lines []string

	switch m.state {
	case stateInput:
		lines = append(lines, "Ask about legislation, elections, policy, or geopolitics.", "", m.input.View(), "")
		lines = append(lines, hintStyle.Render("Examples:"))
		for _, q := range exampleQueries {
			lines = append(lines, hintStyle.Render("  · "+q))
		}
	case stateRunning:
		lines = append(lines, fmt.Sprintf("Query: %s", m.query), "", fmt.Sprintf("%s %s", m.spin.View(), m.statusMsg))
	case stateResult:
		lines = append(lines, fmt.Sprintf("Query: %s", m.query), "")
		if m.runErr != "" {
			lines = append(lines, warnStyle.Render(fmt.Sprintf("Run failed: %s", m.runErr)))
		} else {
			lines = append(lines, m.finalText)
			if m.degraded {
				lines = append(lines, "", warnStyle.Render("⚠ Degraded run; this is the best available draft."))
			}
		}
	}

	content := lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, title, content)
}

func (m *chatModel) renderStagePanel() string {
	title := panelTitleStyle.Render("Workflow")
	var lines []string
	for _, row := range m.rows {
		lines = append(lines, m.renderStageRow(row))
	}
	if m.runID != "" {
		lines = append(lines, "", fmt.Sprintf("Run: %s", m.runID))
		lines = append(lines, fmt.Sprintf("Revisions: %d", m.revisionCount))
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"))
}

func (m *chatModel) renderStageRow(row stageRow) string {
	mark := " "
	switch {
	case row.active:
		mark = activeMark
	case row.degraded:
		mark = failMark
	case row.visits > 0:
		mark = doneMark
	}
	line := fmt.Sprintf("%s %s", mark, row.name)
	if row.visits > 1 {
		line += fmt.Sprintf(" x%d", row.visits)
	}
	if row.visits > 0 && row.durationMS > 0 {
		line += fmt.Sprintf(" · %s", formatDuration(row.durationMS))
	}
	return line
}

func (m *chatModel) renderFooter() string {
	switch m.state {
	case stateInput:
		return "Enter → run briefing    Esc → quit"
	case stateRunning:
		return "Ctrl+C → quit (the server keeps running the briefing)"
	default:
		return "Enter → new query    Ctrl+C → quit"
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
