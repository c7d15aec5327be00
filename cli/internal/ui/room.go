package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/CodinGakpo/DebateIT/cli/internal/presence"
	"github.com/CodinGakpo/DebateIT/cli/internal/session"
	"github.com/CodinGakpo/DebateIT/cli/internal/signaling"
)

const (
	maxLines  = 200
	talkPulse = 1500 * time.Millisecond
)

// Controller is the part of session.Session the room screen drives.
type Controller interface {
	Updates() <-chan session.Update
	Room() *session.Room
	Cancel()
	Leave()
	Close()
	SendChat(text string) error
	SetMuted(muted bool) error
}

// UpdateMsg carries a session update into the program.
type UpdateMsg session.Update

// RoomModel is the interactive screen for matchmaking and the debate room.
type RoomModel struct {
	ctrl     Controller
	detector *presence.Detector
	talk     *presence.ManualSource

	input   textinput.Model
	spinner spinner.Model

	state    session.State
	status   session.Status
	code     string
	room     *session.Room
	muted    bool
	lines    []string
	err      error
	quitting bool
	width    int
}

// NewRoomModel builds the screen. detector and talk may be nil when voice
// activity is not tracked.
func NewRoomModel(ctrl Controller, detector *presence.Detector, talk *presence.ManualSource) *RoomModel {
	in := textinput.New()
	in.Placeholder = "Say something…"
	in.Prompt = IconChat + " "
	in.CharLimit = 500
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle

	return &RoomModel{
		ctrl:     ctrl,
		detector: detector,
		talk:     talk,
		input:    in,
		spinner:  s,
		width:    80,
	}
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink, m.waitForUpdate())
}

func (m *RoomModel) waitForUpdate() tea.Cmd {
	ch := m.ctrl.Updates()
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return nil
		}
		return UpdateMsg(u)
	}
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd := m.handleKey(msg); cmd != nil {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(10, msg.Width-6)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case UpdateMsg:
		if cmd := m.apply(session.Update(msg)); cmd != nil {
			return m, cmd
		}
		cmds = append(cmds, m.waitForUpdate())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *RoomModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c":
		m.quit()
		m.ctrl.Close()
		return tea.Quit

	case "esc":
		switch m.state {
		case session.Waiting:
			m.ctrl.Cancel()
		case session.Active, session.Open:
			m.ctrl.Leave()
		default:
			m.quit()
			m.ctrl.Close()
			return tea.Quit
		}

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return nil
		}
		if err := m.ctrl.SendChat(text); err != nil {
			m.push(ErrorStyle.Render(err.Error()))
			return nil
		}
		m.push(fmt.Sprintf("%s %s", SenderStyle.Render("you:"), text))
		m.input.Reset()

	case "tab":
		if m.state != session.Active {
			return nil
		}
		if err := m.ctrl.SetMuted(!m.muted); err != nil {
			m.push(ErrorStyle.Render(err.Error()))
			return nil
		}
		m.muted = !m.muted
		if m.detector != nil {
			m.detector.SetMuted(m.muted)
		}
		m.room = m.ctrl.Room()

	case "ctrl+t":
		if m.talk != nil && !m.muted && m.state == session.Active {
			m.talk.Pulse(talkPulse)
		}
	}
	return nil
}

// apply folds an update into the screen and returns tea.Quit once the
// session is over.
func (m *RoomModel) apply(u session.Update) tea.Cmd {
	prev := m.state
	m.state = u.State
	if u.Status != session.StatusNone {
		m.status = u.Status
	}
	if u.RoomCode != "" {
		m.code = u.RoomCode
	}

	if u.Message != nil {
		m.describe(*u.Message)
	}
	m.room = m.ctrl.Room()

	if u.State == session.Active && prev != session.Active && m.detector != nil {
		m.detector.Start()
	}

	switch u.State {
	case session.Error:
		m.err = u.Err
	case session.Closed:
		if m.err == nil {
			m.err = u.Err
		}
		m.quit()
		return tea.Quit
	}
	return nil
}

func (m *RoomModel) describe(msg signaling.RoomMessage) {
	switch msg.Type {
	case signaling.TypeRoomState:
		m.push(MutedStyle.Render(fmt.Sprintf("joined room %s as %s", msg.RoomCode, msg.Self.Role)))
	case signaling.TypeParticipantJoined:
		m.push(MutedStyle.Render(fmt.Sprintf("%s joined as %s", msg.Participant.Name, msg.Participant.Role)))
	case signaling.TypeParticipantLeft:
		name := m.nameOf(msg.UserID)
		m.push(MutedStyle.Render(name + " left"))
	case signaling.TypeChatMessage:
		m.push(fmt.Sprintf("%s %s", SenderStyle.Render(msg.Sender+":"), msg.Message))
	case signaling.TypeSpeechTranscript:
		if msg.Final == nil || *msg.Final {
			m.push(fmt.Sprintf("%s %s", SenderStyle.Render(msg.Sender+" 🗣"), MutedStyle.Render(msg.Transcript)))
		}
	case signaling.TypeError:
		m.push(WarningStyle.Render(fmt.Sprintf("server: %s %s", msg.Error, msg.Details)))
	}
}

func (m *RoomModel) nameOf(id string) string {
	if m.room != nil {
		if name := m.room.Name(id); name != "" {
			return name
		}
	}
	return "opponent"
}

func (m *RoomModel) push(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

func (m *RoomModel) quit() {
	if m.quitting {
		return
	}
	m.quitting = true
	if m.detector != nil {
		m.detector.Stop()
	}
}

// Err is the cause the session ended with, if any.
func (m *RoomModel) Err() error {
	return m.err
}

func (m *RoomModel) Status() session.Status {
	return m.status
}

func (m *RoomModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	header := "DebateIT"
	if m.code != "" {
		header += " · " + IconRoom + " " + m.code
	}
	b.WriteString(HeaderStyle.Render(header) + "\n")

	switch m.state {
	case session.Idle, session.Connecting, session.Open:
		label := "Connecting…"
		if m.status == session.StatusMatched {
			label = IconMatched + " Opponent found, joining room…"
		}
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), label))
		b.WriteString(FooterStyle.Render("esc to leave · ctrl+c to quit"))
		return b.String()

	case session.Waiting:
		b.WriteString(fmt.Sprintf("%s %s Looking for an opponent…\n", m.spinner.View(), IconWaiting))
		b.WriteString(FooterStyle.Render("esc to cancel · ctrl+c to quit"))
		return b.String()
	}

	if m.room != nil {
		self := m.room.Self
		b.WriteString(NewParticipantTable(&self, m.room.Others).View() + "\n")
	}

	for _, line := range m.lines {
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + m.input.View() + "\n")

	mic := MicLabel(m.muted, m.room != nil && m.room.Self.Speaking)
	b.WriteString(FooterStyle.Render(fmt.Sprintf("%s · enter send · tab mute · ctrl+t talk · esc leave", mic)))
	return b.String()
}

// RunRoom drives the screen until the session closes.
func RunRoom(model *RoomModel) error {
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return err
	}
	return model.Err()
}
