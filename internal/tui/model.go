package tui

import (
	"fmt"
	"strings"

	"github.com/abhishek0908/curelink/internal/chat"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// stateChangedMsg is emitted whenever the session reports a state change.
type stateChangedMsg struct{}

// sessionClosedMsg is emitted when the session's notify channel closes.
type sessionClosedMsg struct{}

// UnauthorizedMsg asks the view to shut down after a rejected credential.
type UnauthorizedMsg struct{}

// Model is the chat view: a viewport message list over the session's
// snapshots, a textarea input and connection/typing indicators.
//
// The model never mutates conversation state directly; it forwards intents
// (send, load-older) to the session and re-renders from snapshots.
type Model struct {
	session   *chat.Session
	userEmail string

	vp      viewport.Model
	input   textarea.Model
	content string

	width  int
	height int
	ready  bool

	snap chat.Snapshot
	note string
}

// NewModel constructs the chat view bound to a running session.
func NewModel(session *chat.Session, userEmail string) *Model {
	ta := textarea.New()
	ta.Placeholder = "Connecting..."
	ta.Focus()
	ta.CharLimit = 4000
	ta.SetHeight(1)
	ta.ShowLineNumbers = false
	ta.Prompt = "▍ "

	return &Model{
		session:   session,
		userEmail: userEmail,
		input:     ta,
		snap:      session.Snapshot(),
	}
}

// Init starts the blink and change-wait commands.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.waitForChange())
}

// waitForChange blocks on the session's coalesced change signal.
func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-m.session.Notify(); !ok {
			return sessionClosedMsg{}
		}
		return stateChangedMsg{}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		vpHeight := msg.Height - 6
		if vpHeight < 3 {
			vpHeight = 3
		}
		m.vp = viewport.New(msg.Width-2, vpHeight)
		m.vp.Style = viewportStyle
		m.input.SetWidth(msg.Width - 4)
		m.ready = true

		m.content = m.renderMessages(m.snap)
		m.vp.SetContent(m.content)
		m.vp.GotoBottom()
		return m, nil

	case stateChangedMsg:
		m.applySnapshot(m.session.Snapshot())
		return m, m.waitForChange()

	case sessionClosedMsg:
		return m, tea.Quit

	case UnauthorizedMsg:
		m.note = "Session expired. Run `curelink login` to sign in again."
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			text := strings.TrimSpace(m.input.Value())
			// Sending is gated on the connection indicator; the session
			// additionally drops send intents while disconnected.
			if text != "" && m.snap.Conn == chat.ConnOpen {
				m.session.Send(text)
				m.input.Reset()
			}
			return m, nil
		}
	}

	if m.ready {
		var vpCmd tea.Cmd
		m.vp, vpCmd = m.vp.Update(msg)
		cmds = append(cmds, vpCmd)

		// Paging needs a deliberate scroll-up gesture that lands on the top
		// row; blink ticks and typing must never request history.
		if isScrollUp(msg) && m.vp.AtTop() && m.snap.Cursor.HasMore {
			m.session.LoadOlder()
		}
	}

	var inputCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	cmds = append(cmds, inputCmd)

	return m, tea.Batch(cmds...)
}

// isScrollUp reports whether msg is an upward scroll input. Plain letters are
// excluded even though the viewport binds some; they belong to the textarea.
func isScrollUp(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "pgup", "ctrl+u":
			return true
		}
	case tea.MouseMsg:
		return msg.Button == tea.MouseButtonWheelUp
	}
	return false
}

// applySnapshot re-renders the message list. A prepend keeps the user's
// visual anchor stable by shifting the viewport offset by the rendered
// height difference; seeds and appends pin the view to the bottom.
func (m *Model) applySnapshot(snap chat.Snapshot) {
	m.snap = snap
	if !m.ready {
		return
	}

	content := m.renderMessages(snap)

	switch snap.LastChange {
	case chat.ChangePrepend:
		heightBefore := lipgloss.Height(m.content)
		heightAfter := lipgloss.Height(content)
		offset := m.vp.YOffset + chat.PrependDelta(heightBefore, heightAfter)

		m.vp.SetContent(content)
		m.vp.SetYOffset(offset)

	case chat.ChangeSeed, chat.ChangeAppend:
		m.vp.SetContent(content)
		m.vp.GotoBottom()

	default:
		m.vp.SetContent(content)
	}

	m.content = content

	if m.snap.Conn == chat.ConnOpen {
		m.input.Placeholder = "Type a message..."
	} else {
		m.input.Placeholder = "Connecting..."
	}
}

// renderMessages lays the log out oldest-first, user turns on the right.
func (m *Model) renderMessages(snap chat.Snapshot) string {
	if len(snap.Messages) == 0 {
		return typingStyle.Render("No messages yet. Say hello!")
	}

	lineWidth := m.width - 6
	if lineWidth < 20 {
		lineWidth = 20
	}
	bubbleWidth := lineWidth * 7 / 10

	var b strings.Builder
	for i, msg := range snap.Messages {
		if i > 0 {
			b.WriteString("\n")
		}

		stamp := ""
		if !msg.CreatedAt.IsZero() {
			stamp = timestampStyle.Render(msg.CreatedAt.Local().Format("15:04"))
		}

		var bubble string
		if msg.Role == chat.RoleUser {
			bubble = userBubbleStyle.MaxWidth(bubbleWidth).Render(msg.Content)
			b.WriteString(lipgloss.PlaceHorizontal(lineWidth, lipgloss.Right,
				lipgloss.JoinHorizontal(lipgloss.Bottom, stamp, " ", bubble)))
		} else {
			bubble = assistantBubbleStyle.MaxWidth(bubbleWidth).Render(msg.Content)
			b.WriteString(lipgloss.JoinHorizontal(lipgloss.Bottom, bubble, " ", stamp))
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	status := statusOfflineStyle.Render("● " + m.snap.Conn.String())
	if m.snap.Conn == chat.ConnOpen {
		status = statusOnlineStyle.Render("● online")
	}
	header := headerStyle.Render("CureLink Assistant") + "  " + status +
		"  " + helpStyle.Render(m.userEmail)

	typing := ""
	if m.snap.Typing {
		typing = typingStyle.Render("assistant is typing...")
	}

	help := helpStyle.Render("enter send · scroll to top for older messages · esc quit")
	if m.note != "" {
		help = helpStyle.Render(m.note)
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		header,
		m.vp.View(),
		typing,
		m.input.View(),
		help,
	)
}
