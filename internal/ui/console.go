package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Sqott47/cinemate/internal/protocol"
	"github.com/Sqott47/cinemate/internal/session"
)

const maxLines = 200

// Console is the interactive room view: chat, roster, playback
// commands and the mic toggle. It contains no protocol logic of its
// own; everything goes through the session.
type Console struct {
	sess  *session.Session
	input textinput.Model

	lines    []string
	users    []protocol.Participant
	videoURL string
	quitting bool
	reason   string
	height   int
}

type sessionEventMsg struct {
	ev session.Event
}

func waitEvent(ch <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return sessionEventMsg{ev: ev}
	}
}

// NewConsole builds the console for a running session.
func NewConsole(sess *session.Session) *Console {
	input := textinput.New()
	input.Placeholder = "message, or /play /pause /seek /video /mic /kick /quit"
	input.Focus()
	input.CharLimit = 512

	return &Console{
		sess:     sess,
		input:    input,
		videoURL: sess.VideoURL(),
	}
}

// Run blocks until the console exits.
func (c *Console) Run() error {
	_, err := tea.NewProgram(c).Run()
	return err
}

func (c *Console) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitEvent(c.sess.Events()))
}

func (c *Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		c.height = msg.Height
		return c, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			c.quit("left room")
			return c, tea.Quit
		case tea.KeyEnter:
			c.submit(strings.TrimSpace(c.input.Value()))
			c.input.SetValue("")
			if c.quitting {
				return c, tea.Quit
			}
			return c, nil
		}

	case sessionEventMsg:
		c.apply(msg.ev)
		if c.quitting {
			return c, tea.Quit
		}
		return c, waitEvent(c.sess.Events())
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

func (c *Console) apply(ev session.Event) {
	switch ev := ev.(type) {

	case session.RosterUpdated:
		c.users = ev.Users

	case session.ChatReceived:
		name := ev.Username
		if name == "" {
			name = ev.UserID
		}
		c.addLine(fmt.Sprintf("%s %s", ChatNameStyle.Render(name+":"), ev.Message))

	case session.PlaybackApplied:
		c.addSystem(fmt.Sprintf("%s at %.1fs (by %s)", ev.Kind, ev.Position, c.nameFor(ev.UserID)))

	case session.VideoChanged:
		c.videoURL = ev.URL
		c.addSystem("video changed: " + ev.URL)

	case session.VoiceStream:
		if ev.Available {
			c.addSystem(fmt.Sprintf("%s %s is talking", IconSound, c.nameFor(ev.UserID)))
		} else {
			c.addSystem(fmt.Sprintf("%s went quiet", c.nameFor(ev.UserID)))
		}

	case session.Kicked:
		c.quit("you were removed from the room")

	case session.ChannelClosed:
		if !c.quitting {
			c.quit("connection to the room was lost")
		}
	}
}

func (c *Console) submit(line string) {
	if line == "" {
		return
	}
	if !strings.HasPrefix(line, "/") {
		c.report(c.sess.SendChat(line))
		return
	}

	fields := strings.Fields(line)
	switch fields[0] {

	case "/play":
		c.report(c.sess.Play())

	case "/pause":
		c.report(c.sess.Pause())

	case "/seek":
		if len(fields) < 2 {
			c.addSystem("usage: /seek <seconds>")
			return
		}
		pos, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			c.addSystem("usage: /seek <seconds>")
			return
		}
		c.report(c.sess.Seek(pos))

	case "/video":
		if len(fields) < 2 {
			c.addSystem("usage: /video <url>")
			return
		}
		c.report(c.sess.ChangeVideo(fields[1]))

	case "/kick":
		if len(fields) < 2 {
			c.addSystem("usage: /kick <participant-id>")
			return
		}
		c.report(c.sess.KickParticipant(fields[1]))

	case "/mic":
		if c.sess.VoiceEnabled() {
			c.sess.DisableVoice()
			c.addSystem("mic off")
		} else if err := c.sess.EnableVoice(); err != nil {
			c.addSystem("mic unavailable: " + err.Error())
		} else {
			c.addSystem("mic on")
		}

	case "/quit":
		c.quit("left room")

	default:
		c.addSystem("unknown command " + fields[0])
	}
}

func (c *Console) report(err error) {
	if err != nil {
		c.addSystem(err.Error())
	}
}

func (c *Console) quit(reason string) {
	if !c.quitting {
		c.quitting = true
		c.reason = reason
		c.sess.Leave()
	}
}

func (c *Console) addLine(line string) {
	c.lines = append(c.lines, line)
	if len(c.lines) > maxLines {
		c.lines = c.lines[len(c.lines)-maxLines:]
	}
}

func (c *Console) addSystem(line string) {
	c.addLine(SystemLineStyle.Render("· " + line))
}

func (c *Console) nameFor(id string) string {
	for _, u := range c.users {
		if u.ID == id {
			return u.Name
		}
	}
	return id
}

func (c *Console) View() string {
	if c.quitting {
		return fmt.Sprintf("%s %s\n", IconRoom, c.reason)
	}

	var b strings.Builder

	mic := IconMicOff
	if c.sess.VoiceEnabled() {
		mic = IconMicOn
	}
	header := fmt.Sprintf("%s %s  %s  %s", IconMovie, c.sess.RoomID(), mic, MutedStyle.Render(c.videoURL))
	b.WriteString(HeaderStyle.Render(header))
	b.WriteString("\n")

	visible := 12
	if c.height > 24 {
		visible = c.height - 12
	}
	start := 0
	if len(c.lines) > visible {
		start = len(c.lines) - visible
	}
	for _, line := range c.lines[start:] {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(RosterTable(c.users, c.sess.LocalID()))
	b.WriteString("\n\n")
	b.WriteString(c.input.View())
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render("esc to leave"))
	b.WriteString("\n")

	return b.String()
}
