package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gemini-chat-go/internal/model"
	"gemini-chat-go/pkg/chatclient"
	"gemini-chat-go/pkg/chatview"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const searchPrefix = "/search "

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type identityMsg struct {
	me  *chatclient.Me
	err error
}

type sessionMsg struct{ ev chatview.Event }

type searchMsg struct {
	query   string
	results []model.Message
	err     error
}

type app struct {
	client   *chatclient.Client
	session  *chatview.Session
	me       *chatclient.Me
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	status   string
	ready    bool
}

func newApp(client *chatclient.Client, session *chatview.Session) *app {
	ti := textinput.New()
	ti.Placeholder = "Type your message... (use /image for image requests, /search <text> to search)"
	ti.CharLimit = 8192
	ti.Prompt = "> "
	ti.PromptStyle = userStyle
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &app{client: client, session: session, input: ti, spinner: sp}
}

func (a *app) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, a.spinner.Tick, loadIdentity(a.client), waitForEvent(a.session))
}

func loadIdentity(c *chatclient.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		me, err := c.Me(ctx)
		return identityMsg{me: me, err: err}
	}
}

func waitForEvent(s *chatview.Session) tea.Cmd {
	return func() tea.Msg {
		return sessionMsg{ev: <-s.Events()}
	}
}

func search(c *chatclient.Client, userID, query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		results, err := c.SearchMessages(ctx, userID, query, 20)
		return searchMsg{query: query, results: results, err: err}
	}
}

func (a *app) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return a, tea.Quit
		case tea.KeyEnter:
			if !a.session.View().Pending() {
				cmds = append(cmds, a.submit())
			}
		}

	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)

	case identityMsg:
		switch {
		case msg.err != nil:
			a.status = errorStyle.Render("Failed to load identity: " + msg.err.Error())
		case !msg.me.Authenticated:
			a.status = mutedStyle.Render("Please log in to view and send messages: " + msg.me.LoginURL)
		default:
			a.me = msg.me
			a.session.SetIdentity(msg.me.User.Subject)
		}
		a.refresh()

	case sessionMsg:
		if msg.ev != nil && a.session.Apply(msg.ev) {
			a.refresh()
		}
		cmds = append(cmds, waitForEvent(a.session))

	case searchMsg:
		a.status = renderSearch(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if a.session.View().Pending() {
			a.refresh()
		}
	}

	cmds = append(cmds, a.syncInput())
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)
	a.viewport, cmd = a.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

// syncInput 在等待回复期间禁用输入框，回复到达后恢复。
func (a *app) syncInput() tea.Cmd {
	if a.session.View().Pending() {
		a.input.Blur()
		return nil
	}
	if !a.input.Focused() {
		return a.input.Focus()
	}
	return nil
}

func (a *app) submit() tea.Cmd {
	text := strings.TrimSpace(a.input.Value())
	if strings.HasPrefix(text, searchPrefix) {
		if a.me == nil {
			a.status = errorStyle.Render(chatview.ErrNoIdentity.Error())
			return nil
		}
		a.input.Reset()
		return search(a.client, a.me.User.Subject, strings.TrimPrefix(text, searchPrefix))
	}

	a.session.View().SetInput(text)
	if _, err := a.session.Send(time.Now()); err != nil {
		a.status = errorStyle.Render(err.Error())
		return nil
	}
	a.status = ""
	a.input.Reset()
	a.refresh()
	return nil
}

func (a *app) resize(width, height int) {
	const chrome = 5 // title, status, input and spacing
	if !a.ready {
		a.viewport = viewport.New(width, height-chrome)
		a.ready = true
	} else {
		a.viewport.Width = width
		a.viewport.Height = height - chrome
	}
	a.input.Width = width - 4
	if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width-4)); err == nil {
		a.renderer = r
	}
	a.refresh()
}

func (a *app) renderMarkdown(content string) string {
	if a.renderer == nil {
		return content
	}
	out, err := a.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

func (a *app) refresh() {
	if !a.ready {
		return
	}
	view := a.session.View()
	var b strings.Builder

	if a.me != nil && len(view.Entries()) == 0 {
		name := a.me.User.Name
		if name == "" {
			name = "there"
		}
		b.WriteString(a.renderMarkdown(fmt.Sprintf("Welcome %s! I'm powered by Google Gemini AI. Ask me anything or use `/image` for image-related requests.", name)))
		b.WriteString("\n")
	}

	for _, e := range view.Entries() {
		stamp := e.CreatedAt.Local().Format("15:04")
		if e.Role == model.RoleUser {
			header := userStyle.Render("You") + " " + mutedStyle.Render(stamp)
			if e.Optimistic {
				header += " " + mutedStyle.Render("sending")
			}
			b.WriteString(header + "\n" + e.Content + "\n\n")
			continue
		}
		b.WriteString(assistantStyle.Render("Gemini") + " " + mutedStyle.Render(stamp) + "\n")
		b.WriteString(a.renderMarkdown(e.Content) + "\n\n")
	}
	if view.Pending() {
		b.WriteString(a.spinner.View() + mutedStyle.Render(" Gemini is thinking...") + "\n")
	}

	a.viewport.SetContent(b.String())
	a.viewport.GotoBottom()
}

func renderSearch(msg searchMsg) string {
	if msg.err != nil {
		return errorStyle.Render("Search failed: " + msg.err.Error())
	}
	if len(msg.results) == 0 {
		return mutedStyle.Render(fmt.Sprintf("No messages contain %q", msg.query))
	}
	lines := []string{mutedStyle.Render(fmt.Sprintf("%d result(s) for %q:", len(msg.results), msg.query))}
	for _, m := range msg.results {
		content := shorten(strings.ReplaceAll(m.Content, "\n", " "), 80)
		lines = append(lines, fmt.Sprintf("  %s [%s] %s", m.CreatedAt.Local().Format("01-02 15:04"), m.Role, content))
	}
	return strings.Join(lines, "\n")
}

// shorten 保留前 n 个字符。
func shorten(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func (a *app) View() string {
	if !a.ready {
		return "Loading..."
	}
	title := titleStyle.Render("Gemini Chat")
	if a.me != nil {
		title += mutedStyle.Render("  " + a.me.User.Subject)
	}

	status := a.status
	if err := a.session.View().LastError(); err != nil && status == "" {
		status = errorStyle.Render("Failed to send message: " + err.Error())
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		a.viewport.View(),
		status,
		a.input.View(),
	)
}
