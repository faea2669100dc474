package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/zhouzirui/relaychat/internal/model/chat"
	"github.com/zhouzirui/relaychat/internal/session"
)

// UI 配置常量
const (
	defaultWidth         = 100
	defaultHeight        = 30
	inputHeightReserved  = 2
	statusHeightReserved = 3
	minContentHeight     = 5
)

// Notifier 把会话变化回调转成程序可等待的 channel。
// 信号会合并，程序总是读取最新快照。
type Notifier struct {
	ch chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Listener 传给 session.WithListener
func (n *Notifier) Listener(session.State) {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// ChatProgram 封装聊天 TUI 程序
type ChatProgram struct {
	model chatModel
}

// NewChatProgram 创建 TUI 程序，notifier 必须已注册为 s 的监听器。
func NewChatProgram(s *session.Session, notifier *Notifier, f Formatter, server string) *ChatProgram {
	return &ChatProgram{model: initialModel(s, notifier, f, server)}
}

// Run 启动聊天 TUI 程序
func (p *ChatProgram) Run(ctx context.Context) error {
	program := tea.NewProgram(p.model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type chatModel struct {
	session   *session.Session
	notifier  *Notifier
	formatter Formatter
	server    string

	input   textinput.Model
	view    viewport.Model
	spinner spinner.Model

	state  session.State
	notice string

	width  int
	height int
}

type (
	changedMsg struct{}
	opDoneMsg  struct {
		op  string
		err error
	}
)

func initialModel(s *session.Session, notifier *Notifier, f Formatter, server string) chatModel {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Focus()
	input.CharLimit = chat.MaxMessageLength
	input.Width = defaultWidth - 3
	input.Prompt = ""

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = promptStyle

	return chatModel{
		session:   s,
		notifier:  notifier,
		formatter: f,
		server:    server,
		input:     input,
		view:      viewport.New(defaultWidth, defaultHeight),
		spinner:   sp,
		width:     defaultWidth,
		height:    defaultHeight,
	}
}

func (m chatModel) Init() tea.Cmd {
	s := m.session
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.waitForChange(),
		func() tea.Msg {
			s.EnsureWelcome()
			return changedMsg{}
		},
	)
}

func (m chatModel) waitForChange() tea.Cmd {
	ch := m.notifier.ch
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if handled, cmd := m.handleKey(msg); handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		contentHeight := msg.Height - inputHeightReserved - statusHeightReserved
		if contentHeight < minContentHeight {
			contentHeight = minContentHeight
		}
		m.view.Width = msg.Width
		m.view.Height = contentHeight
		m.input.Width = msg.Width - 3
		m.refresh()

	case changedMsg:
		m.state = m.session.Snapshot()
		m.refresh()
		cmds = append(cmds, m.waitForChange())

	case opDoneMsg:
		m.notice = noticeFor(msg.op, msg.err)
		m.state = m.session.Snapshot()
		m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if after := m.input.Value(); after != before {
		m.session.SetInput(after)
	}

	return m, tea.Batch(cmds...)
}

// handleKey 返回按键是否已被处理，未处理的交给输入框
func (m *chatModel) handleKey(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return true, tea.Quit

	case tea.KeyEnter:
		text := m.input.Value()
		if strings.TrimSpace(text) == "" || m.state.Typing {
			return true, nil
		}
		m.input.Reset()
		m.notice = ""
		s := m.session
		return true, func() tea.Msg {
			return opDoneMsg{op: "send", err: s.Send(context.Background(), text)}
		}

	case tea.KeyCtrlR:
		target, ok := m.state.LastRetryable()
		if !ok {
			m.notice = "nothing to retry"
			return true, nil
		}
		s := m.session
		return true, func() tea.Msg {
			return opDoneMsg{op: "retry", err: s.Retry(context.Background(), target.ID)}
		}

	case tea.KeyCtrlY:
		target, ok := m.state.LastBot()
		if !ok {
			return true, nil
		}
		s := m.session
		return true, func() tea.Msg {
			return opDoneMsg{op: "copy", err: s.Copy(target.Text, target.ID)}
		}

	case tea.KeyUp:
		m.view.ScrollUp(1)
		return true, nil
	case tea.KeyDown:
		m.view.ScrollDown(1)
		return true, nil
	case tea.KeyPgUp:
		m.view.PageUp()
		return true, nil
	case tea.KeyPgDown:
		m.view.PageDown()
		return true, nil
	}
	return false, nil
}

func noticeFor(op string, err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, session.ErrBusy):
		return "waiting for the current reply"
	case errors.Is(err, session.ErrEmptyMessage):
		return ""
	default:
		return fmt.Sprintf("%s: %v", op, err)
	}
}

func (m *chatModel) refresh() {
	m.view.SetContent(RenderTranscript(m.state, m.formatter, m.view.Width))
	m.view.GotoBottom()
}

func (m chatModel) View() string {
	status := dimStyle.Render(m.server)
	if m.state.Typing {
		status += " " + m.spinner.View()
	}
	if m.notice != "" {
		status += " " + errorStyle.Render(m.notice)
	}

	inputView := promptStyle.Render("> ") + m.input.View()
	if m.state.Typing {
		inputView = dimStyle.Render("> waiting for reply...")
	}

	help := dimStyle.Render("enter send • ctrl+r retry • ctrl+y copy • ↑↓ scroll • esc quit")

	return lipgloss.JoinVertical(lipgloss.Left, status, "", m.view.View(), "", inputView, help)
}
