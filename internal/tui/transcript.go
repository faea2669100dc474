package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/relaychat/internal/model/chat"
	"github.com/zhouzirui/relaychat/internal/session"
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
)

const (
	labelUser = "You"
	labelBot  = "Assistant"
)

// RenderMessage 渲染单条消息及其标题行
func RenderMessage(m chat.Message, st session.State, f Formatter, width int) string {
	var b strings.Builder

	header := boldStyle.Render(labelUser)
	if !m.IsUser() {
		header = accentStyle.Render(labelBot)
	}
	header += " " + dimStyle.Render(m.Timestamp.Local().Format("15:04"))
	switch {
	case m.ID == st.RetryingID:
		header += " " + dimStyle.Render("retrying...")
	case m.ID == st.CopiedID:
		header += " " + dimStyle.Render("copied")
	}
	b.WriteString(header)
	b.WriteString("\n")

	switch {
	case m.Error:
		body := m.Text
		if m.Retryable {
			body += "\n" + dimStyle.Render("(ctrl+r to retry)")
		}
		b.WriteString(errorStyle.Render(body))
	case m.IsUser():
		b.WriteString(m.Text)
	default:
		out, err := f.Format(m.Text, width)
		if err != nil {
			out = m.Text
		}
		b.WriteString(out)
	}
	return b.String()
}

// RenderTranscript 渲染整个对话
func RenderTranscript(st session.State, f Formatter, width int) string {
	parts := make([]string, 0, len(st.Messages)+1)
	for _, m := range st.Messages {
		parts = append(parts, RenderMessage(m, st, f, width))
	}
	if st.Typing && st.RetryingID == "" {
		parts = append(parts, accentStyle.Render(labelBot)+"\n"+dimStyle.Render("typing..."))
	}
	return strings.Join(parts, "\n\n")
}
