package tui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
)

// Formatter 把消息文本渲染为不超过 width 列的终端输出
type Formatter interface {
	Format(text string, width int) (string, error)
}

// GlamourFormatter 渲染 Markdown，按宽度缓存渲染器。
type GlamourFormatter struct {
	style string

	mu        sync.Mutex
	renderers map[int]*glamour.TermRenderer
}

// NewGlamourFormatter 使用 glamour 内置样式，如 "dark"、"light"、"notty"
func NewGlamourFormatter(style string) *GlamourFormatter {
	if style == "" {
		style = "dark"
	}
	return &GlamourFormatter{style: style, renderers: map[int]*glamour.TermRenderer{}}
}

func (f *GlamourFormatter) Format(text string, width int) (string, error) {
	r, err := f.renderer(width)
	if err != nil {
		return "", err
	}
	out, err := r.Render(text)
	if err != nil {
		return "", errors.Wrap(err, "render markdown")
	}
	return strings.Trim(out, "\n"), nil
}

func (f *GlamourFormatter) renderer(width int) (*glamour.TermRenderer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.renderers[width]; ok {
		return r, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(f.style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create markdown renderer")
	}
	f.renderers[width] = r
	return r, nil
}

// PlainFormatter 只折行，不解析 Markdown
type PlainFormatter struct{}

func (PlainFormatter) Format(text string, width int) (string, error) {
	if width <= 0 {
		return text, nil
	}
	return lipgloss.NewStyle().Width(width).Render(text), nil
}
