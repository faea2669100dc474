package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/zhouzirui/relaychat/internal/session"
)

// REPL 命令
const (
	cmdQuit  = "/quit"
	cmdRetry = "/retry"
	cmdCopy  = "/copy"
	cmdHelp  = "/help"
)

// REPL 标准输出不是终端时使用的行模式界面
type REPL struct {
	session   *session.Session
	formatter Formatter
	width     int

	in  io.Reader
	out io.Writer

	// printed 记录每条消息最后输出的文本
	printed map[string]string
}

func NewREPL(s *session.Session, f Formatter, in io.Reader, out io.Writer) *REPL {
	return &REPL{
		session:   s,
		formatter: f,
		width:     defaultWidth,
		in:        in,
		out:       out,
		printed:   map[string]string{},
	}
}

// Run 逐行读取命令或消息，直到 EOF、/quit 或 ctx 结束。
func (r *REPL) Run(ctx context.Context) error {
	r.session.EnsureWelcome()
	r.flush()

	scanner := bufio.NewScanner(r.in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return errors.Wrap(scanner.Err(), "read input")
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case cmdQuit:
			return nil
		case cmdHelp:
			fmt.Fprintln(r.out, dimStyle.Render("commands: /retry /copy /quit"))
			continue
		}

		if err := r.dispatch(ctx, line); err != nil {
			fmt.Fprintln(r.out, errorStyle.Render(err.Error()))
		}
		r.flush()
	}
}

func (r *REPL) dispatch(ctx context.Context, line string) error {
	st := r.session.Snapshot()

	switch line {
	case cmdRetry:
		target, ok := st.LastRetryable()
		if !ok {
			return errors.New("nothing to retry")
		}
		return r.session.Retry(ctx, target.ID)

	case cmdCopy:
		target, ok := st.LastBot()
		if !ok {
			return errors.New("nothing to copy")
		}
		if err := r.session.Copy(target.Text, target.ID); err != nil {
			return err
		}
		fmt.Fprintln(r.out, dimStyle.Render("copied"))
		return nil
	}

	return r.session.Send(ctx, line)
}

// flush 输出新增或文本有变化的消息
func (r *REPL) flush() {
	st := r.session.Snapshot()
	// 已复制标记是临时的，不重新输出
	st.CopiedID = ""

	for _, m := range st.Messages {
		if m.IsUser() {
			r.printed[m.ID] = m.Text
			continue
		}
		if text, ok := r.printed[m.ID]; ok && text == m.Text {
			continue
		}
		fmt.Fprintln(r.out, RenderMessage(m, st, r.formatter, r.width))
		fmt.Fprintln(r.out)
		r.printed[m.ID] = m.Text
	}
}
