package tui

import (
	"github.com/atotto/clipboard"
	"github.com/pkg/errors"
)

// SystemClipboard 写入系统剪贴板
type SystemClipboard struct{}

// Available 判断系统剪贴板是否可用
func (SystemClipboard) Available() bool {
	return !clipboard.Unsupported
}

func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return errors.New("no clipboard utility found")
	}
	return clipboard.WriteAll(text)
}
