package hooking

import (
	"fmt"
	"log"
)

// A LogHook is a hook that is responsible for recording information from the
// paging components as log lines.
type LogHook struct {
	*log.Logger
}

// NewLogHook creates a LogHook that writes through the given logger.
func NewLogHook(logger *log.Logger) *LogHook {
	return &LogHook{Logger: logger}
}

// Func writes one line per event.
func (h *LogHook) Func(ctx HookCtx) {
	domain := "-"
	if named, ok := ctx.Domain.(interface{ Name() string }); ok {
		domain = named.Name()
	}

	line := fmt.Sprintf("%s %s %v", domain, ctx.Pos.Name, ctx.Item)
	if ctx.Detail != nil {
		line += fmt.Sprintf(" %v", ctx.Detail)
	}

	h.Println(line)
}
