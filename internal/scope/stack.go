package scope

import (
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 48

// machineryPrefixes are function-name prefixes hidden from friendly stacks:
// the dispatch walk, the reactor wiring and the Go runtime.
var machineryPrefixes = []string{
	"github.com/zjrosen/reactor/internal/scope.",
	"github.com/zjrosen/reactor/internal/reactor.(*Listener)",
	"github.com/zjrosen/reactor/internal/reactor.(*Reactor).handle",
	"github.com/zjrosen/reactor/internal/reactor.(*Reactor).internal",
	"github.com/zjrosen/reactor/internal/reactor.(*Reactor).reply",
	"github.com/zjrosen/reactor/internal/reactor.(*Subscription)",
	"github.com/zjrosen/reactor/internal/reactor.invoke",
	"runtime.",
	"testing.",
}

// FriendlyStack returns the caller's stack as "function (file:line)" lines
// with dispatch-machinery frames removed, innermost first. skip counts
// additional frames above FriendlyStack's caller to drop.
func FriendlyStack(skip int) []string {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2+skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	out := make([]string, 0, n)
	for {
		frame, more := frames.Next()
		if !isMachinery(frame.Function) {
			out = append(out, fmt.Sprintf("%s (%s:%d)", frame.Function, trimPath(frame.File), frame.Line))
		}
		if !more {
			break
		}
	}
	return out
}

func isMachinery(fn string) bool {
	if fn == "" {
		return true
	}
	for _, p := range machineryPrefixes {
		if strings.HasPrefix(fn, p) {
			return true
		}
	}
	return false
}

// trimPath keeps the last two path elements of file.
func trimPath(file string) string {
	idx := strings.LastIndexByte(file, '/')
	if idx < 0 {
		return file
	}
	if prev := strings.LastIndexByte(file[:idx], '/'); prev >= 0 {
		return file[prev+1:]
	}
	return file
}
