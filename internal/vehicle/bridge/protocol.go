package bridge

import (
	"strconv"
	"strings"
)

// Replies and notifications written by the bridge on stdout.
const (
	lineReady = "ready"
	lineOK    = "ok"
	lineErr   = "err"
)

// Commands written to the bridge on stdin, one per line.
const (
	cmdExtPos  = "extpos"
	cmdParam   = "param"
	cmdTakeoff = "takeoff"
	cmdGoTo    = "goto"
	cmdLand    = "land"
	cmdStop    = "stop"
	cmdQuit    = "quit"
)

type reply struct {
	ok     bool
	reason string
}

// formatCommand builds a command line from its name and arguments. Numbers are
// written in their shortest exact form.
func formatCommand(name string, args ...any) string {
	var sb strings.Builder
	sb.WriteString(name)

	for _, arg := range args {
		sb.WriteByte(' ')

		switch v := arg.(type) {
		case float64:
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		case bool:
			if v {
				sb.WriteString("abs")
			} else {
				sb.WriteString("rel")
			}
		case string:
			sb.WriteString(v)
		default:
			panic("bridge: unsupported argument type")
		}
	}

	sb.WriteByte('\n')
	return sb.String()
}

// parseReply interprets a stdout line. It returns false for lines that are not
// command replies.
func parseReply(line string) (reply, bool) {
	switch {
	case line == lineOK:
		return reply{ok: true}, true
	case line == lineErr:
		return reply{reason: "unknown error"}, true
	case strings.HasPrefix(line, lineErr+" "):
		return reply{reason: strings.TrimSpace(strings.TrimPrefix(line, lineErr+" "))}, true
	default:
		return reply{}, false
	}
}
