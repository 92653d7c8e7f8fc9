package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	ModeGateway = "chat-gateway"
	ModeStatus  = "status-service"
)

// isKnownMode checks if the provided mode name is known.
func isKnownMode(s string) (string, bool) {
	switch s {
	case ModeGateway, "gateway", "chat":
		return ModeGateway, true
	case ModeStatus, "status":
		return ModeStatus, true
	default:
		return "", false
	}
}

// ParseMode supports:
//
//	--mode=<value>
//	<value> (subcommand shorthand), e.g., `chat-gateway --port=3003`
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var out []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--mode=") {
			mode = strings.TrimPrefix(arg, "--mode=")
			continue
		}

		if mode == "" {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return "", out, nil
	}

	if m, ok := isKnownMode(mode); ok {
		mode = m
	}

	return mode, out, nil
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, "\033[36m") // switch the color to cyan

	fmt.Fprintln(w, `Usage:
  ./delivery-chat --mode=<service> [flags]

Services (modes):
  chat-gateway      WebSocket + HTTP gateway for order chat and queue snapshots
  status-service    HTTP API driving the order status state machine

Examples:
  ./delivery-chat --mode=chat-gateway --port=3003
  ./delivery-chat --mode=status-service --port=3004`)

	fmt.Fprint(w, "\033[0m") // switch back to normal
}

func AttachUsage(fs *flag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ./delivery-chat --mode=%s [flags]\n", mode)
		fs.PrintDefaults()
	}
}
