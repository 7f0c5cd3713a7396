// Package interactive provides the interactive command-line interface
// for mixtcp-send.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/gyrusdentatus/nym/pkg/transport"
)

// DefaultSendTimeout bounds one send command, reconnection included.
const DefaultSendTimeout = 2 * time.Minute

// Shell handles interactive mode for mixtcp-send.
type Shell struct {
	sender      transport.Sender
	sendTimeout time.Duration
	rl          *readline.Instance
}

// New creates a shell sending through sender.
func New(sender transport.Sender) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "send> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Shell{
		sender:      sender,
		sendTimeout: DefaultSendTimeout,
		rl:          rl,
	}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp(s.rl.Stdout())

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		if quit := s.Execute(ctx, line, s.rl.Stdout()); quit {
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line, writing output to w. It reports
// whether the shell should exit.
func (s *Shell) Execute(ctx context.Context, line string, w io.Writer) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	cmd, rest, _ := strings.Cut(input, " ")
	switch strings.ToLower(cmd) {
	case "help", "?":
		s.printHelp(w)

	case "send", "s":
		s.cmdSend(ctx, w, strings.TrimSpace(rest))

	case "broadcast", "b":
		s.cmdBroadcast(ctx, w, strings.TrimSpace(rest))

	case "peers", "p":
		s.cmdPeers(w)

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp(w io.Writer) {
	fmt.Fprintln(w, `
Commands:
  send <ip:port> <text>   - Send text to one endpoint
  broadcast <text>        - Send text to every endpoint
  peers                   - List routed endpoints
  help                    - Show this help
  quit                    - Exit`)
}

func (s *Shell) cmdSend(ctx context.Context, w io.Writer, args string) {
	addr, text, ok := strings.Cut(args, " ")
	if !ok || addr == "" || text == "" {
		fmt.Fprintln(w, "Usage: send <ip:port> <text>")
		return
	}

	ep, err := transport.ParseEndpoint(addr)
	if err != nil {
		fmt.Fprintf(w, "Invalid endpoint: %v\n", err)
		return
	}

	s.send(ctx, w, ep, []byte(text))
}

func (s *Shell) cmdBroadcast(ctx context.Context, w io.Writer, text string) {
	if text == "" {
		fmt.Fprintln(w, "Usage: broadcast <text>")
		return
	}

	eps := s.sender.Endpoints()
	if len(eps) == 0 {
		fmt.Fprintln(w, "No endpoints")
		return
	}
	for _, ep := range eps {
		s.send(ctx, w, ep, []byte(text))
	}
}

func (s *Shell) send(ctx context.Context, w io.Writer, ep transport.Endpoint, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	start := time.Now()
	err := s.sender.Send(ctx, ep, payload)
	switch {
	case err == nil:
		fmt.Fprintf(w, "%s: sent %d bytes in %s\n", ep, len(payload), time.Since(start).Round(time.Microsecond))
	case errors.Is(err, transport.ErrUnknownDestination):
		fmt.Fprintf(w, "%s: unknown destination\n", ep)
	case errors.Is(err, transport.ErrDestinationUnreachable):
		fmt.Fprintf(w, "%s: unreachable, removed from peers (%v)\n", ep, err)
	default:
		fmt.Fprintf(w, "%s: send failed: %v\n", ep, err)
	}
}

func (s *Shell) cmdPeers(w io.Writer) {
	eps := s.sender.Endpoints()
	if len(eps) == 0 {
		fmt.Fprintln(w, "No endpoints")
		return
	}
	fmt.Fprintf(w, "%d endpoint(s):\n", len(eps))
	for _, ep := range eps {
		fmt.Fprintf(w, "  %s\n", ep)
	}
}
