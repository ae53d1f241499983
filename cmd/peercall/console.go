package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"peercall/internal/domain"
	"peercall/internal/session"
)

// console renders session notifications as text lines and turns typed
// commands into session intents.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

var _ domain.Observer = (*console)(nil)

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *console) ParticipantAdded(name string, self bool) {
	if self {
		c.printf("logged in as %s", name)
		return
	}
	c.printf("+ %s", name)
}

func (c *console) ParticipantRemoved(name string) { c.printf("- %s", name) }

func (c *console) SelectionChanged(name string, selected bool) {
	if selected {
		c.printf("[x] %s", name)
		return
	}
	c.printf("[ ] %s", name)
}

func (c *console) CallStateChanged(state string) { c.printf("call: %s", state) }

func (c *console) CallFailed(err error) {
	var mediaErr *domain.MediaAcquisitionError
	if errors.As(err, &mediaErr) {
		c.printf("call failed: could not open camera or microphone: %v", mediaErr.Err)
		return
	}
	c.printf("call failed: %v", err)
}

func (c *console) RelayClosed(err error) {
	if err != nil {
		c.printf("disconnected: %v", err)
	} else {
		c.printf("disconnected")
	}
	c.printf("type 'login <name>' to log in again")
}

// handle runs one command line. It reports whether the user asked to quit.
func (c *console) handle(ctx context.Context, s *session.Session, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "login":
		if len(args) != 1 {
			c.printf("usage: login <name>")
			return false
		}
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.Login(dialCtx, args[0]); err != nil {
			c.printf("login failed: %v", err)
		}

	case "list":
		for _, p := range s.Participants() {
			mark := " "
			if p.Selected {
				mark = "*"
			}
			suffix := ""
			if p.Self {
				suffix = " (you)"
			}
			c.printf("%s %s%s", mark, p.Name, suffix)
		}

	case "toggle":
		if len(args) != 1 {
			c.printf("usage: toggle <name>")
			return false
		}
		if _, err := s.Toggle(args[0]); err != nil {
			c.printf("toggle %s: %v", args[0], err)
		}

	case "call":
		if err := s.InitiateCall(ctx); err != nil {
			switch {
			case errors.Is(err, domain.ErrNoTargets):
				c.printf("select someone first with 'toggle <name>'")
			case errors.Is(err, domain.ErrCallInProgress):
				c.printf("a call is already in progress, 'hangup' first")
			case errors.Is(err, domain.ErrNotConnected):
				c.printf("not logged in")
			}
		}

	case "hangup":
		s.Hangup()

	case "logout":
		s.Logout()

	case "quit", "exit":
		return true

	case "help":
		c.printf("commands: login <name>, list, toggle <name>, call, hangup, logout, quit")

	default:
		c.printf("unknown command %q, try 'help'", cmd)
	}
	return false
}
