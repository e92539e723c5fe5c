// ABOUTME: Console chat frontend: colorized surfaces on stdout plus a
// ABOUTME: line-oriented command REPL bound to the session

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/chatbridge/webex-gateway/internal/session"
	"github.com/chatbridge/webex-gateway/internal/surface"
)

// consoleSurface prints conversation lines to stdout, prefixed with
// the conversation title.
type consoleSurface struct {
	host  *consoleHost
	id    string
	title string
}

func (s *consoleSurface) ID() string { return s.id }

func (s *consoleSurface) SetTitle(title string) {
	s.host.mu.Lock()
	s.title = title
	s.host.mu.Unlock()
}

func (s *consoleSurface) PeerLine(sender, text string) {
	s.host.printLine(s, color.GreenString(sender), text)
}

func (s *consoleSurface) SelfLine(sender, text string) {
	s.host.printLine(s, color.CyanString(sender), text)
}

func (s *consoleSurface) Info(text string) {
	s.host.printLine(s, color.YellowString("--"), text)
}

// consoleHost is a surface.Host over stdout. It keeps one "current"
// conversation that plain input lines are sent to.
type consoleHost struct {
	mu       sync.Mutex
	surfaces map[string]*consoleSurface
	current  *consoleSurface
	events   surface.Events
}

func newConsoleHost() *consoleHost {
	return &consoleHost{surfaces: make(map[string]*consoleSurface)}
}

func (h *consoleHost) Open(id, title string, display bool) surface.Surface {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.surfaces[id]
	if !ok {
		s = &consoleSurface{host: h, id: id, title: title}
		h.surfaces[id] = s
	}
	s.title = title
	if display || h.current == nil {
		h.current = s
		fmt.Printf("%s now talking in %s\n", color.HiBlackString("::"), color.New(color.Bold).Sprint(title))
	}
	return s
}

func (h *consoleHost) SetEvents(events surface.Events) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = events
}

func (h *consoleHost) Log(text string) {
	fmt.Printf("%s %s\n", color.HiBlackString("::"), text)
}

func (h *consoleHost) printLine(s *consoleSurface, sender, text string) {
	h.mu.Lock()
	title := s.title
	h.mu.Unlock()

	prefix := color.HiBlackString("[" + title + "]")
	for _, line := range strings.Split(text, "\n") {
		fmt.Printf("%s %s %s\n", prefix, sender, line)
	}
}

// submit routes a typed line to the current conversation.
func (h *consoleHost) submit(text string) {
	h.mu.Lock()
	current := h.current
	events := h.events
	h.mu.Unlock()

	if current == nil {
		h.Log("no conversation open, try /join or /msg")
		return
	}
	if events != nil {
		events.InputSubmitted(current.id, text)
	}
}

// closeCurrent closes the current conversation and falls back to any
// other open one.
func (h *consoleHost) closeCurrent() {
	h.mu.Lock()
	current := h.current
	events := h.events
	if current != nil {
		delete(h.surfaces, current.id)
		h.current = nil
		for _, s := range h.surfaces {
			h.current = s
			break
		}
	}
	h.mu.Unlock()

	if current == nil {
		h.Log("no conversation open")
		return
	}
	if events != nil {
		events.SurfaceClosed(current.id)
	}
}

// switchTo makes the conversation whose title contains name current.
func (h *consoleHost) switchTo(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.surfaces {
		if strings.Contains(strings.ToLower(s.title), strings.ToLower(name)) {
			h.current = s
			fmt.Printf("%s now talking in %s\n", color.HiBlackString("::"), color.New(color.Bold).Sprint(s.title))
			return
		}
	}
	fmt.Printf("%s no open conversation matching %s\n", color.HiBlackString("::"), name)
}

const consoleHelp = `Commands:
  /msg <email>      open a direct chat (bare names get the default domain)
  /join <name>      join the first room whose title matches
  /rooms [name]     list rooms
  /people <name>    search the directory
  /switch <name>    switch the current conversation
  /close            close the current conversation
  /quit             disconnect and exit
Anything else is sent to the current conversation.`

// runConsole reads stdin until /quit, EOF, or context cancellation.
func runConsole(ctx context.Context, sess *session.Session, host *consoleHost) error {
	host.Log("type /help for commands")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := dispatch(ctx, sess, host, line); quit {
				return nil
			}
		}
	}
}

// dispatch handles one input line and reports whether to exit.
func dispatch(ctx context.Context, sess *session.Session, host *consoleHost, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if !strings.HasPrefix(line, "/") {
		host.submit(line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit":
		return true
	case "/help":
		host.Log(consoleHelp)
	case "/msg":
		if arg == "" {
			host.Log("usage: /msg <email>")
			return false
		}
		sess.OpenDirect(ctx, arg)
	case "/join":
		if arg == "" {
			host.Log("usage: /join <name>")
			return false
		}
		sess.JoinRoom(ctx, arg)
	case "/rooms":
		sess.ListRooms(ctx, arg)
	case "/people":
		if arg == "" {
			host.Log("usage: /people <name>")
			return false
		}
		sess.SearchPeople(ctx, arg)
	case "/switch":
		if arg == "" {
			host.Log("usage: /switch <name>")
			return false
		}
		host.switchTo(arg)
	case "/close":
		host.closeCurrent()
	default:
		host.Log(fmt.Sprintf("unknown command %s, try /help", cmd))
	}
	return false
}
