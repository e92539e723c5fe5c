// ABOUTME: In-memory surface host used by tests and headless operation
// ABOUTME: Records every printed line and can replay user events synchronously

package surface

import (
	"fmt"
	"sync"
)

// Line is a single recorded surface line.
type Line struct {
	Kind   string // "peer", "self", "info"
	Sender string
	Text   string
}

// MemorySurface records printed lines for later inspection.
type MemorySurface struct {
	mu    sync.Mutex
	id    string
	title string
	lines []Line
}

func (s *MemorySurface) ID() string { return s.id }

func (s *MemorySurface) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

// Title returns the current buffer title.
func (s *MemorySurface) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *MemorySurface) PeerLine(sender, text string) {
	s.append(Line{Kind: "peer", Sender: sender, Text: text})
}

func (s *MemorySurface) SelfLine(sender, text string) {
	s.append(Line{Kind: "self", Sender: sender, Text: text})
}

func (s *MemorySurface) Info(text string) {
	s.append(Line{Kind: "info", Text: text})
}

func (s *MemorySurface) append(line Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

// Lines returns a copy of all recorded lines.
func (s *MemorySurface) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Line(nil), s.lines...)
}

// MemoryHost is a Host implementation backed by in-memory surfaces.
type MemoryHost struct {
	mu       sync.Mutex
	surfaces map[string]*MemorySurface
	logLines []string
	events   Events
}

// NewMemoryHost creates an empty MemoryHost.
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{surfaces: make(map[string]*MemorySurface)}
}

func (h *MemoryHost) Open(id, title string, display bool) Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.surfaces[id]; ok {
		s.SetTitle(title)
		return s
	}
	s := &MemorySurface{id: id, title: title}
	h.surfaces[id] = s
	return s
}

func (h *MemoryHost) SetEvents(events Events) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = events
}

func (h *MemoryHost) Log(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logLines = append(h.logLines, text)
}

// Logf formats and records a session-level log line.
func (h *MemoryHost) Logf(format string, args ...any) {
	h.Log(fmt.Sprintf(format, args...))
}

// Surface returns the surface opened under id, or nil.
func (h *MemoryHost) Surface(id string) *MemorySurface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.surfaces[id]
}

// SurfaceCount returns the number of open surfaces.
func (h *MemoryHost) SurfaceCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.surfaces)
}

// LogLines returns a copy of the session-level log.
func (h *MemoryHost) LogLines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.logLines...)
}

// SubmitInput simulates the user typing a line on a surface.
func (h *MemoryHost) SubmitInput(surfaceID, text string) {
	h.mu.Lock()
	events := h.events
	h.mu.Unlock()
	if events != nil {
		events.InputSubmitted(surfaceID, text)
	}
}

// CloseSurface simulates the user closing a surface.
func (h *MemoryHost) CloseSurface(surfaceID string) {
	h.mu.Lock()
	delete(h.surfaces, surfaceID)
	events := h.events
	h.mu.Unlock()
	if events != nil {
		events.SurfaceClosed(surfaceID)
	}
}
