// ABOUTME: Display-surface protocol between the gateway core and its host UI
// ABOUTME: One surface per conversation; hosts deliver input and close events back

package surface

// Surface is a single per-conversation display buffer provided by the
// host. Implementations must tolerate writes after Close.
type Surface interface {
	// ID is the conversation's remote id the surface was opened under.
	ID() string

	// SetTitle updates the human-readable buffer title.
	SetTitle(title string)

	// PeerLine prints a line received from a remote sender, tagged so
	// the host can apply notification/highlight treatment.
	PeerLine(sender, text string)

	// SelfLine prints a locally sent line, tagged to suppress
	// notifications.
	SelfLine(sender, text string)

	// Info prints a conversation-level status or error line.
	Info(text string)
}

// Events receives user actions from the host. The session implements
// this; every method must return normally regardless of internal
// failures.
type Events interface {
	// InputSubmitted is called when the user submits a line of text on
	// a surface.
	InputSubmitted(surfaceID, text string)

	// SurfaceClosed is called when the user closes a surface. The
	// surface handle is invalid afterwards.
	SurfaceClosed(surfaceID string)
}

// Host creates display surfaces on demand and owns a session-level log
// surface.
type Host interface {
	// Open returns the surface registered under id, creating it when
	// absent. When display is true the host should bring the surface
	// to the foreground; autojoined conversations pass false.
	Open(id, title string, display bool) Surface

	// SetEvents registers the receiver for user events. Must be called
	// before any surface is opened.
	SetEvents(events Events)

	// Log prints a line on the session-level log surface.
	Log(text string)
}
