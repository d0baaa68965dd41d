package quiz

// sessionChangedMsg is sent when the session reports a state change.
type sessionChangedMsg struct{}

// sessionClosedMsg is sent when the screen's context ends and the change
// listener stops.
type sessionClosedMsg struct{}
