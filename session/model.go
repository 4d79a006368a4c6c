package session

// Session is the per-browser state of the login handshake.
//
// Nonce holds the pending challenge (empty when none has been issued) and
// User is set only after a proof has been accepted. Both are plain strings so
// the watermark comparison stays an exact string match.
type Session struct {
	SessionID string
	Nonce     string
	User      string

	CreatedAt int64
	ExpiresAt int64
}

// Authenticated reports whether a proof was accepted for this session.
func (s *Session) Authenticated() bool {
	return s != nil && s.User != ""
}

// Clone returns a copy that can be mutated without affecting s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
