package telegram

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// PeerHandle is a resolved destination. When Resolved is false every
// strategy failed and Raw is passed through as a best-effort handle: sends
// with it will fail downstream with a clearer error, but the resolver is
// deliberately not the single point of rejection for identifiers it cannot
// classify.
type PeerHandle struct {
	Peer     *Peer
	Raw      string
	Resolved bool
}

// PeerResolver turns a configured destination identifier (numeric id,
// numeric-looking string, @handle, or invite link) into a sendable peer.
// Resolution is expected once per session start; confirmed numeric ids
// supersede the string form for the rest of the session.
type PeerResolver struct {
	mt  mtproto
	log zerolog.Logger
}

func NewPeerResolver(mt mtproto, log zerolog.Logger) *PeerResolver {
	return &PeerResolver{mt: mt, log: log}
}

// Resolve applies the resolution strategies in order, first success wins:
// direct lookup, integer retry for numeric-looking strings, join-then-retry
// for handles and invite links, and finally raw passthrough.
func (r *PeerResolver) Resolve(ctx context.Context, identifier string) (PeerHandle, error) {
	ident := strings.TrimSpace(identifier)
	if ident == "" {
		return PeerHandle{}, ErrResolution
	}

	// Direct lookup as given.
	if peer, err := r.lookup(ctx, ident); err == nil {
		return PeerHandle{Peer: peer, Raw: ident, Resolved: true}, nil
	}

	// Numeric-looking strings retry as an integer id.
	if id, ok := parseNumeric(ident); ok {
		if peer, err := r.mt.LookupID(ctx, id); err == nil {
			return PeerHandle{Peer: peer, Raw: ident, Resolved: true}, nil
		}
	}

	// Handles and invite links get one join attempt, then one retry.
	if isJoinable(ident) {
		if err := r.mt.Join(ctx, ident); err != nil {
			r.log.Warn().Err(err).Str("chat", ident).Msg("join attempt failed")
		} else if peer, err := r.lookup(ctx, ident); err == nil {
			return PeerHandle{Peer: peer, Raw: ident, Resolved: true}, nil
		}
	}

	// Soft fail: hand back the raw identifier so the send path can produce
	// the more specific error. Observable through Resolved and the log.
	r.log.Warn().Str("chat", ident).Msg("destination did not resolve, passing through raw identifier")
	return PeerHandle{Raw: ident, Resolved: false}, nil
}

// lookup attempts a single direct resolution of the identifier as given.
func (r *PeerResolver) lookup(ctx context.Context, ident string) (*Peer, error) {
	if id, ok := parseNumeric(ident); ok {
		return r.mt.LookupID(ctx, id)
	}
	if username, ok := publicUsername(ident); ok {
		return r.mt.LookupUsername(ctx, username)
	}
	// Invite-only links carry no resolvable name before joining.
	return nil, ErrResolution
}

// parseNumeric reports whether s is an integer id, optionally negative.
func parseNumeric(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// publicUsername extracts a username from "@name" or a public t.me link.
func publicUsername(s string) (string, bool) {
	switch {
	case strings.HasPrefix(s, "@"):
		return strings.TrimPrefix(s, "@"), true
	case strings.HasPrefix(s, "https://t.me/"):
		rest := strings.TrimPrefix(s, "https://t.me/")
		rest = strings.TrimSuffix(rest, "/")
		if rest == "" || strings.HasPrefix(rest, "+") || strings.HasPrefix(rest, "joinchat/") {
			return "", false
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		return rest, true
	}
	return "", false
}

// isJoinable reports whether the identifier is a handle or invite-style link
// worth a join attempt.
func isJoinable(s string) bool {
	return strings.HasPrefix(s, "@") ||
		strings.HasPrefix(s, "https://t.me/") ||
		strings.Contains(s, "joinchat") ||
		strings.HasPrefix(s, "tg://join")
}
