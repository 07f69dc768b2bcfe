package telegram

import "context"

// PeerKind classifies a resolved peer.
type PeerKind int

const (
	PeerUser PeerKind = iota
	PeerChat
	PeerChannel
)

// Peer is a confirmed, sendable destination. ID is the marked form
// (-100xxxxxxxxxx for channels) so it round-trips through stored chat
// references unchanged.
type Peer struct {
	ID         int64
	AccessHash int64
	Kind       PeerKind
	Title      string
	Username   string
}

// Account identifies the logged-in user of a session.
type Account struct {
	ID       int64
	Username string
	Phone    string
}

// SentDocument is the wire-level result of a user-mode upload.
type SentDocument struct {
	ChatID     int64
	MessageID  int
	DocID      int64
	AccessHash int64
	Size       int64
}

// mtproto is the narrow wire surface the session transport needs. The real
// implementation is backed by gotd; tests substitute a fake.
type mtproto interface {
	// Connect establishes the long-lived session. Called exactly once per
	// Start; must fail if the stored session is not authorized.
	Connect(ctx context.Context) error
	Close() error

	Self(ctx context.Context) (*Account, error)

	// LookupUsername resolves a public @handle (without the @).
	LookupUsername(ctx context.Context, username string) (*Peer, error)
	// LookupID resolves a marked numeric id against the account's dialogs.
	LookupID(ctx context.Context, id int64) (*Peer, error)
	// Join joins a chat by @handle or invite link.
	Join(ctx context.Context, target string) error

	SendDocument(ctx context.Context, peer *Peer, spoolPath, filename, contentType string) (*SentDocument, error)

	// FetchMessageDocument downloads the document attached to a specific
	// message into dst.
	FetchMessageDocument(ctx context.Context, chatID int64, messageID int, dst string) error
	// FetchDocument downloads a document by its raw location into dst.
	FetchDocument(ctx context.Context, docID, accessHash int64, dst string) error
}
