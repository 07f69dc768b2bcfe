package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tgvault/tgvault/internal/config"
	"github.com/tgvault/tgvault/internal/spool"
)

type sessionState int

const (
	stateUnstarted sessionState = iota
	stateStarting
	stateReady
)

// SessionClient stores documents through a single long-lived MTProto user
// session. The session is started lazily on first use; Start is idempotent
// and guarded so concurrent callers block on one initialization instead of
// racing to create duplicate sessions.
type SessionClient struct {
	dest     string
	mt       mtproto
	spooler  *spool.Controller
	resolver *PeerResolver
	log      zerolog.Logger

	mu    sync.Mutex
	state sessionState

	// Destination handle, resolved once per session start. Usernames can be
	// reassigned, so this is never persisted across restarts.
	destHandle *PeerHandle
}

// NewSessionClient builds the user-mode transport. No connection is made
// until Start or the first operation.
func NewSessionClient(cfg *config.Config, spooler *spool.Controller, log zerolog.Logger) *SessionClient {
	log = log.With().Str("transport", "user").Logger()
	mt := newGotdBackend(cfg, log)
	return &SessionClient{
		dest:     cfg.ChatID,
		mt:       mt,
		spooler:  spooler,
		resolver: NewPeerResolver(mt, log),
		log:      log,
	}
}

// newSessionClientForTest wires a fake backend in place of gotd.
func newSessionClientForTest(dest string, mt mtproto, spooler *spool.Controller, log zerolog.Logger) *SessionClient {
	return &SessionClient{
		dest:     dest,
		mt:       mt,
		spooler:  spooler,
		resolver: NewPeerResolver(mt, log),
		log:      log,
	}
}

// Mode reports the transport mode.
func (s *SessionClient) Mode() string { return config.ModeUser }

// Start establishes the session on first call and is a no-op thereafter.
// It also makes a best-effort join of the configured destination when it
// looks like a handle or invite link; join failures are logged and swallowed
// since the account may already be a member or the chat may need manual
// authorization.
func (s *SessionClient) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateReady {
		return nil
	}
	s.state = stateStarting
	if err := s.mt.Connect(ctx); err != nil {
		s.state = stateUnstarted
		return fmt.Errorf("failed to start telegram session: %w", err)
	}

	if isJoinable(s.dest) {
		if err := s.mt.Join(ctx, s.dest); err != nil {
			s.log.Warn().Err(err).Str("chat", s.dest).Msg("auto-join failed, continuing")
		}
	}

	s.state = stateReady
	s.log.Info().Msg("telegram session ready")
	return nil
}

// SendDocument resolves the configured destination and uploads the spooled
// file, all bounded by the caller's deadline.
func (s *SessionClient) SendDocument(ctx context.Context, spoolPath, filename, contentType string) (*StorageReference, error) {
	if err := s.Start(ctx); err != nil {
		return nil, err
	}

	handle, err := s.destination(ctx)
	if err != nil {
		return nil, err
	}
	if !handle.Resolved {
		return nil, &TransportError{
			Op:     "sendDocument",
			Detail: fmt.Sprintf("destination %q is not resolvable; check TG_CHAT_ID and that the account has access", handle.Raw),
		}
	}

	sent, err := s.mt.SendDocument(ctx, handle.Peer, spoolPath, filename, contentType)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: sending %q to %q", ErrTimeout, filename, handle.Raw)
		}
		return nil, transportErr("sendDocument", err)
	}

	chatID := strconv.FormatInt(sent.ChatID, 10)
	messageID := int64(sent.MessageID)
	ref := &StorageReference{
		ExternalID: docToken(sent.DocID, sent.AccessHash),
		Name:       filename,
		Size:       sent.Size,
		ChatID:     &chatID,
		MessageID:  &messageID,
	}
	s.log.Info().Str("chat_id", chatID).Int64("message_id", messageID).Int64("size", ref.Size).Msg("document sent")
	return ref, nil
}

// OpenDownload retrieves a stored document, spooling it locally first. The
// chat/message reference path is preferred whenever the reference carries
// both; the external-id path is the fallback and is subject to Telegram
// file-reference expiry.
func (s *SessionClient) OpenDownload(ctx context.Context, ref StorageReference) (*Download, error) {
	if err := s.Start(ctx); err != nil {
		return nil, err
	}

	dst := s.spooler.TempPath()
	switch {
	case ref.ChatID != nil && ref.MessageID != nil:
		chatID, err := strconv.ParseInt(*ref.ChatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat reference %q: %w", *ref.ChatID, err)
		}
		if err := s.mt.FetchMessageDocument(ctx, chatID, int(*ref.MessageID), dst); err != nil {
			return nil, transportErr("fetch message", err)
		}
	default:
		docID, accessHash, ok := parseDocToken(ref.ExternalID)
		if !ok {
			return nil, fmt.Errorf("%w: reference %q carries no usable retrieval path", ErrNotFound, ref.ExternalID)
		}
		if err := s.mt.FetchDocument(ctx, docID, accessHash, dst); err != nil {
			return nil, transportErr("fetch document", err)
		}
	}

	body, err := spool.OpenRemoving(dst)
	if err != nil {
		return nil, err
	}
	return &Download{Body: body, Name: ref.Name, Size: ref.Size}, nil
}

// Diagnostics reports the logged-in account and the resolved destination.
type Diagnostics struct {
	Account  *Account `json:"me"`
	Chat     *Peer    `json:"chat"`
	PeerUsed string   `json:"peer_used"`
}

// Diagnose resolves the configured destination and reports who the session
// is logged in as. Used by the diagnostics endpoint.
func (s *SessionClient) Diagnose(ctx context.Context) (*Diagnostics, error) {
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	me, err := s.mt.Self(ctx)
	if err != nil {
		return nil, transportErr("getMe", err)
	}
	handle, err := s.destination(ctx)
	if err != nil {
		return nil, err
	}
	d := &Diagnostics{Account: me, PeerUsed: handle.Raw}
	if handle.Resolved {
		d.Chat = handle.Peer
		d.PeerUsed = strconv.FormatInt(handle.Peer.ID, 10)
	}
	return d, nil
}

// Close stops the session and returns the client to the unstarted state.
func (s *SessionClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateReady {
		return nil
	}
	s.state = stateUnstarted
	s.destHandle = nil
	return s.mt.Close()
}

// destination resolves the configured chat once per session and caches the
// confirmed handle.
func (s *SessionClient) destination(ctx context.Context) (PeerHandle, error) {
	s.mu.Lock()
	cached := s.destHandle
	s.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	handle, err := s.resolver.Resolve(ctx, s.dest)
	if err != nil {
		return PeerHandle{}, err
	}
	if handle.Resolved {
		s.mu.Lock()
		s.destHandle = &handle
		s.mu.Unlock()
	}
	return handle, nil
}

// docToken encodes a document location as the synthetic external id stored
// for user-mode uploads.
func docToken(docID, accessHash int64) string {
	return fmt.Sprintf("doc.%d.%d", docID, accessHash)
}

func parseDocToken(s string) (docID, accessHash int64, ok bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || parts[0] != "doc" {
		return 0, 0, false
	}
	docID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	accessHash, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return docID, accessHash, true
}
