package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gotd/contrib/bg"
	"github.com/gotd/td/session"
	gotdclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/tgvault/tgvault/internal/config"
)

// Marked channel ids are -100XXXXXXXXXX; basic chats are plain negatives.
const channelMark = int64(1000000000000)

// gotdBackend implements the mtproto interface over gotd. The connection
// runs in the background (bg.Connect) until Close.
type gotdBackend struct {
	apiID       int
	apiHash     string
	sessionFile string
	log         zerolog.Logger

	client *gotdclient.Client
	api    *tg.Client
	stop   bg.StopFunc
}

func newGotdBackend(cfg *config.Config, log zerolog.Logger) *gotdBackend {
	return &gotdBackend{
		apiID:       cfg.APIID,
		apiHash:     cfg.APIHash,
		sessionFile: cfg.SessionFile,
		log:         log,
	}
}

func (g *gotdBackend) Connect(ctx context.Context) error {
	client := gotdclient.NewClient(g.apiID, g.apiHash, gotdclient.Options{
		SessionStorage: &session.FileStorage{Path: g.sessionFile},
	})

	stop, err := bg.Connect(client)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	status, err := client.Auth().Status(ctx)
	if err != nil {
		_ = stop()
		return fmt.Errorf("failed to check auth status: %w", err)
	}
	if !status.Authorized {
		_ = stop()
		return errors.New("session file is not authorized, run the sessioninit tool first")
	}

	g.client = client
	g.api = client.API()
	g.stop = stop
	g.log.Debug().Str("session_file", g.sessionFile).Msg("mtproto session connected")
	return nil
}

func (g *gotdBackend) Close() error {
	if g.stop == nil {
		return nil
	}
	stop := g.stop
	g.stop, g.client, g.api = nil, nil, nil
	return stop()
}

func (g *gotdBackend) Self(ctx context.Context) (*Account, error) {
	u, err := g.client.Self(ctx)
	if err != nil {
		return nil, err
	}
	return &Account{ID: u.ID, Username: u.Username, Phone: u.Phone}, nil
}

func (g *gotdBackend) LookupUsername(ctx context.Context, username string) (*Peer, error) {
	res, err := g.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", username, err)
	}
	return peerFromResolved(res.Peer, res.Chats, res.Users)
}

// LookupID scans the account's dialogs for a peer with the given marked id.
// User accounts cannot fabricate access hashes, so membership in the dialog
// list is effectively the access check.
func (g *gotdBackend) LookupID(ctx context.Context, id int64) (*Peer, error) {
	res, err := g.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      100,
	})
	if err != nil {
		return nil, fmt.Errorf("list dialogs: %w", err)
	}

	var chats []tg.ChatClass
	var users []tg.UserClass
	switch d := res.(type) {
	case *tg.MessagesDialogs:
		chats, users = d.Chats, d.Users
	case *tg.MessagesDialogsSlice:
		chats, users = d.Chats, d.Users
	default:
		return nil, fmt.Errorf("unexpected dialogs response %T", res)
	}

	for _, c := range chats {
		switch chat := c.(type) {
		case *tg.Channel:
			if -(channelMark + chat.ID) == id {
				hash, _ := chat.GetAccessHash()
				return &Peer{ID: id, AccessHash: hash, Kind: PeerChannel, Title: chat.Title, Username: chat.Username}, nil
			}
		case *tg.Chat:
			if -chat.ID == id {
				return &Peer{ID: id, Kind: PeerChat, Title: chat.Title}, nil
			}
		}
	}
	for _, u := range users {
		if user, ok := u.(*tg.User); ok && user.ID == id {
			hash, _ := user.GetAccessHash()
			return &Peer{ID: id, AccessHash: hash, Kind: PeerUser, Username: user.Username}, nil
		}
	}
	return nil, fmt.Errorf("%w: no dialog with id %d", ErrResolution, id)
}

func (g *gotdBackend) Join(ctx context.Context, target string) error {
	if hash, ok := inviteHash(target); ok {
		if _, err := g.api.MessagesImportChatInvite(ctx, hash); err != nil {
			return fmt.Errorf("import invite: %w", err)
		}
		return nil
	}

	username, ok := publicUsername(target)
	if !ok {
		return fmt.Errorf("%w: %q is not joinable", ErrResolution, target)
	}
	peer, err := g.LookupUsername(ctx, username)
	if err != nil {
		return err
	}
	if peer.Kind != PeerChannel {
		// Users and basic groups have nothing to join via username.
		return nil
	}
	_, err = g.api.ChannelsJoinChannel(ctx, &tg.InputChannel{
		ChannelID:  -peer.ID - channelMark,
		AccessHash: peer.AccessHash,
	})
	if err != nil {
		return fmt.Errorf("join channel: %w", err)
	}
	return nil
}

func (g *gotdBackend) SendDocument(ctx context.Context, peer *Peer, spoolPath, filename, contentType string) (*SentDocument, error) {
	up := uploader.NewUploader(g.api)
	file, err := up.FromPath(ctx, spoolPath)
	if err != nil {
		return nil, fmt.Errorf("upload parts: %w", err)
	}

	doc := message.UploadedDocument(file)
	doc.Filename(filename).ForceFile(true)
	if contentType != "" {
		doc.MIME(contentType)
	}

	sender := message.NewSender(g.api)
	updates, err := sender.To(inputPeer(peer)).Media(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("send media: %w", err)
	}

	sent, err := sentFromUpdates(updates)
	if err != nil {
		return nil, err
	}
	return sent, nil
}

func (g *gotdBackend) FetchMessageDocument(ctx context.Context, chatID int64, messageID int, dst string) error {
	peer, err := g.LookupID(ctx, chatID)
	if err != nil {
		return err
	}

	var msgs tg.MessagesMessagesClass
	if peer.Kind == PeerChannel {
		msgs, err = g.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: -peer.ID - channelMark, AccessHash: peer.AccessHash},
			ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: messageID}},
		})
	} else {
		msgs, err = g.api.MessagesGetMessages(ctx, []tg.InputMessageClass{&tg.InputMessageID{ID: messageID}})
	}
	if err != nil {
		return fmt.Errorf("get message %d: %w", messageID, err)
	}

	doc, err := documentFromMessages(msgs, messageID)
	if err != nil {
		return err
	}
	return g.downloadDocument(ctx, doc.ID, doc.AccessHash, doc.FileReference, dst)
}

func (g *gotdBackend) FetchDocument(ctx context.Context, docID, accessHash int64, dst string) error {
	// No file reference available on this path; Telegram may reject the
	// location once the reference window lapses, which is why the message
	// reference path is preferred.
	return g.downloadDocument(ctx, docID, accessHash, nil, dst)
}

func (g *gotdBackend) downloadDocument(ctx context.Context, id, accessHash int64, fileRef []byte, dst string) error {
	loc := &tg.InputDocumentFileLocation{
		ID:            id,
		AccessHash:    accessHash,
		FileReference: fileRef,
	}
	if _, err := downloader.NewDownloader().Download(g.api, loc).ToPath(ctx, dst); err != nil {
		return fmt.Errorf("download document %d: %w", id, err)
	}
	return nil
}

// inviteHash extracts the invite hash from t.me/+HASH, t.me/joinchat/HASH,
// or tg://join?invite=HASH forms.
func inviteHash(s string) (string, bool) {
	switch {
	case strings.HasPrefix(s, "https://t.me/+"):
		return strings.TrimPrefix(s, "https://t.me/+"), true
	case strings.HasPrefix(s, "https://t.me/joinchat/"):
		return strings.TrimPrefix(s, "https://t.me/joinchat/"), true
	case strings.HasPrefix(s, "tg://join?invite="):
		return strings.TrimPrefix(s, "tg://join?invite="), true
	}
	return "", false
}

func inputPeer(p *Peer) tg.InputPeerClass {
	switch p.Kind {
	case PeerChannel:
		return &tg.InputPeerChannel{ChannelID: -p.ID - channelMark, AccessHash: p.AccessHash}
	case PeerChat:
		return &tg.InputPeerChat{ChatID: -p.ID}
	default:
		return &tg.InputPeerUser{UserID: p.ID, AccessHash: p.AccessHash}
	}
}

// markedID converts a wire peer into the marked id form stored in chat
// references.
func markedID(p tg.PeerClass) int64 {
	switch peer := p.(type) {
	case *tg.PeerChannel:
		return -(channelMark + peer.ChannelID)
	case *tg.PeerChat:
		return -peer.ChatID
	case *tg.PeerUser:
		return peer.UserID
	}
	return 0
}

func peerFromResolved(p tg.PeerClass, chats []tg.ChatClass, users []tg.UserClass) (*Peer, error) {
	switch peer := p.(type) {
	case *tg.PeerChannel:
		for _, c := range chats {
			if ch, ok := c.(*tg.Channel); ok && ch.ID == peer.ChannelID {
				hash, _ := ch.GetAccessHash()
				return &Peer{ID: -(channelMark + ch.ID), AccessHash: hash, Kind: PeerChannel, Title: ch.Title, Username: ch.Username}, nil
			}
		}
	case *tg.PeerChat:
		for _, c := range chats {
			if ch, ok := c.(*tg.Chat); ok && ch.ID == peer.ChatID {
				return &Peer{ID: -ch.ID, Kind: PeerChat, Title: ch.Title}, nil
			}
		}
	case *tg.PeerUser:
		for _, u := range users {
			if user, ok := u.(*tg.User); ok && user.ID == peer.UserID {
				hash, _ := user.GetAccessHash()
				return &Peer{ID: user.ID, AccessHash: hash, Kind: PeerUser, Username: user.Username}, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: resolved peer missing from response", ErrResolution)
}

// sentFromUpdates digs the sent message out of the update set and extracts
// its document.
func sentFromUpdates(u tg.UpdatesClass) (*SentDocument, error) {
	var updates []tg.UpdateClass
	switch upd := u.(type) {
	case *tg.Updates:
		updates = upd.Updates
	case *tg.UpdatesCombined:
		updates = upd.Updates
	default:
		return nil, fmt.Errorf("unexpected updates type %T", u)
	}

	for _, update := range updates {
		var msg tg.MessageClass
		switch up := update.(type) {
		case *tg.UpdateNewChannelMessage:
			msg = up.Message
		case *tg.UpdateNewMessage:
			msg = up.Message
		default:
			continue
		}
		m, ok := msg.(*tg.Message)
		if !ok {
			continue
		}
		doc, ok := messageDocument(m)
		if !ok {
			continue
		}
		return &SentDocument{
			ChatID:     markedID(m.PeerID),
			MessageID:  m.ID,
			DocID:      doc.ID,
			AccessHash: doc.AccessHash,
			Size:       doc.Size,
		}, nil
	}
	return nil, errors.New("sent message not found in updates")
}

func documentFromMessages(msgs tg.MessagesMessagesClass, messageID int) (*tg.Document, error) {
	var list []tg.MessageClass
	switch m := msgs.(type) {
	case *tg.MessagesMessages:
		list = m.Messages
	case *tg.MessagesMessagesSlice:
		list = m.Messages
	case *tg.MessagesChannelMessages:
		list = m.Messages
	default:
		return nil, fmt.Errorf("unexpected messages response %T", msgs)
	}

	for _, mc := range list {
		m, ok := mc.(*tg.Message)
		if !ok || m.ID != messageID {
			continue
		}
		if doc, ok := messageDocument(m); ok {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("%w: message %d has no document", ErrNotFound, messageID)
}

func messageDocument(m *tg.Message) (*tg.Document, bool) {
	media, ok := m.Media.(*tg.MessageMediaDocument)
	if !ok {
		return nil, false
	}
	doc, ok := media.Document.(*tg.Document)
	return doc, ok
}
