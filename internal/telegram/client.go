// Package telegram implements the storage-transport client: files are
// stored as document messages in a configured Telegram chat, through either
// the size-capped Bot API or an MTProto user session.
package telegram

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/tgvault/tgvault/internal/config"
	"github.com/tgvault/tgvault/internal/spool"
)

// StorageReference is the durable result of a successful upload. ChatID and
// MessageID are set together or not at all; they are what makes a user-mode
// upload reliably retrievable, since the synthetic ExternalID of a user-mode
// document is subject to file-reference expiry.
type StorageReference struct {
	ExternalID string
	Name       string
	Size       int64
	ChatID     *string
	MessageID  *int64
}

// Download is an open remote byte stream plus the metadata needed to serve
// it. Body is forward-only and must be fully drained or closed by the caller.
type Download struct {
	Body io.ReadCloser
	Name string
	Size int64
}

// Client is the transport-agnostic storage contract. The implementation is
// chosen once at startup from configuration and never switched at runtime.
type Client interface {
	// Mode reports which transport backs this client (config.ModeBot or
	// config.ModeUser).
	Mode() string

	// SendDocument uploads the spooled file at path to the configured
	// destination and returns the normalized reference.
	SendDocument(ctx context.Context, path, filename, contentType string) (*StorageReference, error)

	// OpenDownload retrieves previously stored content. The reference shape
	// decides the retrieval path: a chat/message pair is preferred in user
	// mode, the external id is the fallback.
	OpenDownload(ctx context.Context, ref StorageReference) (*Download, error)

	Close() error
}

// Open builds the transport selected by cfg.UploadMode. Credential
// completeness was already validated at config load; this only wires things
// up.
func Open(cfg *config.Config, spooler *spool.Controller, log zerolog.Logger) (Client, error) {
	switch cfg.UploadMode {
	case config.ModeUser:
		return NewSessionClient(cfg, spooler, log), nil
	default:
		return NewBotClient(BotConfig{
			Token:       cfg.BotToken,
			Destination: cfg.ChatID,
			HTTPTimeout: cfg.HTTPTimeout,
		}, log)
	}
}
