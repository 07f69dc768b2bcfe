package telegram

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/tgvault/tgvault/internal/config"
)

// BotConfig holds settings for the Bot API transport. Endpoint overrides
// exist for tests; zero values use the public Telegram endpoints.
type BotConfig struct {
	Token        string
	Destination  string // numeric chat id or @channelname
	HTTPTimeout  time.Duration
	APIEndpoint  string // default tgbotapi.APIEndpoint
	FileEndpoint string // default tgbotapi.FileEndpoint
}

// BotClient stores documents through the stateless Bot API. Uploads are a
// single multipart sendDocument call; downloads are a two-step getFile plus
// CDN stream. The 50 MB ceiling is enforced upstream by the spool controller.
type BotClient struct {
	bot          *tgbotapi.BotAPI
	http         *http.Client
	fileEndpoint string
	dest         string
	log          zerolog.Logger
}

// NewBotClient connects to the Bot API and verifies the token.
func NewBotClient(cfg BotConfig, log zerolog.Logger) (*BotClient, error) {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = tgbotapi.FileEndpoint
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 300 * time.Second
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bot api: %w", err)
	}

	return &BotClient{
		bot:          bot,
		http:         httpClient,
		fileEndpoint: cfg.FileEndpoint,
		dest:         cfg.Destination,
		log:          log.With().Str("transport", "bot").Logger(),
	}, nil
}

// Mode reports the transport mode.
func (b *BotClient) Mode() string { return config.ModeBot }

// SendDocument uploads the spooled file as a document message.
func (b *BotClient) SendDocument(ctx context.Context, spoolPath, filename, contentType string) (*StorageReference, error) {
	f, err := os.Open(spoolPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open spooled file: %w", err)
	}
	defer f.Close()

	doc := tgbotapi.NewDocument(0, tgbotapi.FileReader{Name: filename, Reader: f})
	if chatID, err := strconv.ParseInt(b.dest, 10, 64); err == nil {
		doc.ChatID = chatID
	} else {
		doc.ChannelUsername = b.dest
	}

	msg, err := b.bot.Send(doc)
	if err != nil {
		return nil, transportErr("sendDocument", err)
	}
	if msg.Document == nil {
		return nil, &TransportError{Op: "sendDocument", Detail: "response carries no document"}
	}

	ref := &StorageReference{
		ExternalID: msg.Document.FileID,
		Name:       filename,
		Size:       int64(msg.Document.FileSize),
	}
	b.log.Info().Str("file_id", ref.ExternalID).Int64("size", ref.Size).Msg("document sent")
	return ref, nil
}

// OpenDownload resolves the external id via getFile, then streams the file
// from the CDN. The returned body is forward-only and not restartable.
func (b *BotClient) OpenDownload(ctx context.Context, ref StorageReference) (*Download, error) {
	meta, err := b.bot.GetFile(tgbotapi.FileConfig{FileID: ref.ExternalID})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, err)
	}
	if meta.FilePath == "" {
		return nil, fmt.Errorf("%w: no file path for %q", ErrNotFound, ref.ExternalID)
	}

	url := fmt.Sprintf(b.fileEndpoint, b.bot.Token, meta.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build cdn request: %w", err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, transportErr("cdn fetch", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &TransportError{Op: "cdn fetch", Detail: fmt.Sprintf("unexpected status %s", resp.Status)}
	}

	name := ref.Name
	if name == "" {
		name = path.Base(meta.FilePath)
	}
	size := ref.Size
	if size == 0 {
		size = int64(meta.FileSize)
	}
	return &Download{Body: resp.Body, Name: name, Size: size}, nil
}

// Close is a no-op; the Bot API transport holds no long-lived state.
func (b *BotClient) Close() error { return nil }
