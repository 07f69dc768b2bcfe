package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tgvault/tgvault/internal/config"
	"github.com/tgvault/tgvault/internal/database"
	"github.com/tgvault/tgvault/internal/metrics"
	"github.com/tgvault/tgvault/internal/models"
	"github.com/tgvault/tgvault/internal/spool"
	"github.com/tgvault/tgvault/internal/telegram"
)

// ErrFileNotFound means no stored file matches the requested identifier.
var ErrFileNotFound = errors.New("file not found")

// FileService orchestrates uploads and downloads: spool, transport, and the
// files table.
type FileService struct {
	tg      telegram.Client
	spooler *spool.Controller
	botCap  int64 // pre-send ceiling in bot mode; 0 means uncapped
	log     zerolog.Logger
}

// NewFileService creates the orchestration service. botCap applies only when
// the client runs in bot mode.
func NewFileService(tg telegram.Client, spooler *spool.Controller, botCap int64, log zerolog.Logger) *FileService {
	return &FileService{tg: tg, spooler: spooler, botCap: botCap, log: log}
}

// Upload drains the inbound stream into the spool under the caller's
// deadline, sends it through the active transport, and records the result.
// The spooled file is removed on every path.
func (s *FileService) Upload(ctx context.Context, r io.Reader, filename, contentType string) (*models.File, error) {
	mode := s.tg.Mode()

	limit := int64(0)
	if mode == config.ModeBot {
		limit = s.botCap
	}

	path, total, err := s.spooler.Spool(ctx, r, limit)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(mode, spoolOutcome(err)).Inc()
		return nil, err
	}
	defer os.Remove(path)

	ref, err := s.tg.SendDocument(ctx, path, filename, contentType)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(mode, sendOutcome(err)).Inc()
		return nil, err
	}
	if ref.Size == 0 {
		ref.Size = total
	}

	file := &models.File{
		TGFileID:  ref.ExternalID,
		Name:      ref.Name,
		Size:      ref.Size,
		ChatID:    ref.ChatID,
		MessageID: ref.MessageID,
	}
	if err := database.DB.Create(file).Error; err != nil {
		return nil, fmt.Errorf("failed to record file: %w", err)
	}

	metrics.UploadsTotal.WithLabelValues(mode, "ok").Inc()
	metrics.BytesTotal.WithLabelValues("up", mode).Add(float64(ref.Size))
	s.log.Info().Str("name", file.Name).Int64("size", file.Size).Uint("id", file.ID).Msg("file stored")
	return file, nil
}

// List returns stored files, newest first, optionally filtered by a
// case-insensitive name-contains query.
func (s *FileService) List(query string) ([]models.File, error) {
	db := database.DB.Model(&models.File{})
	if query != "" {
		db = db.Where("LOWER(name) LIKE LOWER(?)", "%"+query+"%")
	}
	var files []models.File
	if err := db.Order("id DESC").Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// Lookup finds a file row by its Telegram external id or its numeric row id.
func (s *FileService) Lookup(identifier string) (*models.File, error) {
	var file models.File
	q := database.DB.Where("tg_file_id = ?", identifier)
	if id, err := strconv.ParseUint(identifier, 10, 32); err == nil {
		q = q.Or("id = ?", id)
	}
	if err := q.First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return &file, nil
}

// Download opens a byte stream for the identified file. In bot mode the
// external id alone is enough (row metadata enriches the response when
// present); in user mode the stored row decides between the message
// reference path and the external-id fallback.
func (s *FileService) Download(ctx context.Context, identifier string) (*telegram.Download, error) {
	mode := s.tg.Mode()

	ref := telegram.StorageReference{ExternalID: identifier}
	file, err := s.Lookup(identifier)
	switch {
	case err == nil:
		ref = telegram.StorageReference{
			ExternalID: file.TGFileID,
			Name:       file.Name,
			Size:       file.Size,
			ChatID:     file.ChatID,
			MessageID:  file.MessageID,
		}
	case errors.Is(err, ErrFileNotFound) && mode == config.ModeBot:
		// The Bot API can serve any valid file_id without a local row.
	default:
		metrics.DownloadsTotal.WithLabelValues(mode, "not_found").Inc()
		return nil, err
	}

	dl, err := s.tg.OpenDownload(ctx, ref)
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues(mode, sendOutcome(err)).Inc()
		return nil, err
	}

	metrics.DownloadsTotal.WithLabelValues(mode, "ok").Inc()
	metrics.BytesTotal.WithLabelValues("down", mode).Add(float64(dl.Size))
	return dl, nil
}

func spoolOutcome(err error) string {
	switch {
	case errors.Is(err, spool.ErrSizeLimit):
		return "size_limit"
	case errors.Is(err, spool.ErrDeadline):
		return "timeout"
	default:
		return "error"
	}
}

func sendOutcome(err error) string {
	var te *telegram.TransportError
	switch {
	case errors.Is(err, telegram.ErrTimeout):
		return "timeout"
	case errors.Is(err, telegram.ErrNotFound):
		return "not_found"
	case errors.As(err, &te):
		return "transport_error"
	default:
		return "error"
	}
}
