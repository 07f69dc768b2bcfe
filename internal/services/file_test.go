package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgvault/tgvault/internal/database"
	"github.com/tgvault/tgvault/internal/spool"
	"github.com/tgvault/tgvault/internal/telegram"
)

// fakeTransport is an in-memory telegram.Client.
type fakeTransport struct {
	mode    string
	store   map[string][]byte
	lastRef *telegram.StorageReference // reference passed to OpenDownload
	sendErr error
}

func newFakeTransport(mode string) *fakeTransport {
	return &fakeTransport{mode: mode, store: map[string][]byte{}}
}

func (f *fakeTransport) Mode() string { return f.mode }

func (f *fakeTransport) SendDocument(ctx context.Context, path, filename, contentType string) (*telegram.StorageReference, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	id := "fake-" + filename
	f.store[id] = content

	ref := &telegram.StorageReference{ExternalID: id, Name: filename, Size: int64(len(content))}
	if f.mode == "user" {
		chat := "-100987"
		msg := int64(42)
		ref.ChatID, ref.MessageID = &chat, &msg
	}
	return ref, nil
}

func (f *fakeTransport) OpenDownload(ctx context.Context, ref telegram.StorageReference) (*telegram.Download, error) {
	f.lastRef = &ref
	content, ok := f.store[ref.ExternalID]
	if !ok {
		return nil, telegram.ErrNotFound
	}
	return &telegram.Download{
		Body: io.NopCloser(strings.NewReader(string(content))),
		Name: ref.Name,
		Size: int64(len(content)),
	}, nil
}

func (f *fakeTransport) Close() error { return nil }

func newService(t *testing.T, tg telegram.Client) *FileService {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, database.Initialize("", filepath.Join(dir, "test.db")))
	t.Cleanup(func() { database.Close() })

	spooler, err := spool.New(dir)
	require.NoError(t, err)
	return NewFileService(tg, spooler, 50<<20, zerolog.Nop())
}

func TestUploadRecordsFile(t *testing.T) {
	tg := newFakeTransport("bot")
	s := newService(t, tg)

	file, err := s.Upload(context.Background(), strings.NewReader("hello world"), "hello.txt", "text/plain")
	require.NoError(t, err)
	assert.NotZero(t, file.ID)
	assert.Equal(t, "fake-hello.txt", file.TGFileID)
	assert.Equal(t, int64(11), file.Size)
	assert.False(t, file.HasMessageRef())

	// The spooled file must be gone after the upload completes.
	entries, err := filepath.Glob(filepath.Join(s.spooler.Dir(), "*.spool"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadSessionModeStoresMessageRef(t *testing.T) {
	tg := newFakeTransport("user")
	s := newService(t, tg)

	file, err := s.Upload(context.Background(), strings.NewReader("payload"), "p.bin", "")
	require.NoError(t, err)
	require.True(t, file.HasMessageRef())
	assert.Equal(t, "-100987", *file.ChatID)
	assert.Equal(t, int64(42), *file.MessageID)
}

func TestUploadBotCapApplied(t *testing.T) {
	tg := newFakeTransport("bot")
	s := newService(t, tg)
	s.botCap = 8

	_, err := s.Upload(context.Background(), strings.NewReader("way too large"), "big.bin", "")
	require.ErrorIs(t, err, spool.ErrSizeLimit)
}

func TestUploadNoCapInUserMode(t *testing.T) {
	tg := newFakeTransport("user")
	s := newService(t, tg)
	s.botCap = 8

	_, err := s.Upload(context.Background(), strings.NewReader("larger than the bot cap"), "big.bin", "")
	require.NoError(t, err)
}

func TestDownloadCarriesStoredReference(t *testing.T) {
	tg := newFakeTransport("user")
	s := newService(t, tg)

	file, err := s.Upload(context.Background(), strings.NewReader("content"), "c.bin", "")
	require.NoError(t, err)

	dl, err := s.Download(context.Background(), file.TGFileID)
	require.NoError(t, err)
	defer dl.Body.Close()

	// The stored chat/message pair must ride along on the reference.
	require.NotNil(t, tg.lastRef.ChatID)
	assert.Equal(t, "-100987", *tg.lastRef.ChatID)

	got, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))
}

func TestDownloadByRowID(t *testing.T) {
	tg := newFakeTransport("bot")
	s := newService(t, tg)

	file, err := s.Upload(context.Background(), strings.NewReader("by id"), "id.bin", "")
	require.NoError(t, err)

	dl, err := s.Download(context.Background(), strconv.FormatUint(uint64(file.ID), 10))
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, "id.bin", dl.Name)
}

func TestDownloadUnknownRowSessionMode(t *testing.T) {
	tg := newFakeTransport("user")
	s := newService(t, tg)

	_, err := s.Download(context.Background(), "missing")
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestDownloadUnknownRowBotModePassesThrough(t *testing.T) {
	// Bot mode can serve any valid file_id without a local row; an invalid
	// one surfaces the transport's not-found, not the database's.
	tg := newFakeTransport("bot")
	s := newService(t, tg)

	_, err := s.Download(context.Background(), "missing")
	require.ErrorIs(t, err, telegram.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	tg := newFakeTransport("bot")
	s := newService(t, tg)

	for _, name := range []string{"report.pdf", "photo.jpg", "REPORT-final.pdf"} {
		_, err := s.Upload(context.Background(), strings.NewReader("x"), name, "")
		require.NoError(t, err)
	}

	all, err := s.List("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "REPORT-final.pdf", all[0].Name)

	reports, err := s.List("report")
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}
