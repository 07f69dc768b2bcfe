package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "12345:TESTTOKEN"

// fakeBotAPI is an in-memory Bot API plus CDN.
type fakeBotAPI struct {
	mu      sync.Mutex
	nextID  int
	files   map[string][]byte // file_id → content
	names   map[string]string // file_id → stored name
	lastReq map[string]string // last sendDocument form values
}

func newFakeBotAPI() *fakeBotAPI {
	return &fakeBotAPI{files: map[string][]byte{}, names: map[string]string{}, lastReq: map[string]string{}}
}

func (f *fakeBotAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CDN path: /file/bot<token>/<file_path>
		if strings.HasPrefix(r.URL.Path, "/file/bot"+testToken+"/") {
			f.serveCDN(w, r)
			return
		}

		method := strings.TrimPrefix(r.URL.Path, "/bot"+testToken+"/")
		switch method {
		case "getMe":
			writeResult(w, map[string]any{"id": 1, "is_bot": true, "first_name": "vault", "username": "vaultbot"})
		case "sendDocument":
			f.serveSendDocument(t, w, r)
		case "getFile":
			f.serveGetFile(w, r)
		default:
			writeAPIError(w, 404, "method not found: "+method)
		}
	})
}

func (f *fakeBotAPI) serveSendDocument(t *testing.T, w http.ResponseWriter, r *http.Request) {
	require.NoError(t, r.ParseMultipartForm(64<<20))

	file, header, err := r.FormFile("document")
	require.NoError(t, err)
	defer file.Close()
	content, err := io.ReadAll(file)
	require.NoError(t, err)

	f.mu.Lock()
	f.nextID++
	fileID := fmt.Sprintf("BQAD-test-%d", f.nextID)
	f.files[fileID] = content
	f.names[fileID] = header.Filename
	f.lastReq["chat_id"] = r.FormValue("chat_id")
	f.mu.Unlock()

	writeResult(w, map[string]any{
		"message_id": f.nextID,
		"chat":       map[string]any{"id": -100123, "type": "channel"},
		"document": map[string]any{
			"file_id":        fileID,
			"file_unique_id": fileID + "-u",
			"file_name":      header.Filename,
			"file_size":      len(content),
		},
	})
}

func (f *fakeBotAPI) serveGetFile(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	fileID := r.FormValue("file_id")

	f.mu.Lock()
	content, ok := f.files[fileID]
	f.mu.Unlock()
	if !ok {
		writeAPIError(w, 400, "Bad Request: invalid file_id")
		return
	}
	writeResult(w, map[string]any{
		"file_id":        fileID,
		"file_unique_id": fileID + "-u",
		"file_size":      len(content),
		"file_path":      "documents/" + fileID + ".bin",
	})
}

func (f *fakeBotAPI) serveCDN(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(r.URL.Path)
	fileID := strings.TrimSuffix(name, ".bin")

	f.mu.Lock()
	content, ok := f.files[fileID]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(content)
}

func writeResult(w http.ResponseWriter, result any) {
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func writeAPIError(w http.ResponseWriter, code int, desc string) {
	json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": code, "description": desc})
}

func testBotClient(t *testing.T, dest string) (*BotClient, *fakeBotAPI) {
	t.Helper()
	api := newFakeBotAPI()
	ts := httptest.NewServer(api.handler(t))
	t.Cleanup(ts.Close)

	client, err := NewBotClient(BotConfig{
		Token:        testToken,
		Destination:  dest,
		APIEndpoint:  ts.URL + "/bot%s/%s",
		FileEndpoint: ts.URL + "/file/bot%s/%s",
	}, zerolog.Nop())
	require.NoError(t, err)
	return client, api
}

func spoolFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.spool")
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestBotRoundTrip(t *testing.T) {
	client, _ := testBotClient(t, "-100123")
	content := []byte("bot mode round trip payload")

	ref, err := client.SendDocument(context.Background(), spoolFile(t, content), "hello.txt", "text/plain")
	require.NoError(t, err)
	assert.NotEmpty(t, ref.ExternalID)
	assert.Equal(t, int64(len(content)), ref.Size)
	assert.Nil(t, ref.ChatID, "bot references carry no message reference")
	assert.Nil(t, ref.MessageID)

	dl, err := client.OpenDownload(context.Background(), *ref)
	require.NoError(t, err)
	defer dl.Body.Close()

	got, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, int64(len(content)), dl.Size)
}

func TestBotSendNumericChatID(t *testing.T) {
	client, api := testBotClient(t, "-100123")

	_, err := client.SendDocument(context.Background(), spoolFile(t, []byte("x")), "x.bin", "")
	require.NoError(t, err)
	assert.Equal(t, "-100123", api.lastReq["chat_id"])
}

func TestBotSendChannelUsername(t *testing.T) {
	client, api := testBotClient(t, "@vaultchannel")

	_, err := client.SendDocument(context.Background(), spoolFile(t, []byte("x")), "x.bin", "")
	require.NoError(t, err)
	assert.Equal(t, "@vaultchannel", api.lastReq["chat_id"])
}

func TestBotDownloadUnknownID(t *testing.T) {
	client, _ := testBotClient(t, "-100123")

	_, err := client.OpenDownload(context.Background(), StorageReference{ExternalID: "BQAD-missing"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBotDownloadUsesMetadataName(t *testing.T) {
	client, _ := testBotClient(t, "-100123")

	ref, err := client.SendDocument(context.Background(), spoolFile(t, []byte("named")), "report.pdf", "application/pdf")
	require.NoError(t, err)

	// Reference without a stored name falls back to the CDN path basename.
	dl, err := client.OpenDownload(context.Background(), StorageReference{ExternalID: ref.ExternalID})
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, ref.ExternalID+".bin", dl.Name)
}

func TestBotInvalidToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, 401, "Unauthorized")
	}))
	defer ts.Close()

	_, err := NewBotClient(BotConfig{
		Token:       "bad",
		Destination: "-1",
		APIEndpoint: ts.URL + "/bot%s/%s",
	}, zerolog.Nop())
	require.Error(t, err)
}
