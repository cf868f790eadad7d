package cdn

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/The-UnknownHacker/groundplane/internal/staging"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// relayEnv — окружение сквозного теста: staging, сервер /temp/{id},
// mock CDN, который скачивает исходный URL, и mock анонимного хостинга.
type relayEnv struct {
	store      *staging.Store
	relay      *Relay
	anonStatus int
	anonCalls  atomic.Int32
	cdnFetched atomic.Value // []byte последнего скачанного файла
	cdnSources atomic.Value // string последнего исходного URL
}

func setupRelayEnv(t *testing.T, anonStatus int) *relayEnv {
	t.Helper()
	env := &relayEnv{anonStatus: anonStatus}

	// Сервер /temp/{id} поверх staging
	tempSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/temp/")
		path, err := env.store.Resolve(id)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	}))
	t.Cleanup(tempSrv.Close)

	store, err := staging.New(t.TempDir(), tempSrv.URL, testLogger())
	if err != nil {
		t.Fatalf("staging.New: %v", err)
	}
	env.store = store

	// Анонимный хостинг
	anonSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.anonCalls.Add(1)
		if env.anonStatus != http.StatusOK {
			w.WriteHeader(env.anonStatus)
			return
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		io.Copy(io.Discard, file)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]string{"url": "http://" + r.Host + "/42/" + hdr.Filename},
		})
	}))
	t.Cleanup(anonSrv.Close)

	// CDN: скачивает первый URL и возвращает deployedUrl
	cdnSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer cdn-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var urls []string
		if err := json.NewDecoder(r.Body).Decode(&urls); err != nil || len(urls) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		env.cdnSources.Store(urls[0])

		if strings.Contains(urls[0], "/dl/42/") {
			// URL анонимного хостинга — содержимое не скачиваем
			env.cdnFetched.Store([]byte(nil))
		} else {
			resp, err := http.Get(urls[0])
			if err != nil || resp.StatusCode != http.StatusOK {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			env.cdnFetched.Store(data)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]string{{
				"deployedUrl": "https://cdn.example.com/abc/" + filepath.Base(urls[0]),
				"file":        "abc",
			}},
		})
	}))
	t.Cleanup(cdnSrv.Close)

	client := NewClient(Config{
		IngestURL:   cdnSrv.URL,
		Token:       "cdn-token",
		AnonHostURL: anonSrv.URL,
	}, testLogger())
	env.relay = NewRelay(client, store, testLogger())

	return env
}

// writeRandomFile создаёт файл size байт со случайным содержимым.
func writeRandomFile(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path, data
}

func TestRelay_FallbackToSelfHostedOnAnonymousFailure(t *testing.T) {
	env := setupRelayEnv(t, http.StatusInternalServerError)
	path, data := writeRandomFile(t, "demo.mp4", 10<<20)

	deployed, err := env.relay.Relay(context.Background(), path)
	if err != nil {
		t.Fatalf("Relay: %v", err)
	}
	if !strings.HasPrefix(deployed, "https://cdn.example.com/abc/") {
		t.Errorf("deployed = %q", deployed)
	}
	if env.anonCalls.Load() != 1 {
		t.Errorf("anonCalls = %d, ожидается 1", env.anonCalls.Load())
	}

	fetched, _ := env.cdnFetched.Load().([]byte)
	if sha256.Sum256(fetched) != sha256.Sum256(data) {
		t.Errorf("CDN скачал %d байт, содержимое не совпадает с исходным (%d байт)", len(fetched), len(data))
	}
	if env.store.Len() != 1 {
		t.Errorf("staging Len = %d, ожидается 1", env.store.Len())
	}
}

func TestRelay_AnonymousFirst(t *testing.T) {
	env := setupRelayEnv(t, http.StatusOK)
	path, _ := writeRandomFile(t, "shot.png", 1024)

	deployed, err := env.relay.Relay(context.Background(), path)
	if err != nil {
		t.Fatalf("Relay: %v", err)
	}

	source, _ := env.cdnSources.Load().(string)
	if !strings.Contains(source, "/dl/42/shot.png") {
		t.Errorf("CDN получил %q, ожидается ссылка прямого скачивания", source)
	}
	if deployed != "https://cdn.example.com/abc/shot.png" {
		t.Errorf("deployed = %q", deployed)
	}
	if env.store.Len() != 0 {
		t.Errorf("staging не должен использоваться, Len = %d", env.store.Len())
	}
}

func TestRelay_SelfHostedOnly(t *testing.T) {
	env := setupRelayEnv(t, http.StatusOK)
	path, data := writeRandomFile(t, "clip.webm", 4096)

	if _, err := env.relay.RelaySelfHosted(context.Background(), path); err != nil {
		t.Fatalf("RelaySelfHosted: %v", err)
	}
	if env.anonCalls.Load() != 0 {
		t.Errorf("анонимный хостинг не должен вызываться, calls = %d", env.anonCalls.Load())
	}
	fetched, _ := env.cdnFetched.Load().([]byte)
	if !bytes.Equal(fetched, data) {
		t.Error("CDN скачал не то содержимое")
	}
}

// stubUploader — Uploader с заданными ошибками.
type stubUploader struct {
	anonErr   error
	ingestErr error
	ingested  []string
}

func (s *stubUploader) Ingest(_ context.Context, sourceURL string) (string, error) {
	s.ingested = append(s.ingested, sourceURL)
	if s.ingestErr != nil {
		return "", s.ingestErr
	}
	return "https://cdn.example.com/x", nil
}

func (s *stubUploader) UploadAnonymous(_ context.Context, _ string) (string, error) {
	if s.anonErr != nil {
		return "", s.anonErr
	}
	return "https://anon.example.com/dl/1/f", nil
}

// stubStager — Stager, возвращающий ошибку.
type stubStager struct{ err error }

func (s stubStager) Stage(string) (*staging.StagedFile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &staging.StagedFile{ID: "id", URL: "https://self.example.com/temp/id"}, nil
}

func TestRelay_BothFail(t *testing.T) {
	anonErr := errors.New("anon down")
	stageErr := errors.New("disk full")
	relay := NewRelay(&stubUploader{anonErr: anonErr}, stubStager{err: stageErr}, testLogger())

	_, err := relay.Relay(context.Background(), "/tmp/whatever.png")
	if !errors.Is(err, ErrRelayFailed) {
		t.Fatalf("err = %v, ожидается ErrRelayFailed", err)
	}
	if !errors.Is(err, anonErr) || !errors.Is(err, stageErr) {
		t.Errorf("err = %v, должен содержать причины обеих попыток", err)
	}
}

func TestRelay_CDNRejectsAnonymousURL(t *testing.T) {
	up := &stubUploader{ingestErr: errors.New("cdn 500")}
	relay := NewRelay(up, stubStager{}, testLogger())

	_, err := relay.Relay(context.Background(), "/tmp/f.png")
	if !errors.Is(err, ErrRelayFailed) {
		t.Fatalf("err = %v, ожидается ErrRelayFailed", err)
	}
	if len(up.ingested) != 2 {
		t.Fatalf("Ingest вызван %d раз, ожидается 2 (по разу на стратегию)", len(up.ingested))
	}
	if up.ingested[1] != "https://self.example.com/temp/id" {
		t.Errorf("вторая попытка = %q, ожидается URL staging", up.ingested[1])
	}
}

func TestDirectDownloadURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://tmpfiles.org/123/a.png", "https://tmpfiles.org/dl/123/a.png"},
		{"http://tmpfiles.org/123/a.png", "http://tmpfiles.org/dl/123/a.png"},
		{"https://tmpfiles.org/dl/123/a.png", "https://tmpfiles.org/dl/123/a.png"},
	}
	for _, tt := range tests {
		got, err := DirectDownloadURL(tt.in)
		if err != nil {
			t.Errorf("DirectDownloadURL(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DirectDownloadURL(%q) = %q, ожидается %q", tt.in, got, tt.want)
		}
	}

	if _, err := DirectDownloadURL("not-a-url"); err == nil {
		t.Error("ожидалась ошибка для URL без хоста")
	}
}

func TestClient_IngestErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non-2xx", http.StatusInternalServerError, `{"error":"boom"}`},
		{"malformed json", http.StatusOK, `{"files":[`},
		{"empty files", http.StatusOK, `{"files":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(Config{IngestURL: srv.URL, Token: "t"}, testLogger())
			if _, err := client.Ingest(context.Background(), "https://example.com/f.png"); err == nil {
				t.Error("ожидалась ошибка")
			}
		})
	}
}

func TestClient_UploadAnonymousNotSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","data":{}}`))
	}))
	defer srv.Close()

	path, _ := writeRandomFile(t, "f.gif", 16)
	client := NewClient(Config{AnonHostURL: srv.URL}, testLogger())
	if _, err := client.UploadAnonymous(context.Background(), path); err == nil {
		t.Error("ожидалась ошибка для status != success")
	}
}
