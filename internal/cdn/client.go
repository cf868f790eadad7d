// client.go — HTTP-клиенты CDN и анонимного файлового хостинга.
// CDN принимает только URL, который может сам скачать: POST JSON-массива URL
// с Bearer-токеном, ответ — {"files":[{"deployedUrl","file"}]}.
// Анонимный хостинг принимает multipart-поле "file" без авторизации,
// ответ — {"status":"success","data":{"url"}}.
package cdn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTimeout — таймаут HTTP-клиента по умолчанию: загрузка
// медиафайла целиком укладывается в один запрос.
const DefaultTimeout = 2 * time.Minute

// Config — параметры клиента.
type Config struct {
	// IngestURL — endpoint "новый ресурс по URL"
	IngestURL string
	// Token — Bearer-токен CDN
	Token string
	// AnonHostURL — multipart endpoint анонимного хостинга
	AnonHostURL string
	// HTTPClient — HTTP-клиент (nil — клиент с DefaultTimeout)
	HTTPClient *http.Client
}

// Client — клиент CDN и анонимного хостинга.
type Client struct {
	ingestURL   string
	token       string
	anonHostURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient создаёт клиент CDN.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		ingestURL:   cfg.IngestURL,
		token:       cfg.Token,
		anonHostURL: cfg.AnonHostURL,
		httpClient:  httpClient,
		logger:      logger.With(slog.String("component", "cdn_client")),
	}
}

// ingestResponse — ответ CDN.
type ingestResponse struct {
	Files []struct {
		DeployedURL string `json:"deployedUrl"`
		File        string `json:"file"`
	} `json:"files"`
}

// anonUploadResponse — ответ анонимного хостинга.
type anonUploadResponse struct {
	Status string `json:"status"`
	Data   struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Ingest передаёт sourceURL в CDN и возвращает постоянный deployed URL.
func (c *Client) Ingest(ctx context.Context, sourceURL string) (string, error) {
	payload, err := json.Marshal([]string{sourceURL})
	if err != nil {
		return "", fmt.Errorf("сериализация запроса CDN: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ingestURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("создание запроса CDN: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("запрос к CDN: %w", err)
	}

	var out ingestResponse
	if err := decodeResponse(resp, "CDN", &out); err != nil {
		return "", err
	}
	if len(out.Files) == 0 || out.Files[0].DeployedURL == "" {
		return "", errors.New("CDN вернул ответ без deployedUrl")
	}

	c.logger.Info("Файл принят CDN",
		slog.String("source_url", sourceURL),
		slog.String("deployed_url", out.Files[0].DeployedURL),
		slog.String("file", out.Files[0].File),
	)
	return out.Files[0].DeployedURL, nil
}

// UploadAnonymous загружает файл на анонимный хостинг и возвращает
// URL прямого скачивания.
func (c *Client) UploadAnonymous(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("открытие файла: %w", err)
	}
	defer f.Close()

	// Тело формируется потоково, файл целиком в память не читается
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.anonHostURL, pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("создание запроса к хостингу: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("запрос к анонимному хостингу: %w", err)
	}

	var out anonUploadResponse
	if err := decodeResponse(resp, "анонимный хостинг", &out); err != nil {
		return "", err
	}
	if out.Status != "success" || out.Data.URL == "" {
		return "", fmt.Errorf("анонимный хостинг вернул статус %q", out.Status)
	}

	direct, err := DirectDownloadURL(out.Data.URL)
	if err != nil {
		return "", err
	}

	c.logger.Info("Файл загружен на анонимный хостинг",
		slog.String("file", filepath.Base(path)),
		slog.String("url", direct),
	)
	return direct, nil
}

// DirectDownloadURL превращает страницу файла хостинга в ссылку
// прямого скачивания: https://host/123/a.png → https://host/dl/123/a.png.
// Ссылки, уже ведущие на /dl/, не меняются.
func DirectDownloadURL(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("некорректный URL хостинга %q", pageURL)
	}
	if !strings.HasPrefix(u.Path, "/dl/") {
		u.Path = "/dl" + u.Path
		u.RawPath = ""
	}
	return u.String(), nil
}

// decodeResponse декодирует JSON ответ сервиса upstream в target.
// Любой статус кроме 2xx и некорректный JSON — ошибка.
func decodeResponse(resp *http.Response, upstream string, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s вернул статус %d: %s", upstream, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("декодирование ответа (%s): %w", upstream, err)
	}
	return nil
}
