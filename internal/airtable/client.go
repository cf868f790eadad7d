// client.go — HTTP-клиент к Airtable REST API.
// Операции: Create, Get, Update (частичный PATCH), Delete, List (с фильтром,
// сортировкой и постраничным обходом по offset).
// Адресация: {baseURL}/{baseID}/{table} и {baseURL}/{baseID}/{table}/{recordID}.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrNotFound — запись не найдена (Airtable вернул 404).
var ErrNotFound = errors.New("запись Airtable не найдена")

// pageSize — максимальный размер страницы list в Airtable.
const pageSize = 100

// DefaultTimeout — таймаут HTTP-клиента по умолчанию.
const DefaultTimeout = 30 * time.Second

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gp_airtable_requests_total",
	Help: "Запросы к Airtable по таблицам, операциям и результату.",
}, []string{"kind", "op", "result"})

// Config — параметры клиента.
type Config struct {
	// URL — базовый URL API (https://api.airtable.com/v0)
	URL string
	// BaseID — идентификатор базы
	BaseID string
	// APIKey — personal access token
	APIKey string
	// Tables — имена таблиц по видам записей
	Tables map[Kind]string
	// HTTPClient — HTTP-клиент (nil — клиент с DefaultTimeout)
	HTTPClient *http.Client
}

// Client — HTTP-клиент к Airtable.
type Client struct {
	baseURL    string
	baseID     string
	apiKey     string
	tables     map[Kind]string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент к Airtable.
func New(cfg Config, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	tables := make(map[Kind]string, len(cfg.Tables))
	for k, v := range cfg.Tables {
		tables[k] = v
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		baseID:     cfg.BaseID,
		apiKey:     cfg.APIKey,
		tables:     tables,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "airtable_client")),
	}
}

// --- Records API ---

// Create создаёт запись с полями fields.
func (c *Client) Create(ctx context.Context, kind Kind, fields map[string]any) (*Record, error) {
	resp, err := c.do(ctx, kind, http.MethodPost, "", nil, fieldsRequest{Fields: compact(fields)})
	if err != nil {
		return nil, c.fail(kind, "create", err)
	}

	var rec Record
	if err := decodeResponse(resp, &rec); err != nil {
		return nil, c.fail(kind, "create", err)
	}

	c.ok(kind, "create")
	c.logger.Debug("Запись создана",
		slog.String("kind", string(kind)),
		slog.String("id", rec.ID),
	)
	return &rec, nil
}

// Get возвращает запись по идентификатору. Несуществующая запись — ErrNotFound.
func (c *Client) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	resp, err := c.do(ctx, kind, http.MethodGet, id, nil, nil)
	if err != nil {
		return nil, c.fail(kind, "get", err)
	}

	var rec Record
	if err := decodeResponse(resp, &rec); err != nil {
		return nil, c.fail(kind, "get", err)
	}

	c.ok(kind, "get")
	return &rec, nil
}

// Update частично обновляет запись (PATCH).
// Ключи с nil-значением не отправляются: отсутствующие поля не меняются.
func (c *Client) Update(ctx context.Context, kind Kind, id string, fields map[string]any) (*Record, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	resp, err := c.do(ctx, kind, http.MethodPatch, id, nil, fieldsRequest{Fields: compact(fields)})
	if err != nil {
		return nil, c.fail(kind, "update", err)
	}

	var rec Record
	if err := decodeResponse(resp, &rec); err != nil {
		return nil, c.fail(kind, "update", err)
	}

	c.ok(kind, "update")
	return &rec, nil
}

// Delete удаляет запись.
func (c *Client) Delete(ctx context.Context, kind Kind, id string) error {
	if id == "" {
		return ErrNotFound
	}

	resp, err := c.do(ctx, kind, http.MethodDelete, id, nil, nil)
	if err != nil {
		return c.fail(kind, "delete", err)
	}

	var del deleteResponse
	if err := decodeResponse(resp, &del); err != nil {
		return c.fail(kind, "delete", err)
	}
	if !del.Deleted {
		return c.fail(kind, "delete", fmt.Errorf("Airtable не подтвердил удаление %s", id))
	}

	c.ok(kind, "delete")
	return nil
}

// List возвращает записи, удовлетворяющие opts. Обходит все страницы
// по курсору offset, пока он не исчерпан или не набрано MaxRecords.
func (c *Client) List(ctx context.Context, kind Kind, opts ListOptions) ([]Record, error) {
	records := make([]Record, 0)
	offset := ""

	for {
		query := listQuery(opts, offset)

		resp, err := c.do(ctx, kind, http.MethodGet, "", query, nil)
		if err != nil {
			return nil, c.fail(kind, "list", err)
		}

		var page listResponse
		if err := decodeResponse(resp, &page); err != nil {
			return nil, c.fail(kind, "list", err)
		}

		records = append(records, page.Records...)

		if opts.MaxRecords > 0 && len(records) >= opts.MaxRecords {
			records = records[:opts.MaxRecords]
			break
		}
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}

	c.ok(kind, "list")
	c.logger.Debug("Записи получены",
		slog.String("kind", string(kind)),
		slog.Int("count", len(records)),
	)
	return records, nil
}

// --- HTTP helpers ---

// tableURL возвращает URL таблицы вида kind.
func (c *Client) tableURL(kind Kind) (string, error) {
	table, ok := c.tables[kind]
	if !ok || table == "" {
		return "", fmt.Errorf("таблица для %q не настроена", kind)
	}
	return c.baseURL + "/" + url.PathEscape(c.baseID) + "/" + url.PathEscape(table), nil
}

// do выполняет авторизованный запрос к таблице kind.
// recordID — пустой для операций над таблицей.
func (c *Client) do(ctx context.Context, kind Kind, method, recordID string, query url.Values, body any) (*http.Response, error) {
	reqURL, err := c.tableURL(kind)
	if err != nil {
		return nil, err
	}
	if recordID != "" {
		reqURL += "/" + url.PathEscape(recordID)
	}
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос к Airtable: %w", err)
	}
	return resp, nil
}

// decodeResponse декодирует JSON ответ в target. 404 — ErrNotFound.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("Airtable API вернул статус %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("декодирование ответа Airtable: %w", err)
	}
	return nil
}

// listQuery формирует параметры запроса list.
func listQuery(opts ListOptions, offset string) url.Values {
	q := url.Values{}
	if opts.Formula != "" {
		q.Set("filterByFormula", opts.Formula)
	}
	if opts.Sort != nil && opts.Sort.Field != "" {
		dir := opts.Sort.Direction
		if dir == "" {
			dir = Asc
		}
		q.Set("sort[0][field]", opts.Sort.Field)
		q.Set("sort[0][direction]", string(dir))
	}
	if opts.MaxRecords > 0 {
		q.Set("maxRecords", strconv.Itoa(opts.MaxRecords))
		q.Set("pageSize", strconv.Itoa(min(opts.MaxRecords, pageSize)))
	}
	if offset != "" {
		q.Set("offset", offset)
	}
	return q
}

// compact возвращает копию fields без nil-значений.
func compact(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func (c *Client) ok(kind Kind, op string) {
	requestsTotal.WithLabelValues(string(kind), op, "ok").Inc()
}

// fail учитывает ошибку в метриках и логирует её. ErrNotFound не логируется.
func (c *Client) fail(kind Kind, op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		requestsTotal.WithLabelValues(string(kind), op, "not_found").Inc()
		return err
	}
	requestsTotal.WithLabelValues(string(kind), op, "error").Inc()
	c.logger.Warn("Ошибка запроса к Airtable",
		slog.String("kind", string(kind)),
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("airtable %s %s: %w", op, kind, err)
}

// --- Readiness checker ---

// CheckReady проверяет доступность Airtable выборкой одной записи таблицы Users.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.List(ctx, KindUsers, ListOptions{MaxRecords: 1}); err != nil {
		return "fail", fmt.Sprintf("Airtable недоступен: %v", err)
	}
	return "ok", "Airtable доступен"
}
