package primexsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// RemoteGateway is the Primex fetch contract. The engine treats it as
// an opaque collaborator: no retries, no auth knowledge.
type RemoteGateway interface {
	FetchCatalog(ctx context.Context) ([]CatalogRow, error)
	FetchStock(ctx context.Context, skus []string) ([]StockRow, error)
	FetchDiscountCards(ctx context.Context) ([]CardRow, error)
}

type primexClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

// NewClient builds the production gateway from env:
// PRIMEX_API_BASE_URL, PRIMEX_API_KEY, PRIMEX_API_KEY_HEADER,
// PRIMEX_RATE_LIMIT_PER_MIN.
func NewClient() (RemoteGateway, error) {
	baseURL := strings.TrimSpace(os.Getenv("PRIMEX_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.primex.io"
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("PRIMEX_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	apiKey := strings.TrimSpace(os.Getenv("PRIMEX_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("primex api key is empty")
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("PRIMEX_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &primexClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

type primexListResponse struct {
	Data       []json.RawMessage `json:"data"`
	Items      []json.RawMessage `json:"items"`
	NextCursor string            `json:"next_cursor"`
	HasMore    *bool             `json:"has_more"`
}

func (c *primexClient) getList(ctx context.Context, path string, params url.Values) (primexListResponse, error) {
	<-c.limiter
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return primexListResponse{}, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return primexListResponse{}, remoteFault(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return primexListResponse{}, remoteFault(fmt.Errorf("primex api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var parsed primexListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return primexListResponse{}, remoteFault(err)
	}
	return parsed, nil
}

// fetchAll walks the cursor pages of one endpoint and accumulates the
// raw rows. The step protocol fetches the whole dataset once at init,
// so there is no partial-page state to carry.
func (c *primexClient) fetchAll(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("limit", "200")

	var rows []json.RawMessage
	cursor := ""
	for {
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		resp, err := c.getList(ctx, path, params)
		if err != nil {
			return nil, err
		}
		page := resp.Data
		if len(page) == 0 {
			page = resp.Items
		}
		rows = append(rows, page...)

		if resp.NextCursor == "" || (resp.HasMore != nil && !*resp.HasMore) {
			return rows, nil
		}
		cursor = resp.NextCursor
	}
}

func (c *primexClient) FetchCatalog(ctx context.Context) ([]CatalogRow, error) {
	raw, err := c.fetchAll(ctx, "/v1/catalog/items", nil)
	if err != nil {
		return nil, err
	}
	rows := make([]CatalogRow, 0, len(raw))
	for _, r := range raw {
		var row CatalogRow
		if err := json.Unmarshal(r, &row); err != nil {
			// Undecodable rows surface as per-row errors downstream;
			// keep the sku empty so the processor counts them.
			rows = append(rows, CatalogRow{})
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *primexClient) FetchStock(ctx context.Context, skus []string) ([]StockRow, error) {
	params := url.Values{}
	if len(skus) > 0 {
		params.Set("skus", strings.Join(skus, ","))
	}
	raw, err := c.fetchAll(ctx, "/v1/stock", params)
	if err != nil {
		return nil, err
	}
	rows := make([]StockRow, 0, len(raw))
	for _, r := range raw {
		var row StockRow
		if err := json.Unmarshal(r, &row); err != nil {
			rows = append(rows, StockRow{})
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *primexClient) FetchDiscountCards(ctx context.Context) ([]CardRow, error) {
	raw, err := c.fetchAll(ctx, "/v1/cards", nil)
	if err != nil {
		return nil, err
	}
	rows := make([]CardRow, 0, len(raw))
	for _, r := range raw {
		var row CardRow
		if err := json.Unmarshal(r, &row); err != nil {
			rows = append(rows, CardRow{})
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
