package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// HTTPClient implements Client against a REST document store that uses
// entity tags for concurrency control (If-Match preconditions on writes,
// ETag responses on record listings).
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

type HTTPClientOptions struct {
	// Client is used for all requests, and is where authentication
	// should be wired in. Defaults to http.DefaultClient.
	Client *http.Client
	Logger *slog.Logger
}

func NewHTTPClient(baseURL string, opts HTTPClientOptions) *HTTPClient {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// Interface guard.
var _ Client = &HTTPClient{}

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

type errorBody struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *HTTPClient) Attributes(
	ctx context.Context, loc Location,
) (*Attributes, error) {
	var env dataEnvelope[Attributes]

	err := c.getJSON(ctx, c.collectionURL(loc), &env)
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", loc, err)
	}

	return &env.Data, nil
}

func (c *HTTPClient) PatchAttributes(
	ctx context.Context, loc Location,
	patch AttributesPatch, ifMatch int64,
) (*Attributes, error) {
	body, err := json.Marshal(dataEnvelope[AttributesPatch]{Data: patch})
	if err != nil {
		return nil, fmt.Errorf("marshal attributes patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx,
		http.MethodPatch, c.collectionURL(loc), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create patch request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("If-Match", strconv.Quote(strconv.FormatInt(ifMatch, 10)))

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("patch collection %s: %w", loc, err)
	}

	defer res.Body.Close()

	err = c.interpretResponse(res, c.collectionURL(loc))
	if err != nil {
		return nil, fmt.Errorf("patch collection %s: %w", loc, err)
	}

	var env dataEnvelope[Attributes]

	err = json.NewDecoder(res.Body).Decode(&env)
	if err != nil {
		return nil, fmt.Errorf("decode patched attributes: %w", err)
	}

	return &env.Data, nil
}

func (c *HTTPClient) RecordsCheckpoint(
	ctx context.Context, loc Location,
) (string, error) {
	req, err := http.NewRequestWithContext(ctx,
		http.MethodHead, c.recordsURL(loc, nil), nil)
	if err != nil {
		return "", fmt.Errorf("create checkpoint request: %w", err)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get records checkpoint for %s: %w", loc, err)
	}

	defer res.Body.Close()

	err = c.interpretResponse(res, c.recordsURL(loc, nil))
	if err != nil {
		return "", fmt.Errorf("get records checkpoint for %s: %w", loc, err)
	}

	return res.Header.Get("ETag"), nil
}

func (c *HTTPClient) RecordsSince(
	ctx context.Context, loc Location,
	since int64, fields []string,
) ([]Record, error) {
	query := url.Values{}

	query.Set("_since", strconv.FormatInt(since, 10))

	if len(fields) > 0 {
		query.Set("_fields", strings.Join(fields, ","))
	}

	records, err := c.listRecords(ctx, loc, query)
	if err != nil {
		return nil, fmt.Errorf("list changed records in %s: %w", loc, err)
	}

	return records, nil
}

func (c *HTTPClient) Records(
	ctx context.Context, loc Location,
) ([]Record, error) {
	records, err := c.listRecords(ctx, loc, nil)
	if err != nil {
		return nil, fmt.Errorf("list records in %s: %w", loc, err)
	}

	return records, nil
}

func (c *HTTPClient) listRecords(
	ctx context.Context, loc Location, query url.Values,
) ([]Record, error) {
	var env dataEnvelope[[]Record]

	err := c.getJSON(ctx, c.recordsURL(loc, query), &env)
	if err != nil {
		return nil, err
	}

	return env.Data, nil
}

func (c *HTTPClient) ServerCapabilities(
	ctx context.Context,
) (Capabilities, error) {
	var root struct {
		Capabilities Capabilities `json:"capabilities"`
	}

	err := c.getJSON(ctx, c.baseURL+"/", &root)
	if err != nil {
		return nil, fmt.Errorf("get server info: %w", err)
	}

	return root.Capabilities, nil
}

func (c *HTTPClient) GroupMembers(
	ctx context.Context, bucket, group string,
) ([]string, error) {
	groupURL := fmt.Sprintf("%s/buckets/%s/groups/%s",
		c.baseURL, url.PathEscape(bucket), url.PathEscape(group))

	var env dataEnvelope[struct {
		ID      string   `json:"id"`
		Members []string `json:"members"`
	}]

	err := c.getJSON(ctx, groupURL, &env)
	if err != nil {
		return nil, fmt.Errorf("get group %s/%s: %w", bucket, group, err)
	}

	return env.Data.Members, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, reqURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}

	defer res.Body.Close()

	err = c.interpretResponse(res, reqURL)
	if err != nil {
		return err
	}

	err = json.NewDecoder(res.Body).Decode(v)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// interpretResponse maps store error responses to the error kinds callers
// need to branch on. The response body is only consumed for non-2xx
// statuses.
func (c *HTTPClient) interpretResponse(res *http.Response, resource string) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	var body errorBody

	data, err := io.ReadAll(io.LimitReader(res.Body, 8*1024))
	if err == nil {
		// A plain text or empty body just means we fall back to the
		// HTTP status below.
		_ = json.Unmarshal(data, &body)
	}

	message := body.Message
	if message == "" {
		message = res.Status
	}

	switch res.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", message, ErrNotFound)
	case http.StatusPreconditionFailed:
		return ConflictError{
			Location: locationFromResource(resource),
			Message:  message,
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		return PermissionError{
			Resource: resource,
			Message:  message,
		}
	}

	return fmt.Errorf("error response from server: %s", message)
}

func (c *HTTPClient) collectionURL(loc Location) string {
	return fmt.Sprintf("%s/buckets/%s/collections/%s",
		c.baseURL,
		url.PathEscape(loc.Bucket),
		url.PathEscape(loc.Collection))
}

func (c *HTTPClient) recordsURL(loc Location, query url.Values) string {
	recordsURL := c.collectionURL(loc) + "/records"

	if len(query) > 0 {
		recordsURL += "?" + query.Encode()
	}

	return recordsURL
}

func locationFromResource(resource string) Location {
	var loc Location

	parts := strings.Split(resource, "/")

	for i := 0; i < len(parts)-1; i++ {
		switch parts[i] {
		case "buckets":
			loc.Bucket = parts[i+1]
		case "collections":
			loc.Collection = parts[i+1]
		}
	}

	if loc.Bucket == "" {
		loc = Location{Bucket: resource}
	}

	return loc
}
