// Package remote implements clients for the remote content API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"mirror-go/internal/mirror"
	"mirror-go/internal/model"
)

// TotalPagesHeader carries the page count of a listing.
const TotalPagesHeader = "X-Total-Pages"

// maxErrorBody bounds how much of an error response is kept as detail.
const maxErrorBody = 4 << 10

// HTTPRemote talks to the REST content API.
type HTTPRemote struct {
	baseURL    *url.URL
	authHeader string
	client     *http.Client
}

// NewHTTPRemote creates a client for the API rooted at baseURL. authHeader
// is sent verbatim as the Authorization header when non-empty. A nil client
// uses http.DefaultClient; timeouts are applied per call by the caller's context.
func NewHTTPRemote(baseURL, authHeader string, client *http.Client) (*HTTPRemote, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing remote base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote base url must be http or https, got %q", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRemote{baseURL: u, authHeader: authHeader, client: client}, nil
}

// apiError is the error body returned by the API.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *HTTPRemote) endpoint(query url.Values, segments ...string) string {
	u := h.baseURL.JoinPath(segments...)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func pageQuery(page, perPage int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	return q
}

// do sends a request and decodes a 2xx JSON body into out (when non-nil).
// Every failure is returned as a *mirror.RemoteError.
func (h *HTTPRemote) do(ctx context.Context, method, target string, body any, out any) (http.Header, error) {
	op := method + " " + target

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &mirror.RemoteError{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &mirror.RemoteError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.authHeader != "" {
		req.Header.Set("Authorization", h.authHeader)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &mirror.RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.Header, responseError(op, resp)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, &mirror.RemoteError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
		}
	}
	return resp.Header, nil
}

func responseError(op string, resp *http.Response) error {
	rErr := &mirror.RemoteError{Op: op, StatusCode: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body apiError
	if err := json.Unmarshal(data, &body); err == nil && (body.Code != "" || body.Message != "") {
		rErr.Code = body.Code
		rErr.Detail = body.Message
	} else {
		rErr.Detail = strings.TrimSpace(string(data))
	}
	return rErr
}

func totalPages(header http.Header) int {
	n, err := strconv.Atoi(header.Get(TotalPagesHeader))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// List fetches one page of resources of a type.
func (h *HTTPRemote) List(ctx context.Context, resourceType string, page, perPage int) (*model.RemotePage, error) {
	var items []model.RemoteResource
	header, err := h.do(ctx, http.MethodGet, h.endpoint(pageQuery(page, perPage), "resources", resourceType), nil, &items)
	if err != nil {
		return nil, err
	}
	return &model.RemotePage{Items: items, TotalPages: totalPages(header)}, nil
}

// Get fetches a single resource.
func (h *HTTPRemote) Get(ctx context.Context, resourceType string, id int64) (*model.RemoteResource, error) {
	var r model.RemoteResource
	if _, err := h.do(ctx, http.MethodGet, h.resourceURL(resourceType, id), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Create posts a new resource.
func (h *HTTPRemote) Create(ctx context.Context, resourceType string, r model.RemoteResource) (*model.RemoteResource, error) {
	r.ID = 0
	var out model.RemoteResource
	if _, err := h.do(ctx, http.MethodPost, h.endpoint(nil, "resources", resourceType), r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces a resource.
func (h *HTTPRemote) Update(ctx context.Context, resourceType string, id int64, r model.RemoteResource) (*model.RemoteResource, error) {
	r.ID = id
	var out model.RemoteResource
	if _, err := h.do(ctx, http.MethodPut, h.resourceURL(resourceType, id), r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a resource.
func (h *HTTPRemote) Delete(ctx context.Context, resourceType string, id int64) error {
	_, err := h.do(ctx, http.MethodDelete, h.resourceURL(resourceType, id), nil, nil)
	return err
}

// ListTerms fetches one page of term definitions.
func (h *HTTPRemote) ListTerms(ctx context.Context, taxonomy string, page, perPage int) (*model.TermPage, error) {
	var items []model.RemoteTerm
	header, err := h.do(ctx, http.MethodGet, h.endpoint(pageQuery(page, perPage), "terms", taxonomy), nil, &items)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Taxonomy == "" {
			items[i].Taxonomy = taxonomy
		}
	}
	return &model.TermPage{Items: items, TotalPages: totalPages(header)}, nil
}

func (h *HTTPRemote) resourceURL(resourceType string, id int64) string {
	return h.endpoint(nil, "resources", resourceType, strconv.FormatInt(id, 10))
}

var _ mirror.Remote = (*HTTPRemote)(nil)
