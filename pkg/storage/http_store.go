package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
	"github.com/felixgeelhaar/ganttly/pkg/domain/version"
	"golang.org/x/oauth2"
)

// StatusError is a non-2xx response from the REST backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// IsRetryable reports whether a store error is worth retrying: network
// failures and 5xx responses are, 4xx rejections are not. This is the
// default classifier the save queue is wired with.
func IsRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

// HTTPStoreOption configures an HTTPStore.
type HTTPStoreOption func(*HTTPStore)

// WithTokenSource authenticates requests with the given oauth2 source.
func WithTokenSource(ts oauth2.TokenSource) HTTPStoreOption {
	return func(s *HTTPStore) {
		s.client = oauth2.NewClient(context.Background(), ts)
	}
}

// WithHTTPClient overrides the underlying client.
func WithHTTPClient(c *http.Client) HTTPStoreOption {
	return func(s *HTTPStore) {
		s.client = c
	}
}

// WithRequestTimeout bounds each attempt.
func WithRequestTimeout(d time.Duration) HTTPStoreOption {
	return func(s *HTTPStore) {
		s.requestTimeout = d
	}
}

// HTTPStore is the client-side RemoteStore speaking to the REST
// backend. Each call retries transient failures with exponential
// backoff before surfacing an error to the engines above it.
type HTTPStore struct {
	baseURL        string
	client         *http.Client
	retryCfg       retry.Config
	requestTimeout time.Duration
}

var _ RemoteStore = (*HTTPStore)(nil)

// NewHTTPStore builds a store client for the given base URL.
func NewHTTPStore(baseURL string, opts ...HTTPStoreOption) *HTTPStore {
	s := &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		retryCfg: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  200 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
		requestTimeout: 30 * time.Second,
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

// call performs one JSON round-trip with timeout and retry. out may be
// nil when the response body does not matter.
func (s *HTTPStore) call(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	t := timeout.New[[]byte](timeout.Config{DefaultTimeout: s.requestTimeout})
	r := retry.New[[]byte](s.retryCfg)

	data, err := t.Execute(ctx, s.requestTimeout, func(ctx context.Context) ([]byte, error) {
		return r.Do(ctx, func(ctx context.Context) ([]byte, error) {
			return s.once(ctx, method, path, payload)
		})
	})
	if err != nil {
		return err
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (s *HTTPStore) once(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		// 4xx responses are returned as-is; the save queue's classifier
		// decides whether they are worth retrying.
		return nil, &StatusError{Code: resp.StatusCode, Message: msg}
	}
	return data, nil
}

func (s *HTTPStore) LoadProject(ctx context.Context, projectID string) (*task.Project, error) {
	var p task.Project
	if err := s.call(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *HTTPStore) Save(ctx context.Context, payload SavePayload) error {
	return s.call(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(payload.ProjectID)+"/save", payload, nil)
}

func (s *HTTPStore) BatchSave(ctx context.Context, payloads []SavePayload) error {
	if len(payloads) == 0 {
		return nil
	}
	return s.call(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(payloads[0].ProjectID)+"/batch-save", payloads, nil)
}

func (s *HTTPStore) ApplyUpdate(ctx context.Context, projectID, id string, change task.Change) (task.Task, error) {
	var t task.Task
	path := "/api/projects/" + url.PathEscape(projectID) + "/tasks/" + url.PathEscape(id)
	if err := s.call(ctx, http.MethodPatch, path, change, &t); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (s *HTTPStore) ApplyBatchUpdate(ctx context.Context, projectID string, items []UpdateItem) ([]task.Task, error) {
	var out []task.Task
	path := "/api/projects/" + url.PathEscape(projectID) + "/tasks"
	if err := s.call(ctx, http.MethodPatch, path, items, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type createVersionRequest struct {
	Description string `json:"description"`
	Automatic   bool   `json:"automatic"`
	Author      string `json:"author"`
}

func (s *HTTPStore) CreateVersion(ctx context.Context, projectID, description string, automatic bool, author string) (*version.Version, error) {
	var v version.Version
	path := "/api/projects/" + url.PathEscape(projectID) + "/versions"
	req := createVersionRequest{Description: description, Automatic: automatic, Author: author}
	if err := s.call(ctx, http.MethodPost, path, req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *HTTPStore) ListVersions(ctx context.Context, projectID string) ([]version.Version, error) {
	var out []version.Version
	path := "/api/projects/" + url.PathEscape(projectID) + "/versions"
	if err := s.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *HTTPStore) RestoreVersion(ctx context.Context, projectID, versionID string) error {
	path := "/api/projects/" + url.PathEscape(projectID) + "/versions/" + url.PathEscape(versionID) + "/restore"
	return s.call(ctx, http.MethodPost, path, nil, nil)
}

func (s *HTTPStore) DeleteVersion(ctx context.Context, projectID, versionID string) error {
	path := "/api/projects/" + url.PathEscape(projectID) + "/versions/" + url.PathEscape(versionID)
	return s.call(ctx, http.MethodDelete, path, nil, nil)
}
