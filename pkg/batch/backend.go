package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/pkg/credentials"
)

// DefaultAPIVersion is the speech-to-text REST version used when none is configured.
const DefaultAPIVersion = "v3.1"

// RegionEndpoint returns the speech-to-text REST base URL of an Azure region.
func RegionEndpoint(region, version string) string {
	if version == "" {
		version = DefaultAPIVersion
	}
	return fmt.Sprintf("https://%s.api.cognitive.microsoft.com/speechtotext/%s", region, version)
}

// Backend is an interface for making calls against the batch transcription
// service. It exists so the client can be exercised against fakes.
type Backend interface {
	// Call sends in as JSON (if non-nil), decodes the response into out (if
	// non-nil) and returns the response headers. path may be relative to the
	// base URL, rooted, or absolute.
	Call(ctx context.Context, method, path string, in, out any) (http.Header, error)

	// Download fetches a result payload. rawURL is a pre-signed URL, so no
	// service credentials are attached.
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// BackendConfiguration is the HTTP implementation of Backend.
type BackendConfiguration struct {
	BaseURL    string
	HTTPClient *http.Client
	Auth       credentials.Authorizer
	Log        *logrus.Entry
}

// NewBackend returns a Backend for baseURL. httpClient is optional.
func NewBackend(baseURL string, auth credentials.Authorizer, httpClient *http.Client, log *logrus.Entry) *BackendConfiguration {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &BackendConfiguration{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: httpClient,
		Auth:       auth,
		Log:        log,
	}
}

// Call implements Backend.
func (s *BackendConfiguration) Call(ctx context.Context, method, path string, in, out any) (http.Header, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := s.NewRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if s.Auth != nil {
		if err := s.Auth.Apply(ctx, req); err != nil {
			return nil, err
		}
	}

	return s.Do(req, out)
}

// Download implements Backend.
func (s *BackendConfiguration) Download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	res, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, newAPIError(res.StatusCode, data)
	}
	return data, nil
}

// NewRequest builds a request for path, resolved against the base URL.
func (s *BackendConfiguration) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	target, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// Do executes req and unmarshals a successful response into v. Non-2xx
// responses are returned as *APIError.
func (s *BackendConfiguration) Do(req *http.Request, v any) (http.Header, error) {
	s.Log.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL.Redacted(),
	}).Debug("calling speech service")

	res, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return res.Header, err
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return res.Header, newAPIError(res.StatusCode, resBody)
	}

	if v != nil && len(bytes.TrimSpace(resBody)) > 0 {
		if err := json.Unmarshal(resBody, v); err != nil {
			return res.Header, fmt.Errorf("decode response: %w", err)
		}
	}

	return res.Header, nil
}

// resolve turns a relative, rooted or absolute path into a full URL. Rooted
// paths that already carry the base path (as continuation links do) are
// resolved against the host only.
func (s *BackendConfiguration) resolve(p string) (string, error) {
	u, err := url.Parse(p)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", p, err)
	}
	if u.IsAbs() {
		return p, nil
	}

	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", s.BaseURL, err)
	}

	if !strings.HasPrefix(p, "/") {
		return s.BaseURL + "/" + p, nil
	}
	if base.Path != "" && strings.HasPrefix(p, base.Path+"/") {
		return base.Scheme + "://" + base.Host + p, nil
	}
	return s.BaseURL + p, nil
}
