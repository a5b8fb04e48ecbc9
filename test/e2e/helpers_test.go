package e2e_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"testing"
)

func doRequest(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, env.baseURL+path, reader)
	if err != nil {
		t.Fatalf("create %s request: %v", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := env.httpClient.Do(req)
	if err != nil {
		t.Fatalf("execute %s request: %v", method, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	t.Logf("%s %s -> %d", method, path, resp.StatusCode)
	return resp
}

func doGet(t *testing.T, path string) *http.Response { return doRequest(t, http.MethodGet, path, nil) }

func doPost(t *testing.T, path string, body interface{}) *http.Response {
	return doRequest(t, http.MethodPost, path, body)
}

func doPut(t *testing.T, path string, body interface{}) *http.Response {
	return doRequest(t, http.MethodPut, path, body)
}

func doDelete(t *testing.T, path string) *http.Response {
	return doRequest(t, http.MethodDelete, path, nil)
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d; body: %s", expected, resp.StatusCode, string(body))
	}
}

func assertJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		t.Fatalf("unmarshal response: %v; body: %s", err, string(body))
	}
}

func taxonQuery(path string) string { return "?taxon=" + url.QueryEscape(path) }

// resetView returns the shared server to its default view.
func resetView(t *testing.T) {
	t.Helper()
	assertStatus(t, doPost(t, "/api/v1/view/reset", nil), http.StatusOK)
}
