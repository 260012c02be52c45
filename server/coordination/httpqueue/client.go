package httpqueue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/coordination"
	"github.com/tidwall/gjson"
)

// Client talks to a coordination server over HTTP and implements
// coordination.WorkQueue. Keys are passed as query parameters because work
// keys contain '/' and '|' separators that path routing would mangle.
type Client struct {
	baseURL    string
	queueName  string
	httpClient *http.Client
}

// NewClient creates a client for one queue on the given endpoint,
// e.g. http://127.0.0.1:2852.
func NewClient(endpoint, queueName string) *Client {
	return &Client{
		baseURL:   endpoint,
		queueName: queueName,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewClientWithHTTP creates a client using the supplied http.Client; tests
// pair it with httptest servers.
func NewClientWithHTTP(endpoint, queueName string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    endpoint,
		queueName:  queueName,
		httpClient: httpClient,
	}
}

func (c *Client) nodesURL() string {
	return fmt.Sprintf("%s/v1/queues/%s/nodes", c.baseURL, url.PathEscape(c.queueName))
}

func (c *Client) nodeURL(key string) string {
	return fmt.Sprintf("%s/v1/queues/%s/node?key=%s",
		c.baseURL, url.PathEscape(c.queueName), url.QueryEscape(key))
}

// AddWork creates the work node under the queue root.
func (c *Client) AddWork(ctx context.Context, key string, payload []byte) error {
	status, body, err := c.do(ctx, http.MethodPut, c.nodeURL(key), payload)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated, http.StatusOK:
		return nil
	default:
		return conditionError(status, body).AddContext("key", key)
	}
}

// ListKeys returns all work keys under the queue root.
func (c *Client) ListKeys(ctx context.Context) ([]string, error) {
	status, body, err := c.do(ctx, http.MethodGet, c.nodesURL(), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, conditionError(status, body)
	}

	nodes := gjson.GetBytes(body, "nodes")
	if !nodes.Exists() {
		return nil, errors.New(coordination.ErrRequestFailed, "queue listing response missing nodes field", nil)
	}
	keys := make([]string, 0, len(nodes.Array()))
	for _, node := range nodes.Array() {
		keys = append(keys, node.String())
	}
	return keys, nil
}

// Exists probes one work key. A missing node is not an error; a missing
// queue root is.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, c.nodeURL(key), nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		if gjson.GetBytes(body, "code").String() == "node_absent" {
			return false, nil
		}
		return false, conditionError(status, body).AddContext("key", key)
	default:
		return false, conditionError(status, body).AddContext("key", key)
	}
}

// RemoveWork deletes the work node.
func (c *Client) RemoveWork(ctx context.Context, key string) error {
	status, body, err := c.do(ctx, http.MethodDelete, c.nodeURL(key), nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusNoContent, http.StatusOK:
		return nil
	default:
		return conditionError(status, body).AddContext("key", key)
	}
}

func (c *Client) do(ctx context.Context, method, requestURL string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return 0, nil, errors.New(coordination.ErrRequestFailed, "failed to build coordination request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, errors.New(coordination.ErrUnavailable, "coordination server unreachable", err).
			AddContext("endpoint", c.baseURL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.New(coordination.ErrRequestFailed, "failed to read coordination response", err)
	}
	return resp.StatusCode, body, nil
}

// conditionError maps a non-success response onto the queue's coded errors
// using the condition code the server embeds in the body.
func conditionError(status int, body []byte) *errors.Error {
	code := gjson.GetBytes(body, "code").String()
	message := gjson.GetBytes(body, "message").String()
	if message == "" {
		message = "coordination request failed"
	}

	switch code {
	case "root_absent":
		return errors.New(coordination.ErrRootAbsent, message, nil).
			AddContext("http_status", fmt.Sprintf("%d", status))
	case "node_absent":
		return errors.New(coordination.ErrNodeAbsent, message, nil).
			AddContext("http_status", fmt.Sprintf("%d", status))
	default:
		return errors.New(coordination.ErrRequestFailed, message, nil).
			AddContext("http_status", fmt.Sprintf("%d", status))
	}
}
