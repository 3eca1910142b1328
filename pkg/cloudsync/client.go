package cloudsync

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

	"github.com/robcohen/peervault/pkg/vaulterr"
)

// ClientConfig points a Client at one bucket endpoint.
type ClientConfig struct {
	Endpoint string // e.g. https://objects.example.com
	Bucket   string
	Creds    Credentials
}

// Client is a minimal signed object-storage client: Put/Get/Delete/List
// against <Endpoint>/<Bucket>/<key>, authenticated per signer.go.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient builds a Client. httpClient may be nil to use http.DefaultClient.
func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient}
}

func (c *Client) objectURL(key string) string {
	return strings.TrimRight(c.cfg.Endpoint, "/") + "/" + c.cfg.Bucket + "/" + key
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeNetworkUnreachable, err)
	}
	signRequest(req, body, c.cfg.Creds, time.Now())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeNetworkUnreachable, err)
	}
	return resp, nil
}

// Put writes body at key, creating or overwriting it.
func (c *Client) Put(ctx context.Context, key string, body []byte) error {
	resp, err := c.do(ctx, http.MethodPut, c.objectURL(key), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return vaulterr.New(vaulterr.CodeNetworkUnreachable, fmt.Sprintf("cloudsync: PUT %s: status %d", key, resp.StatusCode))
	}
	return nil
}

// Get reads key's current content, returning a storage.not-found-flavored
// error (CodeStorageNotFound) on a 404 so callers can treat an absent
// manifest or HEAD ref the same way a fresh local vault does.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, c.objectURL(key), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, vaulterr.New(vaulterr.CodeStorageNotFound, key)
	}
	if resp.StatusCode/100 != 2 {
		return nil, vaulterr.New(vaulterr.CodeNetworkUnreachable, fmt.Sprintf("cloudsync: GET %s: status %d", key, resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeNetworkUnreachable, err)
	}
	return data, nil
}

// Delete removes key. A missing key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.objectURL(key), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return vaulterr.New(vaulterr.CodeNetworkUnreachable, fmt.Sprintf("cloudsync: DELETE %s: status %d", key, resp.StatusCode))
	}
	return nil
}

type listPage struct {
	Keys                  []string `json:"keys"`
	NextContinuationToken string   `json:"nextContinuationToken"`
	IsTruncated           bool     `json:"isTruncated"`
}

// List returns every key under prefix, paginating via continuation tokens
// until the bucket reports IsTruncated=false.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	token := ""
	for {
		q := url.Values{"prefix": {prefix}}
		if token != "" {
			q.Set("continuation-token", token)
		}
		listURL := strings.TrimRight(c.cfg.Endpoint, "/") + "/" + c.cfg.Bucket + "?" + q.Encode()

		resp, err := c.do(ctx, http.MethodGet, listURL, nil)
		if err != nil {
			return nil, err
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return nil, vaulterr.New(vaulterr.CodeNetworkUnreachable, fmt.Sprintf("cloudsync: LIST %s: status %d", prefix, resp.StatusCode))
		}
		if readErr != nil {
			return nil, vaulterr.Wrap(vaulterr.CodeNetworkUnreachable, readErr)
		}

		var page listPage
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, vaulterr.Wrap(vaulterr.CodeStorageCorrupt, err)
		}
		keys = append(keys, page.Keys...)
		if !page.IsTruncated || page.NextContinuationToken == "" {
			break
		}
		token = page.NextContinuationToken
	}
	return keys, nil
}
