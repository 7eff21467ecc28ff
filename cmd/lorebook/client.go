// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// defaultHTTPClient is used by every client command. Tests swap it for an
// httptest client.
var defaultHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

// apiClient talks to a running lorebook server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(addr string) *apiClient {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &apiClient{baseURL: strings.TrimRight(base, "/"), http: defaultHTTPClient}
}

// addAddressFlag registers --address on a client command.
func addAddressFlag(cmd *cobra.Command) {
	cmd.Flags().String("address", "", "server address (default: derived from networking.listen)")
}

// clientFor returns a client for --address, falling back to the configured
// listen address.
func clientFor(cmd *cobra.Command, v *viper.Viper) *apiClient {
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = dialAddress(v.GetString("networking.listen"))
	}
	return newAPIClient(addr)
}

// dialAddress turns a listen address into one a client can connect to.
func dialAddress(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// do sends a request and decodes a JSON response into dest when dest is
// non-nil. It returns the response headers.
func (c *apiClient) do(ctx context.Context, method, path string, body, dest any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, lberr.Wrap(err, lberr.CodeCLIInputInvalid, "encoding request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, lberr.Wrap(err, lberr.CodeCLIInputInvalid, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return nil, lberr.Errorf(lberr.CodeCLIServerNotRunning, "lorebook server at %s is not running (connection refused)", c.baseURL)
		}
		return nil, lberr.Wrap(err, lberr.CodeCLIRequestFailure, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.Header, responseError(resp)
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return resp.Header, lberr.Wrap(err, lberr.CodeCLIResponseInvalid, "invalid response")
		}
	}
	return resp.Header, nil
}

func (c *apiClient) getJSON(ctx context.Context, path string, dest any) error {
	_, err := c.do(ctx, http.MethodGet, path, nil, dest)
	return err
}

// responseError turns a non-2xx response into an error carrying the
// server's {"error": ...} message when there is one.
func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}

	code := lberr.CodeCLIRequestFailure
	if resp.StatusCode == http.StatusNotFound {
		code = lberr.CodeServerEntityNotFound
	}
	return lberr.New(code, "server returned "+resp.Status+": "+msg, lberr.Field("status", resp.StatusCode))
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}

func entryPath(id string) string {
	return "/entry/" + url.PathEscape(id)
}
