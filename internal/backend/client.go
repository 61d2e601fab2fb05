/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package backend is the HTTP client the CLI uses to talk to a running
// NebulaScreen server.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nebulascreen/internal/catalog"
	"nebulascreen/internal/domain"
)

// ErrUnauthorized is returned for 401 responses, e.g. an expired token.
var ErrUnauthorized = errors.New("backend: not logged in or token expired")

// APIError is a failure envelope returned by the server.
type APIError struct {
	Status  int
	Message string
	Details json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client talks to the NebulaScreen HTTP API.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a client. baseURL may include a trailing slash; a
// non-positive timeout uses 10s.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: resp.Status}
		}
		return fmt.Errorf("server %s %s: decode response: %w", method, u.Path, err)
	}
	if !env.Success || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: env.Message, Details: env.Details}
	}
	if dest == nil {
		return nil
	}
	return json.Unmarshal(env.Data, dest)
}

// LoginResult mirrors the login response.
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
}

// Login exchanges credentials for a token. The client keeps using the token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var res LoginResult
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/users/login", in, &res); err != nil {
		return nil, err
	}
	c.Token = res.Token
	return &res, nil
}

// Profile returns the user behind the token.
func (c *Client) Profile(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := c.do(ctx, http.MethodGet, "/api/users/profile", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Projects lists projects the user created or is a member of.
func (c *Client) Projects(ctx context.Context, page, pageSize int) ([]*domain.Project, error) {
	var res struct {
		Items []*domain.Project `json:"items"`
	}
	path := "/api/projects?" + pageQuery(page, pageSize).Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// Project fetches one project including its document.
func (c *Client) Project(ctx context.Context, id string) (*domain.Project, error) {
	var p domain.Project
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Templates returns one page of catalog templates, optionally by category.
func (c *Client) Templates(ctx context.Context, category string, page, pageSize int) (catalog.Page[domain.Template], error) {
	var res catalog.Page[domain.Template]
	q := pageQuery(page, pageSize)
	if category != "" {
		q.Set("category", category)
	}
	err := c.do(ctx, http.MethodGet, "/api/catalog/templates?"+q.Encode(), nil, &res)
	return res, err
}

// Search fuzzy-searches the widget palette.
func (c *Client) Search(ctx context.Context, query string) ([]catalog.Hit, error) {
	var hits []catalog.Hit
	q := url.Values{"q": {query}}
	if err := c.do(ctx, http.MethodGet, "/api/catalog/search?"+q.Encode(), nil, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// ServerVersion reports the version of the server.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	var v struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/version", nil, &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

func pageQuery(page, size int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if size > 0 {
		q.Set("pageSize", strconv.Itoa(size))
	}
	return q
}
