/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"reflect"
	"strings"
	"time"

	"bagstudio/internal/domain"
	applog "bagstudio/internal/log"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
)

// Endpoints are the base URLs of the external services.
type Endpoints struct {
	Catalog string
	Assets  string
	Cart    string
}

// Client is a thin JSON client for the catalog, asset and cart services.
type Client struct {
	Endpoints Endpoints
	Token     string // bearer token
	// MaxFetchBytes bounds downloaded asset bodies.
	MaxFetchBytes int64
	client        *http.Client
	log           *slog.Logger
}

// NewClient creates a client. Base URLs may carry a trailing slash.
func NewClient(ep Endpoints, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ep.Catalog = strings.TrimRight(ep.Catalog, "/")
	ep.Assets = strings.TrimRight(ep.Assets, "/")
	ep.Cart = strings.TrimRight(ep.Cart, "/")
	return &Client{
		Endpoints:     ep,
		Token:         token,
		MaxFetchBytes: 20 << 20,
		client:        &http.Client{Timeout: timeout},
		log:           applog.WithComponent("backend"),
	}
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("server %s %s: %d %s", e.Method, e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("server %s %s: %d", e.Method, e.URL, e.Status)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// validatePayload maps validator failures onto ValidationErrors.
func validatePayload(what string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	ves, ok := err.(validator.ValidationErrors)
	if !ok {
		return &domain.ValidationError{Field: what, Reason: err.Error()}
	}
	var out error
	for _, fe := range ves {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		out = multierr.Append(out, &domain.ValidationError{Field: what + "." + ns, Reason: validationMessage(fe)})
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	}
	return "is invalid"
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, dest any) error {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.log.Debug("request", slog.String("method", req.Method), slog.String("url", req.URL.Path),
		slog.Int("status", resp.StatusCode), slog.Duration("took", time.Since(start)))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{Method: req.Method, URL: req.URL.Path, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func (c *Client) doJSON(ctx context.Context, method, rawURL string, in, dest any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, dest)
}

// GetProduct fetches one product with its photos and pricing tiers.
func (c *Client) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	if err := c.doJSON(ctx, http.MethodGet, c.Endpoints.Catalog+"/products/"+url.PathEscape(id), nil, &p); err != nil {
		return domain.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	if err := validatePayload("product", p); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// ListTemplates returns every template; callers filter by category.
func (c *Client) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	var list []domain.Template
	if err := c.doJSON(ctx, http.MethodGet, c.Endpoints.Catalog+"/templates", nil, &list); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	var errs error
	for i := range list {
		errs = multierr.Append(errs, validatePayload(fmt.Sprintf("templates[%d]", i), list[i]))
	}
	if errs != nil {
		return nil, errs
	}
	return list, nil
}

type uploadResponse struct {
	AssetRef string `json:"assetRef" validate:"required"`
}

// Upload posts raw image bytes and returns the stable asset reference.
func (c *Client) Upload(ctx context.Context, raw []byte, mimeType string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(raw); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.Endpoints.Assets+"/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out uploadResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if err := validatePayload("upload", out); err != nil {
		return "", err
	}
	return out.AssetRef, nil
}

// Fetch downloads the bytes behind an asset reference. Relative references
// resolve against the asset service.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	u := ref
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		u = c.Endpoints.Assets + "/" + strings.TrimLeft(ref, "/")
	}
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Method: req.Method, URL: req.URL.Path, Status: resp.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, c.MaxFetchBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > c.MaxFetchBytes {
		return nil, fmt.Errorf("asset %s exceeds %d bytes", ref, c.MaxFetchBytes)
	}
	return b, nil
}

// AddToCart hands the finished design to the cart service.
func (c *Client) AddToCart(ctx context.Context, item domain.CartItem) error {
	if err := validatePayload("cart", item); err != nil {
		return err
	}
	if err := c.doJSON(ctx, http.MethodPost, c.Endpoints.Cart+"/cart/add", item, nil); err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	c.log.Info("added to cart", slog.String("product", item.ProductID), slog.Int("quantity", item.Quantity),
		slog.String("design", item.Customization.DesignID))
	return nil
}
