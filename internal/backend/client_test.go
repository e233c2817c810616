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
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bagstudio/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

const productJSON = `{
  "id": "tote-01", "name": "Canvas tote", "category": "bags",
  "images": [{"id": "f", "url": "https://cdn/tote-front.jpg", "view": "front"}, {"id": "b", "url": "https://cdn/tote-back.jpg", "view": "back"}],
  "pricingTiers": [{"minQuantity": 50, "maxQuantity": 99, "price": "2.00"}, {"minQuantity": 100, "price": 1.5}],
  "basePrice": "3.00", "currency": "USD", "minimumOrder": 10, "inStock": true
}`

func newServer(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Endpoints{Catalog: srv.URL + "/", Assets: srv.URL + "/assets", Cart: srv.URL}, "tok", time.Second)
	return c, srv
}

func TestGetProduct(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/tote-01" || r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, productJSON)
	})
	p, err := c.GetProduct(context.Background(), "tote-01")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.Category != "bags" || len(p.Images) != 2 || len(p.PricingTiers) != 2 || p.MinimumOrder != 10 {
		t.Fatalf("product = %+v", p)
	}
	if !p.PricingTiers[1].Price.Equal(decimal.RequireFromString("1.5")) || p.PricingTiers[1].MaxQuantity != nil {
		t.Fatalf("tier = %+v", p.PricingTiers[1])
	}
	if !p.BasePrice.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("base price = %s", p.BasePrice)
	}
}

func TestGetProductValidatesPayload(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"x","images":[{"id":"i"}],"pricingTiers":[{"minQuantity":0,"price":1}]}`)
	})
	_, err := c.GetProduct(context.Background(), "x")
	errs := multierr.Errors(err)
	if len(errs) < 3 {
		t.Fatalf("expected category, url and minQuantity failures, got %v", err)
	}
	var ve *domain.ValidationError
	if !errors.As(errs[0], &ve) {
		t.Fatalf("err[0] = %T", errs[0])
	}
	joined := err.Error()
	for _, want := range []string{"product.category", "product.images[0].url", "product.pricingTiers[0].minQuantity"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in %s", want, joined)
		}
	}
}

func TestListTemplates(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"t1","categoryId":"bags","requiredFieldDefs":[{"id":"name","type":"text"}],
			"elementDefs":[{"kind":"text","fieldId":"name","required":true}]},
			{"id":"t2","categoryId":"boxes","requiredFieldDefs":[],"elementDefs":[]}]`)
	})
	list, err := c.ListTemplates(context.Background())
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(list) != 2 || list[0].RequiredFields[0].Type != domain.FieldText || len(list[0].ElementDefs) != 1 {
		t.Fatalf("templates = %+v", list)
	}
	if !strings.Contains(string(list[0].ElementDefs[0]), `"fieldId":"name"`) {
		t.Fatalf("raw def = %s", list[0].ElementDefs[0])
	}
}

func TestUploadAndFetch(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/assets/upload":
			f, hdr, err := r.FormFile("image")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			b, _ := io.ReadAll(f)
			if string(b) != "PNGDATA" || hdr.Header.Get("Content-Type") != "image/png" {
				http.Error(w, "bad part", http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"assetRef": "asset://42"})
		case "/assets/logos/1.png":
			_, _ = io.WriteString(w, "bytes")
		default:
			http.NotFound(w, r)
		}
	})
	ref, err := c.Upload(context.Background(), []byte("PNGDATA"), "image/png")
	if err != nil || ref != "asset://42" {
		t.Fatalf("Upload = %q, %v", ref, err)
	}
	b, err := c.Fetch(context.Background(), "logos/1.png")
	if err != nil || string(b) != "bytes" {
		t.Fatalf("Fetch = %q, %v", b, err)
	}
	var he *HTTPError
	if _, err := c.Fetch(context.Background(), "missing.png"); !errors.As(err, &he) || he.Status != http.StatusNotFound {
		t.Fatalf("Fetch missing = %v", err)
	}
	c.MaxFetchBytes = 2
	if _, err := c.Fetch(context.Background(), "logos/1.png"); err == nil {
		t.Fatalf("oversized asset accepted")
	}
}

func TestUploadRejectsEmptyReference(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})
	if _, err := c.Upload(context.Background(), []byte("x"), "image/png"); domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("Upload = %v", err)
	}
}

func TestAddToCart(t *testing.T) {
	var got domain.CartItem
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/cart/add" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	item := domain.CartItem{ProductID: "tote-01", Quantity: 60, Customization: domain.CustomizationRecord{DesignID: "d1", TemplateID: "t1"}}
	if err := c.AddToCart(context.Background(), item); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	if got.ProductID != "tote-01" || got.Quantity != 60 || got.Customization.DesignID != "d1" {
		t.Fatalf("server got %+v", got)
	}
	if err := c.AddToCart(context.Background(), domain.CartItem{ProductID: "tote-01"}); domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("zero quantity = %v", err)
	}
}

func TestServerErrorsCarryStatus(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "catalog down", http.StatusServiceUnavailable)
	})
	_, err := c.ListTemplates(context.Background())
	var he *HTTPError
	if !errors.As(err, &he) || he.Status != http.StatusServiceUnavailable || he.Body != "catalog down" {
		t.Fatalf("err = %v", err)
	}
}
