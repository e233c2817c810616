/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package studio

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeJob(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "job.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadJobValidates(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadJob(writeJob(t, dir, "out: x\n")); err == nil {
		t.Fatalf("job without product accepted")
	}
	if _, err := LoadJob(writeJob(t, dir, "product: tote\n")); err == nil {
		t.Fatalf("job without out accepted")
	}
	j, err := LoadJob(writeJob(t, dir, "product: tote\nout: build\nfields:\n  name: {text: Ada}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if j.Fields["name"].Text != "Ada" || j.path("build") != filepath.Join(dir, "build") {
		t.Fatalf("job = %+v", j)
	}
}

func TestRunJobExportsBundle(t *testing.T) {
	e := newEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "logo.png"), pngBytes(t, 40, 20, color.Black), 0o644); err != nil {
		t.Fatal(err)
	}
	j, err := LoadJob(writeJob(t, dir, `product: tote
template: tote-basic
fields:
  name: {text: Ada}
  logo: {file: logo.png}
texts: ["Since 2024"]
quantity: 25
out: build
`))
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.studio.RunJob(ctxT(t), j, false)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if len(res.Written) != 4 {
		t.Fatalf("written = %v", res.Written)
	}
	for _, p := range res.Written {
		if !strings.HasPrefix(p, filepath.Join(dir, "build")) {
			t.Fatalf("unexpected path %s", p)
		}
		if st, err := os.Stat(p); err != nil || st.Size() == 0 {
			t.Fatalf("%s: %v", p, err)
		}
	}
	if res.Checkout != nil || len(e.cart.items) != 0 {
		t.Fatalf("cart called without checkout")
	}
	if n := len(res.Record.CustomFields); n != 3 {
		t.Fatalf("custom fields = %d", n)
	}

	co, err := e.studio.RunJob(ctxT(t), j, true)
	if err != nil {
		t.Fatalf("RunJob checkout: %v", err)
	}
	if co.Checkout == nil || len(e.cart.items) != 1 || e.cart.items[0].Quantity != 25 {
		t.Fatalf("checkout = %+v", co.Checkout)
	}
}
