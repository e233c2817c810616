/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package fields

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bagstudio/internal/assets"
	"bagstudio/internal/domain"
	"bagstudio/internal/loop"
	"bagstudio/internal/scene"
	"bagstudio/internal/vector"

	"go.uber.org/multierr"
)

type fakeUploader struct {
	mu    sync.Mutex
	gate  chan struct{}
	err   error
	calls atomic.Int32
}

func (f *fakeUploader) Upload(ctx context.Context, raw []byte, mime string) (string, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	gate, err := f.gate, f.err
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if mime != "image/png" {
		return "", errors.New("unexpected mime " + mime)
	}
	return "asset://" + string(rune('0'+n)), nil
}

var tpl = domain.Template{
	ID:         "tote-basic",
	CategoryID: "bags",
	RequiredFields: []domain.RequiredFieldDef{
		{ID: "name", Type: domain.FieldText, Label: "Name"},
		{ID: "logo", Type: domain.FieldLogo, Label: "Logo"},
	},
}

type fixture struct {
	loop   *loop.Loop
	scene  *scene.Scene
	binder *Binder
	up     *fakeUploader
	bound  []error
	slotID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{loop: loop.New(), scene: scene.New(scene.Options{}), up: &fakeUploader{}}
	if err := f.scene.SetBackground(scene.Background{Asset: domain.AssetRef{Ref: "front.jpg"}, Width: 1000, Height: 800}); err != nil {
		t.Fatal(err)
	}
	ids, err := f.scene.InsertElements([]domain.SceneElement{
		{Kind: domain.KindText, Text: "Your name", RequiredFieldID: "name", Locked: true, Transform: domain.Transform{X: 400, Y: 400}},
		{Kind: domain.KindPlaceholder, RequiredFieldID: "logo", Locked: true, Width: 120, Height: 80, Label: "Logo",
			Transform: domain.Transform{X: 400, Y: 200}},
	})
	if err != nil {
		t.Fatal(err)
	}
	f.slotID = ids[1]
	f.binder = NewBinder(f.loop, f.scene, f.up, assets.DefaultLimits)
	tp := tpl
	f.binder.Reset(&tp)
	f.binder.OnBound = func(_ string, err error) { f.bound = append(f.bound, err) }
	return f
}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func png(t *testing.T, w, h int) []byte {
	t.Helper()
	b, err := assets.EncodePNG(image.NewRGBA(image.Rect(0, 0, w, h)))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestTextFieldRoutesToElement(t *testing.T) {
	f := newFixture(t)
	if f.binder.IsComplete() {
		t.Fatalf("fresh template should be incomplete")
	}
	if err := f.binder.SetText("name", "Ana"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	el, _ := f.scene.FindByField("name")
	if el.Text != "Ana" || !el.Locked {
		t.Fatalf("bound element = %+v", el)
	}
	missing := multierr.Errors(f.binder.Missing())
	if len(missing) != 1 {
		t.Fatalf("missing = %v", missing)
	}
	var ve *domain.ValidationError
	if !errors.As(missing[0], &ve) || ve.Field != "logo" {
		t.Fatalf("missing[0] = %v", missing[0])
	}
	if err := f.binder.SetText("name", "  "); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.binder.Value("name"); ok {
		t.Fatalf("blank text should unset the value")
	}
}

func TestImageBindingReplacesPlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)
	before := f.scene.Len()
	slotBounds, _ := f.scene.ElementBounds(f.slotID)
	if err := f.binder.SetImage(ctx, "logo", png(t, 200, 100), domain.FieldLogo); err != nil {
		t.Fatalf("SetImage: %v", err)
	}
	if _, ok := f.binder.Value("logo"); ok || !f.binder.Pending("logo") {
		t.Fatalf("value set before upload finished")
	}
	if err := f.loop.Idle(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.bound) != 1 || f.bound[0] != nil {
		t.Fatalf("bound = %v", f.bound)
	}
	el, ok := f.scene.FindByField("logo")
	if !ok || el.Kind != domain.KindImage || !el.Locked || el.ID == f.slotID {
		t.Fatalf("image element = %+v", el)
	}
	got := f.scene.Bounds(el)
	if !vector.NearlyEqual(got.W, slotBounds.W, 1e-9) || !vector.NearlyEqual(got.H, slotBounds.H, 1e-9) ||
		!vector.NearlyEqual(got.X, slotBounds.X, 1e-9) || !vector.NearlyEqual(got.Y, slotBounds.Y, 1e-9) {
		t.Fatalf("image bounds %+v, placeholder %+v", got, slotBounds)
	}
	if f.scene.Len() != before {
		t.Fatalf("element count changed: %d -> %d", before, f.scene.Len())
	}
	v, _ := f.binder.Value("logo")
	if v.Value != "asset://1" || !el.Asset.Stable() {
		t.Fatalf("value = %+v asset = %+v", v, el.Asset)
	}
	if err := f.binder.SetText("name", "Ana"); err != nil {
		t.Fatal(err)
	}
	if !f.binder.IsComplete() {
		t.Fatalf("all fields set but incomplete: %v", f.binder.Missing())
	}
	if err := f.scene.RemoveElement(el.ID); err == nil {
		t.Fatalf("bound image should stay locked")
	}

	if err := f.binder.ClearField("logo"); err != nil {
		t.Fatalf("ClearField: %v", err)
	}
	if f.binder.IsComplete() {
		t.Fatalf("clearing a required image should flip completeness")
	}
	back, _ := f.scene.FindByField("logo")
	if back.Kind != domain.KindPlaceholder || back.ID != f.slotID {
		t.Fatalf("placeholder not restored: %+v", back)
	}
}

func TestUploadFailureBlocksField(t *testing.T) {
	f := newFixture(t)
	f.up.err = errors.New("503")
	ctx := ctxT(t)
	if err := f.binder.SetImage(ctx, "logo", png(t, 10, 10), ""); err != nil {
		t.Fatalf("SetImage: %v", err)
	}
	if err := f.loop.Idle(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.bound) != 1 || domain.CodeOf(f.bound[0]) != domain.CodeAsset || !domain.IsBlocking(f.bound[0]) {
		t.Fatalf("bound = %v", f.bound)
	}
	if _, ok := f.binder.Value("logo"); ok {
		t.Fatalf("failed upload bound a value")
	}
	if el, _ := f.scene.FindByField("logo"); el.Kind != domain.KindPlaceholder {
		t.Fatalf("placeholder replaced after failure")
	}
}

func TestDecodeErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	err := f.binder.SetImage(ctxT(t), "logo", []byte("GIF89a-not-really"), domain.FieldLogo)
	if domain.CodeOf(err) != domain.CodeAsset {
		t.Fatalf("SetImage garbage = %v", err)
	}
	if f.up.calls.Load() != 0 {
		t.Fatalf("undecodable image was uploaded")
	}
}

func TestStaleUploadsAreDropped(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)
	f.up.gate = make(chan struct{})
	if err := f.binder.SetImage(ctx, "logo", png(t, 10, 10), ""); err != nil {
		t.Fatal(err)
	}
	if err := f.scene.SetBackground(scene.Background{Asset: domain.AssetRef{Ref: "other.jpg"}, Width: 500, Height: 500}); err != nil {
		t.Fatal(err)
	}
	close(f.up.gate)
	if err := f.loop.Idle(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.bound) != 0 {
		t.Fatalf("stale upload reported: %v", f.bound)
	}
	if _, ok := f.binder.Value("logo"); ok {
		t.Fatalf("stale upload bound a value")
	}
}

func TestNewerUploadSupersedesOlder(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)
	f.up.gate = make(chan struct{})
	if err := f.binder.SetImage(ctx, "logo", png(t, 10, 10), ""); err != nil {
		t.Fatal(err)
	}
	if err := f.binder.SetImage(ctx, "logo", png(t, 20, 20), ""); err != nil {
		t.Fatal(err)
	}
	close(f.up.gate)
	if err := f.loop.Idle(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.bound) != 1 {
		t.Fatalf("bound %d times", len(f.bound))
	}
	el, _ := f.scene.FindByField("logo")
	if el.Width != 20 {
		t.Fatalf("older upload won: width %v", el.Width)
	}
}

func TestFieldTypeChecks(t *testing.T) {
	f := newFixture(t)
	var ve *domain.ValidationError
	if err := f.binder.SetText("logo", "x"); !errors.As(err, &ve) {
		t.Fatalf("SetText on logo = %v", err)
	}
	if err := f.binder.SetImage(ctxT(t), "name", png(t, 4, 4), ""); !errors.As(err, &ve) {
		t.Fatalf("SetImage on text = %v", err)
	}
	if err := f.binder.SetImage(ctxT(t), "logo", png(t, 4, 4), domain.FieldImage); !errors.As(err, &ve) {
		t.Fatalf("SetImage kind mismatch = %v", err)
	}
	if err := f.binder.SetText("nope", "x"); !errors.As(err, &ve) {
		t.Fatalf("unknown field = %v", err)
	}
}

func TestValuesFollowDeclarationOrder(t *testing.T) {
	f := newFixture(t)
	if err := f.binder.Restore([]domain.FieldValue{{FieldID: "logo", Value: "asset://saved"}, {FieldID: "name", Value: "Bo"}}); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	vals := f.binder.Values()
	if len(vals) != 2 || vals[0].FieldID != "name" || vals[1].FieldID != "logo" {
		t.Fatalf("values = %+v", vals)
	}
	if vals[0].Value != "Bo" || vals[1].Type != domain.FieldLogo {
		t.Fatalf("values = %+v", vals)
	}
	if el, _ := f.scene.FindByField("name"); el.Text != "Bo" {
		t.Fatalf("restored text not applied: %q", el.Text)
	}
	f.binder.Reset(nil)
	if !f.binder.IsComplete() || f.binder.Values() != nil {
		t.Fatalf("reset binder should require nothing")
	}
}

func TestReconcileAfterWholesaleRestore(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)
	placeholders := f.scene.Elements()
	if err := f.binder.SetText("name", "Ana"); err != nil {
		t.Fatal(err)
	}
	if err := f.binder.SetImage(ctx, "logo", png(t, 8, 8), ""); err != nil {
		t.Fatal(err)
	}
	if err := f.loop.Idle(ctx); err != nil {
		t.Fatal(err)
	}
	filled := f.scene.Elements()
	if err := f.scene.Restore(placeholders); err != nil {
		t.Fatal(err)
	}
	f.binder.Reconcile()
	if _, ok := f.binder.Value("logo"); ok {
		t.Fatalf("logo value survived restore of the placeholder")
	}
	if _, ok := f.binder.Value("name"); ok {
		t.Fatalf("name value survived restore of the placeholder text")
	}
	if err := f.scene.Restore(filled); err != nil {
		t.Fatal(err)
	}
	f.binder.Reconcile()
	if !f.binder.IsComplete() {
		t.Fatalf("restored filled design incomplete: %v", f.binder.Missing())
	}
}
