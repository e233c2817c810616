/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package studio wires the customization components onto one loop. A Studio
// is not safe for concurrent use: each operation runs on the caller's
// goroutine and pumps the loop until the work it started has settled.
package studio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"bagstudio/internal/assets"
	"bagstudio/internal/config"
	"bagstudio/internal/domain"
	"bagstudio/internal/editor"
	"bagstudio/internal/fields"
	applog "bagstudio/internal/log"
	"bagstudio/internal/loop"
	"bagstudio/internal/pricing"
	"bagstudio/internal/projector"
	"bagstudio/internal/render"
	"bagstudio/internal/scene"
	"bagstudio/internal/serialize"
	"bagstudio/internal/storage"
	"bagstudio/internal/templates"
	"bagstudio/internal/textlayout"
	"bagstudio/internal/undo"
	"bagstudio/internal/vector"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

var (
	// ErrNoProduct is returned by operations that need an open product.
	ErrNoProduct = &domain.ValidationError{Reason: "no product is open"}
	// ErrSuperseded is returned when the customer left or switched photos
	// before an operation finished.
	ErrSuperseded = errors.New("studio: operation superseded")
)

// Catalog serves products and templates.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListTemplates(ctx context.Context) ([]domain.Template, error)
}

// AssetService stores uploads and fetches remote images.
type AssetService interface {
	assets.Uploader
	templates.AssetFetcher
}

// Cart accepts finished designs.
type Cart interface {
	AddToCart(ctx context.Context, item domain.CartItem) error
}

// RecordStore keeps order records server side. unitPrice is nil for
// contact-for-quote tiers.
type RecordStore interface {
	Save(ctx context.Context, productID string, quantity int, unitPrice *decimal.Decimal, rec domain.CustomizationRecord) error
}

// Deps are the external collaborators. Records, Index and Previews are optional.
type Deps struct {
	Catalog  Catalog
	Assets   AssetService
	Cart     Cart
	Records  RecordStore
	Index    *sql.DB
	Previews *storage.PreviewCache
}

// Config tunes a Studio.
type Config struct {
	Canvas      vector.Size
	Margin      float64
	Defaults    editor.EditState
	SnapPx      float64
	Limits      assets.Limits
	Parallelism int
	Projection  projector.Params
	DraftsDir   string
	Fonts       *textlayout.FontLibrary
}

// ConfigFrom maps the application config and loads the configured font
// directories.
func ConfigFrom(cfg config.AppConfig) (Config, error) {
	fonts := textlayout.NewFontLibrary()
	for _, dir := range cfg.Canvas.FontDirs {
		if _, err := fonts.LoadDir(dir); err != nil {
			return Config{}, fmt.Errorf("fonts %s: %w", dir, err)
		}
	}
	return Config{
		Canvas: vector.Size{W: cfg.Canvas.Width, H: cfg.Canvas.Height},
		Margin: cfg.Canvas.ClipMargin,
		Defaults: editor.EditState{
			Color:      cfg.Canvas.DefaultFill,
			FontSize:   cfg.Canvas.DefaultSize,
			FontFamily: cfg.Canvas.DefaultFont,
		},
		SnapPx:      cfg.Canvas.SnapPx,
		Limits:      assets.Limits{MaxBytes: cfg.Assets.MaxUploadBytes, MaxDimension: cfg.Assets.MaxDimension},
		Parallelism: cfg.Assets.Parallelism,
		Projection:  cfg.Projection,
		DraftsDir:   cfg.Storage.DraftsDirOrDefault(),
		Fonts:       fonts,
	}, nil
}

// Studio is one customer's editing session.
type Studio struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	loop      *loop.Loop
	frontSurf *render.GGSurface
	backSurf  *render.GGSurface
	front     *scene.Scene
	back      *scene.Scene
	loader    *templates.Loader
	binder    *fields.Binder
	history   *undo.Manager
	editor    *editor.Editor
	preview   *projector.Preview

	product   *domain.Product
	templates []domain.Template
	photoID   string
	backPhoto *scene.Background
	designID  string
	quantity  int
	draft     *storage.DraftHandle

	loadErr   error
	fieldErrs map[string]error
}

// New builds a studio. Deps.Catalog is required; Assets is required for
// uploads and remote images.
func New(cfg Config, deps Deps) *Studio {
	if cfg.Fonts == nil {
		cfg.Fonts = textlayout.NewFontLibrary()
	}
	if cfg.Projection == (projector.Params{}) {
		cfg.Projection = projector.DefaultParams()
	}
	s := &Studio{cfg: cfg, deps: deps, log: applog.WithComponent("studio"), loop: loop.New(), fieldErrs: map[string]error{}}
	s.frontSurf = render.NewGGSurface(render.Options{Fonts: cfg.Fonts})
	s.backSurf = render.NewGGSurface(render.Options{Fonts: cfg.Fonts})
	s.front = scene.New(scene.Options{Canvas: cfg.Canvas, Margin: cfg.Margin, Surface: s.frontSurf, Measurer: cfg.Fonts,
		Logger: applog.WithComponent("scene").With(slog.String("view", "front"))})
	s.back = scene.New(scene.Options{Canvas: cfg.Canvas, Margin: cfg.Margin, Surface: s.backSurf, Measurer: cfg.Fonts,
		Logger: applog.WithComponent("scene").With(slog.String("view", "back"))})

	var fetcher templates.AssetFetcher
	var uploader assets.Uploader
	if deps.Assets != nil {
		fetcher, uploader = deps.Assets, deps.Assets
	}
	s.loader = templates.NewLoader(s.loop, s.front, templates.NewResolver(fetcher, cfg.Limits, cfg.Parallelism))
	s.binder = fields.NewBinder(s.loop, s.front, uploader, cfg.Limits)
	s.loader.OnStart = func(string) {
		s.binder.Reset(nil)
		s.fieldErrs = map[string]error{}
	}
	s.loader.OnReady = func(templateID string, _ int) {
		if tpl, ok := s.loader.Active(); ok && tpl.ID == templateID {
			s.binder.Reset(&tpl)
		}
		s.loadErr = nil
	}
	s.loader.OnError = func(err error) { s.loadErr = err }
	s.binder.OnBound = func(fieldID string, err error) { s.fieldErrs[fieldID] = err }
	s.history = undo.NewManager(undo.Config{})
	s.editor = editor.New(s.front, s.binder, s.history, editor.Options{Defaults: cfg.Defaults, SnapPx: cfg.SnapPx, View: undo.Front})
	s.preview = projector.NewPreview(s.back, cfg.Projection)
	return s
}

// Close stops the loop.
func (s *Studio) Close() {
	s.editor.Close()
	s.loop.Close()
}

// Front returns the editable scene.
func (s *Studio) Front() *scene.Scene { return s.front }

// Back returns the derived alternate view.
func (s *Studio) Back() *scene.Scene { return s.back }

// Editor returns the property editor of the front scene.
func (s *Studio) Editor() *editor.Editor { return s.editor }

// Binder returns the required field binder.
func (s *Studio) Binder() *fields.Binder { return s.binder }

// Product returns the open product.
func (s *Studio) Product() (domain.Product, bool) {
	if s.product == nil {
		return domain.Product{}, false
	}
	return *s.product, true
}

// Templates returns the templates of the product's category.
func (s *Studio) Templates() []domain.Template { return s.templates }

// DesignID returns the id of the current design.
func (s *Studio) DesignID() string { return s.designID }

// Quantity returns the selected quantity.
func (s *Studio) Quantity() int { return s.quantity }

// FrontImage returns the last rendered front view.
func (s *Studio) FrontImage() image.Image { return s.frontSurf.Image() }

// BackImage returns the last rendered alternate view.
func (s *Studio) BackImage() image.Image { return s.backSurf.Image() }

// CurrentDraft returns the handle of the last saved draft or nil.
func (s *Studio) CurrentDraft() *storage.DraftHandle { return s.draft }

// OpenProduct loads a product and the templates of its category, starts a
// new design and selects the front photo when the product has one.
func (s *Studio) OpenProduct(ctx context.Context, productID string) error {
	log := applog.WithOperation(s.log, "open-product").With(slog.String("product", productID))
	p, err := s.deps.Catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	all, err := s.deps.Catalog.ListTemplates(ctx)
	if err != nil {
		return err
	}
	s.loader.Cancel()
	s.front.Reset()
	s.back.Reset()
	s.binder.Reset(nil)
	s.preview = projector.NewPreview(s.back, s.cfg.Projection)
	s.product = &p
	s.templates = templates.FilterByCategory(all, p.Category)
	s.photoID = ""
	s.backPhoto = nil
	s.designID = uuid.NewString()
	s.quantity = max(p.MinimumOrder, 1)
	s.draft = nil
	s.loadErr = nil
	s.fieldErrs = map[string]error{}
	log.Info("product opened", slog.String("design", s.designID), slog.Int("templates", len(s.templates)))
	if img, ok := p.Image("front"); ok {
		return s.SelectPhoto(ctx, img.ID)
	}
	return nil
}

// SelectPhoto fetches a product photo and makes it the front background.
// Every element is cleared and any active template is dropped.
func (s *Studio) SelectPhoto(ctx context.Context, imageID string) error {
	if s.product == nil {
		return ErrNoProduct
	}
	img, ok := s.productImage(imageID)
	if !ok {
		return &domain.ValidationError{Field: "image", Reason: fmt.Sprintf("unknown product image %q", imageID)}
	}
	bg, err := s.fetchBackground(ctx, img)
	if err != nil {
		return err
	}
	if err := s.front.SetBackground(bg); err != nil {
		return err
	}
	s.loader.Cancel()
	s.binder.Reset(nil)
	s.photoID = img.ID
	s.loadErr = nil
	return nil
}

func (s *Studio) productImage(id string) (domain.ProductImage, bool) {
	for _, im := range s.product.Images {
		if im.ID == id {
			return im, true
		}
	}
	return domain.ProductImage{}, false
}

// fetchBackground downloads and decodes a photo off the loop. The result is
// dropped when the front scene was invalidated meanwhile.
func (s *Studio) fetchBackground(ctx context.Context, img domain.ProductImage) (scene.Background, error) {
	if s.deps.Assets == nil {
		return scene.Background{}, &domain.AssetError{Op: "fetch", Ref: img.URL, Err: errors.New("no asset service configured")}
	}
	tok := s.front.Token()
	var (
		bg   scene.Background
		ferr error
		done bool
	)
	loop.Go(s.loop, ctx, func(ctx context.Context) (assets.Decoded, error) {
		raw, err := s.deps.Assets.Fetch(ctx, img.URL)
		if err != nil {
			return assets.Decoded{}, err
		}
		return assets.Decode(raw, s.cfg.Limits)
	}, func(dec assets.Decoded, err error) {
		done = true
		if !s.front.Valid(tok) {
			ferr = ErrSuperseded
			return
		}
		if err != nil {
			ferr = &domain.AssetError{Op: "fetch", Ref: img.URL, Err: err}
			return
		}
		bg = scene.Background{ID: img.ID, Asset: domain.AssetRef{Ref: img.URL, Raster: dec.Image}}
	})
	if err := s.loop.RunUntil(ctx, func() bool { return done }); err != nil {
		return scene.Background{}, err
	}
	return bg, ferr
}

// ApplyTemplate replaces every element with the template's layout and
// activates its required fields.
func (s *Studio) ApplyTemplate(ctx context.Context, templateID string) error {
	if s.product == nil {
		return ErrNoProduct
	}
	var tpl *domain.Template
	for i := range s.templates {
		if s.templates[i].ID == templateID {
			tpl = &s.templates[i]
			break
		}
	}
	if tpl == nil {
		return &domain.ValidationError{Field: "template", Reason: fmt.Sprintf("template %q is not available for this product", templateID)}
	}
	s.loadErr = nil
	if err := s.loader.Load(ctx, *tpl); err != nil {
		return err
	}
	if err := s.loop.Idle(ctx); err != nil {
		return err
	}
	if s.loadErr != nil {
		return s.loadErr
	}
	if !s.loader.Finished() {
		return ErrSuperseded
	}
	return nil
}

// AddText places a free text element using the current edit state.
func (s *Studio) AddText(text string) (string, error) { return s.editor.AddText(text) }

// AddImage places a free image. It is shown from inline data at once and
// uploaded in the background; a failed upload keeps the inline copy and
// is returned as a secondary asset error.
func (s *Studio) AddImage(ctx context.Context, raw []byte) (string, error) {
	dec, err := assets.Decode(raw, s.cfg.Limits)
	if err != nil {
		return "", err
	}
	b := dec.Image.Bounds()
	id, err := s.editor.AddImage(domain.SceneElement{
		Asset:  &domain.AssetRef{DataURL: assets.DataURL(dec.MimeType, dec.Raw), Raster: dec.Image},
		Width:  float64(b.Dx()),
		Height: float64(b.Dy()),
	})
	if err != nil || s.deps.Assets == nil {
		return id, err
	}
	tok := s.front.Token()
	var uerr error
	loop.Go(s.loop, ctx, func(ctx context.Context) (string, error) {
		return s.deps.Assets.Upload(ctx, dec.Raw, dec.MimeType)
	}, func(ref string, err error) {
		if !s.front.Valid(tok) {
			return
		}
		if err == nil && strings.TrimSpace(ref) == "" {
			err = errors.New("asset service returned an empty reference")
		}
		if err != nil {
			uerr = &domain.AssetError{Op: "upload", Ref: id, Secondary: true, Err: err}
			return
		}
		if err := s.front.UpdateElement(id, func(el *domain.SceneElement) { el.Asset.Ref = ref }); err != nil && !errors.Is(err, scene.ErrNotFound) {
			uerr = err
		}
	})
	if err := s.loop.Idle(ctx); err != nil {
		return id, err
	}
	if uerr != nil {
		s.log.Warn("free image kept inline", slog.String("element", id), slog.Any("err", uerr))
	}
	return id, uerr
}

// SetField fills a required field. Text fields take text; image and logo
// fields take raw image bytes which are uploaded before binding.
func (s *Studio) SetField(ctx context.Context, fieldID, text string, raw []byte) error {
	tpl := s.binder.Template()
	if tpl == nil {
		return &domain.ValidationError{Field: fieldID, Reason: "no template is active"}
	}
	def, ok := tpl.Field(fieldID)
	if !ok {
		return &domain.ValidationError{Field: fieldID, Reason: "unknown field"}
	}
	if def.Type == domain.FieldText {
		return s.binder.SetText(fieldID, text)
	}
	delete(s.fieldErrs, fieldID)
	if err := s.binder.SetImage(ctx, fieldID, raw, def.Type); err != nil {
		return err
	}
	if err := s.loop.Idle(ctx); err != nil {
		return err
	}
	if err, seen := s.fieldErrs[fieldID]; seen {
		return err
	}
	if s.binder.Pending(fieldID) {
		return ErrSuperseded
	}
	return nil
}

// Undo reverts the last front edit.
func (s *Studio) Undo() (bool, error) { return s.editor.Undo() }

// Redo reapplies the last undone edit.
func (s *Studio) Redo() (bool, error) { return s.editor.Redo() }

// SetQuantity changes the order quantity after validating it against the
// product's minimum order and stock.
func (s *Studio) SetQuantity(q int) error {
	if s.product == nil {
		return ErrNoProduct
	}
	if err := pricing.ValidateQuantity(q, s.product.MinimumOrder, s.product.InStock); err != nil {
		return err
	}
	s.quantity = q
	return nil
}

// Quote prices the current quantity.
func (s *Studio) Quote() (pricing.Quote, error) {
	if s.product == nil {
		return pricing.Quote{}, ErrNoProduct
	}
	return pricing.Resolve(s.quantity, *s.product), nil
}

// RefreshPreview rebuilds the alternate view when the front changed. The
// product's back photo is used when it has one, otherwise the front photo.
func (s *Studio) RefreshPreview(ctx context.Context) (image.Image, error) {
	if s.product == nil {
		return nil, ErrNoProduct
	}
	bg := s.front.Background()
	if img, ok := s.product.Image("back"); ok {
		if s.backPhoto == nil || s.backPhoto.ID != img.ID {
			b, err := s.fetchBackground(ctx, img)
			if err != nil {
				return nil, err
			}
			s.backPhoto = &b
		}
		bg = s.backPhoto
	}
	if _, err := s.preview.Refresh(s.front, bg); err != nil {
		return nil, err
	}
	return s.backSurf.Image(), nil
}

// SaveDraft writes the current design to the drafts directory, indexes it
// and caches the front preview. Image assets are saved inline.
func (s *Studio) SaveDraft(ctx context.Context) (*storage.DraftHandle, error) {
	if s.product == nil {
		return nil, ErrNoProduct
	}
	log := applog.WithOperation(s.log, "save-draft").With(slog.String("design", s.designID))
	rec, err := s.serializeLocal(ctx)
	if err != nil {
		return nil, err
	}
	d := storage.Draft{
		DesignID:  s.designID,
		ProductID: s.product.ID,
		PhotoID:   s.photoID,
		Quantity:  s.quantity,
		Record:    rec,
	}
	if tpl := s.binder.Template(); tpl != nil {
		d.TemplateID = tpl.ID
	}
	if s.draft == nil {
		if s.draft, err = storage.CreateDraft(s.cfg.DraftsDir, d); err != nil {
			return nil, err
		}
	} else {
		s.draft.Draft = d
		if err := storage.Save(s.draft); err != nil {
			return nil, err
		}
	}
	var warn error
	if s.deps.Index != nil {
		warn = multierr.Append(warn, storage.IndexDraft(ctx, s.deps.Index, s.draft))
	}
	if s.deps.Previews != nil {
		warn = multierr.Append(warn, s.cachePreview(ctx))
	}
	if warn != nil {
		log.Warn("draft saved with warnings", slog.Any("err", warn))
	} else {
		log.Info("draft saved", slog.String("root", s.draft.Root))
	}
	return s.draft, nil
}

// serializeLocal builds the record with images and preview kept inline.
func (s *Studio) serializeLocal(ctx context.Context) (domain.CustomizationRecord, error) {
	rec, err := serialize.Serialize(ctx, s.front, s.binder, s.binder.Template(), serialize.Options{DesignID: s.designID})
	if err != nil && domain.IsBlocking(err) {
		return domain.CustomizationRecord{}, err
	}
	return rec, nil
}

func (s *Studio) cachePreview(ctx context.Context) error {
	png, err := s.front.Snapshot()
	if err != nil {
		return err
	}
	c := s.front.Canvas()
	w, h := int(c.W), int(c.H)
	if err := s.deps.Previews.Invalidate(ctx, s.designID); err != nil {
		return err
	}
	return s.deps.Previews.Put(ctx, storage.PreviewKey(s.designID, "front", w, h), w, h, png)
}

// ResumeDraft reopens a saved draft: the product, photo and template are
// loaded again and the saved elements replace the template layout.
func (s *Studio) ResumeDraft(ctx context.Context, root string) error {
	h, err := storage.Open(root)
	if err != nil {
		return err
	}
	d := h.Draft
	if err := s.OpenProduct(ctx, d.ProductID); err != nil {
		return err
	}
	if d.PhotoID != "" && d.PhotoID != s.photoID {
		if err := s.SelectPhoto(ctx, d.PhotoID); err != nil {
			return err
		}
	}
	if d.TemplateID != "" {
		if err := s.ApplyTemplate(ctx, d.TemplateID); err != nil {
			return err
		}
	}
	els, herr := serialize.Hydrate(d.Record)
	s.fetchRasters(ctx, els)
	if err := s.front.Restore(els); err != nil {
		return err
	}
	s.binder.Reconcile()
	s.designID = d.DesignID
	if d.Quantity > 0 {
		s.quantity = d.Quantity
	}
	s.draft = h
	if herr != nil {
		s.log.Warn("draft resumed with missing images", slog.String("design", d.DesignID), slog.Any("err", herr))
	}
	return nil
}

// fetchRasters downloads the pixels behind referenced images so they render.
func (s *Studio) fetchRasters(ctx context.Context, els []domain.SceneElement) {
	if s.deps.Assets == nil {
		return
	}
	for i := range els {
		a := els[i].Asset
		if els[i].Kind != domain.KindImage || a == nil || a.Raster != nil || !a.Stable() {
			continue
		}
		raw, err := s.deps.Assets.Fetch(ctx, a.Ref)
		if err == nil {
			var dec assets.Decoded
			if dec, err = assets.Decode(raw, s.cfg.Limits); err == nil {
				a.Raster = dec.Image
				continue
			}
		}
		s.log.Warn("image not restored", slog.String("element", els[i].ID), slog.Any("err", err))
	}
}

// CheckoutResult is a design accepted by the cart. Warning carries
// secondary failures that did not block the order.
type CheckoutResult struct {
	Item    domain.CartItem
	Quote   pricing.Quote
	Warning error
}

// Checkout validates the design, serializes it with uploaded previews,
// posts it to the cart and stores the order record when a store is set.
func (s *Studio) Checkout(ctx context.Context) (CheckoutResult, error) {
	if s.product == nil {
		return CheckoutResult{}, ErrNoProduct
	}
	log := applog.WithOperation(s.log, "checkout").With(slog.String("design", s.designID))
	if s.loadErr != nil {
		return CheckoutResult{}, s.loadErr
	}
	if err := s.binder.Missing(); err != nil {
		return CheckoutResult{}, err
	}
	if err := pricing.ValidateQuantity(s.quantity, s.product.MinimumOrder, s.product.InStock); err != nil {
		return CheckoutResult{}, err
	}
	if s.deps.Cart == nil {
		return CheckoutResult{}, errors.New("studio: no cart service configured")
	}
	opts := serialize.Options{DesignID: s.designID}
	if s.deps.Assets != nil {
		opts.Uploader = s.deps.Assets
	}
	rec, err := serialize.Serialize(ctx, s.front, s.binder, s.binder.Template(), opts)
	if err != nil && domain.IsBlocking(err) {
		return CheckoutResult{}, err
	}
	res := CheckoutResult{
		Item:    domain.CartItem{ProductID: s.product.ID, Quantity: s.quantity, Customization: rec},
		Quote:   pricing.Resolve(s.quantity, *s.product),
		Warning: err,
	}
	if err := s.deps.Cart.AddToCart(ctx, res.Item); err != nil {
		return CheckoutResult{}, err
	}
	if s.deps.Records != nil {
		var unit *decimal.Decimal
		if !res.Quote.ContactForQuote {
			u := res.Quote.UnitPrice
			unit = &u
		}
		if err := s.deps.Records.Save(ctx, s.product.ID, s.quantity, unit, rec); err != nil {
			res.Warning = multierr.Append(res.Warning, fmt.Errorf("store record: %w", err))
		}
	}
	if res.Warning != nil {
		log.Warn("checkout completed with warnings", slog.Any("err", res.Warning))
	} else {
		log.Info("checkout completed", slog.Int("quantity", s.quantity), slog.String("quote", res.Quote.String()))
	}
	return res, nil
}

// Leave invalidates every in-flight operation, e.g. when the customer
// navigates away from the editor. Content is kept.
func (s *Studio) Leave() {
	s.loader.Cancel()
	s.front.Invalidate()
	s.back.Invalidate()
	s.loop.Drain()
}
