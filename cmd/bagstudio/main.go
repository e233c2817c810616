/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"bagstudio/internal/backend"
	"bagstudio/internal/config"
	"bagstudio/internal/crash"
	"bagstudio/internal/domain"
	applog "bagstudio/internal/log"
	"bagstudio/internal/pricing"
	"bagstudio/internal/storage"
	"bagstudio/internal/studio"
	"bagstudio/internal/templates"
	"bagstudio/internal/version"
)

func usage() {
	fmt.Println("Bag Studio")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  bagstudio version|-v|--version             Show version")
	fmt.Println("  bagstudio price <productId> <qty>           Quote a quantity")
	fmt.Println("  bagstudio templates <productId>             List the templates for a product")
	fmt.Println("  bagstudio drafts [<productId>]              List saved drafts")
	fmt.Println("  bagstudio render <job.yaml> [--checkout] [--save]")
	fmt.Println("                                              Run a design job and export PNG, proof PDF and record JSON")
}

func fail(l *slog.Logger, msg string, err error) {
	l.Error(msg, slog.Any("err", err))
	fmt.Println("Error:", domain.PublicMessage(err)+":", err)
	os.Exit(1)
}

func main() {
	cfg, token, err := config.Load()
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	l := applog.WithComponent("cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := backend.NewClient(backend.Endpoints{
		Catalog: cfg.Services.CatalogURL,
		Assets:  cfg.Services.AssetsURL,
		Cart:    cfg.Services.CartURL,
	}, token, cfg.Services.Timeout())

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) > 1 {
		switch args[1] {
		case "version", "--version", "-v":
			fmt.Println("Bag Studio")
			fmt.Println(version.String())
			return
		case "price":
			if len(args) < 4 {
				fmt.Println("price requires <productId> and <qty>")
				usage()
				os.Exit(2)
			}
			qty, err := strconv.Atoi(args[3])
			if err != nil {
				fmt.Println("qty must be a number")
				os.Exit(2)
			}
			p, err := client.GetProduct(ctx, args[2])
			if err != nil {
				fail(l, "get product failed", err)
			}
			if err := pricing.ValidateQuantity(qty, p.MinimumOrder, p.InStock); err != nil {
				fmt.Println("Note:", domain.PublicMessage(err))
			}
			q := pricing.Resolve(qty, p)
			fmt.Printf("%s x %d: %s\n", p.Name, qty, q)
			return
		case "templates":
			if len(args) < 3 {
				fmt.Println("templates requires <productId>")
				usage()
				os.Exit(2)
			}
			p, err := client.GetProduct(ctx, args[2])
			if err != nil {
				fail(l, "get product failed", err)
			}
			all, err := client.ListTemplates(ctx)
			if err != nil {
				fail(l, "list templates failed", err)
			}
			for _, t := range templates.FilterByCategory(all, p.Category) {
				var req []string
				for _, f := range t.RequiredFields {
					req = append(req, f.ID+":"+string(f.Type))
				}
				fmt.Printf("%-20s %-30s elements=%d required=[%s]\n", t.ID, t.Name, len(t.ElementDefs), strings.Join(req, " "))
			}
			return
		case "drafts":
			dir := cfg.Storage.DraftsDirOrDefault()
			if rebuilt, err := storage.DetectAndRebuildIndex(ctx, dir); err != nil {
				fail(l, "index check failed", err)
			} else if rebuilt {
				l.Warn("drafts index rebuilt", slog.String("dir", dir))
			}
			db, err := storage.InitOrOpenIndex(dir)
			if err != nil {
				fail(l, "open index failed", err)
			}
			defer db.Close()
			var product string
			if len(args) >= 3 {
				product = args[2]
			}
			list, err := storage.ListDrafts(ctx, db, product)
			if err != nil {
				fail(l, "list drafts failed", err)
			}
			for _, d := range list {
				fmt.Printf("%s  %-12s %-16s qty=%-5d %s\n", d.SavedAt.Local().Format("2006-01-02 15:04"), d.ProductID, d.TemplateID, d.Quantity, d.Path)
			}
			return
		case "render":
			if len(args) < 3 {
				fmt.Println("render requires <job.yaml>")
				usage()
				os.Exit(2)
			}
			var checkout, save bool
			for _, a := range args[3:] {
				switch a {
				case "--checkout":
					checkout = true
				case "--save":
					save = true
				}
			}
			job, err := studio.LoadJob(args[2])
			if err != nil {
				fail(l, "load job failed", err)
			}
			scfg, err := studio.ConfigFrom(cfg)
			if err != nil {
				fail(l, "config failed", err)
			}
			deps := studio.Deps{Catalog: client, Assets: client, Cart: client}
			if checkout && cfg.Orders.DSN != "" {
				rs, err := backend.OpenRecordStore(ctx, cfg.Orders.DSN)
				if err != nil {
					fail(l, "open record store failed", err)
				}
				defer rs.Close()
				deps.Records = rs
			}
			if save {
				db, err := storage.InitOrOpenIndex(scfg.DraftsDir)
				if err != nil {
					fail(l, "open index failed", err)
				}
				defer db.Close()
				deps.Index = db
				deps.Previews = storage.NewPreviewCache(db, cfg.Storage.PreviewCacheBytes)
			}
			st := studio.New(scfg, deps)
			defer st.Close()
			defer crash.Recover(st.CurrentDraft)

			res, err := st.RunJob(ctx, job, checkout)
			if err != nil {
				fail(l, "render failed", err)
			}
			for _, p := range res.Written {
				fmt.Println("Wrote", p)
			}
			if res.Checkout != nil {
				fmt.Printf("Added to cart: %s x %d (%s)\n", res.Checkout.Item.ProductID, res.Checkout.Item.Quantity, res.Checkout.Quote)
				if res.Checkout.Warning != nil {
					fmt.Println("Warning:", res.Checkout.Warning)
				}
			}
			if save {
				h, err := st.SaveDraft(ctx)
				if err != nil {
					fail(l, "save draft failed", err)
				}
				fmt.Println("Saved draft at", h.Root)
			}
			return
		}
	}

	usage()
}
