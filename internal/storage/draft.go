/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bagstudio/internal/domain"
	"bagstudio/internal/version"
)

const (
	ManifestFileName = "draft.json"
	BackupsDirName   = "backups"
)

// Draft is an unfinished design that can be reopened later. Record carries
// the front scene in the same shape that is sent to the cart.
type Draft struct {
	DesignID   string                     `json:"designId"`
	ProductID  string                     `json:"productId"`
	TemplateID string                     `json:"templateId,omitempty"`
	PhotoID    string                     `json:"photoId,omitempty"`
	Quantity   int                        `json:"quantity,omitempty"`
	Record     domain.CustomizationRecord `json:"record"`
	AppVersion string                     `json:"appVersion,omitempty"`
	SavedAt    time.Time                  `json:"savedAt"`
}

// DraftHandle keeps track of a draft loaded from or saved to disk.
// Root is the draft directory containing draft.json and backups/.
type DraftHandle struct {
	Root         string
	ManifestPath string
	Draft        Draft
}

// DraftRoot returns the directory of a draft inside the drafts directory.
func DraftRoot(draftsDir, designID string) string {
	return filepath.Join(draftsDir, designID)
}

// CreateDraft creates the draft directory under draftsDir and writes the manifest.
func CreateDraft(draftsDir string, d Draft) (*DraftHandle, error) {
	if strings.TrimSpace(draftsDir) == "" {
		return nil, errors.New("drafts directory is required")
	}
	if strings.TrimSpace(d.DesignID) == "" {
		return nil, errors.New("design id is required")
	}
	if strings.ContainsAny(d.DesignID, `/\`) || d.DesignID == "." || d.DesignID == ".." {
		return nil, fmt.Errorf("invalid design id %q", d.DesignID)
	}
	root := DraftRoot(draftsDir, d.DesignID)
	if err := os.MkdirAll(filepath.Join(root, BackupsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create draft dir: %w", err)
	}
	h := &DraftHandle{Root: root, ManifestPath: filepath.Join(root, ManifestFileName), Draft: d}
	if err := Save(h); err != nil {
		return nil, err
	}
	return h, nil
}

// Open loads a draft from its directory.
// If the current manifest cannot be read or parsed, the latest backup is used.
func Open(root string) (*DraftHandle, error) {
	mpath := filepath.Join(root, ManifestFileName)
	b, err := os.ReadFile(mpath)
	if err != nil {
		d, berr := openFromLatestBackup(root)
		if berr != nil {
			return nil, fmt.Errorf("open manifest: %w; backup attempt: %v", err, berr)
		}
		return &DraftHandle{Root: root, ManifestPath: mpath, Draft: *d}, nil
	}
	var d Draft
	if uerr := json.Unmarshal(b, &d); uerr != nil {
		bd, berr := openFromLatestBackup(root)
		if berr != nil {
			return nil, fmt.Errorf("parse manifest: %w; backup attempt: %v", uerr, berr)
		}
		return &DraftHandle{Root: root, ManifestPath: mpath, Draft: *bd}, nil
	}
	return &DraftHandle{Root: root, ManifestPath: mpath, Draft: d}, nil
}

// Save writes h.Draft with transactional semantics and keeps a timestamped
// backup of the previous manifest.
func Save(h *DraftHandle) error {
	if h == nil {
		return errors.New("nil DraftHandle")
	}
	if h.Root == "" || h.ManifestPath == "" {
		return errors.New("invalid DraftHandle: missing paths")
	}
	h.Draft.AppVersion = version.String()
	h.Draft.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(h.Draft, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	data = append(data, '\n')

	bdir := filepath.Join(h.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(h.ManifestPath); statErr == nil {
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", ManifestFileName, stamp))
		if cerr := copyFile(h.ManifestPath, bpath); cerr != nil {
			return fmt.Errorf("backup current manifest: %w", cerr)
		}
	}

	// Write to a temp file in the same directory, then rename over the target.
	dir := filepath.Dir(h.ManifestPath)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", ManifestFileName, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp manifest: %w", werr)
	}
	// Windows cannot rename over an existing file.
	if _, err := os.Stat(h.ManifestPath); err == nil {
		_ = os.Remove(h.ManifestPath)
	}
	if rerr := os.Rename(temp, h.ManifestPath); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace manifest: %w", rerr)
	}
	return nil
}

// PruneBackups keeps the newest keep manifest backups and removes older ones.
func PruneBackups(h *DraftHandle, keep int) (int, error) {
	if h == nil {
		return 0, errors.New("nil DraftHandle")
	}
	candidates, err := backupFiles(h.Root)
	if err != nil || len(candidates) <= keep {
		return 0, err
	}
	removed := 0
	for _, p := range candidates[:len(candidates)-keep] {
		if err := os.Remove(p); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// AutosaveCrashSnapshot writes the in-memory draft next to the backups
// without touching draft.json. It returns the snapshot path.
func AutosaveCrashSnapshot(h *DraftHandle) (string, error) {
	if h == nil {
		return "", errors.New("nil DraftHandle")
	}
	data, err := json.MarshalIndent(h.Draft, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal draft: %w", err)
	}
	bdir := filepath.Join(h.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(bdir, fmt.Sprintf("%s.crash-%s.json", ManifestFileName, time.Now().Format("20060102-150405")))
	if err := writeFileSync(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// writeFileSync writes data to a file and flushes it to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies src to dst, overwriting dst.
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// backupFiles lists manifest backups oldest first.
func backupFiles(root string) ([]string, error) {
	bdir := filepath.Join(root, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var candidates []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ManifestFileName+".") && strings.HasSuffix(name, ".bak") {
			candidates = append(candidates, filepath.Join(bdir, name))
		}
	}
	sort.Strings(candidates) // timestamp in name yields lexicographic order
	return candidates, nil
}

func openFromLatestBackup(root string) (*Draft, error) {
	candidates, err := backupFiles(root)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errors.New("no backups found")
	}
	b, err := os.ReadFile(candidates[len(candidates)-1])
	if err != nil {
		return nil, fmt.Errorf("read latest backup: %w", err)
	}
	var d Draft
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parse latest backup: %w", err)
	}
	return &d, nil
}
