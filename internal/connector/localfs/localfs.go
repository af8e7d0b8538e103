// Package localfs implements a Connector over a local directory tree,
// grounded on the teacher's internal/sefii/pathingest.go directory walk
// (filepath.Walk, MIME-sniff skip of non-text files) generalized to the
// connector.Connector contract and guarded against path escape via
// internal/pathguard, the way spec §4.1/§4.12 require.
package localfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/manifold-labs/knowledgebase/internal/connector"
	"github.com/manifold-labs/knowledgebase/internal/pathguard"
)

// Connector walks a directory tree rooted at a path beneath a configured
// ingestion root, filtering by file extension.
type Connector struct {
	guard      *pathguard.Guard
	root       string
	extensions map[string]bool
}

// Option configures a Connector.
type Option func(*Connector)

// WithExtensions restricts listed files to the given extensions (with or
// without the leading dot). Default: .md, .markdown, .txt.
func WithExtensions(exts ...string) Option {
	return func(c *Connector) {
		c.extensions = make(map[string]bool, len(exts))
		for _, e := range exts {
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			c.extensions[strings.ToLower(e)] = true
		}
	}
}

// New builds a Connector rooted at folderPath, which must resolve under
// guard's configured ingest root.
func New(guard *pathguard.Guard, folderPath string, opts ...Option) (*Connector, error) {
	canon, err := guard.Resolve(folderPath)
	if err != nil {
		return nil, connector.PathEscape(folderPath)
	}
	c := &Connector{
		guard: guard,
		root:  canon,
		extensions: map[string]bool{
			".md": true, ".markdown": true, ".txt": true,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SourceType identifies this connector's documents as "local_file".
func (c *Connector) SourceType() string { return "local_file" }

// List walks the directory tree and returns every file whose extension is
// in the configured allow-list. source_id is the path relative to the
// connector's root, forward-slash joined regardless of OS.
func (c *Connector) List(ctx context.Context) ([]connector.ListedDocument, error) {
	var out []connector.ListedDocument
	err := filepath.Walk(c.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			return nil
		}
		if !c.extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return err
		}
		sourceID := filepath.ToSlash(rel)
		out = append(out, connector.ListedDocument{
			SourceID:   sourceID,
			Title:      filepath.Base(path),
			SourceURL:  "file://" + path,
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, connector.Transient(err)
	}
	return out, nil
}

// Fetch reads sourceID relative to the connector's root, refusing any
// request that would escape that root even after symlink resolution.
func (c *Connector) Fetch(ctx context.Context, sourceID string) (connector.FetchedDocument, error) {
	full, err := c.resolveSourcePath(sourceID)
	if err != nil {
		return connector.FetchedDocument{}, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return connector.FetchedDocument{}, connector.NotFound(sourceID, err)
		}
		return connector.FetchedDocument{}, connector.Transient(err)
	}
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}
	contentType := http.DetectContentType(sample)
	info, err := os.Stat(full)
	if err != nil {
		return connector.FetchedDocument{}, connector.Transient(err)
	}
	return connector.FetchedDocument{
		Content:     data,
		ContentType: contentType,
		SourceID:    sourceID,
		Title:       filepath.Base(full),
		SourceURL:   "file://" + full,
		Metadata: map[string]string{
			"modified_at": info.ModTime().UTC().Format(time.RFC3339),
		},
	}, nil
}

// CheapHash returns SHA-256 of the file's current bytes; the local
// filesystem has no cheaper server-side checksum to defer to.
func (c *Connector) CheapHash(ctx context.Context, sourceID string) (string, error) {
	full, err := c.resolveSourcePath(sourceID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", connector.NotFound(sourceID, err)
		}
		return "", connector.Transient(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (c *Connector) resolveSourcePath(sourceID string) (string, error) {
	if filepath.IsAbs(sourceID) || strings.Contains(sourceID, "..") {
		return "", connector.PathEscape(sourceID)
	}
	joined := filepath.Join(c.root, filepath.FromSlash(sourceID))
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if os.IsNotExist(err) {
			// The caller's read of the unresolved join then fails with
			// not-exist, which it reports as NotFound.
			resolved = joined
		} else {
			return "", connector.Transient(fmt.Errorf("resolving %q: %w", sourceID, err))
		}
	}
	if resolved != c.root && !strings.HasPrefix(resolved, c.root+string(filepath.Separator)) {
		return "", connector.PathEscape(sourceID)
	}
	return resolved, nil
}
