// Package gdrive implements a Connector over the Google Drive v3 REST API.
// Credential exchange (the OAuth2 authorization-code/PKCE dance) is out of
// scope per spec §1 and is handled by the caller; this package only
// consumes an already-obtained golang.org/x/oauth2.TokenSource, the same
// composition the teacher's internal/auth/oauth2.go uses internally
// (oauth2Config.Client(ctx, tok)) to mint an authenticated *http.Client.
package gdrive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/manifold-labs/knowledgebase/internal/connector"
)

const apiBase = "https://www.googleapis.com/drive/v3"

// mimeToMarkdownConvertible lists Drive-native formats exported as
// text/html by the Drive API (Docs) so the parser can treat them uniformly.
var mimeToMarkdownConvertible = map[string]bool{
	"application/vnd.google-apps.document": true,
}

// Connector fetches documents from a single Drive folder.
type Connector struct {
	client   *http.Client
	folderID string
}

// New builds a Connector scoped to folderID, authenticating every request
// with tokens drawn from ts.
func New(ctx context.Context, ts oauth2.TokenSource, folderID string) *Connector {
	return &Connector{
		client:   oauth2.NewClient(ctx, ts),
		folderID: folderID,
	}
}

// SourceType identifies this connector's documents as "gdrive".
func (c *Connector) SourceType() string { return "gdrive" }

type driveFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime"`
	Owners       []struct {
		EmailAddress string `json:"emailAddress"`
	} `json:"owners"`
	Md5Checksum string `json:"md5Checksum"`
	WebViewLink string `json:"webViewLink"`
}

type driveListResponse struct {
	Files         []driveFile `json:"files"`
	NextPageToken string      `json:"nextPageToken"`
}

// List enumerates every non-trashed file directly inside the configured
// folder, paging through Drive's nextPageToken.
func (c *Connector) List(ctx context.Context) ([]connector.ListedDocument, error) {
	var out []connector.ListedDocument
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", c.folderID))
		q.Set("fields", "nextPageToken, files(id,name,mimeType,modifiedTime,owners,md5Checksum,webViewLink)")
		q.Set("pageSize", "1000")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var resp driveListResponse
		if err := c.get(ctx, "/files?"+q.Encode(), &resp); err != nil {
			return nil, err
		}
		for _, f := range resp.Files {
			var owner string
			if len(f.Owners) > 0 {
				owner = f.Owners[0].EmailAddress
			}
			modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
			out = append(out, connector.ListedDocument{
				SourceID:   f.ID,
				Title:      f.Name,
				Owner:      owner,
				SourceURL:  f.WebViewLink,
				ModifiedAt: modified,
			})
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return out, nil
}

// Fetch downloads sourceID's content. Google-native Docs are exported as
// HTML (for the office parser to convert to markdown); everything else is
// downloaded via the Drive media alt=media endpoint.
func (c *Connector) Fetch(ctx context.Context, sourceID string) (connector.FetchedDocument, error) {
	var meta driveFile
	if err := c.get(ctx, "/files/"+sourceID+"?fields=id,name,mimeType,modifiedTime,owners,md5Checksum,webViewLink", &meta); err != nil {
		return connector.FetchedDocument{}, err
	}

	var body []byte
	var contentType string
	var err error
	if mimeToMarkdownConvertible[meta.MimeType] {
		body, err = c.download(ctx, "/files/"+sourceID+"/export?mimeType=text/html")
		contentType = "text/html"
	} else {
		body, err = c.download(ctx, "/files/"+sourceID+"?alt=media")
		contentType = meta.MimeType
	}
	if err != nil {
		return connector.FetchedDocument{}, err
	}

	var owner string
	if len(meta.Owners) > 0 {
		owner = meta.Owners[0].EmailAddress
	}
	return connector.FetchedDocument{
		Content:     body,
		ContentType: contentType,
		SourceID:    sourceID,
		Title:       meta.Name,
		SourceURL:   meta.WebViewLink,
		Owner:       owner,
		Metadata: map[string]string{
			"modified_at": meta.ModifiedTime,
			"mime_type":   meta.MimeType,
		},
	}, nil
}

// CheapHash prefers Drive's own md5Checksum (available for uploaded binary
// files); Google-native formats carry no checksum, so those fall back to
// SHA-256 of the exported content.
func (c *Connector) CheapHash(ctx context.Context, sourceID string) (string, error) {
	var meta driveFile
	if err := c.get(ctx, "/files/"+sourceID+"?fields=id,mimeType,md5Checksum", &meta); err != nil {
		return "", err
	}
	if meta.Md5Checksum != "" {
		return meta.Md5Checksum, nil
	}
	doc, err := c.Fetch(ctx, sourceID)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(doc.Content)
	return hex.EncodeToString(sum[:]), nil
}

func (c *Connector) get(ctx context.Context, path string, out any) error {
	body, err := c.download(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return connector.Transient(fmt.Errorf("decoding drive response: %w", err))
	}
	return nil
}

func (c *Connector) download(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+path, nil)
	if err != nil {
		return nil, connector.Transient(err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, connector.Transient(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, connector.Transient(err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return data, nil
	case http.StatusNotFound:
		return nil, connector.NotFound(path, nil)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, connector.Unauthorized(fmt.Errorf("drive api status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	default:
		return nil, connector.Transient(fmt.Errorf("drive api status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}
}
