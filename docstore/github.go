package docstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"

	"boardsync/domain"
)

const githubAPIBase = "https://api.github.com"

// GitHub stores the document as a file in a repository through the contents
// API. The file blob SHA doubles as the revision token: every commit changes
// it, and a PUT with a stale SHA is rejected by GitHub with a conflict.
type GitHub struct {
	token   string
	repo    string
	path    string
	baseURL string
	client  *http.Client
}

// NewGitHub creates a store for the given repo ("owner/name") and file path.
func NewGitHub(token, repo, path string, client *http.Client) (*GitHub, error) {
	if token == "" || repo == "" {
		return nil, fmt.Errorf("missing github credentials: %w", domain.ErrMisconfigured)
	}
	if path == "" {
		path = "public/status.json"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &GitHub{token: token, repo: repo, path: path, baseURL: githubAPIBase, client: client}, nil
}

func (g *GitHub) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/contents/%s", g.baseURL, g.repo, g.path)
}

func (g *GitHub) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "boardsync")
}

type githubFile struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

// Get reads the document file. The returned snapshot content is the decoded
// UTF-8 text; the revision is the blob SHA.
func (g *GitHub) Get(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.contentsURL(), nil)
	if err != nil {
		return Snapshot{}, err
	}
	g.setHeaders(req)
	resp, err := g.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("github read: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("github read failed: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("github read: %w", err)
	}
	var file githubFile
	if err := sonic.ConfigStd.Unmarshal(body, &file); err != nil {
		return Snapshot{}, fmt.Errorf("github response: %v: %w", err, domain.ErrParse)
	}
	content, err := DecodeTransport(file.Content)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Content: content, Revision: file.SHA}, nil
}

type githubCommit struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

// Put commits new content on top of the given blob SHA.
func (g *GitHub) Put(ctx context.Context, content []byte, revision, message string) error {
	payload, err := sonic.ConfigStd.Marshal(githubCommit{
		Message: message,
		Content: EncodeTransport(content),
		SHA:     revision,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.contentsURL(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	g.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("github commit: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		// GitHub rejects a contents PUT whose sha is no longer the head blob.
		return fmt.Errorf("github commit rejected for %s: %w", g.path, domain.ErrConflict)
	default:
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("github commit failed: %s - %s", resp.Status, errText)
	}
}
