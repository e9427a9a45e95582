package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"
)

const searchUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// TempPublisher exposes raw bytes at a public URL for as long as a remote
// service needs to fetch them.
type TempPublisher struct {
	Dir     string
	BaseURL string
}

// Publish writes data under a random name and returns its public URL and a
// function removing the file.
func (p TempPublisher) Publish(data []byte, ext string) (string, func(), error) {
	if err := os.MkdirAll(p.Dir, 0o750); err != nil {
		return "", nil, err
	}
	name := uuid.New().String() + ext
	path := filepath.Join(p.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(path) }
	return strings.TrimRight(p.BaseURL, "/") + "/" + name, cleanup, nil
}

// SearchOracle labels an image through a reverse image search page. The
// best guess is read from the value of the page's "q" input.
type SearchOracle struct {
	Endpoint  string
	Client    *http.Client
	Publisher TempPublisher
}

// NewSearchOracle returns an oracle querying endpoint with a bounded client.
func NewSearchOracle(endpoint string, publisher TempPublisher) *SearchOracle {
	return &SearchOracle{
		Endpoint:  endpoint,
		Client:    &http.Client{Timeout: 15 * time.Second},
		Publisher: publisher,
	}
}

// Classify implements Oracle.
func (o *SearchOracle) Classify(ctx context.Context, img Image) (string, error) {
	imageURL := img.URL
	if len(img.Data) > 0 {
		u, cleanup, err := o.Publisher.Publish(img.Data, extensionFor(img.ContentType))
		if err != nil {
			return "", fmt.Errorf("publish temporary image: %w", err)
		}
		defer cleanup()
		imageURL = u
	}
	if imageURL == "" {
		return "", errors.New("image has neither data nor url")
	}

	endpoint, err := url.Parse(o.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse oracle endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("image_url", imageURL)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := o.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("oracle responded with status %d", resp.StatusCode)
	}

	return ExtractQueryLabel(io.LimitReader(resp.Body, 4<<20))
}

// ExtractQueryLabel returns the value of the first <input name="q"> in an
// HTML document.
func ExtractQueryLabel(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse oracle response: %w", err)
	}

	var label string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "input" && attr(n, "name") == "q" {
			label = attr(n, "value")
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	if !walk(doc) {
		return "", errors.New("no query input in oracle response")
	}
	return strings.TrimSpace(label), nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func extensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
