package bench

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"detectbench/internal/entity"

	"github.com/go-resty/resty/v2"
)

var ErrNoArtifact = errors.New("no artifact reference on page")

type ArtifactFetcher struct {
	client        *resty.Client
	server        string
	lookupTimeout time.Duration
}

func NewArtifactFetcher(server string, timeout, lookupTimeout time.Duration) *ArtifactFetcher {
	if timeout <= 0 {
		timeout = defaultArtifactTimeout
	}
	if lookupTimeout <= 0 {
		lookupTimeout = defaultLookupTimeout
	}
	return &ArtifactFetcher{
		client:        resty.New().SetTimeout(timeout),
		server:        strings.TrimRight(server, "/"),
		lookupTimeout: lookupTimeout,
	}
}

// Locate returns the result link, falling back to the detected image source.
// An empty or "#" href counts as absent.
func (a *ArtifactFetcher) Locate(ctx context.Context, page Page, strategy entity.Strategy) (string, error) {
	key := strategy.Key()

	if href := a.attribute(ctx, page, resultLinkSelector(key), "href"); href != "" && href != "#" {
		return href, nil
	}
	if src := a.attribute(ctx, page, resultImageSelector(key), "src"); src != "" && src != "#" {
		return src, nil
	}
	return "", ErrNoArtifact
}

// attribute reads one attribute within the lookup timeout. A missing element
// reads as "".
func (a *ArtifactFetcher) attribute(ctx context.Context, page Page, selector, name string) string {
	lookupCtx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
	defer cancel()

	v, err := page.Attribute(lookupCtx, selector, name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

// Save writes the artifact behind ref to dst.
func (a *ArtifactFetcher) Save(ctx context.Context, ref, dst string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(ref, "data:") {
		data, err = decodeDataURI(ref)
	} else {
		data, err = a.download(ctx, a.Resolve(ref))
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// Resolve makes ref absolute against the server base.
func (a *ArtifactFetcher) Resolve(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return a.server + "/" + strings.TrimLeft(ref, "/")
}

func (a *ArtifactFetcher) download(ctx context.Context, target string) ([]byte, error) {
	resp, err := a.client.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", target, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download %s: status %d", target, resp.StatusCode())
	}
	return resp.Body(), nil
}

func decodeDataURI(ref string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data URI")
	}
	if strings.HasSuffix(header, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode data URI: %w", err)
		}
		return data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data URI: %w", err)
	}
	return []byte(s), nil
}

// ArtifactName is the saved file name for an input image.
func ArtifactName(imagePath string) string {
	base := filepath.Base(imagePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_det.jpg"
}
