package publisher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"proposal_wizard/store"
)

// ImagePathPrefix is the route uploaded images are served from.
const ImagePathPrefix = "/api/images/"

const maxImageBytes = 20 << 20

// ImageSource looks up uploaded image bytes by image id.
type ImageSource interface {
	ImageData(ctx context.Context, imageID string) (store.ImageData, bool, error)
}

// ImageFetcher resolves the image URLs found in proposals: data URLs, uploaded images
// served by this service, and remote http(s) images.
type ImageFetcher struct {
	source ImageSource
	client *http.Client
}

func NewImageFetcher(source ImageSource, timeout time.Duration) *ImageFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout * time.Second
	}
	return &ImageFetcher{source: source, client: &http.Client{Timeout: timeout}}
}

func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (Embedded, error) {
	rawURL = strings.TrimSpace(rawURL)
	switch {
	case strings.HasPrefix(rawURL, "data:"):
		return decodeDataURI(rawURL)
	case strings.Contains(rawURL, ImagePathPrefix) && !strings.HasPrefix(rawURL, "http"):
		return f.fromStore(ctx, rawURL)
	case strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://"):
		return f.fromHTTP(ctx, rawURL)
	}
	return Embedded{}, fmt.Errorf("unsupported image url %q", truncate(rawURL, 80))
}

func (f *ImageFetcher) fromStore(ctx context.Context, rawURL string) (Embedded, error) {
	if f.source == nil {
		return Embedded{}, errors.New("no image store configured")
	}
	_, id, _ := strings.Cut(rawURL, ImagePathPrefix)
	id, _, _ = strings.Cut(id, "?")
	d, ok, err := f.source.ImageData(ctx, id)
	if err != nil {
		return Embedded{}, err
	}
	if !ok {
		return Embedded{}, fmt.Errorf("image %s not found", id)
	}
	return Embedded{ContentType: d.ContentType, Data: d.Data}, nil
}

func (f *ImageFetcher) fromHTTP(ctx context.Context, rawURL string) (Embedded, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Embedded{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Embedded{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Embedded{}, fmt.Errorf("fetching image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return Embedded{}, err
	}
	if len(data) > maxImageBytes {
		return Embedded{}, fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	return Embedded{ContentType: ct, Data: data}, nil
}

// decodeDataURI parses data:[<mediatype>][;base64],<data>.
func decodeDataURI(uri string) (Embedded, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return Embedded{}, errors.New("malformed data url")
	}
	ct := "text/plain"
	isBase64 := false
	for i, part := range strings.Split(meta, ";") {
		switch {
		case i == 0 && part != "":
			ct = part
		case part == "base64":
			isBase64 = true
		}
	}
	var data []byte
	if isBase64 {
		d, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return Embedded{}, fmt.Errorf("decoding data url: %w", err)
		}
		data = d
	} else {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return Embedded{}, fmt.Errorf("decoding data url: %w", err)
		}
		data = []byte(s)
	}
	return Embedded{ContentType: ct, Data: data}, nil
}
