// Package loader fetches a stored PDF and splits it into page-level text
// units. Nothing it produces is persisted: the pages can always be derived
// again from the same bytes.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dharsanguruparan/Quill/internal/model"
)

// Fetcher returns the raw bytes of an uploaded file.
type Fetcher interface {
	Fetch(ctx context.Context, file model.File) ([]byte, error)
}

// Parser splits raw document bytes into ordered pages.
type Parser interface {
	Parse(data []byte) ([]model.Page, error)
}

// Document is the parsed form of an uploaded file. Pages is nil when the
// file was larger than the size limit passed to Load.
type Document struct {
	Size  int64
	Pages []model.Page
}

// Loader combines a Fetcher and a Parser.
type Loader struct {
	fetcher Fetcher
	parser  Parser
	timeout time.Duration
}

func New(fetcher Fetcher, parser Parser, timeout time.Duration) *Loader {
	return &Loader{fetcher: fetcher, parser: parser, timeout: timeout}
}

// Load fetches file and parses it. Fetch failures wrap model.ErrFetch and
// parse failures wrap model.ErrParse. A body larger than maxBytes is not
// parsed; the returned Document only carries its size. A maxBytes of zero
// means no limit.
func (l *Loader) Load(ctx context.Context, file model.File, maxBytes int64) (*Document, error) {
	fetchCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	data, err := l.fetcher.Fetch(fetchCtx, file)
	if err != nil {
		return nil, err
	}
	size := int64(len(data))
	if maxBytes > 0 && size > maxBytes {
		return &Document{Size: size}, nil
	}
	pages, err := l.parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file.ID, err)
	}
	return &Document{Size: size, Pages: pages}, nil
}

// FirstOf tries fetchers in order and returns the first result. A fetcher
// that answers model.ErrNotFound passes the file on to the next one.
func FirstOf(fetchers ...Fetcher) Fetcher {
	return fetcherChain(fetchers)
}

type fetcherChain []Fetcher

func (c fetcherChain) Fetch(ctx context.Context, file model.File) ([]byte, error) {
	for _, f := range c {
		data, err := f.Fetch(ctx, file)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		return data, err
	}
	return nil, fmt.Errorf("no source has %s: %w", file.ID, model.ErrFetch)
}

// HTTPFetcher downloads File.URL. Bodies larger than maxBytes are cut at
// maxBytes+1 so callers can still tell the file was too large.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewHTTPFetcher(client *http.Client, maxBytes int64) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{client: client, maxBytes: maxBytes}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, file model.File) ([]byte, error) {
	if file.URL == "" {
		return nil, fmt.Errorf("file %s has no url: %w", file.ID, model.ErrFetch)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w: %w", model.ErrFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, model.WrapService(model.ErrFetch, "get "+file.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: status %d: %w", file.ID, resp.StatusCode, model.ErrFetch)
	}
	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, model.WrapService(model.ErrFetch, "read "+file.ID, err)
	}
	return data, nil
}
