package members

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/tartampluch/famcal/internal/config"
)

// Fetcher retrieves a remote address book.
type Fetcher interface {
	Fetch(ctx context.Context, url, user, pass string) (io.ReadCloser, error)
}

// HTTPFetcher downloads address books over HTTP(S).
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher with the default timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client: &http.Client{Timeout: config.HTTPTimeout},
	}
}

// Fetch downloads targetURL, sending basic auth when credentials are set.
// Only the scheme, host and path are logged. The body is capped at
// MaxHTTPResponseSize.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL, user, pass string) (io.ReadCloser, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrInvalidURL, err)
	}
	if u.Scheme != config.SchemeHTTP && u.Scheme != config.SchemeHTTPS {
		return nil, fmt.Errorf("%s: %s", config.ErrProtocol, u.Scheme)
	}

	log := slog.With(
		slog.String(config.LogKeyComponent, config.CompFetcher),
		slog.String(config.LogKeyURL, u.Scheme+"://"+u.Host+u.Path),
	)
	log.Debug(config.MsgFetchStart)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrRequestBuild, err)
	}
	req.Header.Set(config.HeaderUserAgent, config.UserAgent)
	if user != "" || pass != "" {
		req.SetBasicAuth(user, pass)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		log.Warn(config.MsgFetchStatus, slog.Int(config.LogKeyStatus, resp.StatusCode))
		return nil, fmt.Errorf("%s: %s", config.ErrHTTPStatus, resp.Status)
	}

	log.Info(config.MsgFetchBody, slog.Int64(config.LogKeyLength, resp.ContentLength))
	return limitedBody{
		Reader: io.LimitReader(resp.Body, config.MaxHTTPResponseSize),
		Closer: resp.Body,
	}, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}

// Open returns the address book at location: an http(s) URL goes through
// f, anything else is read from disk. Credentials embedded in the URL are
// sent as basic auth instead of in the request line.
func Open(ctx context.Context, f Fetcher, location string) (io.ReadCloser, error) {
	if isRemote(location) {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", config.ErrInvalidURL, err)
		}
		var user, pass string
		if u.User != nil {
			user = u.User.Username()
			pass, _ = u.User.Password()
			u.User = nil
		}
		return f.Fetch(ctx, u.String(), user, pass)
	}
	file, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrVCardOpen, err)
	}
	return file, nil
}

func isRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, config.SchemeHTTP+"://") || strings.HasPrefix(l, config.SchemeHTTPS+"://")
}
