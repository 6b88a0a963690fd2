package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
	"github.com/tartampluch/famcal/internal/feed"
	"github.com/tartampluch/famcal/internal/members"
	"github.com/tartampluch/famcal/internal/store"
)

// handleFeed serves a subscribed calendar with conditional GET support.
// Unknown tokens are 404, never an empty calendar.
func (s *Server) handleFeed(c echo.Context) error {
	token := strings.TrimSuffix(c.Param(config.ParamToken), config.ExtICS)
	ctx := c.Request().Context()

	item := s.cache.get(token)
	if item == nil {
		f, err := s.store.Feed(ctx, token)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				slog.Debug(config.MsgFeedUnknown, config.LogKeyComponent, config.CompServer)
			}
			return storeError(c, err)
		}
		if item, err = s.renderFeed(ctx, f); err != nil {
			return storeError(c, err)
		}
		item = s.cache.put(token, item)
	}

	h := c.Response().Header()
	h.Set(config.HeaderContentType, config.MimeTextCalendar)
	h.Set(config.HeaderContentDisp, fmt.Sprintf(config.FormatContentDisp, item.filename))
	h.Set(config.HeaderXContent, config.MimeNoSniff)
	h.Set(config.HeaderCacheCtrl, config.CacheControlPrivate)
	h.Set(config.HeaderETag, item.etag)
	h.Set(config.HeaderLastMod, item.lastModified)

	if notModified(c.Request(), item) {
		return c.NoContent(http.StatusNotModified)
	}
	if c.Request().Method == http.MethodHead {
		return c.NoContent(http.StatusOK)
	}

	c.Response().WriteHeader(http.StatusOK)
	if _, err := io.Copy(c.Response(), bytes.NewReader(item.data)); err != nil {
		slog.Error(config.ErrWriteResp,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyError, err,
		)
	}
	return nil
}

func notModified(r *http.Request, item *cacheItem) bool {
	if match := r.Header.Get(config.HeaderIfNoneMatch); match != "" {
		return match == item.etag
	}
	since := r.Header.Get(config.HeaderIfModSince)
	if since == "" {
		return false
	}
	clientTime, err := time.Parse(http.TimeFormat, since)
	if err != nil {
		return false
	}
	serverTime, err := time.Parse(http.TimeFormat, item.lastModified)
	if err != nil {
		return false
	}
	return !serverTime.After(clientTime)
}

// renderFeed expands the household over [today, today + 1 year] in its own
// time zone and serializes the result.
func (s *Server) renderFeed(ctx context.Context, f store.Feed) (*cacheItem, error) {
	gen := s.cache.generation(f.HouseholdID)
	hh, err := s.store.Household(ctx, f.HouseholdID)
	if err != nil {
		return nil, err
	}
	loc := hh.Location()
	today := calendar.Today(s.clock, loc)
	win := calendar.FeedWindow(today)

	events, err := s.store.EventsInWindow(ctx, hh.ID, win)
	if err != nil {
		return nil, err
	}
	overrides, err := s.store.Overrides(ctx, hh.ID, win)
	if err != nil {
		return nil, err
	}
	list, err := s.store.Members(ctx, hh.ID)
	if err != nil {
		return nil, err
	}

	exp := calendar.Expand(events, overrides, win, loc)

	name := f.Name
	if name == "" {
		name = hh.Name
	}
	ser := &feed.Serializer{Names: members.NewDirectory(list), Labels: s.labels}
	data, err := ser.Serialize(exp.Occurrences, feed.Options{
		Name:   name,
		Filter: f.Member,
		Stamp:  today.In(loc).UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrFeedRender, err)
	}
	item := newCacheItem(hh.ID, feed.Filename(name), data, s.clock.Now())
	item.gen = gen
	return item, nil
}

// RefreshFeeds re-renders every known feed and swaps the cache in one
// step. A feed that fails to render is logged and left out; it will be
// rendered on its next request.
func (s *Server) RefreshFeeds(ctx context.Context) error {
	feeds, err := s.store.Feeds(ctx)
	if err != nil {
		return err
	}
	slog.Info(config.MsgCacheRefresh,
		config.LogKeyComponent, config.CompWorker,
		config.LogKeyCount, len(feeds),
	)

	items := make(map[string]*cacheItem, len(feeds))
	for _, f := range feeds {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, err := s.renderFeed(ctx, f)
		if err != nil {
			slog.Warn(config.MsgRefreshFailed,
				config.LogKeyComponent, config.CompWorker,
				config.LogKeyHousehold, f.HouseholdID,
				config.LogKeyError, err,
			)
			continue
		}
		items[f.Token] = item
		if s.cache.limit > 0 && len(items) >= s.cache.limit {
			break
		}
	}
	s.cache.replace(items)
	return nil
}
