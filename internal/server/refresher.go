package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tartampluch/famcal/internal/config"
)

// Refresher re-renders cached feeds on a cron schedule so subscribers see
// the window move forward after each household's midnight without a cold
// render.
type Refresher struct {
	cron *cron.Cron
}

// NewRefresher schedules s.RefreshFeeds on spec (standard 5-field cron),
// read in loc.
func NewRefresher(s *Server, spec string, loc *time.Location) (*Refresher, error) {
	c := cron.New(cron.WithLocation(loc))

	id, err := c.AddFunc(spec, func() {
		if err := s.RefreshFeeds(context.Background()); err != nil {
			slog.Error(config.MsgRefreshFailed,
				config.LogKeyComponent, config.CompWorker,
				config.LogKeyError, err,
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", config.ErrCronSpec, spec, err)
	}

	slog.Info(config.MsgRefreshSchedule,
		config.LogKeyComponent, config.CompWorker,
		config.LogKeySpec, spec,
		config.LogKeyCount, int(id),
	)
	return &Refresher{cron: c}, nil
}

// Run starts the schedule and blocks until ctx is done. A refresh already
// in progress is allowed to finish.
func (r *Refresher) Run(ctx context.Context) {
	r.cron.Start()
	<-ctx.Done()
	<-r.cron.Stop().Done()
}
