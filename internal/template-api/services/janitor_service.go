package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

const janitorTag = "output_janitor"

// JanitorService periodically removes old task output directories.
type JanitorService struct {
	Root      string
	Prefix    string
	Interval  time.Duration
	Retention time.Duration
	Scheduler gocron.Scheduler
	clock     clockwork.Clock
}

func NewJanitorService(root, prefix string, interval, retention time.Duration, clock clockwork.Clock) (*JanitorService, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &JanitorService{
		Root:      root,
		Prefix:    prefix,
		Interval:  interval,
		Retention: retention,
		Scheduler: s,
		clock:     clock,
	}, nil
}

func (j *JanitorService) Start() error {
	job, err := j.Scheduler.NewJob(
		gocron.DurationJob(j.Interval),
		gocron.NewTask(func() {
			if _, err := j.PruneOnce(); err != nil {
				hlog.Errorf("Janitor: prune failed: %v", err)
			}
		}),
		gocron.WithName("prune_task_outputs"),
		gocron.WithTags(janitorTag),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule janitor: %w", err)
	}
	j.Scheduler.Start()
	hlog.Infof("Janitor started for %s (every %s, retention %s, job %s)", j.Root, j.Interval, j.Retention, job.ID())
	return nil
}

func (j *JanitorService) Stop() {
	if err := j.Scheduler.Shutdown(); err != nil {
		hlog.Errorf("Error shutting down janitor scheduler: %v", err)
		return
	}
	hlog.Infof("Janitor stopped")
}

// PruneOnce removes every Prefix* directory under Root last modified before
// now minus Retention, and returns the removed paths.
func (j *JanitorService) PruneOnce() ([]string, error) {
	entries, err := os.ReadDir(j.Root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", j.Root, err)
	}

	cutoff := j.clock.Now().Add(-j.Retention)
	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), j.Prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			hlog.Warnf("Janitor: cannot stat %s: %v", entry.Name(), err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(j.Root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			hlog.Errorf("Janitor: failed to remove %s: %v", path, err)
			continue
		}
		removed = append(removed, path)
	}
	if len(removed) > 0 {
		hlog.Infof("Janitor: removed %d expired task outputs", len(removed))
	}
	return removed, nil
}
