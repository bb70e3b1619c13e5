package spooler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sys/unix"
)

// janitor periodically returns abandoned claims to the queue of pending
// calls and removes staging leftovers from crashed deliveries.
type janitor struct {
	cron *cron.Cron
}

func (j *janitor) stop() {
	<-j.cron.Stop().Done()
}

func (w *Worker) startJanitor() error {
	if w.janitorSchedule == "" {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(w.janitorSchedule, w.runJanitor); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", w.janitorSchedule, err)
	}
	c.Start()
	w.janitor = &janitor{cron: c}

	w.logger.Info("Janitor started",
		slog.String("schedule", w.janitorSchedule),
		slog.Duration("stale_after", w.staleAfter),
	)
	return nil
}

func (w *Worker) runJanitor() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	reset, err := w.store.ResetStaleClaims(ctx, w.staleAfter)
	if err != nil {
		w.logger.Error("Failed to reset stale claims", slog.Any("error", err))
	} else if reset > 0 {
		w.logger.Info("Reset stale claims", slog.Int64("count", reset))
	}

	reaped, err := w.reapTempFiles()
	if err != nil {
		w.logger.Error("Failed to reap staging files", slog.Any("error", err))
	} else if reaped > 0 {
		w.logger.Info("Reaped staging files", slog.Int("count", reaped))
	}
}

// reapTempFiles removes staged call files that never made it into the
// spool directory and have sat in the staging directory past StaleAfter.
// Staleness is judged by ctime, not mtime: a deferred delivery pushes the
// staged file's mtime to the future dial time before the rename, so a
// leftover from a failed delivery can carry an mtime far ahead of the
// clock. ctime is bumped by both the write and the mtime change and
// cannot be set, so it always reflects when the file was abandoned.
func (w *Worker) reapTempFiles() (int, error) {
	if w.spool.TempDir == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(w.spool.TempDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read staging dir %s: %w", w.spool.TempDir, err)
	}

	cutoff := time.Now().Add(-w.staleAfter)
	reaped := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".call") {
			continue
		}
		path := filepath.Join(w.spool.TempDir, entry.Name())
		var st unix.Stat_t
		if err := unix.Stat(path, &st); err != nil {
			continue
		}
		changed := time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
		if changed.After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			w.logger.Warn("Failed to remove stale staging file",
				slog.String("path", path),
				slog.Any("error", err),
			)
			continue
		}
		reaped++
	}
	return reaped, nil
}
