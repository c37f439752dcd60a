package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const checkExecInterval = 5 * time.Second

// MonitorExecutable signals once when the running binary is replaced on
// disk, so a supervisor can restart the process with the new build.
func MonitorExecutable(ctx context.Context) <-chan struct{} {
	return monitorFile(ctx, "", checkExecInterval)
}

func monitorFile(ctx context.Context, path string, interval time.Duration) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		entry := log.WithField("object", "MonitorExecutable")

		if path == "" {
			exe, err := os.Executable()
			if err != nil {
				entry.WithField("error", err.Error()).Warn("cant resolve executable path")
				return
			}
			path = exe
		}
		stat, err := os.Stat(path)
		if err != nil {
			entry.WithField("error", err.Error()).Warn("cant stat executable")
			return
		}
		originalTime := stat.ModTime()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stat, err := os.Stat(path)
				if err != nil {
					entry.WithField("error", err.Error()).Debug("cant stat executable on tick")
					continue
				}
				if !originalTime.Equal(stat.ModTime()) {
					ch <- struct{}{}
					return
				}
			}
		}
	}()
	return ch
}
