package commands

import (
	"context"
	"log/slog"
	"questwatch/internal/components/chrono"
	"questwatch/internal/notify"
	"questwatch/internal/watcher"
	"questwatch/lib/serviceutil"
	"questwatch/lib/telemetry"
	"sync"
	"time"
)

func runDaemon(ctx context.Context) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if exporters.Enabled() {
		telemetry.InstrumentPerfStats(ctx, time.Second*30)
	}

	var wg sync.WaitGroup
	if !cfg.Telegram.DisableListener {
		listener := notify.NewListener(a.telegram, a.telegram, a.tel, notify.ListenerOptions{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			listener.Run(ctx)
		}()
	}
	if cfg.StatusAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := serviceutil.Serve(ctx, cfg.StatusAddr, watcher.NewStatusHandler(ctx, a.watcher))
			if err != nil {
				a.tel.ReportBroken("status_server", err)
			}
		}()
	}

	cron := chrono.NewStandardCron(a.tel, a.clock.Location())
	err = a.watcher.Run(ctx, cron)
	wg.Wait()
	slog.Info("stopped")
	return err
}
