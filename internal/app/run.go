package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/events"
)

// Run starts every component and blocks until a termination signal, an
// internal shutdown request, or ctx cancellation, then shuts down in reverse
// dependency order.
func (a *App) Run(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	defer a.cancel()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.msgBus.Run(a.ctx)
	}()

	a.batcher.Start(a.ctx)
	a.startFeeds()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.Start(); err != nil {
			a.logger.Error("http-server-failed", zap.Error(err))
			a.RequestShutdown("http server failed")
		}
	}()

	a.health.SetReady(true)
	a.logger.Info("engine-started",
		zap.Int("pairs", len(a.pairs)),
		zap.Bool("dry-run", a.config.DryRun),
		zap.String("storage-mode", a.config.StorageMode))

	reason := a.waitForShutdown()
	a.logger.Info("shutdown-requested", zap.String("reason", reason))
	return a.Shutdown()
}

// RequestShutdown asks the orchestrator to stop. Safe from any goroutine;
// only the first reason is kept. This is the shutdown hook handed to the
// executor and the unwinder.
func (a *App) RequestShutdown(reason string) {
	select {
	case a.shutdownCh <- reason:
	default:
	}
}

func (a *App) waitForShutdown() string {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return fmt.Sprintf("signal %s", sig)
	case reason := <-a.shutdownCh:
		return reason
	case <-a.ctx.Done():
		return "context cancelled"
	}
}

// Shutdown stops components in reverse dependency order: feeds first so no
// new events arrive, then the HTTP surface, then the bus, and finally the
// batcher so buffered records drain to the sink.
func (a *App) Shutdown() error {
	a.health.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.stopFeeds()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http-shutdown-failed", zap.Error(err))
	}

	a.cancel()
	if err := a.batcher.Stop(); err != nil {
		a.logger.Error("storage-drain-failed", zap.Error(err))
	}
	if a.metadataCache != nil {
		a.metadataCache.Close()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("shutdown-timeout-exceeded")
	}

	a.logger.Info("engine-stopped")
	return nil
}

// startFeeds launches one feed round. Each round has its own context so a
// soft reset can stop and restart the feeds without touching the rest of the
// engine.
func (a *App) startFeeds() {
	a.feedMu.Lock()
	defer a.feedMu.Unlock()

	feedCtx, cancel := context.WithCancel(a.ctx)
	wg := &sync.WaitGroup{}
	a.feedCancel = cancel
	a.feedWG = wg

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.kalshiFeed.Run(feedCtx); err != nil && feedCtx.Err() == nil {
			a.logger.Error("kalshi-feed-stopped", zap.Error(err))
			a.RequestShutdown("kalshi feed stopped")
		}
	}()
	go func() {
		defer wg.Done()
		if err := a.polyFeed.Run(feedCtx); err != nil && feedCtx.Err() == nil {
			a.logger.Error("polymarket-feed-stopped", zap.Error(err))
			a.RequestShutdown("polymarket feed stopped")
		}
	}()
}

func (a *App) stopFeeds() {
	a.feedMu.Lock()
	cancel, wg := a.feedCancel, a.feedWG
	a.feedMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	wg.Wait()
}

// handleTradeSuccessful schedules the post-trade soft reset. The reset runs
// off the bus goroutine so handlers keep draining while feeds restart.
func (a *App) handleTradeSuccessful(_ context.Context, msg events.Message) error {
	ev, ok := msg.(events.ArbitrageTradeSuccessful)
	if !ok {
		return fmt.Errorf("unexpected message type %T", msg)
	}

	a.logger.Info("soft-reset-scheduled", zap.String("market", ev.MarketID))
	go a.softReset()
	return nil
}

// softReset tears the feeds down, waits out the cooldown, clears every book,
// and restarts the feeds so each venue delivers a fresh snapshot. Stale
// levels consumed by the trade never survive into the next round.
func (a *App) softReset() {
	a.stopFeeds()

	select {
	case <-time.After(a.config.ResetCooldown):
	case <-a.ctx.Done():
		return
	}

	a.markets.Reset()
	a.startFeeds()
	a.logger.Info("soft-reset-complete")
}
