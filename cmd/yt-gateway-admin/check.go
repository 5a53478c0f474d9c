package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/adapters/backend"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/bootstrap"
)

type checkResult struct {
	name string
	err  error
	took time.Duration
}

// runCheck probes every dependency in parallel and fails if any probe fails.
func runCheck(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	timeout := fs.Duration("timeout", 5*time.Second, "Per-check timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := backend.New(backend.Options{
		CoreURL: cmdCtx.Config.Backend.CoreURL,
		AIURL:   cmdCtx.Config.Backend.AIURL,
		Timeout: *timeout,
		Logger:  cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}

	var (
		mu      sync.Mutex
		results []checkResult
	)
	record := func(name string, start time.Time, err error) {
		mu.Lock()
		results = append(results, checkResult{name: name, err: err, took: time.Since(start)})
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(cmdCtx.Ctx)
	for _, upstream := range client.Upstreams() {
		g.Go(func() error {
			start := time.Now()
			checkCtx, cancel := context.WithTimeout(ctx, *timeout)
			defer cancel()
			err := client.Health(checkCtx, upstream)
			record("upstream "+upstream, start, err)
			return err
		})
	}
	if cmdCtx.Config.Redis.Enabled() {
		g.Go(func() error {
			start := time.Now()
			checkCtx, cancel := context.WithTimeout(ctx, *timeout)
			defer cancel()
			rdb, err := bootstrap.ConnectRedis(checkCtx, bootstrap.RedisConnectConfig{Redis: cmdCtx.Config.Redis})
			if err == nil {
				err = rdb.Close()
			}
			record("redis", start, err)
			return err
		})
	}
	waitErr := g.Wait()

	for _, r := range results {
		status := "ok"
		if r.err != nil {
			status = "FAIL: " + r.err.Error()
			// Cancellation caused by a sibling failure is not interesting.
			if errors.Is(r.err, context.Canceled) && waitErr != nil && !errors.Is(waitErr, context.Canceled) {
				status = "canceled"
			}
		}
		if err := writef(cmdCtx.Out, "%-20s %-8s %s\n", r.name, r.took.Round(time.Millisecond), status); err != nil {
			return err
		}
	}
	if waitErr != nil {
		return fmt.Errorf("health check failed: %w", waitErr)
	}
	return nil
}
