package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/bootstrap"
)

const (
	refreshLockSegment   = "refresh:lock:"
	refreshResultSegment = "refresh:result:"
	scanBatch            = 100
)

var errRedisNotConfigured = errors.New("redis not configured")

// connectRedis connects using the loaded config; shared refresh keys only exist with Redis.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func connectRedis(cmdCtx *commandContext) (redis.UniversalClient, error) {
	if !cmdCtx.Config.Redis.Enabled() {
		return nil, errRedisNotConfigured
	}
	return bootstrap.ConnectRedis(cmdCtx.Ctx, bootstrap.RedisConnectConfig{
		Redis:  cmdCtx.Config.Redis,
		Logger: cmdCtx.Logger,
	})
}

func runListRefreshLocks(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("list-refresh-locks", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	rdb, err := connectRedis(cmdCtx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	return listRefreshKeys(cmdCtx, rdb, cmdCtx.Config.Redis.KeyPrefix)
}

func listRefreshKeys(cmdCtx *commandContext, rdb redis.UniversalClient, prefix string) error {
	total := 0
	for _, segment := range []string{refreshLockSegment, refreshResultSegment} {
		if err := writef(cmdCtx.Out, "%s*\n", prefix+segment); err != nil {
			return err
		}
		iter := rdb.Scan(cmdCtx.Ctx, 0, prefix+segment+"*", scanBatch).Iterator()
		for iter.Next(cmdCtx.Ctx) {
			key := iter.Val()
			ttl, ttlErr := rdb.TTL(cmdCtx.Ctx, key).Result()
			if ttlErr != nil {
				return fmt.Errorf("ttl %s: %w", key, ttlErr)
			}
			if err := writef(cmdCtx.Out, "  %s  ttl=%s\n", key, ttl.Round(time.Millisecond)); err != nil {
				return err
			}
			total++
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
	}
	return writef(cmdCtx.Out, "total: %d\n", total)
}

type clearLocksOptions struct {
	DryRun  bool
	Results bool
}

func runClearRefreshLocks(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("clear-refresh-locks", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts clearLocksOptions
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print matching keys without deleting them")
	fs.BoolVar(&opts.Results, "results", false, "Also delete published refresh results")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rdb, err := connectRedis(cmdCtx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	deleted, err := clearRefreshKeys(cmdCtx.Ctx, rdb, cmdCtx.Config.Redis.KeyPrefix, opts)
	if err != nil {
		return err
	}
	verb := "deleted"
	if opts.DryRun {
		verb = "would delete"
	}
	return writef(cmdCtx.Out, "%s %d keys\n", verb, deleted)
}

func clearRefreshKeys(ctx context.Context, rdb redis.UniversalClient, prefix string, opts clearLocksOptions) (int, error) {
	segments := []string{refreshLockSegment}
	if opts.Results {
		segments = append(segments, refreshResultSegment)
	}

	count := 0
	for _, segment := range segments {
		batch := make([]string, 0, scanBatch)
		iter := rdb.Scan(ctx, 0, prefix+segment+"*", scanBatch).Iterator()
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) < scanBatch {
				continue
			}
			n, err := deleteBatch(ctx, rdb, batch, opts.DryRun)
			count += n
			if err != nil {
				return count, err
			}
			batch = batch[:0]
		}
		if err := iter.Err(); err != nil {
			return count, fmt.Errorf("redis scan: %w", err)
		}
		n, err := deleteBatch(ctx, rdb, batch, opts.DryRun)
		count += n
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

func deleteBatch(ctx context.Context, rdb redis.UniversalClient, keys []string, dryRun bool) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	if dryRun {
		return len(keys), nil
	}
	n, err := rdb.Del(ctx, keys...).Result()
	if err != nil {
		return int(n), fmt.Errorf("redis del: %w", err)
	}
	return int(n), nil
}
