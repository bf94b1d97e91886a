// Enqueue submits the first search job for a user.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"github.com/viant/asyncauth"
	"github.com/viant/asyncauth/config"
	"github.com/viant/asyncauth/queue"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath, userID, query string
	flagSet := pflag.NewFlagSet("enqueue", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", os.Getenv("ASYNCAUTH_CONFIG"), "path to YAML config file")
	flagSet.StringVarP(&userID, "user", "u", "", "user id the search runs for (required)")
	flagSet.StringVarP(&query, "query", "q", "", "search query")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if userID == "" {
		return errors.New("--user is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	rdb := redis.NewClient(cfg.Redis())
	defer rdb.Close()

	jobs := queue.NewRedisQueue(rdb, cfg.KeyPrefix, cfg.QueueName, queue.WithMaxAttempts(cfg.MaxAttempts))
	job, err := queue.Enqueue(ctx, jobs, asyncauth.JobTypeSearch, &asyncauth.PerformSearch{UserID: userID, Query: query})
	if err != nil {
		return err
	}
	fmt.Println(job.ID)
	return nil
}
