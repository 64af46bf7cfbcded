package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/artisanal-iq/wordpress-content-generator/internal/executor"
	"github.com/artisanal-iq/wordpress-content-generator/internal/pipeline"
	"github.com/artisanal-iq/wordpress-content-generator/internal/postgres"
	redisstore "github.com/artisanal-iq/wordpress-content-generator/internal/redis"
	"github.com/artisanal-iq/wordpress-content-generator/services/orchestrator"
	"github.com/artisanal-iq/wordpress-content-generator/services/orchestrator/config"
)

var advanceCmd = &cobra.Command{
	Use:   "advance <content-id>",
	Short: "Synchronously run the next due stage for a content piece",
	Long: `Claim and execute the next due task record for one content piece,
bypassing the poll interval. Useful for stepping a piece through the
pipeline by hand or from scripts.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdvance,
}

func runAdvance(_ *cobra.Command, args []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "orchestrator")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StageTimeout+30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	registry, err := buildRegistry(cfg, redisstore.NewClient(cfg.RedisAddr))
	if err != nil {
		return fmt.Errorf("stage registry: %w", err)
	}

	sched := orchestrator.NewScheduler(
		postgres.NewTaskRepository(pool),
		postgres.NewContentRepository(pool),
		postgres.NewPlanRepository(pool),
		registry,
		executor.New(registry, cfg.StageTimeout),
		orchestrator.WithLogger(logger),
		orchestrator.WithPolicy(pipeline.Policy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
		}),
	)

	task, err := sched.AdvanceOne(ctx, args[0])
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(task, "", "  ")
	fmt.Println(string(out))
	return nil
}
