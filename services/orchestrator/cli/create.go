package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
	"github.com/artisanal-iq/wordpress-content-generator/internal/executor"
	"github.com/artisanal-iq/wordpress-content-generator/internal/postgres"
	redisstore "github.com/artisanal-iq/wordpress-content-generator/internal/redis"
	"github.com/artisanal-iq/wordpress-content-generator/services/orchestrator"
	"github.com/artisanal-iq/wordpress-content-generator/services/orchestrator/config"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a content piece and queue its first stage",
	Long: `Create a content piece under a strategic plan and queue the first
pipeline stage. With --domain instead of --plan-id a new plan is created
on the fly.`,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().String("plan-id", "", "existing strategic plan ID")
	createCmd.Flags().String("domain", "", "create a new plan for this domain")
	createCmd.Flags().String("audience", "", "plan audience (with --domain)")
	createCmd.Flags().String("tone", "", "plan tone (with --domain)")
	createCmd.Flags().String("niche", "", "plan niche (with --domain)")
	createCmd.Flags().String("goal", "", "plan goal (with --domain)")
}

func runCreate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "orchestrator")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	plans := postgres.NewPlanRepository(pool)

	planID, _ := cmd.Flags().GetString("plan-id")
	if planID == "" {
		domainName, _ := cmd.Flags().GetString("domain")
		if domainName == "" {
			return fmt.Errorf("either --plan-id or --domain is required")
		}
		audience, _ := cmd.Flags().GetString("audience")
		tone, _ := cmd.Flags().GetString("tone")
		niche, _ := cmd.Flags().GetString("niche")
		goal, _ := cmd.Flags().GetString("goal")

		plan := &domain.StrategicPlan{
			Domain: domainName, Audience: audience,
			Tone: tone, Niche: niche, Goal: goal,
		}
		if err := plans.Create(ctx, plan); err != nil {
			return fmt.Errorf("create plan: %w", err)
		}
		fmt.Fprintf(os.Stderr, "plan created: %s\n", plan.ID)
		planID = plan.ID
	}

	registry, err := buildRegistry(cfg, redisstore.NewClient(cfg.RedisAddr))
	if err != nil {
		return fmt.Errorf("stage registry: %w", err)
	}

	sched := orchestrator.NewScheduler(
		postgres.NewTaskRepository(pool),
		postgres.NewContentRepository(pool),
		plans, registry,
		executor.New(registry, cfg.StageTimeout),
		orchestrator.WithLogger(logger),
	)

	piece, err := sched.CreatePiece(ctx, planID)
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(piece, "", "  ")
	fmt.Println(string(out))
	return nil
}
