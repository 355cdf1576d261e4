// Command seed loads pricing plans, promos and runtime settings from a YAML
// file into Postgres. Rows are upserted by id, so reruns are safe.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"companion-billing/internal/config"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/repository"
	pg "companion-billing/internal/infra/db/postgres"
	"companion-billing/internal/infra/logging"
)

type seedFile struct {
	Plans []struct {
		ID           string `yaml:"id"`
		Name         string `yaml:"name"`
		PricingID    string `yaml:"pricing_id"`
		Currency     string `yaml:"currency"`
		PriceCents   int64  `yaml:"price_cents"`
		BillingCycle string `yaml:"billing_cycle"`
		CoinReward   int64  `yaml:"coin_reward"`
	} `yaml:"plans"`
	Promos []struct {
		ID                string     `yaml:"id"`
		Name              string     `yaml:"name"`
		Coupon            string     `yaml:"coupon"`
		PercentOff        float64    `yaml:"percent_off"`
		StartDate         *time.Time `yaml:"start_date"`
		ExpiryDate        *time.Time `yaml:"expiry_date"`
		StripePromotionID string     `yaml:"stripe_promotion_id"`
	} `yaml:"promos"`
	Settings map[string]string `yaml:"settings"`
}

func main() {
	var cfgPath, seedPath string
	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Seed plans, promos and settings",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgPath, seedPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to YAML config file")
	cmd.Flags().StringVarP(&seedPath, "file", "f", "seed.yaml", "path to YAML seed file")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(parent context.Context, cfgPath, seedPath string) error {
	cfg, err := config.LoadConfig(cfgPath, false)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Log, true)

	raw, err := os.ReadFile(seedPath)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	plans := pg.NewPostgresPlanRepo(pool)
	promos := pg.NewPostgresPromoRepo(pool)
	settings := pg.NewPostgresAppSettingRepo(pool)

	return pg.NewTxManager(pool).WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, p := range seed.Plans {
			id := p.ID
			if id == "" {
				id = uuid.NewString()
			}
			plan, err := model.NewPricingPlan(id, p.Name, p.PricingID, model.BillingCycle(p.BillingCycle), p.PriceCents, p.CoinReward)
			if err != nil {
				return fmt.Errorf("plan %q: %w", p.Name, err)
			}
			if p.Currency != "" {
				plan.Currency = p.Currency
			}
			if err := plans.Save(ctx, tx, plan); err != nil {
				return fmt.Errorf("save plan %q: %w", p.Name, err)
			}
			if plan.BillingCycle.Recurring() {
				key := model.PriceSettingKey(plan.PlanName, plan.BillingCycle)
				if err := settings.Upsert(ctx, tx, &model.AppSetting{Key: key, Value: plan.PricingID}); err != nil {
					return fmt.Errorf("save setting %s: %w", key, err)
				}
			}
			logger.Info().Str("plan", plan.PlanName).Str("pricing_id", plan.PricingID).Int64("coins", plan.CoinReward).Msg("seeded plan")
		}

		for _, p := range seed.Promos {
			id := p.ID
			if id == "" {
				id = uuid.NewString()
			}
			promo := &model.Promo{
				ID:                id,
				PromoName:         p.Name,
				Coupon:            model.NormalizeCoupon(p.Coupon),
				PercentOff:        p.PercentOff,
				StartDate:         p.StartDate,
				ExpiryDate:        p.ExpiryDate,
				Status:            model.PromoStatusActive,
				StripePromotionID: p.StripePromotionID,
			}
			if err := promos.Save(ctx, tx, promo); err != nil {
				return fmt.Errorf("save promo %q: %w", p.Coupon, err)
			}
			logger.Info().Str("coupon", promo.Coupon).Float64("percent_off", promo.PercentOff).Msg("seeded promo")
		}

		for k, v := range seed.Settings {
			if err := settings.Upsert(ctx, tx, &model.AppSetting{Key: k, Value: v}); err != nil {
				return fmt.Errorf("save setting %s: %w", k, err)
			}
			logger.Info().Str("key", k).Msg("seeded setting")
		}
		return nil
	})
}
