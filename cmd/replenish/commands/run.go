package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiReplenish/internal/config"
	"github.com/nemonet1337/zaiReplenish/pkg/replenishment"
	"github.com/nemonet1337/zaiReplenish/pkg/replenishment/storage"
)

type runOptions struct {
	supplierID string
	warehouses []string
	periodDays int
	orderID    string
	date       string
	dryRun     bool
	asJSON     bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "データベースの計算行から補充数を計算して発注明細を登録",
		Example: `  replenish run --supplier SUP-1 --warehouse WH-TOKYO
  replenish run --supplier SUP-1 --warehouse WH-TOKYO --warehouse WH-OSAKA --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := opts.requests()
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			store, err := storage.NewPostgreSQLStorage(ctx, cfg.DSN(), storage.Options{
				MaxOpenConns: cfg.Database.MaxOpenConns,
				MaxDepth:     cfg.Database.MaxHierarchy,
			}, root.logger)
			cancel()
			if err != nil {
				return err
			}
			defer store.Close()

			replenishConfig := cfg.Replenishment
			manager := replenishment.NewManager(store.Dependencies(), root.logger, &replenishConfig)

			var plans []*replenishment.Plan
			if opts.dryRun {
				for _, req := range reqs {
					plan, err := manager.Plan(cmd.Context(), req)
					if err != nil {
						return fmt.Errorf("倉庫 %s: %w", req.WarehouseID, err)
					}
					plans = append(plans, plan)
				}
			} else {
				plans, err = manager.RunAll(cmd.Context(), reqs)
				if err != nil {
					return err
				}
			}

			root.logger.Info("補充計算コマンド完了", zap.Int("runs", len(plans)), zap.Bool("dry_run", opts.dryRun))
			return printPlans(cmd.OutOrStdout(), plans, opts.asJSON)
		},
	}

	cmd.Flags().StringVarP(&opts.supplierID, "supplier", "s", "", "仕入先ID")
	cmd.Flags().StringSliceVarP(&opts.warehouses, "warehouse", "w", nil, "発注元（ルート）倉庫ID（複数指定可）")
	cmd.Flags().IntVar(&opts.periodDays, "period", 0, "販売集計期間（日）")
	cmd.Flags().StringVar(&opts.orderID, "order-id", "", "発注書ID（倉庫が1つの場合のみ）")
	cmd.Flags().StringVar(&opts.date, "date", "", "基準日 (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "計算のみで書き込まない")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "JSONで出力")
	_ = cmd.MarkFlagRequired("supplier")
	_ = cmd.MarkFlagRequired("warehouse")
	return cmd
}

// requests expands the flags into one request per root warehouse
func (o *runOptions) requests() ([]replenishment.RunRequest, error) {
	if o.orderID != "" && len(o.warehouses) > 1 {
		return nil, fmt.Errorf("--order-id は倉庫が1つの場合のみ指定できます")
	}

	var now time.Time
	if o.date != "" {
		d, err := time.Parse("2006-01-02", o.date)
		if err != nil {
			return nil, fmt.Errorf("基準日の形式が不正です: %w", err)
		}
		now = d
	}

	reqs := make([]replenishment.RunRequest, 0, len(o.warehouses))
	for _, wh := range o.warehouses {
		req := replenishment.RunRequest{
			OrderID:     o.orderID,
			SupplierID:  o.supplierID,
			WarehouseID: wh,
			PeriodDays:  o.periodDays,
			Now:         now,
		}
		if err := replenishment.ValidateRunRequest(req); err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
