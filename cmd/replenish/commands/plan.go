package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nemonet1337/zaiReplenish/pkg/replenishment"
	"github.com/nemonet1337/zaiReplenish/pkg/replenishment/memory"
)

type planOptions struct {
	fixture string
	asJSON  bool
	write   bool
}

func newPlanCommand(root *rootOptions) *cobra.Command {
	opts := &planOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "YAMLフィクスチャから補充数を計算",
		Example: `  replenish plan --fixture testdata/two_level.yaml
  replenish plan --fixture run.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := memory.LoadFixture(opts.fixture)
			if err != nil {
				return err
			}
			store, err := fixture.Store()
			if err != nil {
				return err
			}

			manager := replenishment.NewManager(store.Dependencies(), root.logger, nil)

			var plan *replenishment.Plan
			if opts.write {
				plan, err = manager.Run(cmd.Context(), fixture.Request())
			} else {
				plan, err = manager.Plan(cmd.Context(), fixture.Request())
			}
			if err != nil {
				return fmt.Errorf("補充計算に失敗しました: %w", err)
			}
			return printPlans(cmd.OutOrStdout(), []*replenishment.Plan{plan}, opts.asJSON)
		},
	}

	cmd.Flags().StringVarP(&opts.fixture, "fixture", "f", "", "入力フィクスチャ (YAML)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "JSONで出力")
	cmd.Flags().BoolVar(&opts.write, "write", false, "メモリストアへ発注明細を書き込む")
	_ = cmd.MarkFlagRequired("fixture")
	return cmd
}
