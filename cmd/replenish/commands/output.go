package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/nemonet1337/zaiReplenish/pkg/replenishment"
)

// printPlans writes the plans as indented JSON or as a human readable summary
func printPlans(w io.Writer, plans []*replenishment.Plan, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(plans) == 1 {
			return enc.Encode(plans[0])
		}
		return enc.Encode(plans)
	}

	for _, plan := range plans {
		if plan == nil {
			continue
		}
		if err := printSummary(w, plan); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(w io.Writer, plan *replenishment.Plan) error {
	fmt.Fprintf(w, "発注書 %s  仕入先 %s  倉庫 %s  基準日 %s\n",
		plan.OrderID, plan.SupplierID, plan.WarehouseID, plan.GeneratedAt.Format("2006-01-02"))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "商品\t数量\t梱包数\t単価\t金額\t入荷予定日")
	for _, line := range plan.Lines {
		fmt.Fprintf(tw, "%s\t%g\t%g\t%s\t%s\t%s\n",
			line.ProductID, line.Quantity, line.Packages,
			line.UnitPrice.StringFixed(4), line.TotalPrice.StringFixed(2),
			line.ArrivalDate.Format("2006-01-02"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(plan.Transfers) > 0 {
		warehouses := make([]string, 0, len(plan.Transfers))
		for id := range plan.Transfers {
			warehouses = append(warehouses, id)
		}
		sort.Strings(warehouses)

		fmt.Fprintln(w, "倉庫間移動:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, id := range warehouses {
			products := make([]string, 0, len(plan.Transfers[id]))
			for productID := range plan.Transfers[id] {
				products = append(products, productID)
			}
			sort.Strings(products)
			for _, productID := range products {
				fmt.Fprintf(tw, "  %s\t%s\t%g\n", id, productID, plan.Transfers[id][productID])
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	for _, g := range plan.Groups {
		if !g.Converged {
			fmt.Fprintf(w, "警告: グループ %s (%s) はMOQに収束しませんでした\n", g.Key, g.Kind)
		}
	}
	fmt.Fprintln(w)
	return nil
}
