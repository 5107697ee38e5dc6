package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shoppingmall/mall/internal/client"
	"github.com/shoppingmall/mall/pkg/output"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Order history",
}

var ordersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		if page < 1 {
			return fmt.Errorf("page must be 1 or greater")
		}

		s, release, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer release()

		res, err := s.Get(cmd.Context(), fmt.Sprintf("%s?page=%d", client.PathOrders, page))
		if err != nil {
			return err
		}
		if err := res.Err(); err != nil {
			return printResult(res)
		}

		var orders client.OrderPage
		if err := res.Decode(&orders); err != nil {
			return fmt.Errorf("failed to decode orders: %w", err)
		}

		if jsonOutput(cmd) {
			return output.JSON(orders)
		}

		if len(orders.Results) == 0 {
			output.Info("No orders found")
			return nil
		}

		table := output.NewTable([]string{"ORDER", "STATUS", "ITEMS", "TOTAL", "CREATED"})
		for _, o := range orders.Results {
			table.AddRow([]string{
				o.OrderNumber,
				o.Status,
				fmt.Sprintf("%d", len(o.Items)),
				o.FinalAmount,
				o.CreatedAt,
			})
		}
		table.Render()
		output.Info("\nPage %d of %d (%d orders)", orders.CurrentPage, orders.NumPages, orders.Count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ordersCmd)
	ordersCmd.AddCommand(ordersListCmd)

	ordersListCmd.Flags().Int("page", 1, "Page number")
}
