package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
	"github.com/purrpawboutique/purr-paw-boutique/internal/config"
	"github.com/purrpawboutique/purr-paw-boutique/internal/service"
)

func newOrdersCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect stored orders",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			// listing never talks to the payment provider
			svc := service.NewCheckoutService(nil, store, nil, nil, nil, service.Config{Currency: cfg.Checkout.Currency})
			orders, err := svc.ListRecentOrders(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ORDER\tSTATUS\tTOTAL\tREFERENCE\tCREATED")
			for _, o := range orders {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					o.OrderNumber, o.Status, domain.FormatMinor(o.Totals.Total, o.Currency),
					o.PaymentReference, o.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of orders to show")

	cmd.AddCommand(list)
	return cmd
}
