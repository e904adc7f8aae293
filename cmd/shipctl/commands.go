package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BearBump/TrackLedger/internal/models"
	"github.com/BearBump/TrackLedger/internal/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func (c *cli) claimCmd() *cobra.Command {
	var (
		sender   string
		product  string
		quantity float64
		mark     string
	)
	cmd := &cobra.Command{
		Use:   "claim <tracking-number>",
		Short: "Add a tracking number to the user's shipments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := store.ClaimInput{
				TrackingNumber: args[0],
				Sender:         sender,
				Product:        product,
				Quantity:       quantity,
				UserID:         c.user,
			}
			if mark != "" {
				in.UserMark = &mark
			}
			res, err := c.svc.Claim(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, res.Message)
			if !res.OK {
				return errors.New("claim rejected")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "sender name")
	cmd.Flags().StringVar(&product, "product", "", "product description (default Package)")
	cmd.Flags().Float64Var(&quantity, "quantity", 1, "number of items")
	cmd.Flags().StringVar(&mark, "mark", "", "own shipping mark")
	return cmd
}

func (c *cli) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <tracking-number>",
		Short: "Show what is known about a tracking number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report := c.svc.Check(args[0], c.user).Report()
			fmt.Fprint(c.out, report)
			if !strings.HasSuffix(report, "\n") {
				fmt.Fprintln(c.out)
			}
			return nil
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the user's shipments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := c.svc.List(c.user)
			if len(list) == 0 {
				fmt.Fprintln(c.out, "no shipments")
				return nil
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NUMBER\tSTATUS\tPRODUCT\tQTY\tSENDER\tADDED")
			for _, sh := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					sh.TrackingNumber, sh.Status, sh.Product, sh.Quantity, sh.Sender, sh.AddedDate.Format(time.DateOnly))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tracking-number>",
		Short: "Remove a shipment and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := c.svc.Delete(cmd.Context(), c.user, args[0])
			if err != nil {
				return err
			}
			if !removed {
				return errors.Errorf("%s is not in your shipments", models.CanonicalTrackingNumber(args[0]))
			}
			fmt.Fprintf(c.out, "deleted %s\n", models.CanonicalTrackingNumber(args[0]))
			return nil
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <tracking-number>",
		Short: "Print the status history of a tracking number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := c.svc.History(args[0])
			if len(h) == 0 {
				fmt.Fprintln(c.out, "no history")
				return nil
			}
			for _, e := range h {
				fmt.Fprintf(c.out, "%s  %-22s %s\n", e.Date.Format("2006-01-02 15:04"), e.Status, e.Details)
			}
			return nil
		},
	}
}

func (c *cli) registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <tracking-number> <status>",
		Short: "Register a tracking number as admin",
		Long:  "Register or update an admin record. Status is one of: " + statusList(),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseStatusArg(args[1])
			if err != nil {
				return err
			}
			msg, err := c.svc.Register(cmd.Context(), args[0], status)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, msg)
			return nil
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <tracking-number> <status>",
		Short: "Append a status change to the history log",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseStatusArg(args[1])
			if err != nil {
				return err
			}
			if err := c.svc.RecordStatusChange(cmd.Context(), args[0], status); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s: %s\n", models.CanonicalTrackingNumber(args[0]), status)
			return nil
		},
	}
}

func (c *cli) ledgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "List admin-registered tracking numbers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs := c.svc.Ledger()
			if len(recs) == 0 {
				fmt.Fprintln(c.out, "ledger is empty")
				return nil
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NUMBER\tSTATUS\tUPDATED")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.TrackingNumber, r.Status, r.LastUpdated.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List snapshot keys stored in the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := c.kv.Keys(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range keys {
				mark := " "
				if k == c.key {
					mark = "*"
				}
				fmt.Fprintf(c.out, "%s %s\n", mark, k)
			}
			return nil
		},
	}
}

func (c *cli) resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop the store snapshot (all shipments and the ledger)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.Errorf("reset drops snapshot %q; pass --yes to confirm", c.key)
			}
			if err := c.kv.Delete(cmd.Context(), c.key); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "dropped %s\n", c.key)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

// parseStatusArg accepts any spelling ParseStatus knows; unknown input is an error here.
func parseStatusArg(raw string) (models.Status, error) {
	st, ok := models.ParseStatus(raw)
	if !ok {
		return "", errors.Errorf("unknown status %q, want one of: %s", raw, statusList())
	}
	return st, nil
}

func statusList() string {
	names := make([]string, 0, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}
