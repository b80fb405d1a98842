package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/trafficpeek/internal/resolver"
	"github.com/JakeFAU/trafficpeek/internal/traffic"
	"github.com/JakeFAU/trafficpeek/internal/trend"
)

type lookupOptions struct {
	apiKey string
	date   string
	asJSON bool
}

func newLookupCmd() *cobra.Command {
	var opts lookupOptions
	cmd := &cobra.Command{
		Use:   "lookup <domain>...",
		Short: "Resolve traffic for one or more domains",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(cmd, args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "provider API key (defaults to provider.api_key)")
	cmd.Flags().StringVar(&opts.date, "date", "", "reference date as YYYY-MM-DD (defaults to today)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print records as JSON")
	return cmd
}

func runLookup(cmd *cobra.Command, domains []string, opts lookupOptions) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}

	var ref time.Time
	if opts.date != "" {
		ref, err = time.Parse(time.DateOnly, opts.date)
		if err != nil {
			return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
	}

	svc, err := newServices(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		_ = svc.close(cmd.Context())
	}()

	reqs := make([]resolver.Request, len(domains))
	for i, d := range domains {
		reqs[i] = resolver.Request{Domain: d, Credential: opts.apiKey, ReferenceDate: ref}
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	failed := 0
	for i, res := range svc.resolver.ResolveMany(cmd.Context(), reqs) {
		if res.Err != nil {
			failed++
			fmt.Fprintf(errOut, "%s: %v\n", domains[i], res.Err)
			continue
		}
		if opts.asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res.Record); err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			continue
		}
		printSummary(out, res.Record)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d lookups failed", failed, len(domains))
	}
	return nil
}

func printSummary(w io.Writer, rec traffic.Record) {
	label := string(rec.Source)
	if rec.IsEstimate {
		label += ", estimate"
	}
	fmt.Fprintf(w, "%s (%s)\n", rec.Domain, label)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  Global rank:\t%s\n", rankText(rec.GlobalRank))
	if rec.CountryRank != nil {
		fmt.Fprintf(tw, "  Country rank:\t%s\n", rankText(rec.CountryRank))
	}
	if rec.CategoryRank != nil {
		fmt.Fprintf(tw, "  Category rank:\t%s\n", rankText(rec.CategoryRank))
	}
	if rec.MonthlyVisits != nil {
		fmt.Fprintf(tw, "  Monthly visits:\t%s\t%s\n", formatNumber(*rec.MonthlyVisits), trendText(trend.Calculate(rec.History)))
		fmt.Fprintf(tw, "  Avg daily visits:\t%s\n", formatNumber(*rec.MonthlyVisits/30))
	} else {
		fmt.Fprintf(tw, "  Monthly visits:\t-\n")
	}
	if rec.AvgVisitDurationSeconds != nil {
		fmt.Fprintf(tw, "  Visit duration:\t%s\n", (time.Duration(*rec.AvgVisitDurationSeconds) * time.Second).String())
	}
	if rec.PagesPerVisit != nil {
		fmt.Fprintf(tw, "  Pages per visit:\t%.2f\n", *rec.PagesPerVisit)
	}
	if rec.BounceRate != nil {
		fmt.Fprintf(tw, "  Bounce rate:\t%.1f%%\n", *rec.BounceRate*100)
	}
	_ = tw.Flush()
}

func rankText(rank *int) string {
	if rank == nil {
		return "-"
	}
	return "#" + formatNumber(int64(*rank))
}

// formatNumber abbreviates n with a K, M, or B suffix and one decimal.
func formatNumber(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return strconv.FormatFloat(float64(n)/1e9, 'f', 1, 64) + "B"
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1e6, 'f', 1, 64) + "M"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1e3, 'f', 1, 64) + "K"
	default:
		return strconv.FormatInt(n, 10)
	}
}

func trendText(t trend.Trend) string {
	arrow := "→"
	switch t.Direction {
	case trend.Up:
		arrow = "↑"
	case trend.Down:
		arrow = "↓"
	}
	if t.Magnitude == 0 {
		return arrow + " Stable"
	}
	return fmt.Sprintf("%s %d%%", arrow, t.Magnitude)
}
