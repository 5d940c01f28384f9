package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"xray-profile/app"
)

func init() {
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.Application) error {
				if err := a.Profile().Init(force); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "document initialized")
				return nil
			})
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing document")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.Application) error {
				data, err := a.Profile().Show()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			})
		},
	}

	socksCmd := &cobra.Command{
		Use:   "socks",
		Short: "Print the local socks listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.Application) error {
				in, ok, err := a.Profile().Socks()
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("document has no socks inbound")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "socks5://%s:%d\n", in.Listen, in.Port)
				return nil
			})
		},
	}

	importCmd := &cobra.Command{
		Use:   "import [file|-]",
		Short: "Import share links as outbounds",
		Long:  `Reads share links (or a base64 subscription body) from a file, or from stdin when the argument is "-" or missing.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, a *app.Application) error {
				result, err := a.Profile().Import(body)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, tag := range result.Tags {
					fmt.Fprintf(out, "imported %s\n", tag)
				}
				for _, linkErr := range multierr.Errors(result.LinkErrors) {
					fmt.Fprintf(out, "skipped: %v\n", linkErr)
				}
				return nil
			})
		},
	}

	subscribeCmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Refresh every configured subscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.Application) error {
				results, err := a.Profile().Subscribe(ctx)

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SUBSCRIPTION\tOUTBOUNDS\tFAILED\tCACHED\tERROR")
				for _, r := range results {
					errText := "-"
					if r.Err != nil {
						errText = r.Err.Error()
					}
					fmt.Fprintf(w, "%s\t%d\t%d\t%t\t%s\n", r.Subscription.Name, len(r.Outbounds), r.Failed, r.Cached, errText)
				}
				if flushErr := w.Flush(); flushErr != nil && err == nil {
					err = flushErr
				}
				return err
			})
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Report duplicate tags, dangling references and missing datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.Application) error {
				report, err := a.Profile().Check()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, tag := range report.DuplicateTags {
					fmt.Fprintf(out, "duplicate tag: %s\n", tag)
				}
				for _, ref := range report.Dangling {
					fmt.Fprintf(out, "dangling reference: %s\n", ref)
				}
				for _, name := range report.MissingDatasets {
					fmt.Fprintf(out, "missing dataset: %s\n", name)
				}
				if !report.OK() {
					return fmt.Errorf("document has problems")
				}
				fmt.Fprintln(out, "ok")
				return nil
			})
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh datasets and subscriptions on the configured interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.Application) error {
				return a.Scheduler().Start(ctx)
			})
		},
	}

	rootCmd.AddCommand(initCmd, showCmd, socksCmd, importCmd, subscribeCmd, checkCmd, watchCmd)
	rootCmd.AddCommand(metricsCommand(), datasetsCommand())
}

func metricsCommand() *cobra.Command {
	metricsCmd := &cobra.Command{
		Use:   "metrics",
		Short: "Manage the engine's metrics endpoint",
	}

	enableCmd := &cobra.Command{
		Use:   "enable",
		Short: "Enable stats and the metrics listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.Application) error {
				return a.Profile().EnableMetrics()
			})
		},
	}

	disableCmd := &cobra.Command{
		Use:   "disable",
		Short: "Remove stats and the metrics listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.Application) error {
				return a.Profile().DisableMetrics()
			})
		},
	}

	portCmd := &cobra.Command{
		Use:   "port [port]",
		Short: "Print or change the metrics listener port",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				port, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid port %q: %w", args[0], err)
				}
				return run(cmd, func(ctx context.Context, a *app.Application) error {
					return a.Profile().SetMetricsPort(port)
				})
			}
			return run(cmd, func(ctx context.Context, a *app.Application) error {
				port, err := a.Profile().MetricsPort()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), port)
				return nil
			})
		},
	}

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Read traffic counters from the running engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.Application) error {
				report, err := a.Profile().MetricsReport(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DIRECTION\tTAG\tUPLINK\tDOWNLINK")
				for tag, t := range report.Stats.Inbound {
					fmt.Fprintf(w, "inbound\t%s\t%d\t%d\n", tag, t.Uplink, t.Downlink)
				}
				for tag, t := range report.Stats.Outbound {
					fmt.Fprintf(w, "outbound\t%s\t%d\t%d\n", tag, t.Uplink, t.Downlink)
				}
				return w.Flush()
			})
		},
	}

	metricsCmd.AddCommand(enableCmd, disableCmd, portCmd, reportCmd)
	return metricsCmd
}

func datasetsCommand() *cobra.Command {
	datasetsCmd := &cobra.Command{
		Use:   "datasets",
		Short: "Manage geo datasets",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "List configured datasets and whether they are on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.Application) error {
				m := a.Datasets()
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tTYPE\tPRESENT\tPATH")
				for _, d := range m.Datasets() {
					fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", d.Name, d.Type, m.IsPresent(d.Name), m.Path(d))
				}
				return w.Flush()
			})
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Download every configured dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.Application) error {
				results := a.Datasets().FetchAll(ctx)
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tSTATUS\tBYTES\tDURATION")
				var errs error
				for _, r := range results {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.Dataset.Name, r.Status(), r.Bytes, r.Duration.Round(time.Millisecond))
					errs = multierr.Append(errs, r.Error)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				return errs
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove downloaded dataset files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.Application) error {
				return a.Datasets().Delete()
			})
		},
	}

	datasetsCmd.AddCommand(statusCmd, updateCmd, deleteCmd)
	return datasetsCmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return data, nil
}
