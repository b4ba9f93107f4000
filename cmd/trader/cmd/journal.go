package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/cryptotrader/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query trades, orders and backtest runs from the SQLite journal.

Examples:
  trader journal trades --limit 20
  trader journal trade <trade-id>
  trader journal day 2024-01-15
  trader journal orders --status open
  trader journal runs
  trader journal run <run-id>`,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List the most recent closed trades",
	Args:  cobra.NoArgs,
	RunE:  runJournalTrades,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Show one trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades closed today",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDay(cmd, time.Now().In(time.Local).Format("2006-01-02"))
	},
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDay(cmd, args[0])
	},
}

var journalOrdersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List recorded orders",
	Args:  cobra.NoArgs,
	RunE:  runJournalOrders,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List saved backtest runs",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Export a saved backtest run as org text",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRun,
}

var (
	journalDBPath string
	journalLimit  int
	runsLimit     int
	journalStatus string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradesCmd, journalTradeCmd, journalTodayCmd, journalDayCmd,
		journalOrdersCmd, journalRunsCmd, journalRunCmd)

	journalCmd.PersistentFlags().StringVar(&journalDBPath, "db", "", "path to SQLite journal DB (default from config)")
	journalTradesCmd.Flags().IntVarP(&journalLimit, "limit", "n", 50, "number of trades")
	journalRunsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs")
	journalOrdersCmd.Flags().StringVar(&journalStatus, "status", "", "only orders in this status")
}

func openJournalDB() (*journal.SQLite, error) {
	path := journalDBPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Journal.DBPath
	}
	if path == "" {
		return nil, fmt.Errorf("no journal database configured, pass --db")
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListTrades(journalLimit)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	return writeTrades(cmd.OutOrStdout(), recs)
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	return writeTrades(cmd.OutOrStdout(), []journal.TradeRecord{rec})
}

func listDay(cmd *cobra.Command, day string) error {
	start, end, err := dayBounds(time.Local, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListTradesClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	return writeTrades(cmd.OutOrStdout(), recs)
}

func runJournalOrders(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListOrders(journalStatus)
	if err != nil {
		return fmt.Errorf("query orders: %w", err)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tEXCHANGE\tSYMBOL\tSIDE\tTYPE\tFILLED\tAVG\tSTATUS\tUPDATED")
	for _, o := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%g/%g\t%.2f\t%s\t%s\n", o.OrderID, o.Exchange, o.Symbol, o.Side, o.Type,
			o.FilledQty, o.Qty, o.AvgPrice, o.Status, o.UpdatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListBacktestRuns(cmd.Context(), runsLimit)
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tSTRATEGY\tSYMBOL\tTF\tTRADES\tRETURN %\tMAX DD %\tSHARPE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%.2f\t%.2f\t%.2f\n", r.RunID, r.Created.Format(time.DateTime),
			r.Strategy, r.Symbol, r.Timeframe, r.Trades, r.ReturnPct, r.MaxDDPct, r.Sharpe)
	}
	return tw.Flush()
}

func runJournalRun(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	org, err := j.ExportBacktestOrg(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), org)
	return err
}

func writeTrades(w io.Writer, recs []journal.TradeRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRADE\tEXCHANGE\tSYMBOL\tSIDE\tQTY\tENTRY\tEXIT\tPNL\tFEES\tCLOSED\tREASON")
	for _, t := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%g\t%.2f\t%.2f\t%+.2f\t%.2f\t%s\t%s\n", t.TradeID, t.Exchange, t.Symbol, t.Side,
			t.Qty, t.EntryPrice, t.ExitPrice, t.RealizedPL, t.Fees, t.CloseTime.Format(time.DateTime), t.Reason)
	}
	s := journal.Summarize(recs)
	fmt.Fprintf(tw, "\n%d trades, %d wins, %d losses, profit factor %.2f\n", s.Trades, s.Wins, s.Losses, s.ProfitFactor)
	return tw.Flush()
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}
