package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/cryptotrader/command"
	"github.com/rustyeddy/cryptotrader/exchange"
	"github.com/rustyeddy/cryptotrader/internal/id"
	"github.com/rustyeddy/cryptotrader/ledger"
	"github.com/rustyeddy/cryptotrader/live"
	"github.com/rustyeddy/cryptotrader/notify"
	"github.com/rustyeddy/cryptotrader/notify/telegram"
	"github.com/rustyeddy/cryptotrader/strategies"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Trade live on the configured exchanges",
	Long: `Run one worker per configured (exchange, symbol) pair until SIGINT or
SIGTERM. On shutdown every working order is cancelled.

Credentials come from the config file or BINANCE_API_KEY / BINANCE_SECRET_KEY.
Set BINANCE_TESTNET=true to trade on the futures testnet.

Example:
  trader live --config trader.yaml`,
	Args: cobra.NoArgs,
	RunE: runLive,
}

func init() {
	rootCmd.AddCommand(liveCmd)
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateLive(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log := newLogger(cfg)

	tf, err := cfg.Timeframe()
	if err != nil {
		return err
	}
	reg := strategies.DefaultRegistry()
	params := strategies.Params(cfg.Strategy.Params)
	if _, err := reg.New(cfg.Strategy.Name, params); err != nil {
		return err
	}

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		if err := j.Close(); err != nil {
			log.Warn().Err(err).Msg("close journal")
		}
	}()

	// channels are appended before the loop starts
	fanout := notify.Multi{notify.LogChannel{Logger: log}}
	l := ledger.New(ledger.Options{
		NewID:    id.New,
		Logger:   log,
		Notifier: &fanout,
		Journal:  j,
	})

	opts := live.DefaultOptions()
	opts.Interval = cfg.Live.Interval
	opts.ErrorBackoff = cfg.Live.ErrorBackoff
	opts.ShutdownTimeout = cfg.Live.ShutdownTimeout
	opts.StreamPrices = cfg.Live.StreamPrices
	opts.Timeframe = tf
	opts.Window = cfg.Strategy.Window
	opts.Leverage = cfg.Risk.Leverage

	factory := func() (strategies.Strategy, error) { return reg.New(cfg.Strategy.Name, params) }
	loop := live.New(opts, l, cfg.Risk.Config, factory, &fanout, log)

	exchanges := newExchangeRegistry(log)
	for _, ex := range cfg.Exchanges {
		conn, err := exchanges.New(ex.Name, ex.Credentials())
		if err != nil {
			return err
		}
		loop.AddExchange(exchange.WithRetry(conn, cfg.Retry), ex.Symbols)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telegram.Enabled() {
		handler := command.NewHandler(l, loop, cfg.Risk.Config, log)
		bot, err := telegram.NewBot(telegram.Config{
			Token:        cfg.Telegram.Token,
			ChatID:       cfg.Telegram.ChatID,
			AllowedUsers: cfg.Telegram.AllowedUsers,
		}, handler, log)
		if err != nil {
			return err
		}
		fanout = append(fanout, bot.Channel())
		go bot.Start(ctx)
	}

	log.Info().Str("strategy", cfg.Strategy.Name).Str("timeframe", string(tf)).Msg("starting live trading")
	return loop.Run(ctx)
}
