package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kis-trader/internal/auth"
	"kis-trader/internal/config"
	"kis-trader/internal/interfaces"
	"kis-trader/internal/logger"
	"kis-trader/internal/trace"
	"kis-trader/internal/tradelog"
	"kis-trader/internal/types"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: trader [flags] <command> [args]

commands:
  price <symbol>       print the current quote
  buy <symbol>         buy with the configured order budget
  sell <symbol>        liquidate the full holding
  portfolio            list holdings
  balance              print the account summary
  stream <symbol>...   print live ticks until interrupted

flags:`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	market := flag.String("market", "domestic", "market to trade: domestic or overseas")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer trace.Shutdown(context.Background())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		os.Exit(1)
	}

	compressOldLogs(ctx)

	session := auth.NewSession(cfg)
	if _, err := session.Authenticate(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Authentication failed", err)
		os.Exit(1)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "stream" {
		if err := runStream(ctx, cfg, session, args); err != nil {
			logger.ErrorWithErr(ctx, "Stream failed", err)
			os.Exit(1)
		}
		return
	}

	exec, err := initializeExecutor(ctx, cfg, session, *market)
	if err != nil {
		logger.ErrorWithErr(ctx, "Executor setup failed", err)
		os.Exit(1)
	}

	if err := runCommand(ctx, cfg.OrderBudget, string(cfg.TradingMode()), exec, cmd, args); err != nil {
		logger.ErrorWithErr(ctx, "Command failed", err, "command", cmd)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, budget float64, mode string, exec interfaces.Executor, cmd string, args []string) error {
	switch cmd {
	case "price":
		if len(args) != 1 {
			return fmt.Errorf("price needs exactly one symbol")
		}
		p, err := exec.CurrentPrice(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(p)

	case "buy":
		if len(args) != 1 {
			return fmt.Errorf("buy needs exactly one symbol")
		}
		res, err := exec.Buy(ctx, args[0], budget)
		if err != nil {
			return err
		}
		journal(ctx, mode, res)
		return printJSON(res)

	case "sell":
		if len(args) != 1 {
			return fmt.Errorf("sell needs exactly one symbol")
		}
		res, err := exec.Sell(ctx, args[0])
		if err != nil {
			return err
		}
		journal(ctx, mode, res)
		return printJSON(res)

	case "portfolio":
		holdings, err := exec.Portfolio(ctx)
		if err != nil {
			return err
		}
		return printJSON(holdings)

	case "balance":
		summary, err := exec.AccountSummary(ctx)
		if err != nil {
			return err
		}
		return printJSON(summary)
	}
	return fmt.Errorf("unknown command '%s'", cmd)
}

func runStream(ctx context.Context, cfg *config.Config, session *auth.Session, symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("stream needs at least one symbol")
	}

	stream := initializeStream(cfg, session)
	// Domestic realtime execution price feed.
	if err := stream.Register("H0STCNT0", symbols...); err != nil {
		return err
	}

	logger.Info(ctx, "Streaming ticks, interrupt to stop", "symbols", symbols)
	return stream.Run(ctx, func(t interfaces.Tick) {
		b, _ := json.Marshal(t)
		fmt.Println(string(b))
	})
}

func journal(ctx context.Context, mode string, res types.OrderResult) {
	err := tradelog.Append(tradelog.Entry{
		Symbol:  res.Symbol,
		Side:    res.Side,
		OrderNo: res.OrderNo,
		Message: res.Message,
		Qty:     res.Quantity,
		Price:   res.Price,
		Mode:    mode,
		Success: res.Success,
	})
	if err != nil {
		logger.Warn(ctx, "Failed to append trade journal entry", "error", err)
	}
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
