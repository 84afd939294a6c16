package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/noah-isme/scc-sat-api/internal/bootstrap"
	"github.com/noah-isme/scc-sat-api/internal/repository"
	"github.com/noah-isme/scc-sat-api/internal/service"
	"github.com/noah-isme/scc-sat-api/pkg/config"
)

const usage = `usage: ledgerctl <command> [flags] [args]

commands:
  list [-attendance status] [-sort field] [-order asc|desc] [search]
  stats
  seat [-year yyyy]
  attendance -offline <seat> <Pending|Present|Absent|Late>
  export [-attendance status] [-sort field] [-order asc|desc] <file.csv>
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		color.Red("failed to load config: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	backend, err := bootstrap.OpenBackend(ctx, cfg, zap.NewNop())
	if err != nil {
		color.Red("failed to open %s backend: %v", cfg.Ledger.Backend, err)
		os.Exit(1)
	}
	defer backend.Close() //nolint:errcheck

	ledger := service.NewLedgerService(repository.NewLedgerRepository(backend.Store, backend.Keys), nil, nil, nil)
	if err := ledger.Load(ctx); err != nil {
		color.Red("failed to read registrations: %v", err)
		os.Exit(1)
	}
	baseline := cfg.Exam.SeatBaseline
	if baseline <= 0 {
		baseline = service.DefaultSeatBaseline
	}

	c := &cli{
		ledger:   ledger,
		seats:    service.NewSequenceService(repository.NewSeatCounterRepository(backend.Store, backend.Keys), baseline, nil, nil),
		exporter: service.NewExportService(ledger, nil, nil, service.ExportConfig{ExamYear: cfg.Exam.Year}, nil, nil, nil),
		year:     cfg.Exam.Year,
		backend:  cfg.Ledger.Backend,
		out:      os.Stdout,
	}
	if err := c.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}
