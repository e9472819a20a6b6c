package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hadiwinata/mediaforge/internal/adapter/repo"
	"github.com/hadiwinata/mediaforge/internal/domain"
	"github.com/hadiwinata/mediaforge/internal/gate"
	"github.com/hadiwinata/mediaforge/internal/ledger"
	"github.com/hadiwinata/mediaforge/internal/orchestrator"
	"github.com/hadiwinata/mediaforge/internal/queue"
	"github.com/hadiwinata/mediaforge/internal/retry"
)

func main() {
	var (
		tenantFlag string
		grantFlag  int64
		reasonFlag string
		noteFlag   string
		cancelFlag string
		showFlag   bool
	)

	flag.StringVar(&tenantFlag, "tenant", "", "tenant ID to operate on")
	flag.Int64Var(&grantFlag, "grant", 0, "credits to grant the tenant")
	flag.StringVar(&reasonFlag, "reason", "manual_adjustment", "grant reason (plan_grant, manual_adjustment)")
	flag.StringVar(&noteFlag, "note", "", "free-form note stored on the ledger entry")
	flag.StringVar(&cancelFlag, "cancel", "", "job ID to force-cancel with a refund")
	flag.BoolVar(&showFlag, "balance", false, "print the tenant's balance and recent transactions")
	flag.Parse()

	tenantID := strings.TrimSpace(tenantFlag)
	cancelID := strings.TrimSpace(cancelFlag)
	if cancelID == "" && tenantID == "" {
		exitWithError(errors.New("either -tenant or -cancel must be provided"))
	}

	_ = godotenv.Load()
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("connect database: %w", err))
	}
	defer pool.Close()

	led := ledger.New(repo.NewLedgerStore(pool), zerolog.Nop())

	if cancelID != "" {
		// The cancel path never enqueues, so an in-process queue is fine here.
		manager := orchestrator.NewManager(
			repo.NewJobRepository(pool),
			repo.NewTenantRepository(pool),
			led, queue.NewMemory(),
			gate.New(gate.StaticMaintenance{}, nil),
			retry.Policy{},
			zerolog.Nop(),
		)
		job, err := manager.Cancel(ctx, cancelID, orchestrator.CodeCancelled, "cancelled by operator")
		if err != nil {
			exitWithError(fmt.Errorf("cancel job %s: %w", cancelID, err))
		}
		fmt.Printf("cancelled job %s (tenant %s, %d credits refunded)\n", job.ID, job.TenantID, job.CreditsUsed)
		return
	}

	if grantFlag != 0 {
		reason := domain.TransactionReason(strings.TrimSpace(reasonFlag))
		if err := led.Grant(ctx, tenantID, grantFlag, reason, noteFlag); err != nil {
			exitWithError(fmt.Errorf("grant: %w", err))
		}
		fmt.Printf("granted %d credits to tenant %s\n", grantFlag, tenantID)
	}

	if showFlag || grantFlag != 0 {
		balance, err := led.Balance(ctx, tenantID)
		if err != nil {
			exitWithError(fmt.Errorf("balance: %w", err))
		}
		fmt.Printf("tenant %s balance: %d\n", tenantID, balance)
	}

	if showFlag {
		txs, err := led.Transactions(ctx, tenantID, 20)
		if err != nil {
			exitWithError(fmt.Errorf("transactions: %w", err))
		}
		for _, tx := range txs {
			line := fmt.Sprintf("%s  %+d  %s", tx.CreatedAt.Format(time.RFC3339), tx.Amount, tx.Reason)
			if tx.JobID != "" {
				line += "  job=" + tx.JobID
			}
			if tx.Note != "" {
				line += "  " + tx.Note
			}
			fmt.Println(line)
		}
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "creditctl:", err)
	os.Exit(1)
}
