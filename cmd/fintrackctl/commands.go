package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"fintrack/internal/cli"
	"fintrack/internal/core"
	"fintrack/internal/services"
	"fintrack/internal/session"
	"fintrack/internal/storage"
	"fintrack/internal/worker"
)

type migrateCmd struct {
	Up      migrateUpCmd      `cmd:"" help:"Apply all pending migrations."`
	Down    migrateDownCmd    `cmd:"" help:"Roll back migrations."`
	Version migrateVersionCmd `cmd:"" help:"Print the applied schema version."`
}

type migrateUpCmd struct{}

func (migrateUpCmd) Run(g *globals) error {
	driver, dsn, err := cli.StoreTarget(g.cfg)
	if err != nil {
		return err
	}
	if err := storage.RunMigrations(driver, dsn); err != nil {
		return err
	}
	return printVersion(g, driver, dsn)
}

type migrateDownCmd struct {
	Steps int `default:"1" help:"Number of migrations to roll back."`
}

func (c migrateDownCmd) Run(g *globals) error {
	if c.Steps < 1 {
		return fmt.Errorf("steps must be at least 1")
	}
	driver, dsn, err := cli.StoreTarget(g.cfg)
	if err != nil {
		return err
	}
	if err := storage.MigrateDown(driver, dsn, c.Steps); err != nil {
		return err
	}
	return printVersion(g, driver, dsn)
}

type migrateVersionCmd struct{}

func (migrateVersionCmd) Run(g *globals) error {
	driver, dsn, err := cli.StoreTarget(g.cfg)
	if err != nil {
		return err
	}
	return printVersion(g, driver, dsn)
}

func printVersion(g *globals, driver storage.Driver, dsn string) error {
	v, dirty, err := storage.SchemaVersion(driver, dsn)
	if err != nil {
		return err
	}
	if dirty {
		_, err = fmt.Fprintf(g.out, "version %d (dirty)\n", v)
		return err
	}
	_, err = fmt.Fprintf(g.out, "version %d\n", v)
	return err
}

// scope selects one user's account context.
type scope struct {
	User    string `required:"" help:"User id."`
	Account string `default:"personal" help:"Account type: personal, family or business."`
}

func (s scope) session() (session.Session, error) {
	at, err := core.ParseAccountType(s.Account)
	if err != nil {
		return session.Session{}, err
	}
	return session.Session{UserID: s.User, AccountType: at}, nil
}

type summaryCmd struct {
	Scope  scope  `embed:""`
	Wallet string `help:"Wallet id; defaults to the active wallet."`
	Months int    `help:"Window in months; defaults to ANALYTICS_MONTHS."`
	Top    int    `help:"Number of top categories; defaults to ANALYTICS_TOP_N."`
}

func (c summaryCmd) Run(g *globals) error {
	sess, err := c.Scope.session()
	if err != nil {
		return err
	}
	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	analytics := services.NewAnalyticsService(store, g.cfg.AnalyticsMonths, g.cfg.AnalyticsTopN)
	summary, err := analytics.Summary(g.ctx, sess, services.SummaryQuery{
		WalletID: c.Wallet,
		Months:   c.Months,
		TopN:     c.Top,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(g.out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

type reconcileCmd struct {
	Wallet      string `help:"Reconcile only this wallet."`
	Concurrency int    `default:"4" help:"Wallets reconciled in parallel."`
}

func (c reconcileCmd) Run(g *globals) error {
	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if c.Wallet != "" {
		rec, err := store.ReconcileWallet(g.ctx, c.Wallet)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(g.out, "wallet %s: stored %s, computed %s, repaired %t\n",
			rec.WalletID, rec.Stored, rec.Computed, rec.Repaired)
		return err
	}

	res, err := worker.NewReconcileWorker(store, nil, nil, c.Concurrency).Sweep(g.ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(g.out, "wallets %d, repaired %d, failed %d\n", res.Wallets, res.Repaired, res.Failed)
	if err == nil && res.Failed > 0 {
		err = fmt.Errorf("%d wallets could not be reconciled", res.Failed)
	}
	return err
}

type walletsCmd struct {
	Scope scope `embed:""`
}

func (c walletsCmd) Run(g *globals) error {
	sess, err := c.Scope.session()
	if err != nil {
		return err
	}
	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	wallets, err := store.ListWallets(g.ctx, sess.UserID, sess.AccountType)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(g.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBALANCE\tACTIVE")
	for _, w := range wallets {
		active := ""
		if w.IsActive {
			active = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", w.ID, w.Name, w.Balance, active)
	}
	return tw.Flush()
}
