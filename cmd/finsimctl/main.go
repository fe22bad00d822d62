// Command finsimctl runs maintenance tasks against the ledger database:
// schema migration, account creation, progress backfills and catalog dumps.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/finsim/ledger-engine/internal/catalog"
	"github.com/finsim/ledger-engine/internal/config"
	"github.com/finsim/ledger-engine/internal/ledger"
	"github.com/finsim/ledger-engine/internal/progress"
	"github.com/finsim/ledger-engine/internal/quote"
	"github.com/finsim/ledger-engine/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "finsimctl",
		Short:        "FinSim ledger maintenance",
		SilenceUsage: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newUserCmd(),
		newRecomputeCmd(),
		newLeaderboardCmd(),
		newCatalogCmd(),
	)
	return root
}

// openStore connects to DATABASE_URL. The caller must call the returned
// close function.
func openStore(ctx context.Context) (*store.PostgresStore, config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, cfg, nil, errors.New("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, cfg, nil, fmt.Errorf("connect: %w", err)
	}
	return store.NewPostgresStore(pool), cfg, pool.Close, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, closeFn, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newUserCmd() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var name, email string
	create := &cobra.Command{
		Use:   "create",
		Short: "Open an account with the starting balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, closeFn, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			svc := ledger.NewService(st, quote.NewStatic(nil), nil, ledger.Options{StartingBalance: cfg.StartingBalance})
			u, err := svc.CreateUser(cmd.Context(), name, email)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.ID, u.Name, ledger.FormatINR(u.CashBalance))
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name (required)")
	create.Flags().StringVar(&email, "email", "", "email address")
	create.MarkFlagRequired("name")

	user.AddCommand(create)
	return user
}

func newRecomputeCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "recompute [user-id...]",
		Short: "Re-derive challenge progress and award any pending points",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("pass user ids or --all")
			}
			st, cfg, closeFn, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			ids := args
			if all {
				if ids, err = st.ListUserIDs(cmd.Context()); err != nil {
					return err
				}
			}
			eng := progress.NewEngine(st, catalog.Default(), progress.Options{StartingBalance: cfg.StartingBalance})
			return recompute(cmd.Context(), cmd.OutOrStdout(), eng, ids)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "recompute every user")
	return cmd
}

func recompute(ctx context.Context, out io.Writer, eng *progress.Engine, ids []string) error {
	var failed int
	for _, id := range ids {
		done, err := eng.Recompute(ctx, id)
		if err != nil {
			fmt.Fprintf(out, "%s\terror: %v\n", id, err)
			failed++
			continue
		}
		for _, c := range done {
			fmt.Fprintf(out, "%s\tcompleted %q (+%d)\n", id, c.Challenge.Title, c.Points)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d users failed", failed, len(ids))
	}
	return nil
}

func newLeaderboardCmd() *cobra.Command {
	var by string
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the top users",
		RunE: func(cmd *cobra.Command, args []string) error {
			if by != string(store.RankByPoints) && by != string(store.RankByPortfolio) {
				return fmt.Errorf("--type must be %s or %s", store.RankByPoints, store.RankByPortfolio)
			}
			st, _, closeFn, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			users, err := st.TopUsers(cmd.Context(), store.RankBy(by), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tNAME\tPOINTS\tPORTFOLIO")
			for i, u := range users {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", i+1, u.Name, u.TotalPoints, ledger.FormatINR(u.PortfolioValue))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&by, "type", string(store.RankByPoints), "points or portfolio")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of users")
	return cmd
}

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "catalog [challenges|lessons|quizzes|stocks]",
		Short:     "Print the static catalogs",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"challenges", "lessons", "quizzes", "stocks"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCatalog(cmd.OutOrStdout(), catalog.Default(), args[0])
		},
	}
}

func printCatalog(out io.Writer, cat *catalog.Catalog, what string) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	switch what {
	case "challenges":
		fmt.Fprintln(tw, "ID\tKIND\tTITLE\tTARGET\tPOINTS\tDIFFICULTY")
		for _, c := range cat.Challenges() {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", c.ID, c.Kind, c.Title, c.Target, c.RewardPoints, c.Difficulty)
		}
	case "lessons":
		fmt.Fprintln(tw, "ID\tLEVEL\tTITLE")
		for _, l := range cat.Lessons() {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", l.ID, l.Level, l.Title)
		}
	case "quizzes":
		fmt.Fprintln(tw, "ID\tTITLE\tQUESTIONS\tPASS")
		for _, q := range cat.Quizzes() {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", q.ID, q.Title, len(q.Questions), q.PassingScore)
		}
	case "stocks":
		fmt.Fprintln(tw, "SYMBOL\tNAME\tSECTOR\tBASE")
		for _, in := range quote.Instruments() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", in.Symbol, in.Name, in.Sector, ledger.FormatINR(in.BasePrice))
		}
	default:
		return fmt.Errorf("unknown catalog %q", what)
	}
	return tw.Flush()
}
