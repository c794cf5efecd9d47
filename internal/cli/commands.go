package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemon-ai/mnemon/internal/config"
	"github.com/mnemon-ai/mnemon/internal/engine"
	"github.com/mnemon-ai/mnemon/internal/logging"
	"github.com/mnemon-ai/mnemon/internal/mcpserver"
	"github.com/mnemon-ai/mnemon/internal/store"
	"github.com/mnemon-ai/mnemon/internal/store/postgres"
	"github.com/mnemon-ai/mnemon/internal/store/sqlite"
)

func init() {
	searchCmd.Flags().StringVarP(&searchBranch, "branch", "b", "", "Restrict results to one branch")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum number of results")

	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "Maximum number of commits")
}

// openStore opens the configured backend. Callers own the returned store
// and must Close it.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return postgres.Open(ctx, cfg.Database.URL, cfg.Embedding.Dimension)
	case "sqlite", "":
		path := cfg.Database.Path
		if path == "" {
			var err error
			path, err = sqlite.DefaultPath()
			if err != nil {
				return nil, err
			}
		}
		return sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// openEngine is the shared setup for one-shot commands: config, store, engine.
func openEngine(ctx context.Context) (*engine.Engine, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	eng := engine.New(st, cfg, log)
	return eng, func() { st.Close() }, nil
}

// --- maintain command ---

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run one maintenance cycle and exit",
	Long:  "Runs consolidation, trail decay, and centroid refresh once, then prints the run report.",
	RunE:  runMaintain,
}

func runMaintain(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	eng, closeFn, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := eng.RunMaintenance(ctx)
	if err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}

	fmt.Printf("run %s completed in %dms\n", res.RunID, res.DurationMS)
	if c := res.Consolidation; c != nil {
		fmt.Printf("  candidates: evaluated=%d promoted=%d cooled=%d expired=%d\n",
			c.Evaluated, c.Promoted, c.Cooled, c.Expired)
	}
	fmt.Printf("  branches refreshed: %d\n", res.BranchesRefreshed)
	if len(res.TrailHealth) > 0 {
		fmt.Printf("  trails: active=%d fading=%d dormant=%d archived=%d\n",
			res.TrailHealth[store.TrailActive],
			res.TrailHealth[store.TrailFading],
			res.TrailHealth[store.TrailDormant],
			res.TrailHealth[store.TrailArchived])
	}
	return nil
}

// --- search command ---

var (
	searchBranch string
	searchLimit  int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memories",
	Long:  "Hybrid search over committed memory: lexical and vector rank lists fused with RRF, boosted by trail strength.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eng, closeFn, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	results, err := eng.Search(ctx, query, searchBranch, searchLimit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s (%s)\n", i+1, r.Score, r.Fingerprint, r.Branch)
		if r.Excerpt != "" {
			fmt.Printf("   %s\n", r.Excerpt)
		}
		fmt.Println()
	}
	return nil
}

// --- log command ---

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log [branch]",
	Short: "Show the commit log for a branch",
	Args:  cobra.ExactArgs(1),
	RunE:  runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	branch := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eng, closeFn, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	commits, err := eng.History(ctx, branch, logLimit)
	if err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if len(commits) == 0 {
		fmt.Printf("No commits on branch %s.\n", branch)
		return nil
	}

	for _, c := range commits {
		id := c.ID
		if len(id) > 8 {
			id = id[:8]
		}
		ts := time.UnixMilli(c.CreatedAt).UTC().Format("2006-01-02 15:04")
		line := fmt.Sprintf("%s  %s  %s", id, ts, c.Message)
		if c.Author != "" {
			line += fmt.Sprintf(" (%s)", c.Author)
		}
		fmt.Println(line)
	}
	return nil
}

// --- mcp command ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve memory tools over MCP stdio",
	Long:  "Runs the MCP server on stdin/stdout so agent runtimes can mount mnemon as a toolset. Logs go to stderr.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	eng := engine.New(st, cfg, log)
	return mcpserver.Run(cmd.Context(), eng, VersionString(), log)
}
