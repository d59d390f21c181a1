package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tastewell/harvester/internal/crawl"
	"github.com/tastewell/harvester/internal/fetch"
	"github.com/tastewell/harvester/internal/policy"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <seed-url>",
		Short: "Run a one-shot crawl of a source site",
		Long: `Crawls a single allow-listed source from the given seed URL using the
configured crawl bounds and prints the crawl summary as JSON. Recipes
are parsed but not persisted; use the API's auto-harvest endpoint to
queue jobs.`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawl,
	}
	return cmd
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	seedURL := args[0]
	matched := policy.Match(seedURL, policy.Defaults())
	if matched == nil {
		return fmt.Errorf("no active source policy matches %s", seedURL)
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.Fetch.Timeout(),
	})
	crawler := crawl.New(fetcher, logger, crawl.Config{
		MaxPages:          firstPositive(matched.MaxPages, cfg.Crawl.MaxPages),
		MaxRecipes:        firstPositive(matched.MaxRecipes, cfg.Crawl.MaxRecipes),
		CrawlDepth:        firstPositive(matched.CrawlDepth, cfg.Crawl.CrawlDepth),
		MaxLinks:          cfg.Crawl.MaxLinks,
		RespectRobots:     matched.RespectRobots,
		RequestsPerSecond: cfg.Crawl.RequestsPerSecond,
	})

	result, err := crawler.Crawl(cmd.Context(), seedURL, matched.ParserSettings)
	if err != nil {
		return fmt.Errorf("crawl %s: %w", seedURL, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
