package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rossigee/slot-rank-tracker/internal/browser"
	"github.com/rossigee/slot-rank-tracker/internal/config"
	"github.com/rossigee/slot-rank-tracker/internal/jobs"
)

// app carries the loaded configuration between cobra hooks
type app struct {
	cfg *config.Resolver

	registryURL string
	slotType    string
	maxPages    int
	selectors   string
	headless    bool
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "resolver",
		Short:         "Resolves search result ranks for registered keywords.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.registryURL, "registry-url", "", "registry API address (overrides REGISTRY_URL)")
	flags.StringVar(&a.slotType, "slot-type", "", "only process jobs of this slot type (overrides SLOT_TYPE)")
	flags.IntVar(&a.maxPages, "max-pages", 0, "search result pages to scan (overrides MAX_PAGES)")
	flags.StringVar(&a.selectors, "selectors", "", "YAML file of product card selectors (overrides SELECTORS_FILE)")
	flags.BoolVar(&a.headless, "headless", true, "run the browser without a window (overrides HEADLESS)")

	root.AddCommand(newBatchCmd(a), newWatchCmd(a), newCheckCmd(a))
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	if err := config.SetupLogging(); err != nil {
		return err
	}

	cfg, err := config.LoadResolver()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("registry-url") {
		cfg.RegistryURL = a.registryURL
	}
	if flags.Changed("slot-type") {
		cfg.Worker.SlotType = a.slotType
	}
	if flags.Changed("max-pages") {
		cfg.MaxPages = a.maxPages
	}
	if flags.Changed("selectors") {
		cfg.SelectorsFile = a.selectors
	}
	if flags.Changed("headless") {
		cfg.Browser.Headless = a.headless
	}

	a.cfg = cfg
	return nil
}

// newWorker builds a worker whose sessions are real browsers
func (a *app) newWorker() (*jobs.Worker, error) {
	resolver, err := a.cfg.NewRankResolver()
	if err != nil {
		return nil, err
	}

	browserCfg := a.cfg.Browser
	launch := func(ctx context.Context) (jobs.Session, error) {
		session, err := browser.Launch(ctx, browserCfg)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	return jobs.NewWorker(resolver, launch, a.cfg.Worker), nil
}
