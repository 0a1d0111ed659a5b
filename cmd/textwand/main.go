package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/textwand/textwand/internal/cache"
	"github.com/textwand/textwand/internal/config"
	"github.com/textwand/textwand/internal/health"
	"github.com/textwand/textwand/internal/history"
	"github.com/textwand/textwand/internal/invoke"
	"github.com/textwand/textwand/internal/prompt"
	"github.com/textwand/textwand/internal/provider"
	"github.com/textwand/textwand/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "textwand",
		Short:         "Apply LLM text operations via external provider CLIs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to config file")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newTestCmd(&configPath))
	root.AddCommand(newOperationsCmd(&configPath))
	root.AddCommand(newProvidersCmd(&configPath))
	root.AddCommand(newHistoryCmd(&configPath))
	root.AddCommand(newWatchCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/textwand/config.yaml"
	}
	return "config.yaml"
}

// app bundles the wired components for one command run.
type app struct {
	cfg     *config.Config
	library *prompt.Library
	engine  *invoke.Engine
	prober  *invoke.Prober
	history *history.Store
	cache   *cache.Store
}

func (a *app) close() {
	if a.history != nil {
		_ = a.history.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	specs := make([]provider.Spec, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		specs = append(specs, provider.Spec{
			ID:       p.ID,
			Command:  p.Command,
			Enabled:  p.IsEnabled(),
			Priority: p.Priority,
		})
	}
	registry, err := provider.NewRegistry(specs, cfg.DefaultProvider)
	if err != nil {
		return nil, err
	}

	ops := prompt.Defaults()
	for id, oc := range cfg.Operations {
		ops = append(ops, prompt.Operation{ID: id, Instruction: oc.Instruction, Script: oc.Script})
	}
	library := prompt.NewLibrary(ops)

	a := &app{cfg: cfg, library: library}

	var recorder invoke.Recorder
	if cfg.History.DataDir != "" {
		store, err := history.Open(cfg.History.DataDir)
		if err != nil {
			return nil, err
		}
		a.history = store
		recorder = store
	}

	var respCache invoke.Cache
	if cfg.Cache.Enabled {
		ttl, err := cfg.Cache.ParseTTL()
		if err != nil {
			a.close()
			return nil, fmt.Errorf("config: cache ttl: %w", err)
		}
		a.cache = cache.New(cfg.Cache.Addr, ttl)
		respCache = a.cache
	}

	invoker := invoke.NewInvoker(invoke.ExecLauncher{}, cfg.Timeout())
	a.engine = invoke.NewEngineWithStores(registry, library, invoker, recorder, respCache)
	a.prober = invoke.NewProber(a.engine)
	return a, nil
}

func newRunCmd(configPath *string) *cobra.Command {
	var providerID string
	var params []string

	cmd := &cobra.Command{
		Use:   "run <operation> [text]",
		Short: "Apply an operation to the given text (or stdin)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			text, err := inputText(args[1:], cmd.InOrStdin())
			if err != nil {
				return err
			}
			paramMap, err := parseParams(params)
			if err != nil {
				return err
			}

			ok, out := a.perform(cmd, args[0], text, paramMap, providerID)
			if !ok {
				return fmt.Errorf("%s", out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "provider to try first (default: configured default)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "operation parameter as name=value (repeatable)")
	return cmd
}

func (a *app) perform(cmd *cobra.Command, operationID, text string, params map[string]string, providerID string) (bool, string) {
	if providerID == "" {
		return a.engine.PerformOperation(cmd.Context(), operationID, text, params)
	}
	// Explicit provider: render here, then route through the call chain so
	// the requested provider is tried first.
	rendered, err := a.library.Render(operationID, text, params)
	if err != nil {
		return false, err.Error()
	}
	if rendered.Direct {
		return true, rendered.Message
	}
	return a.engine.Call(cmd.Context(), providerID, rendered.Prompt)
}

func inputText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid --param %q, expected name=value", pair)
		}
		params[name] = value
	}
	return params, nil
}

func newTestCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test <provider>",
		Short: "Probe a provider with a minimal prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ok, msg := a.prober.Test(cmd.Context(), args[0])
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			if !ok {
				return fmt.Errorf("provider %s failed its probe", args[0])
			}
			return nil
		},
	}
}

func newOperationsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "operations",
		Short: "List known operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ids := a.library.Operations()
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newProvidersCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers in fallback order",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			for _, p := range a.cfg.Providers {
				state := "enabled"
				if !p.IsEnabled() {
					state = "disabled"
				}
				marker := ""
				if p.ID == a.cfg.DefaultProvider {
					marker = " (default)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tpriority %d\t%s%s\n", p.ID, p.Priority, state, marker)
			}
			return nil
		},
	}
}

func newHistoryCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent invocation attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if a.history == nil {
				return fmt.Errorf("history is not enabled; set history.data_dir in the config")
			}
			entries, err := a.history.Recent(limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.At.Local().Format("2006-01-02 15:04:05"),
					e.Operation, e.Provider, e.Outcome, e.Duration, e.Detail)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of attempts to show")
	return cmd
}

func newWatchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run scheduled provider probes and serve metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			providers := a.cfg.Probes.Providers
			if len(providers) == 0 {
				for _, p := range a.cfg.Providers {
					if p.IsEnabled() {
						providers = append(providers, p.ID)
					}
				}
			}
			monitor, err := health.New(a.prober, providers, a.cfg.Probes.Schedule, a.cfg.Probes.Listen)
			if err != nil {
				return err
			}
			if err := monitor.Start(cmd.Context()); err != nil {
				return err
			}
			log.Printf("watch: probing %v on %q, metrics on %s", providers, a.cfg.Probes.Schedule, a.cfg.Probes.Listen)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			monitor.Stop()
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		},
	}
}
