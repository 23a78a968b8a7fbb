package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-trade-client/app"
	"github.com/saiset-co/sai-trade-client/config"
	"github.com/saiset-co/sai-trade-client/types"
	"github.com/saiset-co/sai-trade-client/utils"
)

const Version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "tradeclient",
		Short:         "Resilient client for the trading platform services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(
		invokeCmd(&configPath),
		operationsCmd(&configPath),
		cacheCmd(&configPath),
		watchCmd(&configPath),
		logoutCmd(&configPath),
		healthCmd(&configPath),
		configCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "tradeclient %s\n", Version)
			},
		},
	)

	return cmd
}

func build(ctx context.Context, configPath string) (*app.App, error) {
	cm, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cm)
}

func invokeCmd(configPath *string) *cobra.Command {
	var (
		params     string
		retry      bool
		cacheTTL   time.Duration
		backend    string
		timeout    time.Duration
		invalidate []string
	)

	cmd := &cobra.Command{
		Use:   "invoke <operation>",
		Short: "Call a named operation and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callParams, err := parseParams(params)
			if err != nil {
				return err
			}

			opts := &types.CallOptions{Retry: retry, Timeout: timeout, Invalidate: invalidate}
			if cacheTTL > 0 {
				b, err := types.ParseBackend(backend)
				if err != nil {
					return err
				}
				opts.Cache = &types.CacheOptions{TTL: cacheTTL, Backend: b}
			}

			a, err := build(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Dispatcher.Invoke(cmd.Context(), args[0], callParams, opts)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&params, "params", "p", "", "Operation parameters as a JSON object")
	cmd.Flags().BoolVar(&retry, "retry", false, "Retry once on network or server errors")
	cmd.Flags().DurationVar(&cacheTTL, "cache-ttl", 0, "Read through the cache with this TTL")
	cmd.Flags().StringVar(&backend, "backend", "memory", "Cache backend (memory, session, persistent)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-call timeout override")
	cmd.Flags().StringSliceVar(&invalidate, "invalidate", nil, "Cache key patterns to clear after success")

	return cmd
}

func operationsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "operations",
		Short: "List the operation table",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, op := range a.Dispatcher.Registry().List() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-22s %-13s %-6s %s\n", op.Name, op.Service, op.Method, op.Path)
			}
			return nil
		},
	}
}

func cacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the cache backends",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print per-backend entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			return printJSON(cmd.OutOrStdout(), a.Cache.Stats())
		},
	})

	var (
		pattern string
		key     string
	)

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear every backend, one key, or keys matching a pattern",
		RunE: func(cmd *cobra.Command, args []string) error {
			var re *regexp.Regexp
			if pattern != "" {
				compiled, err := regexp.Compile(pattern)
				if err != nil {
					return types.Errorf(types.ErrInvalidParameter, "pattern: %v", err)
				}
				re = compiled
			}

			a, err := build(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			switch {
			case re != nil:
				removed := a.Cache.ClearByPattern(re)
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
			case key != "":
				a.Cache.ClearKey(key)
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", key)
			default:
				a.Cache.ClearAll()
				fmt.Fprintln(cmd.OutOrStdout(), "cleared all backends")
			}
			return nil
		},
	}
	clearCmd.Flags().StringVar(&pattern, "pattern", "", "Regular expression matched against keys")
	clearCmd.Flags().StringVar(&key, "key", "", "Single key to remove")

	cmd.AddCommand(clearCmd)
	return cmd
}

func watchCmd(configPath *string) *cobra.Command {
	var channels []string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream push updates and poll while the channel is down",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := build(ctx, *configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			a.Tracker.OnChange(func(from, to types.ConnectionStatus) {
				fmt.Fprintf(out, "connection: %s -> %s\n", from, to)
			})

			if a.Channel != nil {
				for _, channel := range channels {
					if err := a.Channel.Subscribe(channel, func(message *types.ChannelMessage) error {
						fmt.Fprintf(out, "%s %s\n", message.Channel, string(message.Data))
						return nil
					}); err != nil {
						a.Close()
						return err
					}
				}
			}

			if err := a.Start(ctx); err != nil {
				a.Close()
				return err
			}

			<-ctx.Done()
			return a.Stop()
		},
	}

	cmd.Flags().StringSliceVar(&channels, "channel", nil, "Channel to subscribe to (repeatable)")
	return cmd
}

func logoutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Dispatcher.Logout(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "logout request failed: %v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
			return nil
		},
	}
}

func healthCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report cache, channel and service breaker health",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			return printJSON(cmd.OutOrStdout(), a.Health.Check(cmd.Context()))
		},
	}
}

func configCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Print the value at a dotted path (whole config when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			cm, err := config.NewConfigurationManager(cmd.Context(), *configPath)
			if err != nil {
				return err
			}

			value := cm.GetValue(path, nil)
			if value == nil {
				return types.Errorf(types.ErrConfigNotFound, "path: %s", path)
			}

			out, err := yaml.Marshal(value)
			if err != nil {
				return types.WrapError(err, "failed to render config value")
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	return cmd
}

func parseParams(raw string) (types.Params, error) {
	if raw == "" {
		return nil, nil
	}

	var params types.Params
	if err := utils.Decode([]byte(raw), &params); err != nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "params must be a JSON object: %v", err)
	}
	return params, nil
}

func printJSON(w io.Writer, value interface{}) error {
	data, err := utils.Marshal(value)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
