package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/seika-app/pomosync/config"
	"github.com/seika-app/pomosync/src/store"
	"github.com/seika-app/pomosync/src/timer"
	"github.com/spf13/cobra"
)

// loadConfig applies .env, the YAML file and the environment, in that
// order of increasing precedence.
func loadConfig(path string) (*config.ClientConfig, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildTokenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored session credential",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <credential>",
		Short: "Store the credential used to connect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCredentials(cmd.Context(), opts, func(ctx context.Context, c store.Credentials) error {
				if err := c.Store.Set(ctx, c.Key, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "credential stored")
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCredentials(cmd.Context(), opts, func(ctx context.Context, c store.Credentials) error {
				if err := c.PurgeCredential(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "credential cleared")
				return nil
			})
		},
	})
	return cmd
}

func withCredentials(ctx context.Context, opts *rootOptions, fn func(context.Context, store.Credentials) error) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	st, err := store.Open(cfg.StoreOptions())
	if err != nil {
		return err
	}
	defer st.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return fn(ctx, store.Credentials{Store: st, Key: cfg.CredentialKey})
}

func buildFormatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format <seconds|MM:SS>",
		Short: "Print a duration as MM:SS or HH:MM:SS, or parse one back to seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if n, err := strconv.Atoi(args[0]); err == nil {
				if n < 0 {
					return errors.New("seconds must not be negative")
				}
				fmt.Fprintln(cmd.OutOrStdout(), timer.Format(n))
				return nil
			}
			n, err := timer.Parse(args[0])
			if err != nil {
				return fmt.Errorf("not a duration: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}
