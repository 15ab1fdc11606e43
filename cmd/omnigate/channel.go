package main

import (
	"context"
	"encoding/json"
	"fmt"

	"omnigate/internal/config"
	"omnigate/internal/domain"
	"omnigate/internal/store"

	"github.com/spf13/cobra"
)

func channelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage connected channels",
	}
	cmd.AddCommand(channelAddCmd())
	cmd.AddCommand(channelListCmd())
	cmd.AddCommand(channelEnableCmd(true))
	cmd.AddCommand(channelEnableCmd(false))
	return cmd
}

func openStore() (*store.SQLite, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}
	return store.Open(cfg.Store.DBPath, logger)
}

func channelAddCmd() *cobra.Command {
	var (
		mode       string
		configJSON string
		autoReply  bool
	)
	cmd := &cobra.Command{
		Use:   "add [owner] [channel]",
		Short: "Add or update a channel (telegram, discord, slack, whatsapp)",
		Long: `Adds a channel row the gateway picks up on its next reconcile tick.
The --config-json flag carries channel-specific credentials, for example:

  omnigate channel add alice telegram --config-json '{"token":"123:abc"}'
  omnigate channel add alice whatsapp --mode personal --config-json '{}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configJSON != "" && !json.Valid([]byte(configJSON)) {
				return fmt.Errorf("--config-json is not valid JSON")
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			rec := domain.ChannelRecord{
				Owner:     args[0],
				Channel:   args[1],
				Mode:      domain.ConnectionMode(mode),
				Config:    configJSON,
				Enabled:   true,
				Status:    domain.StatusDisconnected,
				AutoReply: autoReply,
			}
			if err := st.UpsertChannel(context.Background(), rec); err != nil {
				return err
			}
			logger.Info("channel saved", "key", rec.Key().String(), "autoReply", autoReply)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "business", "connection mode: business or personal")
	cmd.Flags().StringVar(&configJSON, "config-json", "", "channel credentials as a JSON object")
	cmd.Flags().BoolVar(&autoReply, "auto-reply", true, "answer incoming messages automatically")
	return cmd
}

func channelListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List enabled channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			channels, err := st.ListEnabledChannels(context.Background())
			if err != nil {
				return err
			}
			if len(channels) == 0 {
				fmt.Println("no channels configured")
				return nil
			}
			for _, c := range channels {
				fmt.Printf("  %-40s status=%-12s autoReply=%v\n", c.Key().String(), c.Status, c.AutoReply)
			}
			return nil
		},
	}
}

func channelEnableCmd(enable bool) *cobra.Command {
	use, short := "enable", "Enable a channel"
	if !enable {
		use, short = "disable", "Disable a channel"
	}
	var mode string
	cmd := &cobra.Command{
		Use:   use + " [owner] [channel]",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			key := domain.ConnectorKey{
				Owner:   args[0],
				Channel: args[1],
				Mode:    domain.ConnectionMode(mode),
			}
			if err := st.SetChannelEnabled(context.Background(), key, enable); err != nil {
				return err
			}
			logger.Info("channel updated", "key", key.String(), "enabled", enable)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "business", "connection mode: business or personal")
	return cmd
}
