package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/config"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/marketclient"
)

const flagMarket = "market"

// NewRootCmd assembles the marketctl command tree. The marketplace URL
// defaults to MARKETCTL_URL, then http://localhost:4000.
func NewRootCmd() *cobra.Command {
	loader := config.NewLoader("MARKETCTL")
	cmd := &cobra.Command{
		Use:          "marketctl",
		Short:        "Inspect and drive an agent marketplace",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String(flagMarket, loader.String("URL", "http://localhost:4000"), "marketplace base URL")
	cmd.PersistentFlags().Duration("timeout", 10*time.Second, "per-request timeout")

	cmd.AddCommand(
		GetCmdAgents(),
		GetCmdAgent(),
		GetCmdJobs(),
		GetCmdTransactions(),
		GetCmdStats(),
		GetCmdRegister(),
		GetCmdCreateJob(),
		GetCmdCompleteJob(),
		GetCmdFailJob(),
		GetCmdRecordTx(),
		GetCmdDemo(),
		GetCmdWatch(),
	)
	return cmd
}

func clientFromCmd(cmd *cobra.Command) (*marketclient.Client, error) {
	base, err := cmd.Flags().GetString(flagMarket)
	if err != nil {
		return nil, err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}
	return marketclient.New(base, marketclient.WithTimeout(timeout)), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
