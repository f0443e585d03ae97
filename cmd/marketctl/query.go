package main

import (
	"github.com/spf13/cobra"
)

// GetCmdAgents lists registered agents.
func GetCmdAgents() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			agents, err := c.Agents(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), agents)
		},
	}
}

// GetCmdAgent shows one agent by wallet.
func GetCmdAgent() *cobra.Command {
	return &cobra.Command{
		Use:   "agent [wallet]",
		Short: "Show an agent by wallet address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			agent, err := c.Agent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), agent)
		},
	}
}

// GetCmdJobs lists all jobs, or one job when an id is given.
func GetCmdJobs() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs [job-id]",
		Short: "List jobs or show a single job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				job, err := c.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), job)
			}
			jobs, err := c.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), jobs)
		},
	}
}

func GetCmdTransactions() *cobra.Command {
	return &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"txs"},
		Short:   "Show the recent transaction window, oldest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			txs, err := c.Transactions(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), txs)
		},
	}
}

func GetCmdStats() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show marketplace totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}
