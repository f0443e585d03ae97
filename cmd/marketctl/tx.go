package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
)

// GetCmdRegister registers or refreshes an agent.
func GetCmdRegister() *cobra.Command {
	var req ledger.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an agent with the marketplace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			agent, err := c.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), agent)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Name, "name", "", "display name")
	f.StringVar(&req.Description, "description", "", "what the agent offers")
	f.StringVar(&req.Endpoint, "endpoint", "", "agent base URL")
	f.StringVar(&req.Wallet, "wallet", "", "wallet address (agent id)")
	f.StringVar(&req.Price, "price", "", "price per call in USDC")
	f.StringVar(&req.Category, "category", "", "research, analysis or summarization")
	return cmd
}

func GetCmdCreateJob() *cobra.Command {
	var req ledger.CreateJobRequest
	cmd := &cobra.Command{
		Use:   "create-job",
		Short: "Open a pending job between two agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			job, err := c.CreateJob(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.ClientAgent, "client", "", "client wallet")
	f.StringVar(&req.ProviderAgent, "provider", "", "provider wallet")
	f.StringVar(&req.Service, "service", "", "service name")
	f.StringVar(&req.Price, "price", "", "agreed price")
	return cmd
}

// GetCmdCompleteJob completes a job; the optional second argument is a JSON
// result document.
func GetCmdCompleteJob() *cobra.Command {
	return &cobra.Command{
		Use:   "complete-job [job-id] [result-json]",
		Short: "Complete a pending job and settle payment",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			var result any
			if len(args) == 2 {
				raw := json.RawMessage(args[1])
				if !json.Valid(raw) {
					return fmt.Errorf("result is not valid JSON")
				}
				result = raw
			}
			res, err := c.CompleteJob(cmd.Context(), args[0], result)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func GetCmdFailJob() *cobra.Command {
	return &cobra.Command{
		Use:   "fail-job [job-id] [reason]",
		Short: "Mark a pending job as failed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			job, err := c.FailJob(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
}

// GetCmdRecordTx appends a raw transaction; the timestamp defaults to now.
func GetCmdRecordTx() *cobra.Command {
	var req ledger.TransactionRequest
	cmd := &cobra.Command{
		Use:   "record-tx",
		Short: "Record a raw payment transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			if req.Timestamp == 0 {
				req.Timestamp = time.Now().UnixMilli()
			}
			tx, err := c.RecordTransaction(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.ID, "id", "", "transaction id (generated when empty)")
	f.StringVar(&req.From, "from", "", "payer wallet")
	f.StringVar(&req.To, "to", "", "payee wallet")
	f.StringVar(&req.Amount, "amount", "", "amount in USDC")
	f.StringVar(&req.Service, "service", "", "service paid for")
	f.Int64Var(&req.Timestamp, "timestamp", 0, "unix milliseconds")
	f.StringVar(&req.TxHash, "tx-hash", "", "on-chain reference")
	return cmd
}

type demoStep struct {
	to      string
	amount  string
	service string
}

var demoSteps = []demoStep{
	{to: "0xAAA", amount: "0.02", service: "Web Scraping"},
	{to: "0xBBB", amount: "0.03", service: "Sentiment Analysis"},
	{to: "0xCCC", amount: "0.05", service: "Text Summarization"},
}

// GetCmdDemo records the three payments of a simulated research workflow.
func GetCmdDemo() *cobra.Command {
	var (
		from  string
		pause time.Duration
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Record a simulated researcher, analyzer and summarizer workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			total := ledger.ZeroAmount
			start := time.Now()
			for i, step := range demoSteps {
				ts := start.Add(time.Duration(i) * time.Second).UnixMilli()
				tx, err := c.RecordTransaction(cmd.Context(), ledger.TransactionRequest{
					ID:        fmt.Sprintf("tx-%d", ts),
					From:      from,
					To:        step.to,
					Amount:    step.amount,
					Service:   step.service,
					Timestamp: ts,
				})
				if err != nil {
					return err
				}
				total = total.Add(tx.Amount)
				fmt.Fprintf(out, "recorded %s: %s -> %s %s\n", tx.ID, step.service, step.to, tx.Amount.Display())
				if pause > 0 && i < len(demoSteps)-1 {
					select {
					case <-cmd.Context().Done():
						return cmd.Context().Err()
					case <-time.After(pause):
					}
				}
			}
			fmt.Fprintf(out, "total cost: %s USDC\n", total.Display())
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "0xClient123", "paying client wallet")
	cmd.Flags().DurationVar(&pause, "pause", 500*time.Millisecond, "delay between transactions")
	return cmd
}
