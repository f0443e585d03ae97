package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/marketclient"
)

// GetCmdWatch follows the live event feed. Every (re)connect starts from a
// fresh snapshot so events missed while disconnected are not lost from view;
// while the feed is down the snapshot is re-fetched every --poll.
func GetCmdWatch() *cobra.Command {
	var (
		poll      time.Duration
		maxEvents int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream marketplace events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			w := &watcher{client: c, out: cmd.OutOrStdout(), poll: poll, remaining: maxEvents}
			return w.run(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&poll, "poll", 5*time.Second, "snapshot interval while the feed is unavailable")
	cmd.Flags().IntVar(&maxEvents, "max-events", 0, "exit after this many events (0 = unlimited)")
	return cmd
}

type watcher struct {
	client    *marketclient.Client
	out       io.Writer
	poll      time.Duration
	remaining int
}

func (w *watcher) run(ctx context.Context) error {
	for {
		conn, err := w.client.DialFeed(ctx)
		if err != nil {
			fmt.Fprintf(w.out, "feed unavailable: %v\n", err)
			w.snapshot(ctx)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.poll):
			}
			continue
		}
		w.snapshot(ctx)
		done, err := w.follow(ctx, conn)
		if done {
			return nil
		}
		fmt.Fprintf(w.out, "feed closed: %v\n", err)
	}
}

// follow prints events until the connection drops, the context ends or the
// event budget is spent. It reports whether watching should stop.
func (w *watcher) follow(ctx context.Context, conn *websocket.Conn) (bool, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return false, err
		}
		fmt.Fprintln(w.out, formatEvent(payload))
		if w.remaining > 0 {
			w.remaining--
			if w.remaining == 0 {
				return true, nil
			}
		}
	}
}

func (w *watcher) snapshot(ctx context.Context) {
	stats, err := w.client.Stats(ctx)
	if err != nil {
		fmt.Fprintf(w.out, "snapshot failed: %v\n", err)
		return
	}
	fmt.Fprintf(w.out, "snapshot: agents=%d transactions=%d volume=%s activeJobs=%d\n",
		stats.TotalAgents, stats.TotalTransactions, stats.TotalVolume, stats.ActiveJobs)
}

func formatEvent(payload []byte) string {
	ev := gjson.ParseBytes(payload)
	kind := ev.Get("type").String()
	switch kind {
	case ledger.EventTransaction:
		tx := ev.Get("transaction")
		return fmt.Sprintf("%s %s %s -> %s %s (%s)", kind, tx.Get("id"), tx.Get("from"), tx.Get("to"), tx.Get("amount"), tx.Get("service"))
	case ledger.EventJobCompleted:
		return fmt.Sprintf("%s %s provider=%s paid=%s", kind, ev.Get("job.id"), ev.Get("job.providerAgent"), ev.Get("transaction.amount"))
	case ledger.EventJobCreated, ledger.EventJobFailed:
		job := ev.Get("job")
		line := fmt.Sprintf("%s %s %s -> %s %s", kind, job.Get("id"), job.Get("clientAgent"), job.Get("providerAgent"), job.Get("service"))
		if reason := job.Get("failureReason"); reason.Exists() {
			line += " reason=" + reason.String()
		}
		return line
	case ledger.EventAgentRegistered, ledger.EventAgentStatus:
		agent := ev.Get("agent")
		return fmt.Sprintf("%s %s %q %s", kind, agent.Get("id"), agent.Get("name").String(), agent.Get("status"))
	}
	return string(payload)
}
