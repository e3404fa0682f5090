// cmd/client is the CLI entry-point built with Cobra.
//
// Usage:
//
//	replogctl append "hello world" -w 2   --server http://localhost:8000
//	replogctl log                         --server http://localhost:8001
//	replogctl health                      --server http://localhost:8000
//	replogctl raw /health                 --server http://localhost:8000
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"replicated-log/internal/client"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "replogctl",
		Short: "CLI client for the replicated append-only log",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8000", "Log server address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second,
		"HTTP request timeout (appends with w > 1 block until enough ACKs)")

	root.AddCommand(appendCmd(), logCmd(), healthCmd(), rawCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── append ───────────────────────────────────────────────────────────────────

func appendCmd() *cobra.Command {
	var (
		writeConcern int
		requestID    string
	)
	cmd := &cobra.Command{
		Use:   "append <content>",
		Short: "Append a message to the log (primary only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c := client.New(serverAddr, timeout)
			msg, err := c.Append(context.Background(), args[0], writeConcern, requestID)
			if err != nil {
				return err
			}
			prettyPrint(msg)
			return nil
		},
	}
	cmd.Flags().IntVarP(&writeConcern, "write-concern", "w", 1,
		"Nodes (including primary) that must hold the message before returning")
	cmd.Flags().StringVar(&requestID, "request-id", "",
		"Request id for log correlation (random UUID when empty)")
	return cmd
}

// ─── log ──────────────────────────────────────────────────────────────────────

func logCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "List all committed messages in id order",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			msgs, err := c.Log(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(msgs)
			return nil
		},
	}
}

// ─── health ───────────────────────────────────────────────────────────────────

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show node health, counts, and per-secondary state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			info, err := c.Health(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(info)
			return nil
		},
	}
}

// ─── raw ──────────────────────────────────────────────────────────────────────

func rawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "raw <path>",
		Short: "GET an arbitrary path on the node and print the raw response body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			body, err := c.GetRaw(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(body)
			return nil
		},
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
