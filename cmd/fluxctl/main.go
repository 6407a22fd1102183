// Command fluxctl is a thin command-line client for fluxfaasd's
// control-plane gRPC service: register, unregister, invoke and list
// functions, and check daemon health.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fluxfaas/fluxfaas/internal/grpcapi"

	"github.com/spf13/cobra"
)

var addr string

func main() {
	root := &cobra.Command{
		Use:   "fluxctl",
		Short: "Control client for the FluxFaaS daemon",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:9090", "fluxfaasd control-plane address")

	root.AddCommand(registerCmd(), unregisterCmd(), invokeCmd(), listCmd(), healthCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dial() (*grpcapi.Client, func(), error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return grpcapi.NewClient(conn), func() { conn.Close() }, nil
}

func registerCmd() *cobra.Command {
	var (
		source     string
		scriptKind string
		timeoutS   int
		min, max   int
	)

	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Register a function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			src, err := os.ReadFile(source)
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}

			client, closeFn, err := dial()
			if err != nil {
				return err
			}
			defer closeFn()

			req := &grpcapi.RegisterRequest{
				Name:       name,
				Source:     string(src),
				ScriptKind: scriptKind,
				TimeoutMs:  int64(timeoutS) * 1000,
			}
			if min > 0 || max > 0 {
				req.PoolConfig = &grpcapi.PoolConfigMsg{
					Min:    min,
					Max:    max,
					Target: min,
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			resp, err := client.Register(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("registered %s (id %s)\n", name, resp.Id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "path to the function's source file")
	cmd.Flags().StringVarP(&scriptKind, "kind", "k", "", "script kind (rust, javascript, python, typescript)")
	cmd.Flags().IntVarP(&timeoutS, "timeout", "t", 30, "invocation timeout in seconds")
	cmd.Flags().IntVar(&min, "min-instances", 0, "minimum warm instances")
	cmd.Flags().IntVar(&max, "max-instances", 0, "maximum instances")
	cmd.MarkFlagRequired("source")

	return cmd
}

func unregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "unregister <name>",
		Aliases: []string{"rm"},
		Short:   "Unregister a function and stop its pool",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := dial()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if _, err := client.Unregister(ctx, &grpcapi.UnregisterRequest{Name: args[0]}); err != nil {
				return err
			}
			fmt.Printf("unregistered %s\n", args[0])
			return nil
		},
	}
}

func invokeCmd() *cobra.Command {
	var inputFile string

	cmd := &cobra.Command{
		Use:   "invoke <name>",
		Short: "Invoke a registered function once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := []byte("{}")
			if inputFile != "" {
				data, err := os.ReadFile(inputFile)
				if err != nil {
					return fmt.Errorf("read input: %w", err)
				}
				input = data
			}

			client, closeFn, err := dial()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			resp, err := client.Invoke(ctx, &grpcapi.InvokeRequest{Name: args[0], Input: input})
			if err != nil {
				return err
			}

			if resp.Error != "" {
				fmt.Fprintf(os.Stderr, "error: %s\n", resp.Error)
			}
			fmt.Println(string(resp.Output))
			fmt.Fprintf(os.Stderr, "request_id=%s duration_ms=%d cold_start=%v\n",
				resp.RequestId, resp.DurationMs, resp.ColdStart)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "path to a JSON input file (default: {})")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List every registered function",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := dial()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			resp, err := client.ListFunctions(ctx, &grpcapi.ListFunctionsRequest{})
			if err != nil {
				return err
			}

			if len(resp.Functions) == 0 {
				fmt.Println("no functions registered")
				return nil
			}
			fmt.Printf("%-24s %-12s %-12s %s\n", "NAME", "KIND", "TIMEOUT", "ID")
			for _, fn := range resp.Functions {
				fmt.Printf("%-24s %-12s %-12s %s\n", fn.Name, fn.ScriptKind,
					time.Duration(fn.TimeoutMs*int64(time.Millisecond)), fn.Id)
			}
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the daemon's health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := dial()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			resp, err := client.HealthCheck(ctx, &grpcapi.HealthCheckRequest{})
			if err != nil {
				return err
			}
			fmt.Println(resp.Status)
			return nil
		},
	}
}
