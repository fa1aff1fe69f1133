package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"hdlc-toolkit/link"

	"github.com/spf13/cobra"
)

func dialCmd(opts *globalOptions) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "dial [message...]",
		Short: "Connect to a listener and wait for each message to be echoed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				args = []string{"Hello, world!"}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
			if err != nil {
				return err
			}
			lk, err := link.New(conn, cfg.Link)
			if err != nil {
				conn.Close()
				return err
			}
			defer lk.Close()
			if err := lk.Connect(ctx); err != nil {
				return fmt.Errorf("connect %s: %w", addr, err)
			}

			for _, msg := range args {
				log.Infof("Sending to server: %s", msg)
				if err := lk.Send(ctx, []byte(msg)); err != nil {
					return err
				}
				reply, err := lk.Recv(ctx)
				if err != nil {
					return err
				}
				log.Infof("Received from server: %s", string(reply))
				fmt.Fprintln(cmd.OutOrStdout(), string(reply))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:4500", "Server address")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up after this long")
	return cmd
}
