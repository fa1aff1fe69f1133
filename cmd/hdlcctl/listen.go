package main

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"hdlc-toolkit/config"
	"hdlc-toolkit/link"

	"github.com/spf13/cobra"
)

func listenCmd(opts *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Accept TCP connections and echo every packet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runListen(addr, cfg)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:4500", "Listen address")
	return cmd
}

func runListen(addr string, cfg config.Config) error {
	ms, err := startMetrics(cfg.Metrics.Listen, cfg.Metrics.Namespace)
	if err != nil {
		return err
	}
	defer ms.Close()

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Infof("Server listening at %s", l.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go listenRoutine(ctx, wg, l, cfg, ms)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	log.Infof("Received signal %+v", <-ch)

	cancel()
	l.Close()
	wg.Wait()
	return nil
}

func listenRoutine(ctx context.Context, wg *sync.WaitGroup, l net.Listener, cfg config.Config, ms *metricsServer) {
	defer wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Errorf("Listen error: %+v", err)
			}
			return
		}
		wg.Add(1)
		go serveRoutine(ctx, wg, conn, cfg, ms)
	}
}

func serveRoutine(ctx context.Context, wg *sync.WaitGroup, conn net.Conn, cfg config.Config, ms *metricsServer) {
	defer wg.Done()
	if err := serve(ctx, conn, cfg, ms); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		log.Errorf("Serve error: %+v", err)
	}
}

// serve echoes packets until the peer disconnects or ctx is done.
func serve(ctx context.Context, conn net.Conn, cfg config.Config, ms *metricsServer) error {
	addr := conn.RemoteAddr()
	lk, err := link.New(conn, cfg.Link)
	if err != nil {
		conn.Close()
		return err
	}
	defer lk.Close()

	ms.addLink("remote", addr.String(), lk.Stats)
	defer ms.removeLink(addr.String())

	log.Infof("Accepted connection from %s", addr)
	for {
		msg, err := lk.Recv(ctx)
		if err != nil {
			return err
		}
		log.Infof("Received from client %s: %s", addr, string(msg))
		if err := lk.Send(ctx, msg); err != nil {
			return err
		}
	}
}
