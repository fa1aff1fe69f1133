package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"hdlc-toolkit/arq"
	"hdlc-toolkit/link"
	"hdlc-toolkit/netem"
	"hdlc-toolkit/util/mocks"

	"github.com/spf13/cobra"
)

type loopbackOptions struct {
	count      int
	size       int
	timeout    time.Duration
	lossNth    int
	corruptNth int
}

func loopbackCmd(opts *globalOptions) *cobra.Command {
	lo := &loopbackOptions{}
	cmd := &cobra.Command{
		Use:   "loopback",
		Short: "Run two link ends over an emulated line",
		Long: `Connect two link ends through an in-memory pipe, damage the traffic
according to the [netem] settings and send packets from one end to the
other. Prints the statistics of both ends when done.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("loss-nth") {
				cfg.Netem.WriteLossNth = lo.lossNth
			}
			if cmd.Flags().Changed("corrupt-nth") {
				cfg.Netem.WriteCorruptNth = lo.corruptNth
			}
			if lo.size < 1 || lo.size > cfg.Link.MTU {
				return fmt.Errorf("packet size %d not in [1, %d]", lo.size, cfg.Link.MTU)
			}

			ms, err := startMetrics(cfg.Metrics.Listen, cfg.Metrics.Namespace)
			if err != nil {
				return err
			}
			defer ms.Close()
			return runLoopback(cmd.OutOrStdout(), cfg.Link, cfg.Netem, ms, lo)
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&lo.count, "count", "n", 100, "Number of packets to send")
	flags.IntVarP(&lo.size, "size", "s", 64, "Payload size in bytes")
	flags.DurationVar(&lo.timeout, "timeout", 30*time.Second, "Give up after this long")
	flags.IntVar(&lo.lossNth, "loss-nth", 0, "Drop every nth write")
	flags.IntVar(&lo.corruptNth, "corrupt-nth", 0, "Flip a bit in every nth write")
	return cmd
}

func runLoopback(out io.Writer, lcfg link.Config, ncfg netem.Config, ms *metricsServer, lo *loopbackOptions) error {
	ea, eb := mocks.Pipe()
	a, err := link.New(netem.New(ea, ncfg), lcfg)
	if err != nil {
		return err
	}
	defer a.Close()
	b, err := link.New(netem.New(eb, ncfg), lcfg)
	if err != nil {
		return err
	}
	defer b.Close()

	for side, l := range map[string]*link.Link{"a": a, "b": b} {
		ms.addLink("side", side, l.Stats)
		defer ms.removeLink(side)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lo.timeout)
	defer cancel()
	start := time.Now()
	if err := a.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		for i := 0; i < lo.count; i++ {
			if err := a.Send(ctx, loopbackPayload(i, lo.size)); err != nil {
				errCh <- fmt.Errorf("send %d: %w", i, err)
				return
			}
		}
		errCh <- a.Flush(ctx)
	}()
	for i := 0; i < lo.count; i++ {
		p, err := b.Recv(ctx)
		if err != nil {
			return fmt.Errorf("receive %d: %w", i, err)
		}
		if !bytes.Equal(p, loopbackPayload(i, lo.size)) {
			return fmt.Errorf("packet %d corrupted", i)
		}
	}
	if err := <-errCh; err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Fprintf(out, "Delivered %d packets of %d bytes in %s\n\n", lo.count, lo.size, elapsed.Round(time.Millisecond))
	printStats(out, a.Stats(), b.Stats())
	return nil
}

func loopbackPayload(i, size int) []byte {
	p := make([]byte, size)
	for j := range p {
		p[j] = byte(i + j)
	}
	return p
}

func printStats(out io.Writer, a, b arq.Stats) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	row := func(name string, va, vb any) {
		fmt.Fprintf(w, "%s\t%v\t%v\n", name, va, vb)
	}
	row("", "A", "B")
	row("state", a.State, b.State)
	row("frames sent", a.FramesSent, b.FramesSent)
	row("frames received", a.FramesReceived, b.FramesReceived)
	row("packets confirmed", a.PacketsConfirmed, b.PacketsConfirmed)
	row("packets delivered", a.PacketsDelivered, b.PacketsDelivered)
	row("retransmits", a.Retransmits, b.Retransmits)
	row("rejects sent", a.RejectsSent, b.RejectsSent)
	row("checksum errors", a.ChecksumErrors, b.ChecksumErrors)
	row("malformed frames", a.MalformedFrames, b.MalformedFrames)
	row("smoothed rtt", a.SmoothedRTT, b.SmoothedRTT)
	w.Flush()
}
