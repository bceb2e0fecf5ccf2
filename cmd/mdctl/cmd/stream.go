package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/anomaly_dashboard/internal/series"
	"github.com/dgnsrekt/anomaly_dashboard/internal/stream"
)

// printSink keeps a local buffer and prints every update as one line.
type printSink struct {
	mu   sync.Mutex
	w    io.Writer
	buf  *series.Buffer
	opts series.Options
}

func (p *printSink) ResetSeries(values []series.Sample, scores []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Reset(values, scores, p.opts)
	alarms := lo.CountBy(p.buf.Scores(), p.opts.IsAlarm)
	p.printf("reset points=%d alarms=%d\n", p.buf.Len(), alarms)
}

func (p *printSink) AppendPoint(value, score float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pt := p.buf.Append(value, score, p.opts)
	mark := ""
	if p.opts.IsAlarm(score) {
		mark = " ALARM"
	}
	p.printf("point label=%d value=%g score=%g%s\n", pt.Label, pt.Value, pt.Score, mark)
}

func (p *printSink) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(p.w, format, args...); err != nil {
		slog.Debug("stream output write failed", "error", err)
	}
}

// NewStreamCommand returns the stream command
func NewStreamCommand(g *globals) (cmd *cobra.Command) {
	var opts series.Options
	var send []string
	var duration time.Duration

	cmd = &cobra.Command{
		Use:     "stream",
		Short:   "Follow the detector socket and print updates",
		Example: `mdctl stream --send "1,2,3" --send 4 --duration 30s`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := stream.EndpointURL(g.detectorURL)
			if err != nil {
				return err
			}

			closed := make(chan struct{})
			var once sync.Once
			sink := &printSink{w: cmd.OutOrStdout(), buf: series.NewBuffer(series.DefaultCapacity), opts: opts}
			ctrl := stream.NewController(stream.Config{
				URL:  url,
				Sink: sink,
				OnState: func(s stream.State) {
					if s == stream.Disconnected {
						once.Do(func() { close(closed) })
					}
				},
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			if err := ctrl.Connect(ctx); err != nil {
				return err
			}
			defer func() { _ = ctrl.Disconnect() }()

			for _, text := range send {
				if err := ctrl.Send(ctx, text); err != nil {
					return err
				}
			}

			select {
			case <-ctx.Done():
			case <-closed:
			}
			return nil
		},
	}

	seriesFlags(cmd, &opts)
	cmd.Flags().StringArrayVar(&send, "send", nil, "Text to send after connecting (repeatable)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 waits for interrupt or server close)")

	return cmd
}
