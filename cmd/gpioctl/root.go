package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/gpiod/client"
	"github.com/cyberinferno/gpiod/logger"
)

type globalOptions struct {
	addr    string
	timeout time.Duration
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "gpioctl",
		Short:         "Control a gpiod server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.addr, "addr", "a", "127.0.0.1:5000", "gpiod address")
	root.PersistentFlags().DurationVarP(&opts.timeout, "timeout", "t", 3*time.Second, "response timeout per command")

	root.AddCommand(newSendCmd(opts), newWatchCmd(opts))
	return root
}

func newSendCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send COMMAND...",
		Short: "Send commands and print each response",
		Example: `  gpioctl send LED:ON
  gpioctl send LED:BRIGHT:1 SEG7:7 SENSOR:19
  gpioctl send TIMER:10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(client.DefaultConfig(opts.addr), logger.Nop())
			if err := c.Connect(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("error: ")+err.Error())
				return err
			}
			defer c.Close()

			return send(cmd.Context(), cmd.OutOrStdout(), c, args, opts.timeout)
		},
	}
}

// send issues each command in order and prints its response. A command the
// server ignores times out and is reported without stopping the rest.
func send(ctx context.Context, out io.Writer, c *client.Client, cmds []string, timeout time.Duration) error {
	var failed int
	for _, cmdText := range cmds {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		line, err := c.Request(reqCtx, cmdText)
		cancel()

		if err != nil {
			failed++
			fmt.Fprintf(out, "%s %s\n", commandStyle.Render(cmdText), errorStyle.Render("no response: "+err.Error()))
			continue
		}

		fmt.Fprintf(out, "%s %s\n", commandStyle.Render(cmdText), styleLine(line))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d commands got no response", failed, len(cmds))
	}

	return nil
}

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var reconnect bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print button events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := client.DefaultConfig(opts.addr)
			cfg.AutoReconnect = reconnect
			cfg.ReconnectInterval = 2 * time.Second

			return watch(ctx, cmd.OutOrStdout(), client.New(cfg, logger.Nop()))
		},
	}
	cmd.Flags().BoolVarP(&reconnect, "reconnect", "r", true, "reconnect when the connection drops")

	return cmd
}

// watch prints every event and connection change until ctx ends.
func watch(ctx context.Context, out io.Writer, c *client.Client) error {
	lines := make(chan string, 16)
	c.OnEvent(func(line string) {
		select {
		case lines <- line:
		default:
		}
	})
	c.OnConnectionState(func(state client.ConnectionState, err error) {
		msg := "connection " + state.String()
		if err != nil {
			msg += ": " + err.Error()
		}
		select {
		case lines <- mutedStyle.Render(msg):
		default:
		}
	})

	if err := c.Connect(); err != nil {
		return err
	}
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			fmt.Fprintf(out, "%s %s\n", mutedStyle.Render(time.Now().Format("15:04:05")), styleLine(line))
		}
	}
}
