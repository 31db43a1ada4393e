package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	sessionwire "github.com/relaymobile/sessionwire-go"
	"github.com/relaymobile/sessionwire-go/contracts"
	"github.com/relaymobile/sessionwire-go/health"
	"github.com/relaymobile/sessionwire-go/session"
	"github.com/relaymobile/sessionwire-go/shell"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// probeConfig is the optional TOML config file. Flags override file values.
type probeConfig struct {
	Endpoint         string `toml:"endpoint"`
	Token            string `toml:"token"`
	KeepaliveSeconds int    `toml:"keepalive_seconds"`
	QueueCapacity    int    `toml:"queue_capacity"`
	CommandTimeoutMS int    `toml:"command_timeout_ms"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "wireprobe",
		Short: "Probe and exercise a sessionwire deployment",
		Long: `Wireprobe is a diagnostic CLI for sessionwire deployments.
It connects as a regular client and lets you watch traffic, measure
session establishment, run shell commands and inspect health.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
	}

	// Global flags
	var (
		endpoint   string
		token      string
		configPath string
		verbose    bool
	)

	rootCmd.PersistentFlags().StringVarP(&endpoint, "endpoint", "e", "", "WebSocket endpoint URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", "", "Authentication token")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	resolve := func() (*probeConfig, error) {
		cfg := &probeConfig{}
		if configPath != "" {
			if _, err := toml.DecodeFile(configPath, cfg); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
		if endpoint != "" {
			cfg.Endpoint = endpoint
		}
		if token != "" {
			cfg.Token = token
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("no endpoint: pass --endpoint or set it in the config file")
		}
		return cfg, nil
	}

	logger := func() *slog.Logger {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	// Watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect and log state changes and message types",
		Long:  "Connects to the endpoint and prints every state transition and inbound message type until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			watcher := &printObserver{}
			client := newClient(cfg, logger(), watcher)
			defer client.Close()

			if err := client.Connect(cfg.Endpoint, cfg.Token); err != nil {
				return fmt.Errorf("connect failed: %w", err)
			}

			fmt.Println("Watching session traffic... Press Ctrl+C to stop")
			fmt.Println(strings.Repeat("-", 60))
			<-ctx.Done()
			return nil
		},
	}

	// Ping command
	var pingCount int
	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Measure session establishment time",
		Long:  "Repeatedly connects, waits for the verified connected state and reports the elapsed time per round.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve()
			if err != nil {
				return err
			}

			for i := 0; i < pingCount; i++ {
				watcher := newStateWaiter()
				client := newClient(cfg, logger(), watcher)

				start := time.Now()
				if err := client.Connect(cfg.Endpoint, cfg.Token); err != nil {
					client.Close()
					return fmt.Errorf("connect failed: %w", err)
				}
				if err := watcher.await(session.StateConnected, 30*time.Second); err != nil {
					client.Close()
					return err
				}
				fmt.Printf("round %d: session verified in %v\n", i+1, time.Since(start).Round(time.Millisecond))
				client.Close()
			}
			return nil
		},
	}
	pingCmd.Flags().IntVarP(&pingCount, "count", "n", 3, "Number of establishment rounds")

	// Exec command
	execCmd := &cobra.Command{
		Use:   "exec <command> [args...]",
		Short: "Run a shell command over the session, streaming output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve()
			if err != nil {
				return err
			}

			watcher := newStateWaiter()
			client := newClient(cfg, logger(), watcher)
			defer client.Close()

			if err := client.Connect(cfg.Endpoint, cfg.Token); err != nil {
				return fmt.Errorf("connect failed: %w", err)
			}
			if err := watcher.await(session.StateConnected, 30*time.Second); err != nil {
				return err
			}

			done := make(chan error, 1)
			exitCode := make(chan int64, 1)
			_, err = client.Shell().Execute(strings.Join(args, " "), shell.HandlerFuncs{
				Output: func(chunk string) { fmt.Print(chunk) },
				Completed: func(code int64) {
					exitCode <- code
					done <- nil
				},
				Failed: func(err error) { done <- err },
			})
			if err != nil {
				return fmt.Errorf("exec failed: %w", err)
			}

			if err := <-done; err != nil {
				return fmt.Errorf("command failed: %w", err)
			}
			if code := <-exitCode; code != 0 {
				os.Exit(int(code))
			}
			return nil
		},
	}

	// Status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Connect and print a health report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve()
			if err != nil {
				return err
			}

			watcher := newStateWaiter()
			client := newClient(cfg, logger(), watcher)
			defer client.Close()

			if err := client.Connect(cfg.Endpoint, cfg.Token); err != nil {
				return fmt.Errorf("connect failed: %w", err)
			}
			// A failed establishment is itself a reportable status.
			_ = watcher.await(session.StateConnected, 10*time.Second)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			report := client.Health().Check(ctx)
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			if report.Status == health.StatusUnhealthy {
				os.Exit(1)
			}
			return nil
		},
	}

	rootCmd.AddCommand(watchCmd, pingCmd, execCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newClient builds a sessionwire client from the resolved config.
func newClient(cfg *probeConfig, logger *slog.Logger, observer session.Observer) *sessionwire.Client {
	opts := []sessionwire.ClientOption{
		sessionwire.WithLogger(logger),
		sessionwire.WithObserver(observer),
	}
	if cfg.KeepaliveSeconds > 0 {
		opts = append(opts, sessionwire.WithKeepalive(
			time.Duration(cfg.KeepaliveSeconds)*time.Second, 0))
	}
	if cfg.QueueCapacity > 0 {
		opts = append(opts, sessionwire.WithQueueCapacity(cfg.QueueCapacity))
	}
	if cfg.CommandTimeoutMS > 0 {
		opts = append(opts, sessionwire.WithCommandTimeout(
			time.Duration(cfg.CommandTimeoutMS)*time.Millisecond))
	}
	return sessionwire.NewClient(opts...)
}

// printObserver prints everything it sees; used by watch.
type printObserver struct{}

func (o *printObserver) OnStateChanged(state session.ConnectionState) {
	fmt.Printf("%s  state  %s\n", time.Now().Format("15:04:05.000"), state)
}

func (o *printObserver) OnMessage(env *contracts.Envelope) {
	tag := string(env.Type)
	if env.Type == contracts.TypeUnrecognized {
		tag = fmt.Sprintf("unrecognized(%s)", env.RawType)
	}
	fmt.Printf("%s  message  %s  payload_keys=%d\n",
		time.Now().Format("15:04:05.000"), tag, len(env.Payload))
}

func (o *printObserver) OnRawData(data []byte) {
	fmt.Printf("%s  raw  %d bytes\n", time.Now().Format("15:04:05.000"), len(data))
}

// stateWaiter blocks callers until a target state is reached.
type stateWaiter struct {
	states chan session.ConnectionState
}

func newStateWaiter() *stateWaiter {
	return &stateWaiter{states: make(chan session.ConnectionState, 16)}
}

func (w *stateWaiter) OnStateChanged(s session.ConnectionState) {
	select {
	case w.states <- s:
	default:
	}
}

func (w *stateWaiter) OnMessage(env *contracts.Envelope) {}
func (w *stateWaiter) OnRawData(data []byte)             {}

func (w *stateWaiter) await(want session.ConnectionState, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		select {
		case s := <-w.states:
			if s == want {
				return nil
			}
			if s == session.StateFailed {
				return fmt.Errorf("connection failed before reaching %s", want)
			}
		case <-deadline:
			return fmt.Errorf("timed out waiting for state %s", want)
		}
	}
}
