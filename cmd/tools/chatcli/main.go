// chatcli 是 relaychat 服务的终端客户端。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zhouzirui/relaychat/internal/client"
	"github.com/zhouzirui/relaychat/internal/config"
	"github.com/zhouzirui/relaychat/internal/session"
	"github.com/zhouzirui/relaychat/internal/tui"
	"github.com/zhouzirui/relaychat/pkg/logger"
)

const (
	envPrefix      = "RELAYCHAT"
	defaultServer  = "http://localhost:8080"
	defaultTimeout = 35 * time.Second
)

type options struct {
	Server   string
	Timeout  time.Duration
	Plain    bool
	Style    string
	Welcome  string
	LogLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(viper.New()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatcli",
		Short: "Chat with a relaychat server from the terminal",
		Example: `  # Interactive chat against a local server
  $ chatcli --server localhost:8080

  # Pipe messages through line mode
  $ printf 'hello\n/quit\n' | chatcli --plain`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), resolveOptions(v))
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.Flags()
	flags.StringP("server", "s", defaultServer, "relay server address (env RELAYCHAT_SERVER)")
	flags.Duration("timeout", defaultTimeout, "request timeout")
	flags.Bool("plain", false, "line mode even on a terminal")
	flags.String("style", "dark", "markdown style: dark, light, notty")
	flags.String("welcome", session.DefaultWelcome, "greeting shown in an empty conversation")
	flags.String("log-level", "warn", "log level for client diagnostics")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	for _, name := range []string{"server", "timeout", "plain", "style", "welcome", "log-level"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	_ = v.BindEnv("log-level", envPrefix+"_LOG_LEVEL")

	return cmd
}

func resolveOptions(v *viper.Viper) options {
	return options{
		Server:   v.GetString("server"),
		Timeout:  v.GetDuration("timeout"),
		Plain:    v.GetBool("plain"),
		Style:    v.GetString("style"),
		Welcome:  v.GetString("welcome"),
		LogLevel: v.GetString("log-level"),
	}
}

func run(ctx context.Context, opts options) error {
	log, err := logger.New(config.LogConfig{Level: opts.LogLevel, Format: "console"}, "chatcli")
	if err != nil {
		return err
	}

	api, err := client.NewAPIClient(opts.Server, opts.Timeout)
	if err != nil {
		return err
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	health, err := api.Health(healthCtx)
	cancel()
	switch {
	case err != nil:
		log.Warn().Err(err).Str("server", api.Server()).Msg("health check failed")
	case !health.Healthy():
		log.Warn().Str("server", api.Server()).Interface("services", health.Services).Msg("server reports unhealthy")
	default:
		log.Debug().Str("environment", health.Environment).Msg("server healthy")
	}

	clip := tui.SystemClipboard{}
	sessionOpts := []session.Option{session.WithWelcome(opts.Welcome)}
	if clip.Available() {
		sessionOpts = append(sessionOpts, session.WithClipboard(clip))
	}

	interactive := !opts.Plain && isatty.IsTerminal(os.Stdout.Fd()) && isatty.IsTerminal(os.Stdin.Fd())
	if !interactive {
		s := session.New(api, sessionOpts...)
		return tui.NewREPL(s, tui.PlainFormatter{}, os.Stdin, os.Stdout).Run(ctx)
	}

	notifier := tui.NewNotifier()
	s := session.New(api, append(sessionOpts, session.WithListener(notifier.Listener))...)
	if err := tui.NewChatProgram(s, notifier, tui.NewGlamourFormatter(opts.Style), api.Server()).Run(ctx); err != nil {
		return errors.Wrap(err, "chat program")
	}
	return nil
}
