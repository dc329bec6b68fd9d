package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storagectl/internal/app"
	"storagectl/internal/types"
)

// version is set at build time via ldflags.
var version = "dev"

const envPrefix = "STORAGECTL"

type RootConfig struct {
	ConfigFile string
	LogLevel   string
	Verbose    bool
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := newRootCommand()
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		var exit exitError
		if !errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, "error:", errorMessage(err))
		}
		os.Exit(exitCodeForError(err))
	}
}

func newRootCommand() *cobra.Command {
	cfg := RootConfig{}
	cmd := &cobra.Command{
		Use:           "storagectl",
		Short:         "Install, update, roll back and remove the storage manager stack",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(cfg.ConfigFile); err != nil {
				return err
			}
			setupLogging(viper.GetString("log_level"), viper.GetBool("verbose"))
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(log.Logger.WithContext(ctx))
			return nil
		},
	}
	cmd.SetFlagErrorFunc(usageError)
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.ConfigFile, "config", "", "Config file path")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Log every command and step (same as --log-level debug)")
	flags.String("install-dir", "", "Directory the stack is checked out into")
	flags.StringSlice("data-dir", nil, "Persistent data directory (repeatable)")
	flags.String("state-dir", "", "Directory for deployment metadata, the run lock and the journal")
	flags.String("log-dir", "", "Directory for per-operation logs")
	flags.String("snapshot-dir", "", "Directory snapshots are written to")
	flags.String("repo-url", "", "Git repository the stack is deployed from")
	flags.String("ref", "", "Git ref used when no release can be resolved")
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("install_dir", flags.Lookup("install-dir"))
	_ = viper.BindPFlag("data_dirs", flags.Lookup("data-dir"))
	_ = viper.BindPFlag("state_dir", flags.Lookup("state-dir"))
	_ = viper.BindPFlag("log_dir", flags.Lookup("log-dir"))
	_ = viper.BindPFlag("snapshot_dir", flags.Lookup("snapshot-dir"))
	_ = viper.BindPFlag("repo_url", flags.Lookup("repo-url"))
	_ = viper.BindPFlag("ref", flags.Lookup("ref"))

	cmd.AddCommand(newInstallCommand())
	cmd.AddCommand(newUpdateCommand())
	cmd.AddCommand(newUninstallCommand())
	cmd.AddCommand(newRollbackCommand())
	cmd.AddCommand(newSnapshotCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newHistoryCommand())
	cmd.AddCommand(newMaintenanceCommand())
	return cmd
}

func initConfig(configFile string) error {
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to read config file").
				WithCause(err)
		}
		return nil
	}

	viper.SetConfigName("storagectl")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/storagectl")
	viper.AddConfigPath("/etc/storagectl")
	if err := viper.ReadInConfig(); err != nil {
		var missing viper.ConfigFileNotFoundError
		if errors.As(err, &missing) {
			return nil
		}
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse config file " + viper.ConfigFileUsed()).
			WithCause(err)
	}
	return nil
}

func setupLogging(level string, verbose bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if verbose {
		level = "debug"
	}
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// loadStackConfig reads every stack key from flags, environment and
// config file. Unset keys are filled by StackConfig.WithDefaults.
func loadStackConfig() types.StackConfig {
	return types.StackConfig{
		Name:                viper.GetString("name"),
		InstallDir:          viper.GetString("install_dir"),
		DataDirs:            viper.GetStringSlice("data_dirs"),
		StateDir:            viper.GetString("state_dir"),
		LogDir:              viper.GetString("log_dir"),
		SnapshotDir:         viper.GetString("snapshot_dir"),
		ServiceUser:         viper.GetString("service_user"),
		UnitName:            viper.GetString("unit_name"),
		UnitDir:             viper.GetString("unit_dir"),
		ComposeProject:      viper.GetString("compose_project"),
		ComposeFile:         viper.GetString("compose_file"),
		RepoURL:             viper.GetString("repo_url"),
		Ref:                 viper.GetString("ref"),
		VersionURL:          viper.GetString("version_url"),
		BackendURL:          viper.GetString("backend_url"),
		ProxyPort:           viper.GetInt("proxy_port"),
		ServerName:          viper.GetString("server_name"),
		NginxSitesDir:       viper.GetString("nginx_sites_dir"),
		NginxEnabledDir:     viper.GetString("nginx_enabled_dir"),
		MaintenanceSchedule: viper.GetString("maintenance_schedule"),
		BinaryPath:          viper.GetString("binary_path"),
		HealthThreshold:     viper.GetInt("health_threshold"),
		KeepSnapshots:       viper.GetInt("keep_snapshots"),
		KeepDays:            viper.GetInt("keep_days"),
		ReadyAttempts:       viper.GetInt("ready_attempts"),
		ReadyInterval:       viper.GetDuration("ready_interval"),
		ReadyTimeout:        viper.GetDuration("ready_timeout"),
		CommandTimeout:      viper.GetDuration("command_timeout"),
		MetricsFile:         viper.GetString("metrics_file"),
	}
}

func newAppService() app.Service {
	return app.NewService(loadStackConfig(), zerolog.ConsoleWriter{Out: os.Stderr})
}

func errorMessage(err error) string {
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) && strings.TrimSpace(builder.Msg) != "" {
		return builder.Msg
	}
	return err.Error()
}
