// claude-config-manager edits the MCP server configuration file: toggle
// servers between enabled and disabled, apply presets, and recover from
// backups or malformed JSON. Run without arguments for the interactive menu.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/eversonl/claude-config-manager/internal/app"
	"github.com/eversonl/claude-config-manager/internal/config"
	"github.com/eversonl/claude-config-manager/internal/history"
	"github.com/eversonl/claude-config-manager/internal/logs"
	"github.com/eversonl/claude-config-manager/internal/processlock"
	"github.com/eversonl/claude-config-manager/internal/store"
)

const envPrefix = "CCM"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "claude-config-manager",
		Short: "Manage MCP server entries in a Claude configuration file",
		Long: `claude-config-manager edits a JSON configuration file holding named MCP
server entries, each enabled or disabled. Every write is preceded by a
timestamped backup plus a fixed "latest" slot, and malformed JSON is repaired
on a best-effort basis before giving up.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(v, func(session *app.Session, logger *zap.SugaredLogger) error {
				menu := app.NewMenu(session, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
				return menu.Run()
			})
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", defaultConfigPath(), "path to the MCP configuration file")
	flags.String("data-dir", defaultDataDir(), "directory for backups, presets and history")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-file", false, "also write logs to a rotated file under the data directory")

	for _, name := range []string{"config", "data-dir", "log-level", "log-file"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(
		newListCmd(v),
		newToggleCmd(v),
		newEnableAllCmd(v),
		newSelectCmd(v),
		newBackupCmd(v),
		newPresetCmd(v),
		newHistoryCmd(v),
	)

	return rootCmd
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "claude.json"
	}
	return filepath.Join(home, ".claude.json")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude-config-manager"
	}
	return filepath.Join(home, ".claude-config-manager")
}

// withSession builds the collaborator graph, runs fn, and tears everything
// down afterwards.
func withSession(v *viper.Viper, fn func(*app.Session, *zap.SugaredLogger) error) error {
	dataDir := v.GetString("data-dir")

	logCfg := logs.DefaultConfig()
	logCfg.Level = v.GetString("log-level")
	logCfg.EnableFile = v.GetBool("log-file")
	logCfg.LogDir = filepath.Join(dataDir, "logs")

	logger, err := logs.Setup(logCfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush on exit

	lock := processlock.New(dataDir, logger)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release() //nolint:errcheck

	loader, err := config.NewLoader(v.GetString("config"), logger)
	if err != nil {
		return err
	}
	defer loader.Stop() //nolint:errcheck

	st := store.New(filepath.Join(dataDir, "backups"), filepath.Join(dataDir, "presets"), logger.Sugar())

	journal, err := history.NewManager(dataDir, logger.Sugar())
	if err != nil {
		// Journaling is observability only; run without it.
		logger.Sugar().Warnw("History journal unavailable", "error", err)
		journal = nil
	} else {
		defer journal.Close() //nolint:errcheck
	}

	session := app.NewSession(loader, st, journal, logger.Sugar())
	return fn(session, logger.Sugar())
}

func newListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List servers and their state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(v, func(session *app.Session, _ *zap.SugaredLogger) error {
				infos, res, err := session.Servers()
				if err != nil {
					return err
				}
				for _, info := range infos {
					mark := " "
					if info.Enabled {
						mark = "x"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", mark, info.Name)
				}
				for _, issue := range res.Issues {
					fmt.Fprintf(cmd.OutOrStdout(), "structure issue: %s\n", issue)
				}
				return nil
			})
		},
	}
}

func newToggleCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <name>",
		Short: "Toggle a server between enabled and disabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(v, func(session *app.Session, _ *zap.SugaredLogger) error {
				if err := session.Toggle(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "toggled %q\n", args[0])
				return nil
			})
		},
	}
}

func newEnableAllCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "enable-all",
		Short: "Enable every disabled server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(v, func(session *app.Session, _ *zap.SugaredLogger) error {
				moved, err := session.EnableAll()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enabled %d server(s)\n", moved)
				return nil
			})
		},
	}
}

func newSelectCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "select <name>...",
		Short: "Enable exactly the named servers, disabling all others",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(v, func(session *app.Session, _ *zap.SugaredLogger) error {
				unknown, err := session.SelectExactly(args)
				if err != nil {
					return err
				}
				for _, name := range unknown {
					fmt.Fprintf(cmd.OutOrStdout(), "warning: unknown server %q ignored\n", name)
				}
				return nil
			})
		},
	}
}

func newBackupCmd(v *viper.Viper) *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "List, restore and prune configuration backups",
	}

	backupCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List backups, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withSession(v, func(session *app.Session, _ *zap.SugaredLogger) error {
					ids, err := session.Backups()
					if err != nil {
						return err
					}
					for _, id := range ids {
						fmt.Fprintln(cmd.OutOrStdout(), id)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "restore <id>",
			Short: "Restore a backup over the live configuration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(v, func(session *app.Session, _ *zap.SugaredLogger) error {
					return session.RestoreBackup(args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete one backup",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(v, func(session *app.Session, _ *zap.SugaredLogger) error {
					return session.DeleteBackup(args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete all timestamped backups (keeps latest and pre-restore)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withSession(v, func(session *app.Session, _ *zap.SugaredLogger) error {
					removed, err := session.DeleteAllBackups()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed %d backup(s)\n", removed)
					return nil
				})
			},
		},
	)

	return backupCmd
}

func newPresetCmd(v *viper.Viper) *cobra.Command {
	presetCmd := &cobra.Command{
		Use:   "preset",
		Short: "Save, apply and manage named configuration presets",
	}

	var smart bool
	loadCmd := &cobra.Command{
		Use:   "load <name>",
		Short: "Apply a preset (use --smart to reposition existing entries only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(v, func(session *app.Session, _ *zap.SugaredLogger) error {
				discovered, err := session.LoadPreset(args[0], smart)
				if err != nil {
					return err
				}
				for _, name := range discovered {
					fmt.Fprintf(cmd.OutOrStdout(), "new server %q not in preset, disabled\n", name)
				}
				return nil
			})
		},
	}
	loadCmd.Flags().BoolVar(&smart, "smart", false, "reposition existing entries per the preset, never add or drop")

	presetCmd.AddCommand(
		&cobra.Command{
			Use:   "save <name>",
			Short: "Save the current configuration as a preset",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(v, func(session *app.Session, _ *zap.SugaredLogger) error {
					return session.SavePreset(args[0])
				})
			},
		},
		loadCmd,
		&cobra.Command{
			Use:   "list",
			Short: "List saved presets",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withSession(v, func(session *app.Session, _ *zap.SugaredLogger) error {
					names, err := session.Presets()
					if err != nil {
						return err
					}
					for _, name := range names {
						fmt.Fprintln(cmd.OutOrStdout(), name)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a preset",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(v, func(session *app.Session, _ *zap.SugaredLogger) error {
					return session.DeletePreset(args[0])
				})
			},
		},
	)

	return presetCmd
}

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(v, func(session *app.Session, _ *zap.SugaredLogger) error {
				records, err := session.History(limit)
				if err != nil {
					return err
				}
				for _, rec := range records {
					line := rec.Operation
					if len(rec.Servers) > 0 {
						line += " " + strings.Join(rec.Servers, ",")
					}
					if rec.Detail != "" {
						line += " (" + rec.Detail + ")"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", rec.Timestamp.Format("2006-01-02 15:04:05"), line)
				}
				return nil
			})
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries to show")
	return historyCmd
}
