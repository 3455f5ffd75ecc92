// Package cli implements the filehub command line: a server mode plus
// one-shot commands that share the same registry and transfer engine.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment prefix for flag overrides, e.g. FILEHUB_USER.
const EnvPrefix = "FILEHUB"

// options holds the persistent flags, resolved through viper so that every
// flag can also come from a FILEHUB_* environment variable.
type options struct {
	v *viper.Viper
}

func (o options) user() string { return strings.TrimSpace(o.v.GetString("user")) }
func (o options) driver() string { return o.v.GetString("driver") }
func (o options) dataDir() string { return o.v.GetString("data-dir") }
func (o options) logLevel() string { return o.v.GetString("log-level") }
func (o options) verbose() bool { return o.v.GetBool("verbose") }
func (o options) quiet() bool { return o.v.GetBool("quiet") }
func (o options) instant() bool { return o.v.GetBool("instant") }

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	v := viper.NewWithOptions(viper.EnvKeyReplacer(strings.NewReplacer("-", "_")))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	opts := options{v: v}

	rootCmd := &cobra.Command{
		Use:           "filehub",
		Short:         "Share files between named users through a shared key-value store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("user", "u", "", "Display name recorded as uploader (env FILEHUB_USER)")
	flags.String("driver", "", "Storage driver: memory, badger, local, postgres, s3 (overrides STORAGE_DRIVER)")
	flags.String("data-dir", "", "Data directory for the badger and local drivers (overrides STORAGE_DIR)")
	flags.String("log-level", "", "Log level (overrides LOG_LEVEL)")
	flags.BoolP("verbose", "v", false, "Verbose output (debug logging)")
	flags.BoolP("quiet", "q", false, "Hide progress bars")
	flags.Bool("instant", false, "Skip the progress animation")
	_ = v.BindPFlags(flags)

	rootCmd.AddCommand(
		newServeCmd(opts),
		newListCmd(opts),
		newPutCmd(opts),
		newGetCmd(opts),
		newRemoveCmd(opts),
		newMigrateCmd(opts),
	)
	return rootCmd
}

// Execute runs the CLI until completion or SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
