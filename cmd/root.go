package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ValentinKolb/litepool/cmd/kv"
	"github.com/ValentinKolb/litepool/cmd/lock"
	"github.com/ValentinKolb/litepool/cmd/serve"
	"github.com/ValentinKolb/litepool/cmd/sql"
	"github.com/ValentinKolb/litepool/cmd/stats"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "litepool",
		Short: "connection pool for embedded sqlite databases",
		Long: fmt.Sprintf(`litepool (v%s)

A connection pool for embedded sqlite databases written in Go,
with many concurrent readers, one serialized writer and a
key-value store on top of it.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of litepool",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("litepool v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(sql.SQLCommands)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(stats.StatsCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
