package stats

import (
	"bufio"
	"fmt"
	"os"

	"github.com/ValentinKolb/litepool/cmd/util"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// StatsCmd prints the configuration, the statistics and the metrics of a pool
	StatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print the configuration and statistics of the pool",
		Long:  util.WrapString("Opens the pool, runs one read and one write scope to check that the database is usable and prints the configuration, the pool statistics and the prometheus metrics."),
		RunE:  run,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupPoolFlags(StatsCmd)

	StatsCmd.Flags().Bool("metrics", false, util.WrapString("Also print the metrics in prometheus text format"))
}

func run(cmd *cobra.Command, _ []string) error {
	session, err := util.OpenSession(cmd, false)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, cancel := util.CommandContext(cmd)
	defer cancel()

	if err := util.Probe(ctx, session.Pool); err != nil {
		return fmt.Errorf("database not usable: %w", err)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	fmt.Fprintln(out, session.Config.String())

	stats, err := json.MarshalIndent(session.Pool.Stats(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Pool Statistics:\n%s\n", stats)

	if viper.GetBool("metrics") {
		fmt.Fprintln(out, "\nMetrics:")
		session.Pool.WriteMetrics(out)
	}
	return nil
}
