package sql

import (
	"github.com/ValentinKolb/litepool/cmd/util"
	"github.com/spf13/cobra"
)

var (
	session *util.Session

	// SQLCommands represents the sql command group
	SQLCommands = &cobra.Command{
		Use:   "sql",
		Short: "Run SQL statements through the pool",
		Long: util.WrapString(`Run SQL statements through the pool. Queries run in a read scope on a read-only ` +
			`connection, statements that change data run in a write scope and are committed on success.`),
		PersistentPreRunE: setupPool,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return session.Close()
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupPoolFlags(SQLCommands)

	SQLCommands.AddCommand(queryCmd)
	SQLCommands.AddCommand(execCmd)
	SQLCommands.AddCommand(insertCmd)

	insertCmd.Flags().Bool("replace", false, util.WrapString("Replace rows that conflict with a unique constraint (INSERT OR REPLACE)"))
}

// setupPool opens the pool for the sql commands
func setupPool(cmd *cobra.Command, _ []string) (err error) {
	session, err = util.OpenSession(cmd, false)
	return err
}
