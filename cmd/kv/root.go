package kv

import (
	"github.com/ValentinKolb/litepool/cmd/util"
	"github.com/spf13/cobra"
)

var (
	session *util.Session

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform key-value store operations",
		Long:              util.WrapString("Perform key-value store operations on the kv_entries table of the database. Expiration and deletion offsets are counted in writes."),
		PersistentPreRunE: setupStore,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return session.Close()
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupPoolFlags(KeyValueCommands)

	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(setECmd)
	KeyValueCommands.AddCommand(setEIfUnsetCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(exprCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(infoCmd)
	KeyValueCommands.AddCommand(gcCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupStore opens the pool and the key-value store on top of it
func setupStore(cmd *cobra.Command, _ []string) (err error) {
	session, err = util.OpenSession(cmd, true)
	return err
}
