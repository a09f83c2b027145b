package lock

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/litepool/cmd/util"
	"github.com/ValentinKolb/litepool/lib/lockmgr"
	"github.com/spf13/cobra"
)

var (
	session        *util.Session
	lockMgr        lockmgr.ILockManager
	acquireTimeout uint64
	acquireWait    bool
	acquireRetry   time.Duration

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Perform lock operations",
		Long:              util.WrapString("Perform lock operations backed by the key-value store of the database. Lock timeouts are counted in writes to the store."),
		PersistentPreRunE: setupLockMgr,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return session.Close()
		},
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [key]",
		Short: "Acquire a lock",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	// releaseCmd represents the release command
	releaseCmd = &cobra.Command{
		Use:   "release [key] [ownerID]",
		Short: "Release a previously acquired lock",
		Long:  util.WrapString("Release a lock using the key and owner ID. The owner ID is the string returned by the acquire command."),
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(releaseCmd)

	util.SetupPoolFlags(LockCommands)

	acquireCmd.Flags().Uint64Var(&acquireTimeout, "lock-timeout", 0, util.WrapString("Lock timeout in writes to the store (0 for no timeout)"))
	acquireCmd.Flags().BoolVar(&acquireWait, "wait", false, util.WrapString("Retry until the lock is acquired or the command times out"))
	acquireCmd.Flags().DurationVar(&acquireRetry, "retry", 50*time.Millisecond, util.WrapString("Retry interval used with --wait"))
}

// setupLockMgr opens the store and creates the lock manager on top of it
func setupLockMgr(cmd *cobra.Command, _ []string) (err error) {
	session, err = util.OpenSession(cmd, true)
	if err != nil {
		return err
	}
	lockMgr = lockmgr.NewLockManager(session.Store)
	return nil
}

// runAcquire handles the acquire lock command
func runAcquire(cmd *cobra.Command, args []string) error {
	key := args[0]
	ctx, cancel := util.CommandContext(cmd)
	defer cancel()

	if acquireWait {
		ownerID, err := lockMgr.WaitLock(ctx, key, acquireTimeout, acquireRetry)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %v", err)
		}
		fmt.Printf("acquired=true, ownerId=%s\n", ownerID)
		return nil
	}

	acquired, ownerID, err := lockMgr.AcquireLock(ctx, key, acquireTimeout)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %v", err)
	}
	if !acquired {
		fmt.Printf("acquired=false\n")
		return nil
	}

	// owner IDs are hex encoded already
	fmt.Printf("acquired=true, ownerId=%s\n", ownerID)
	return nil
}

// runRelease handles the release lock command
func runRelease(cmd *cobra.Command, args []string) error {
	ctx, cancel := util.CommandContext(cmd)
	defer cancel()

	released, err := lockMgr.ReleaseLock(ctx, args[0], []byte(args[1]))
	if err != nil {
		return fmt.Errorf("failed to release lock: %v", err)
	}

	fmt.Printf("released=%v\n", released)
	return nil
}
