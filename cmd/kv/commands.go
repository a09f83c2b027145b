package kv

import (
	"fmt"
	"strconv"

	"github.com/ValentinKolb/litepool/cmd/util"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.CommandContext(cmd)
			defer cancel()
			if err := session.Store.Set(ctx, args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	setECmd = &cobra.Command{
		Use:   "setE [key] [value] [expireIn] [deleteIn]",
		Short: "Sets the value for a key with expiration and deletion offsets",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			expireIn, deleteIn, err := parseOffsets(args[2], args[3])
			if err != nil {
				return err
			}
			ctx, cancel := util.CommandContext(cmd)
			defer cancel()
			if err := session.Store.SetE(ctx, args[0], []byte(args[1]), expireIn, deleteIn); err != nil {
				return err
			}
			fmt.Println("setE successfully")
			return nil
		},
	}
	setEIfUnsetCmd = &cobra.Command{
		Use:   "setEIfUnset [key] [value] [expireIn] [deleteIn]",
		Short: "Sets the value for a key with expiration and deletion offsets if the key is not already set",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			expireIn, deleteIn, err := parseOffsets(args[2], args[3])
			if err != nil {
				return err
			}
			ctx, cancel := util.CommandContext(cmd)
			defer cancel()
			if err := session.Store.SetEIfUnset(ctx, args[0], []byte(args[1]), expireIn, deleteIn); err != nil {
				return err
			}
			fmt.Println("setEIfUnset successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.CommandContext(cmd)
			defer cancel()
			resp, ok, err := session.Store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v, resp=%s\n", args[0], ok, resp)
			return nil
		},
	}
	exprCmd = &cobra.Command{
		Use:   "expr [key]",
		Short: "Expires the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.CommandContext(cmd)
			defer cancel()
			if err := session.Store.Expire(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("expire successfully")
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.CommandContext(cmd)
			defer cancel()
			if err := session.Store.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.CommandContext(cmd)
			defer cancel()
			found, err := session.Store.Has(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", args[0], found)
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints information about the database behind the store as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := util.CommandContext(cmd)
			defer cancel()
			info, err := session.Store.GetDBInfo(ctx)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	gcCmd = &cobra.Command{
		Use:   "gc",
		Short: "Runs the garbage collector once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := util.CommandContext(cmd)
			defer cancel()
			res, err := session.Store.GarbageCollect(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("deleted=%d, expired=%d\n", res.Deleted, res.Expired)
			return nil
		},
	}
)

// parseOffsets parses the expireIn and deleteIn arguments
func parseOffsets(expire, del string) (expireIn, deleteIn uint64, err error) {
	expireIn, err = strconv.ParseUint(expire, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("expireIn must be a number: %w", err)
	}
	deleteIn, err = strconv.ParseUint(del, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("deleteIn must be a number: %w", err)
	}
	return expireIn, deleteIn, nil
}
