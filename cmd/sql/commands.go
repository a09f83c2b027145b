package sql

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/litepool/cmd/util"
	"github.com/ValentinKolb/litepool/lib/db"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	queryCmd = &cobra.Command{
		Use:   "query [sql] [args...]",
		Short: "Runs a query in a read scope and prints every row as a JSON object",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.CommandContext(cmd)
			defer cancel()

			out := bufio.NewWriter(os.Stdout)
			defer out.Flush()
			enc := json.NewEncoder(out)

			return session.Pool.Read(ctx, func(r db.Reader) error {
				rows, err := r.FetchAll(ctx, args[0], toArgs(args[1:])...)
				if err != nil {
					return err
				}
				for _, row := range rows {
					if err := enc.Encode(row); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	execCmd = &cobra.Command{
		Use:   "exec [sql] [args...]",
		Short: "Executes a statement in a write scope and prints the number of affected rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.CommandContext(cmd)
			defer cancel()

			var affected int64
			err := session.Pool.Write(ctx, func(w db.Writer) (err error) {
				affected, err = w.Execute(ctx, args[0], toArgs(args[1:])...)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Printf("affected=%d\n", affected)
			return nil
		},
	}
	insertCmd = &cobra.Command{
		Use:   "insert [table] [json-object|json-array...]",
		Short: "Inserts one or more rows given as JSON objects or arrays of objects in a single write scope",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.CommandContext(cmd)
			defer cancel()

			table := args[0]
			rows, err := parseRows(args[1:])
			if err != nil {
				return err
			}
			replace, _ := cmd.Flags().GetBool("replace")

			var lastID int64
			err = session.Pool.Write(ctx, func(w db.Writer) error {
				switch {
				case replace:
					for _, row := range rows {
						if err := w.InsertOrReplace(ctx, table, row); err != nil {
							return err
						}
					}
					return nil
				case len(rows) == 1:
					lastID, err = w.Insert(ctx, table, rows[0])
					return err
				default:
					return w.InsertMany(ctx, table, rows)
				}
			})
			if err != nil {
				return err
			}

			if lastID != 0 {
				fmt.Printf("inserted=%d, id=%d\n", len(rows), lastID)
			} else {
				fmt.Printf("inserted=%d\n", len(rows))
			}
			return nil
		},
	}
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// toArgs passes command line arguments as statement parameters
func toArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

// parseRows decodes every argument into a row. An argument holding a JSON array adds all its rows.
func parseRows(args []string) ([]db.Row, error) {
	rows := make([]db.Row, 0, len(args))
	for i, arg := range args {
		if strings.HasPrefix(strings.TrimSpace(arg), "[") {
			var batch []json.RawMessage
			if err := json.Unmarshal([]byte(arg), &batch); err != nil {
				return nil, fmt.Errorf("argument %d is not a JSON array: %w", i+1, err)
			}
			if len(batch) == 0 {
				return nil, fmt.Errorf("argument %d is an empty JSON array", i+1)
			}
			for j, raw := range batch {
				var row db.Row
				if err := json.Unmarshal(raw, &row); err != nil {
					return nil, fmt.Errorf("argument %d, element %d is not a JSON object: %w", i+1, j+1, err)
				}
				rows = append(rows, row)
			}
			continue
		}
		var row db.Row
		if err := json.Unmarshal([]byte(arg), &row); err != nil {
			return nil, fmt.Errorf("row %d is not a JSON object: %w", i+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
