package cmd

import (
	"context"
	"sort"

	"github.com/ledgercache/ledgercache/api"
	"github.com/ledgercache/ledgercache/log"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals
var attempts uint = 3

func newClient() *api.Client {
	return api.NewClient(apiURL(), api.WithAttempts(attempts))
}

func newEntryCommands() *cobra.Command {
	c := &cobra.Command{
		Use:     "entry",
		Aliases: []string{"entries"},
		Short:   "Reads and writes cache entries via the REST API",
	}

	c.PersistentFlags().UintVar(&attempts, "attempts", attempts, "attempts per request if the server is not reachable")

	c.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Args:  cobra.ExactArgs(1),
			Short: "Prints the value of a live entry",
			RunE:  getEntry,
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Args:  cobra.ExactArgs(2), //nolint:gomnd
			Short: "Stores a value, replacing any existing one",
			RunE:  setEntry,
		},
		&cobra.Command{
			Use:   "add <key> <value>",
			Args:  cobra.ExactArgs(2), //nolint:gomnd
			Short: "Stores a value only if the key has no live entry",
			RunE:  addEntry,
		},
		&cobra.Command{
			Use:   "get-or-add <key> <value>",
			Args:  cobra.ExactArgs(2), //nolint:gomnd
			Short: "Prints the live value or stores the passed one",
			RunE:  getOrAddEntry,
		},
		&cobra.Command{
			Use:     "remove <key>",
			Aliases: []string{"rm", "delete"},
			Args:    cobra.ExactArgs(1),
			Short:   "Removes an entry and prints its value",
			RunE:    removeEntry,
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Args:    cobra.NoArgs,
			Short:   "Prints all live entries",
			RunE:    listEntries,
		},
	)

	return c
}

func getEntry(_ *cobra.Command, args []string) error {
	val, err := newClient().Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	log.Log().Info(val)

	return nil
}

func setEntry(_ *cobra.Command, args []string) error {
	if err := newClient().Set(context.Background(), args[0], args[1]); err != nil {
		return err
	}

	log.Log().Info("OK")

	return nil
}

func addEntry(_ *cobra.Command, args []string) error {
	if err := newClient().Add(context.Background(), args[0], args[1]); err != nil {
		return err
	}

	log.Log().Info("OK")

	return nil
}

func getOrAddEntry(_ *cobra.Command, args []string) error {
	res, err := newClient().GetOrAdd(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}

	log.Log().WithField("inserted", res.Inserted).Info(res.Value)

	return nil
}

func removeEntry(_ *cobra.Command, args []string) error {
	val, err := newClient().Remove(context.Background(), args[0])
	if err != nil {
		return err
	}

	log.Log().Info(val)

	return nil
}

func listEntries(_ *cobra.Command, _ []string) error {
	entries, err := newClient().List(context.Background())
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		log.Log().Infof("%s = %s", log.EscapeInput(k), log.EscapeInput(entries[k]))
	}

	log.Log().Infof("%d entries", len(entries))

	return nil
}
