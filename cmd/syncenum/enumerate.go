package main

import (
	"github.com/spf13/cobra"

	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/observer"
	"github.com/Ning0612/Syncenum/internal/session"
)

var (
	enumPage    string
	enumAll     bool
	enumChanges bool
	enumAnchor  string
)

var enumerateCmd = &cobra.Command{
	Use:   "enumerate <account> [item]",
	Short: "List one page of an item",
	Long: `List the children of an item through the metadata cache.

The item is a file identifier of a cached directory, "root" for the account
home (default) or "workingset" for favorited and tagged items.

With --changes the change set recorded by the listing is printed after it.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx, setupOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.account(args[0])
		if err != nil {
			return err
		}
		id := domain.RootContainer
		if len(args) == 2 {
			id = domain.ItemIdentifier(args[1])
		}

		enum := c.Open(ctx, id)
		anchor := enumAnchor
		if anchor == "" {
			anchor = enum.CurrentAnchor()
		}

		text := observer.NewText(cmd.OutOrStdout())
		token := enumPage
		for {
			obs := &recorder{ItemObserver: text}
			enum.EnumerateItems(ctx, obs, token)
			if obs.err != nil {
				return obs.err
			}
			if !enumAll || obs.next == nil {
				break
			}
			token = obs.next.String()
		}

		if !enumChanges {
			return nil
		}
		obs := &changeRecorder{ChangeObserver: text}
		enum.EnumerateChanges(ctx, obs, anchor)
		return obs.err
	},
}

func init() {
	enumerateCmd.Flags().StringVar(&enumPage, "page", "", "page cursor to resume from")
	enumerateCmd.Flags().BoolVar(&enumAll, "all", false, "follow cursors until the last page")
	enumerateCmd.Flags().BoolVar(&enumChanges, "changes", false, "print the change set after listing")
	enumerateCmd.Flags().StringVar(&enumAnchor, "anchor", "", "sync anchor for --changes (default: anchor before listing)")
}

// recorder keeps the terminal callback of one page request
type recorder struct {
	session.ItemObserver
	next *domain.PageCursor
	err  error
}

func (r *recorder) FinishEnumerating(next *domain.PageCursor) {
	r.next = next
	r.ItemObserver.FinishEnumerating(next)
}

func (r *recorder) FinishEnumeratingWithError(err error) {
	r.err = err
	r.ItemObserver.FinishEnumeratingWithError(err)
}

type changeRecorder struct {
	session.ChangeObserver
	err error
}

func (r *changeRecorder) FinishEnumeratingWithError(err error) {
	r.err = err
	r.ChangeObserver.FinishEnumeratingWithError(err)
}
