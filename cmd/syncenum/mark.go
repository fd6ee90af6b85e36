package main

import (
	"github.com/spf13/cobra"

	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/observer"
	"github.com/Ning0612/Syncenum/internal/service"
)

var favoriteOff bool

var favoriteCmd = &cobra.Command{
	Use:   "favorite <account> <file-id>",
	Short: "Add a cached item to the working set",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSignals(cmd, args[0], func(sig *service.Signals) (domain.MetadataRecord, error) {
			return sig.SetFavorite(cmd.Context(), args[1], !favoriteOff)
		})
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag <account> <file-id> [tag...]",
	Short: "Replace the tags of a cached item (no tags clears them)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSignals(cmd, args[0], func(sig *service.Signals) (domain.MetadataRecord, error) {
			return sig.SetTags(cmd.Context(), args[1], args[2:])
		})
	},
}

func init() {
	favoriteCmd.Flags().BoolVar(&favoriteOff, "off", false, "remove the favorite flag")
}

func withSignals(cmd *cobra.Command, name string, apply func(*service.Signals) (domain.MetadataRecord, error)) error {
	a, err := setup(cmd.Context(), setupOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.account(name)
	if err != nil {
		return err
	}
	rec, err := apply(service.NewSignals(c))
	if err != nil {
		return err
	}
	observer.NewText(cmd.OutOrStdout()).DidEnumerate([]domain.MetadataRecord{rec})
	return nil
}
