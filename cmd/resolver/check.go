package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rossigee/slot-rank-tracker/internal/rank"
	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

func newCheckCmd(a *app) *cobra.Command {
	var keyword, link string

	cmd := &cobra.Command{
		Use:   "check --keyword <keyword> --url <product link>",
		Short: "Resolves one keyword's rank and prints the result as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := rank.ExtractProductID(link); !ok {
				return errors.New("--url must be a product link containing /products/<id>")
			}

			worker, err := a.newWorker()
			if err != nil {
				return err
			}

			results, err := worker.RunBatch(cmd.Context(), []types.Keyword{{Keyword: keyword, LinkURL: link}})
			if err != nil {
				return err
			}
			if len(results.Results) == 0 {
				return errors.New("check was cancelled")
			}

			out, err := json.MarshalIndent(results.Results[0], "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}

	cmd.Flags().StringVar(&keyword, "keyword", "", "search keyword")
	cmd.Flags().StringVar(&link, "url", "", "product link")
	_ = cmd.MarkFlagRequired("keyword")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
