package main

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newEncodeCmd() *cobra.Command {
	var pieces bool

	cmd := &cobra.Command{
		Use:   "encode [text...]",
		Short: "Print the token ids of each text as a JSON array, one line per text",
		Long: "Print the token ids of each text as a JSON array, one line per text.\n" +
			"If no text is given, each line of stdin is encoded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			texts, err := readTexts(cmd, args)
			if err != nil {
				return err
			}
			tok, err := loadTokenizer(cfg)
			if err != nil {
				return err
			}

			out := json.NewEncoder(cmd.OutOrStdout())
			for _, text := range texts {
				var v any
				if pieces {
					v = tok.Pieces(text)
				} else {
					v = tok.Encode(text)
				}
				if err := out.Encode(v); err != nil {
					return errors.Wrap(err, "write output")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&pieces, "pieces", false, "Print the text of each token instead of its id")
	return cmd
}
