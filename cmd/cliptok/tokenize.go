package main

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newTokenizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokenize [text...]",
		Short: "Print the fixed-length row of ids of each text, as fed to a CLIP text encoder",
		Long: "Print the fixed-length row of ids of each text as a JSON array, one line per text.\n" +
			"Rows hold the start-of-text marker, the text ids and the end-of-text marker, padded with 0\n" +
			"up to --tokenizer-context-length, by default the model_max_length of the repository. If no text is given, each line of stdin is used.",
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

			rows, err := tok.Tokenize(texts...)
			if err != nil {
				return err
			}
			out := json.NewEncoder(cmd.OutOrStdout())
			for _, row := range rows {
				if err := out.Encode(row); err != nil {
					return errors.Wrap(err, "write output")
				}
			}
			return nil
		},
	}
}
