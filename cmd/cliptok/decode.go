package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [id...]",
		Short: "Print the text of a sequence of token ids",
		Long: "Print the text of a sequence of token ids.\n" +
			"If no id is given, each line of stdin is decoded: either a JSON array, as printed by encode, or\n" +
			"whitespace separated ids.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			var sequences [][]int
			if len(args) > 0 {
				ids, err := parseIDs(strings.Join(args, " "))
				if err != nil {
					return err
				}
				sequences = append(sequences, ids)
			} else {
				lines, err := readTexts(cmd, nil)
				if err != nil {
					return err
				}
				for i, line := range lines {
					ids, err := parseIDs(line)
					if err != nil {
						return errors.WithMessagef(err, "stdin line %d", i+1)
					}
					sequences = append(sequences, ids)
				}
			}

			tok, err := loadTokenizer(cfg)
			if err != nil {
				return err
			}
			for _, ids := range sequences {
				text, err := tok.Decode(ids)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), text); err != nil {
					return errors.Wrap(err, "write output")
				}
			}
			return nil
		},
	}
}

// parseIDs accepts a JSON array of ids or whitespace separated ids.
func parseIDs(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var ids []int
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, errors.Wrapf(err, "invalid JSON ids %q", raw)
		}
		return ids, nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	ids := make([]int, 0, len(fields))
	for _, field := range fields {
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, errors.Errorf("invalid id %q", field)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
