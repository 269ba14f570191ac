package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/go-clip-tokenizer/tokenizers"
	"github.com/gomlx/go-clip-tokenizer/tokenizers/clip"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download the tokenizer files of the hub repository into the local cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			repo := newRepo(cfg)
			paths, err := repo.DownloadFilesContext(cmd.Context(), tokenizers.ConfigFileName, clip.MergesFileName)
			if err != nil {
				return err
			}
			for _, path := range paths {
				info, err := os.Stat(path)
				if err != nil {
					return errors.Wrap(err, "stat downloaded file")
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", path, humanize.Bytes(uint64(info.Size()))); err != nil {
					return errors.Wrap(err, "write output")
				}
			}
			return nil
		},
	}
}
