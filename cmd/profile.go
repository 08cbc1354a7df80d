package cmd

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/statm8/internal/analysis"
	"github.com/KaramelBytes/statm8/internal/utils"
)

var (
	profJSON         bool
	profSampleRows   int
	profSampleValues int
	profOutputPath   string
)

var profileCmd = &cobra.Command{
	Use:   "profile <file>",
	Short: "Profile a CSV or JSON dataset (shape, column statistics, sample rows)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		opt := profileOptions(cfg)
		if cmd.Flags().Changed("sample-rows") {
			opt.SampleRows = profSampleRows
		}
		if profSampleValues > 0 {
			opt.SampleValues = profSampleValues
		}
		prof, err := analysis.ProfileFile(path, opt)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if profJSON {
			if err := writeJSON(&buf, prof); err != nil {
				return err
			}
		} else {
			buf.WriteString(prof.Demographics())
		}
		if profOutputPath == "" {
			_, err := io.Copy(cmd.OutOrStdout(), &buf)
			return err
		}
		if err := utils.SafeWriteFile(profOutputPath, buf.Bytes()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote profile to %s\n", profOutputPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().BoolVar(&profJSON, "json", false, "print the profile as JSON")
	profileCmd.Flags().IntVar(&profSampleRows, "sample-rows", 5, "number of sample rows to keep (overrides sample_rows)")
	profileCmd.Flags().IntVar(&profSampleValues, "sample-values", 0, "distinct sample values kept per column")
	profileCmd.Flags().StringVarP(&profOutputPath, "output", "o", "", "write the profile to a file instead of stdout")
}
