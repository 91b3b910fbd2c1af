package main

import (
	"fmt"
	"strings"

	"github.com/achilleasa/katapayadi/config/flag"
	"github.com/achilleasa/katapayadi/service"
	"github.com/achilleasa/katapayadi/transcoder"
	"github.com/spf13/cobra"
)

// resolveKey returns the --key value, or the transcoder/key configuration
// value if the flag was not set.
func (a *app) resolveKey(cmd *cobra.Command, key int) int {
	if cmd.Flags().Changed("key") {
		return key
	}

	f := flag.NewInt64(a.store, "transcoder/key")
	defer f.CancelDynamicUpdates()
	if f.HasValue() {
		return int(f.Get())
	}
	return key
}

func newEncodeCmd(a *app) *cobra.Command {
	var (
		key      int
		clusters bool
	)

	cmd := &cobra.Command{
		Use:   "encode TEXT...",
		Short: "Encode text into Katapayadi digits",
		Example: `  katapayadi encode कखग
  katapayadi encode --key 3 --clusters क्ष`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := service.NewTranscoder(a.store)
			if cmd.Flags().Changed("clusters") {
				t = transcoder.New()
				if clusters {
					t = transcoder.New(transcoder.WithClusterMatching())
				}
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), t.Encode(strings.Join(args, " "), a.resolveKey(cmd, key)))
			return err
		},
	}

	cmd.Flags().IntVarP(&key, "key", "k", 0, "digit shift (defaults to transcoder/key)")
	cmd.Flags().BoolVar(&clusters, "clusters", false, "match multi-rune consonants such as क्ष as a single unit (defaults to transcoder/clusters)")
	return cmd
}

func newDecodeCmd(a *app) *cobra.Command {
	var key int

	cmd := &cobra.Command{
		Use:   "decode NUMBERS...",
		Short: "Decode Katapayadi digits into consonants",
		Long: `Decode maps every digit to the first consonant it may stand for. Use the
table command or "call candidates" to list the alternatives.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), transcoder.Decode(strings.Join(args, " "), a.resolveKey(cmd, key)))
			return err
		},
	}

	cmd.Flags().IntVarP(&key, "key", "k", 0, "digit shift (defaults to transcoder/key)")
	return cmd
}

func newTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "table",
		Short: "Print the digit to consonant table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for d := 0; d <= 9; d++ {
				if _, err := fmt.Fprintf(out, "%d\t%s\n", d, strings.Join(transcoder.Candidates(d), " ")); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
