package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"modbot/internal/linkextract"
)

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract [text]",
		Short: "Show the links found in a text and the text without them",
		Long:  "Runs link extraction on the arguments, or on stdin when none are given, and prints every candidate link followed by the stripped text.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}
			printExtraction(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func printExtraction(w io.Writer, text string) {
	links := linkextract.ExtractCandidateLinks(text)
	fmt.Fprintf(w, "links (%d):\n", len(links))
	for _, l := range links {
		fmt.Fprintf(w, "  %s\n", l)
	}
	fmt.Fprintf(w, "stripped: %s\n", strings.TrimSpace(linkextract.Strip(text)))
}
