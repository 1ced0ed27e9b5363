package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <file-a> <file-b>",
	Short: "Compare two command definition files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		diff, err := unifiedDiff(args[0], args[1])
		if err != nil {
			return fatalf("%w", err)
		}
		if diff == "" {
			mutedStyle.Println("definitions are identical")
			return nil
		}
		printDiff(diff)
		return fmt.Errorf("definitions differ")
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func unifiedDiff(pathA, pathB string) (string, error) {
	a, err := os.ReadFile(pathA)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(pathB)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: pathA,
		ToFile:   pathB,
		Context:  3,
	})
}

func printDiff(diff string) {
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			successStyle.Println(line)
		case strings.HasPrefix(line, "-"):
			errorStyle.Println(line)
		case strings.HasPrefix(line, "@@"):
			headerStyle.Println(line)
		default:
			fmt.Println(line)
		}
	}
}
