package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	// Check for subcommands
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]

	switch subcommand {
	case "label":
		runLabelCommand(os.Args[2:])
	case "validate":
		runValidateCommand(os.Args[2:])
	case "review":
		runReviewCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("avtag - antivirus label normalizer")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  avtag label [options]      Tag samples from antivirus reports")
	fmt.Println("  avtag validate [options]   Check and normalize taxonomy and rule files")
	fmt.Println("  avtag review [options]     Confirm alias candidates with a language model")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  label      Read JSONL reports, print one tagged line per sample, write .stats/.avtags/.alias")
	fmt.Println("  validate   Report rule destinations missing from the taxonomy and rewrite files sorted")
	fmt.Println("  review     Turn a .alias file into tagging rules for confirmed aliases")
	fmt.Println("")
	fmt.Println("Run 'avtag <command> -h' for more information on a command.")
}

// stringList is a flag that may be given several times
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// configPath finds -config before flags are parsed, so the file can supply
// defaults that the remaining flags override
func configPath(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
