package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/acheong08/avtag/internal/config"
)

// runValidateCommand checks rule destinations against the taxonomy and
// rewrites each file in sorted, normalized form
func runValidateCommand(args []string) {
	opts, err := config.Load(configPath(args))
	if err != nil {
		log.Fatalf("avtag: %v", err)
	}

	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	fs.StringVar(&opts.Taxonomy, "tax", opts.Taxonomy, "taxonomy file")
	fs.StringVar(&opts.Tagging, "tag", opts.Tagging, "tagging rules file")
	fs.StringVar(&opts.Expansion, "exp", opts.Expansion, "expansion rules file")
	fullPaths := fs.Bool("path", false, "write rule tags as full taxonomy paths")
	dryRun := fs.Bool("n", false, "report problems without rewriting files")
	fs.String("config", "", "YAML config file")
	fs.Parse(args)

	if opts.Taxonomy == "" {
		log.Fatalf("avtag: -tax is required")
	}

	rs, err := opts.LoadRules()
	if err != nil {
		log.Fatalf("avtag: %v", err)
	}

	fmt.Printf("Taxonomy: %d tags\n", rs.Taxonomy.Len())
	fmt.Printf("Tagging: %d rules\n", rs.Tagging.Len())
	fmt.Printf("Expansion: %d rules\n", rs.Expansion.Len())

	problems := rs.Problems()
	for _, p := range problems {
		fmt.Println(p)
	}

	if !*dryRun {
		if err := rs.Taxonomy.WriteFile(opts.Taxonomy); err != nil {
			log.Fatalf("avtag: %v", err)
		}
		pathTax := rs.Taxonomy
		if !*fullPaths {
			pathTax = nil
		}
		if opts.Tagging != "" {
			if err := rs.Tagging.WriteFile(opts.Tagging, pathTax); err != nil {
				log.Fatalf("avtag: %v", err)
			}
		}
		if opts.Expansion != "" {
			if err := rs.Expansion.WriteFile(opts.Expansion, pathTax); err != nil {
				log.Fatalf("avtag: %v", err)
			}
		}
	}

	if len(problems) > 0 {
		os.Exit(1)
	}
}
