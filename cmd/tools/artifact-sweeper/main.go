// cmd/tools/artifact-sweeper/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"citizen-portal/internal/artifacts"
	"citizen-portal/internal/common/config"
	"citizen-portal/internal/common/database"
	"citizen-portal/internal/common/logger"
	"citizen-portal/internal/models"
)

type commonFlags struct {
	dir   *string
	redis *string
}

func register(fs *flag.FlagSet) commonFlags {
	defaultDir := os.Getenv("ARTIFACTS_DIR")
	if defaultDir == "" {
		defaultDir = "./data/artifacts"
	}
	return commonFlags{
		dir:   fs.String("dir", defaultDir, "Artifact directory"),
		redis: fs.String("redis", os.Getenv("REDIS_ADDRESS"), "Redis address holding artifact stamps (optional)"),
	}
}

func main() {
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	purgeCmd := flag.NewFlagSet("purge", flag.ExitOnError)
	removeCmd := flag.NewFlagSet("remove", flag.ExitOnError)

	listFlags := register(listCmd)

	purgeFlags := register(purgeCmd)
	olderThan := purgeCmd.Duration("older-than", 30*24*time.Hour, "Remove artifacts last written before this age")
	dryRun := purgeCmd.Bool("dry-run", false, "Only print what would be removed")

	removeFlags := register(removeCmd)
	kindFlag := removeCmd.String("kind", "", "Resource kind (e.g., grievance, land-record)")
	idFlag := removeCmd.String("id", "", "Resource ID")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "list":
		listCmd.Parse(os.Args[2:])
		p := openPipeline(listFlags)
		entries, err := p.List()
		if err != nil {
			fail("Error listing artifacts: %v", err)
		}
		printEntries(entries)

	case "purge":
		purgeCmd.Parse(os.Args[2:])
		p := openPipeline(purgeFlags)
		if *dryRun {
			entries, err := p.List()
			if err != nil {
				fail("Error listing artifacts: %v", err)
			}
			cutoff := time.Now().Add(-*olderThan)
			var stale []artifacts.Entry
			for _, e := range entries {
				if e.ModTime.Before(cutoff) {
					stale = append(stale, e)
				}
			}
			printEntries(stale)
			fmt.Printf("%d artifacts would be removed.\n", len(stale))
			return
		}
		removed, err := p.Purge(ctx, *olderThan)
		if err != nil {
			fail("Error purging artifacts: %v", err)
		}
		printEntries(removed)
		fmt.Printf("Removed %d artifacts older than %s.\n", len(removed), *olderThan)

	case "remove":
		removeCmd.Parse(os.Args[2:])
		if *kindFlag == "" || *idFlag == "" {
			fmt.Println("Error: kind and id are required for remove.")
			removeCmd.Usage()
			os.Exit(1)
		}
		kind, err := models.ParseKind(*kindFlag)
		if err != nil {
			fail("Error: %v", err)
		}
		p := openPipeline(removeFlags)
		if err := p.Remove(ctx, kind, *idFlag); err != nil {
			fail("Error removing artifacts: %v", err)
		}
		fmt.Printf("Removed cached artifacts for %s %s\n", kind, *idFlag)

	case "help":
		fallthrough
	default:
		help()
	}
}

// openPipeline builds a pipeline for maintenance only; it never renders.
func openPipeline(f commonFlags) *artifacts.Pipeline {
	var stamps artifacts.StampStore
	if *f.redis != "" {
		rc, err := database.OpenRedis(config.RedisConfig{Address: *f.redis})
		if err != nil {
			fail("Error connecting to redis: %v", err)
		}
		stamps = artifacts.NewRedisStampStore(rc.Client, "")
	}

	p, err := artifacts.NewPipeline(*f.dir, nil, nil, stamps, nil, logger.NewNoOpLogger())
	if err != nil {
		fail("Error opening artifact directory: %v", err)
	}
	return p
}

func printEntries(entries []artifacts.Entry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tID\tFORMAT\tSIZE\tMODIFIED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", e.Kind, e.ResourceID, e.Format, e.Size, e.ModTime.Format(time.RFC3339))
	}
	w.Flush()
}

func fail(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}

func help() {
	fmt.Println("Usage: artifact-sweeper <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  list    List cached acknowledgments")
	fmt.Println("  purge   Remove acknowledgments older than -older-than")
	fmt.Println("  remove  Remove every cached format of one resource (-kind, -id)")
	fmt.Println("  help    Show this help message")
	fmt.Println("Common options: -dir <path> -redis <addr>")
}
