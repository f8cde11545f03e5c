// Command seed loads master data from a YAML file. Running it again with the
// same file changes nothing.
//
//	organisations:
//	  - title: Acme
//	    locations: [Office]
//	    projects: [ProjectX]
//	    members: [ada]
//	locations: [Home]
//	categories: [Travel, Food]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"expensehub/internal/cli"
	"expensehub/internal/log"
	"expensehub/internal/storage"
)

type organisationSeed struct {
	Title     string   `yaml:"title"`
	Locations []string `yaml:"locations"`
	Projects  []string `yaml:"projects"`
	Members   []string `yaml:"members"`
}

type seedFile struct {
	Organisations []organisationSeed `yaml:"organisations"`
	Locations     []string           `yaml:"locations"`
	Categories    []string           `yaml:"categories"`
}

type summary struct {
	Organisations, Locations, Categories, Projects, Members int
}

func main() {
	cli.LoadEnvFile()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", envOr("SQLITE_DB_PATH", "./data/expensehub.db"), "SQLite database path")
	file := fs.String("file", "seed.yaml", "YAML master data file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := log.New(log.Config{Level: log.ParseLevel(os.Getenv("LOG_LEVEL")), Component: log.ComponentStorage, Output: stderr})

	data, err := loadSeed(*file)
	if err != nil {
		logger.Error("Failed to read seed file", "file", *file, log.FieldError, err)
		return 1
	}

	repo, err := storage.NewSQLiteRepository(*dbPath)
	if err != nil {
		logger.Error("Failed to open database", "db_path", *dbPath, log.FieldError, err)
		return 1
	}
	defer repo.Close()

	sum, err := apply(context.Background(), repo, data)
	if err != nil {
		logger.Error("Seeding failed", log.FieldError, err)
		return 1
	}
	fmt.Fprintf(stdout, "seeded %d organisations, %d locations, %d categories, %d projects, %d memberships\n",
		sum.Organisations, sum.Locations, sum.Categories, sum.Projects, sum.Members)
	return 0
}

func loadSeed(path string) (seedFile, error) {
	var data seedFile
	b, err := os.ReadFile(path)
	if err != nil {
		return data, err
	}
	if err := yaml.Unmarshal(b, &data); err != nil {
		return data, fmt.Errorf("parse %s: %w", path, err)
	}
	return data, nil
}

// apply creates whatever is missing. Organisation locations are created when
// needed and linked to the organisation.
func apply(ctx context.Context, repo *storage.SQLiteRepository, data seedFile) (summary, error) {
	var sum summary
	for _, title := range data.Locations {
		if _, err := repo.EnsureLocation(ctx, title); err != nil {
			return sum, err
		}
		sum.Locations++
	}
	for _, title := range data.Categories {
		if _, err := repo.EnsureCategory(ctx, title); err != nil {
			return sum, err
		}
		sum.Categories++
	}

	for _, o := range data.Organisations {
		orgID, err := repo.EnsureOrganisation(ctx, o.Title)
		if err != nil {
			return sum, err
		}
		sum.Organisations++

		for _, title := range o.Locations {
			locID, err := repo.EnsureLocation(ctx, title)
			if err != nil {
				return sum, err
			}
			if err := repo.LinkOrganisationLocation(ctx, orgID, locID); err != nil {
				return sum, err
			}
			sum.Locations++
		}
		for _, title := range o.Projects {
			if _, err := repo.EnsureProject(ctx, orgID, title); err != nil {
				return sum, err
			}
			sum.Projects++
		}
		for _, username := range o.Members {
			user, err := repo.UserByUsername(ctx, username)
			if err != nil {
				return sum, fmt.Errorf("member %q of %q: %w", username, o.Title, err)
			}
			if err := repo.AddOrganisationUser(ctx, orgID, user.ID); err != nil {
				return sum, err
			}
			sum.Members++
		}
	}
	return sum, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
