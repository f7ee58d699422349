package commands

import (
	"context"
	"fmt"
	"os"

	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"
	contextutils "issuetracker/internal/utils"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// CatalogSeeder is the part of the catalog service used by `catalog seed`
type CatalogSeeder interface {
	Seed(ctx context.Context, seed models.CatalogSeed) (services.SeedResult, error)
}

// CatalogCommands returns the curriculum catalog commands
func CatalogCommands(catalog CatalogSeeder, logger *observability.Logger) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Curriculum catalog commands",
	}
	catalogCmd.AddCommand(seedCmd(catalog, logger))
	return catalogCmd
}

func seedCmd(catalog CatalogSeeder, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load courses, projects and tasks from a YAML file",
		Long: `Load a course/project/task tree from YAML. Rows that already exist
are matched on their natural keys and updated in place, so the command
can be run again after the file changes.

  courses:
    - name: Backend
      duration_in_weeks: 12
      projects:
        - name: REST API
          week_number: 3
          tasks:
            - {number: 1, title: Routing}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			seed, err := loadSeed(args[0])
			if err != nil {
				return err
			}

			result, err := catalog.Seed(ctx, seed)
			if err != nil {
				logger.Error(ctx, "Catalog seed failed", err, map[string]interface{}{"file": args[0]})
				return contextutils.WrapError(err, "failed to seed catalog")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d courses, %d projects, %d tasks\n",
				result.Courses, result.Projects, result.Tasks)
			return nil
		},
	}
}

func loadSeed(path string) (models.CatalogSeed, error) {
	var seed models.CatalogSeed
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, contextutils.WrapErrorf(err, "failed to read %s", path)
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seed, contextutils.WrapErrorf(err, "failed to parse %s", path)
	}
	if len(seed.Courses) == 0 {
		return seed, contextutils.ErrorWithContextf("%s contains no courses", path)
	}
	return seed, nil
}
