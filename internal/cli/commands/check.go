package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rowmodel/rowmodel/internal/cli/ui"
	"github.com/rowmodel/rowmodel/internal/orm/schema"
)

// NewCheckCommand creates the check command
func NewCheckCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate entity definitions",
		Long: `Load the entity definitions named by the configuration, resolve every
relation and compile every validation schema. Nothing is read from the
database.`,
		Example: `  # Check the definitions of the current project
  rowmodel check

  # Check with an explicit config file
  rowmodel check --config deploy/rowmodel.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, registry, err := loadRegistry(opts)
			if err != nil {
				return err
			}

			names := registry.List()
			for _, name := range names {
				if _, _, err := registry.MustGet(name).Validators(); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			ui.Header(out, fmt.Sprintf("Entities (%d) from %s", len(names), cfg.Entities), color.NoColor)
			table := ui.NewTable(out, []string{"Entity", "Table", "Relations", "Hidden"},
				&ui.TableOptions{NoColor: color.NoColor})
			for _, name := range names {
				entity := registry.MustGet(name)
				table.AddRow(
					entity.Name,
					entity.PersistedName,
					describeRelations(entity),
					strings.Join(entity.Hidden, ", "),
				)
			}
			table.Render()
			fmt.Fprintln(out)

			order, err := registry.DependencyOrder()
			if err != nil {
				fmt.Fprint(out, ui.Warning(err.Error(), color.NoColor))
			} else {
				fmt.Fprintf(out, "Load order: %s\n\n", strings.Join(order, " → "))
			}
			ui.WriteSuccess(out, "Entity definitions are valid", color.NoColor)
			return nil
		},
	}
}

// describeRelations renders relations as "field→target(fk)" or "field→target[]"
func describeRelations(entity *schema.EntityType) string {
	parts := make([]string, 0, len(entity.Relations))
	for _, name := range entity.RelationFields() {
		rel, _ := entity.Relation(name)
		if rel.Many {
			parts = append(parts, fmt.Sprintf("%s→%s[]", rel.Field, rel.Target.Name))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s→%s(%s)", rel.Field, rel.Target.Name, rel.ForeignKey))
	}
	return strings.Join(parts, ", ")
}
