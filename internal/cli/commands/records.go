package commands

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rowmodel/rowmodel/internal/cli/ui"
	"github.com/rowmodel/rowmodel/internal/orm/model"
)

// readFlags are the instance construction flags shared by the record commands
type readFlags struct {
	ignoreRequired bool
	noValidate     bool
	json           bool
}

func (f *readFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.ignoreRequired, "ignore-required", false, "Validate without enforcing required fields")
	cmd.Flags().BoolVar(&f.noValidate, "no-validate", false, "Skip schema validation")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print records as JSON")
}

func (f *readFlags) options() []model.Option {
	var opts []model.Option
	if f.ignoreRequired {
		opts = append(opts, model.IgnoreRequired())
	}
	if f.noValidate {
		opts = append(opts, model.WithoutValidation())
	}
	return opts
}

// confirm asks a yes/no question on the terminal
var confirm = func(message string) (bool, error) {
	var ok bool
	err := survey.AskOne(&survey.Confirm{Message: message, Default: false}, &ok)
	return ok, err
}

// NewGetCommand creates the get command
func NewGetCommand(opts *globalOptions) *cobra.Command {
	flags := &readFlags{}
	cmd := &cobra.Command{
		Use:   "get <entity> <id>",
		Short: "Show one record",
		Example: `  rowmodel get inventory 7
  rowmodel get inventory 7 --json`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeEntities(opts),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.model(args[0])
			if err != nil {
				return err
			}
			inst, err := m.GetOne(cmd.Context(), parseID(args[1]), flags.options()...)
			if err != nil {
				return err
			}
			if inst == nil {
				return notFound(args[0], args[1])
			}

			if flags.json {
				return writeJSON(cmd.OutOrStdout(), inst)
			}
			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), color.NoColor)
			values := inst.ToMap()
			for _, field := range inst.Fields() {
				kv.AddRow(field, formatValue(values[field]))
			}
			kv.Render()
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// NewListCommand creates the list command
func NewListCommand(opts *globalOptions) *cobra.Command {
	flags := &readFlags{}
	cmd := &cobra.Command{
		Use:   "list <entity>",
		Short: "List every record of an entity",
		Example: `  rowmodel list inventory
  rowmodel list inventory --ignore-required --json`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeEntities(opts),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.model(args[0])
			if err != nil {
				return err
			}
			instances, err := m.GetAll(cmd.Context(), flags.options()...)
			if err != nil {
				return err
			}

			if flags.json {
				return writeJSON(cmd.OutOrStdout(), instances)
			}
			renderInstances(cmd.OutOrStdout(), instances)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// NewSaveCommand creates the save command
func NewSaveCommand(opts *globalOptions) *cobra.Command {
	flags := &readFlags{}
	var (
		file string
		id   string
	)
	cmd := &cobra.Command{
		Use:   "save <entity>",
		Short: "Create or update records from JSON",
		Long: `Read a JSON object (one record) or array (several records) and save it.
Records with an id are updated, the others are created. An array is saved
in one transaction.`,
		Example: `  echo '{"costPrice": 10, "origin": "A"}' | rowmodel save inventory
  rowmodel save inventory --file lots.json
  rowmodel save inventory --id 7 --file patch.json`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeEntities(opts),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.model(args[0])
			if err != nil {
				return err
			}

			var instances []*model.Instance
			switch {
			case id != "":
				inst, err := m.CreateForUpdate(parseID(id), data, flags.options()...)
				if err != nil {
					return err
				}
				instances = []*model.Instance{inst}
			default:
				if _, ok := data.([]interface{}); ok {
					instances, err = m.CreateCollection(data, flags.options()...)
				} else {
					var inst *model.Instance
					inst, err = m.Create(data, flags.options()...)
					instances = []*model.Instance{inst}
				}
				if err != nil {
					return err
				}
			}

			if err := m.SaveAll(cmd.Context(), instances); err != nil {
				return err
			}

			if flags.json {
				return writeJSON(cmd.OutOrStdout(), instances)
			}
			renderInstances(cmd.OutOrStdout(), instances)
			ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Saved %d %s record(s)", len(instances), args[0]), color.NoColor)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON file to read, - for stdin")
	cmd.Flags().StringVar(&id, "id", "", "Update the record with this id using partial data")
	return cmd
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand(opts *globalOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <entity> <id>",
		Short: "Delete one record",
		Example: `  rowmodel delete inventory 7
  rowmodel delete inventory 7 --yes`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeEntities(opts),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.model(args[0])
			if err != nil {
				return err
			}

			if !yes {
				ok, err := confirm(fmt.Sprintf("Delete %s %s?", args[0], args[1]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprint(cmd.OutOrStdout(), ui.FormatError(ui.ErrorOptions{
						Level:   ui.ErrorLevelInfo,
						Problem: "Delete cancelled",
						NoColor: color.NoColor,
					}))
					return nil
				}
			}

			deleted, err := m.DeleteByID(cmd.Context(), parseID(args[1]))
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Fprint(cmd.OutOrStdout(), ui.Warning(fmt.Sprintf("No %s with id %s, nothing deleted", args[0], args[1]), color.NoColor))
				return nil
			}
			ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Deleted %s %s", args[0], args[1]), color.NoColor)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func notFound(entity, id string) error {
	return &displayError{
		message: ui.FormatError(ui.ErrorOptions{
			Context: "record not found",
			Problem: fmt.Sprintf("No %s with id %s.", entity, id),
			HelpCommands: []string{
				fmt.Sprintf("List records: rowmodel list %s", entity),
			},
			NoColor: color.NoColor,
		}),
		err: fmt.Errorf("%s %s not found", entity, id),
	}
}

// readInput decodes a JSON document from path, or from stdin when path is "-"
func readInput(stdin io.Reader, path string) (interface{}, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" || path == "" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var value interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON input: %w", err)
	}
	return normalizeJSON(value), nil
}

func writeJSON(w io.Writer, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// renderInstances prints instances as a table whose columns are the union of
// their visible fields, in first-seen order
func renderInstances(w io.Writer, instances []*model.Instance) {
	if len(instances) == 0 {
		fmt.Fprint(w, ui.FormatError(ui.ErrorOptions{
			Level:   ui.ErrorLevelInfo,
			Problem: "No records",
			NoColor: color.NoColor,
		}))
		return
	}

	var columns []string
	seen := make(map[string]bool)
	for _, inst := range instances {
		for _, field := range inst.Fields() {
			if !seen[field] {
				seen[field] = true
				columns = append(columns, field)
			}
		}
	}

	table := ui.NewTable(w, columns, &ui.TableOptions{NoColor: color.NoColor})
	for _, inst := range instances {
		values := inst.ToMap()
		cells := make([]string, len(columns))
		for i, column := range columns {
			if value, ok := values[column]; ok {
				cells[i] = formatValue(value)
			}
		}
		table.AddRow(cells...)
	}
	table.Render()
}

// formatValue renders a field value for a table cell
func formatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}
