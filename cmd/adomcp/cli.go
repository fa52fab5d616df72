package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/ops"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *ops.Env) *cli.App {
	app := &cli.App{
		Name:    "adomcp",
		Usage:   "Query-handle MCP server for Azure DevOps work items",
		Version: Version,
		Commands: []*cli.Command{
			queryCmd(env),
			inspectCmd(env),
			validateCmd(env),
			selectCmd(env),
			handlesCmd(env),
			bulkCommentCmd(env),
			bulkUpdateCmd(env),
			bulkAssignCmd(env),
			bulkRemoveCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// selectorFlag is shared by every command that takes an item selector.
func selectorFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "select",
		Aliases: []string{"s"},
		Usage:   `Item selector: "all", a JSON position array ([0,2]), or a criteria object`,
	}
}

// queryCmd creates the query command.
func queryCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Run a WIQL query and mint a query handle (reads WIQL from argument or stdin)",
		ArgsUsage: "[wiql]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max-results", Aliases: []string{"m"}, Usage: "Cap on snapshot size"},
			&cli.IntFlag{Name: "ttl", Usage: "Handle lifetime in seconds"},
		},
		Action: func(c *cli.Context) error {
			wiql := c.Args().First()
			if wiql == "" && stdinHasData() {
				text, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				wiql = text
			}
			if wiql == "" {
				return outputError(errors.NewInvalidRequest("wiql is required (argument or stdin)"))
			}

			output, err := ops.Query(c.Context, env, ops.QueryInput{
				Wiql:       wiql,
				MaxResults: c.Int("max-results"),
				TTLSeconds: c.Int("ttl"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// inspectCmd creates the inspect command.
func inspectCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Describe a live query handle",
		ArgsUsage: "<handle>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "preview", Aliases: []string{"p"}, Usage: "Include an item preview"},
			&cli.IntFlag{Name: "max-preview", Usage: "Preview row cap"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Inspect(env, ops.InspectInput{
				QueryHandle:     c.Args().First(),
				IncludePreview:  c.Bool("preview"),
				MaxPreviewItems: c.Int("max-preview"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// validateCmd creates the validate command.
func validateCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check whether a query handle is still usable",
		ArgsUsage: "<handle>",
		Action: func(c *cli.Context) error {
			output, err := ops.Validate(env, ops.ValidateInput{
				QueryHandle: c.Args().First(),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// selectCmd creates the select command.
func selectCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "select",
		Usage:     "Preview what a selector resolves to, without mutating anything",
		ArgsUsage: "<handle>",
		Flags: []cli.Flag{
			selectorFlag(),
			&cli.IntFlag{Name: "max-preview", Usage: "Preview row cap"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.SelectItems(env, ops.SelectItemsInput{
				QueryHandle:     c.Args().First(),
				ItemSelector:    selectorArg(c),
				MaxPreviewItems: c.Int("max-preview"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// handlesCmd creates the handles command.
func handlesCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "handles",
		Usage: "List all live query handles",
		Action: func(c *cli.Context) error {
			output, err := ops.ListHandles(env)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// bulkCommentCmd creates the bulk-comment command.
func bulkCommentCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "bulk-comment",
		Usage:     "Add the same comment to every selected item (reads markdown from --comment or stdin)",
		ArgsUsage: "<handle>",
		Flags: []cli.Flag{
			selectorFlag(),
			&cli.StringFlag{Name: "comment", Aliases: []string{"c"}, Usage: "Comment text in markdown"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Preview the selection without posting"},
		},
		Action: func(c *cli.Context) error {
			comment := c.String("comment")
			if comment == "" && stdinHasData() {
				text, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				comment = text
			}

			output, err := ops.BulkComment(c.Context, env, ops.BulkCommentInput{
				QueryHandle:  c.Args().First(),
				ItemSelector: selectorArg(c),
				Comment:      comment,
				DryRun:       c.Bool("dry-run"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// bulkUpdateCmd creates the bulk-update command.
func bulkUpdateCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "bulk-update",
		Usage:     "Apply the same field updates to every selected item",
		ArgsUsage: "<handle>",
		Flags: []cli.Flag{
			selectorFlag(),
			&cli.StringSliceFlag{Name: "field", Aliases: []string{"f"}, Usage: "Field update as name=value (repeatable)"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Preview the selection without writing"},
		},
		Action: func(c *cli.Context) error {
			fields, err := parseFieldUpdates(c.StringSlice("field"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			output, err := ops.BulkUpdate(c.Context, env, ops.BulkUpdateInput{
				QueryHandle:  c.Args().First(),
				ItemSelector: selectorArg(c),
				Fields:       fields,
				DryRun:       c.Bool("dry-run"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// bulkAssignCmd creates the bulk-assign command.
func bulkAssignCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "bulk-assign",
		Usage:     "Assign every selected item to one person",
		ArgsUsage: "<handle>",
		Flags: []cli.Flag{
			selectorFlag(),
			&cli.StringFlag{Name: "to", Required: true, Usage: "Display name or unique name of the assignee"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Preview the selection without writing"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.BulkAssign(c.Context, env, ops.BulkAssignInput{
				QueryHandle:  c.Args().First(),
				ItemSelector: selectorArg(c),
				Assignee:     c.String("to"),
				DryRun:       c.Bool("dry-run"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// bulkRemoveCmd creates the bulk-remove command.
func bulkRemoveCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "bulk-remove",
		Usage:     "Move every selected item to the Removed state",
		ArgsUsage: "<handle>",
		Flags: []cli.Flag{
			selectorFlag(),
			&cli.StringFlag{Name: "comment", Aliases: []string{"c"}, Usage: "Optional removal note in markdown"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Preview the selection without writing"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.BulkRemove(c.Context, env, ops.BulkRemoveInput{
				QueryHandle:  c.Args().First(),
				ItemSelector: selectorArg(c),
				Comment:      c.String("comment"),
				DryRun:       c.Bool("dry-run"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// Helper functions

// selectorArg reads the --select flag as a raw selector. Bare words like
// all are quoted so the selector parser sees valid JSON.
func selectorArg(c *cli.Context) json.RawMessage {
	s := strings.TrimSpace(c.String("select"))
	if s == "" {
		return nil
	}
	if !strings.HasPrefix(s, "[") && !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, `"`) {
		s = fmt.Sprintf("%q", s)
	}
	return json.RawMessage(s)
}

// parseFieldUpdates converts repeated name=value flags into field updates.
// Values that parse as JSON keep their type; everything else is a string.
func parseFieldUpdates(pairs []string) ([]ops.FieldUpdate, error) {
	fields := make([]ops.FieldUpdate, 0, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid field update %q (want name=value)", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		fields = append(fields, ops.FieldUpdate{Field: strings.TrimSpace(name), Value: value})
	}
	return fields, nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if appErr, ok := err.(*errors.Error); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
