package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vulnforge/reportformats/pkg/reportformat"
)

// withServices opens the services for one command and closes them after fn.
func (a *app) withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := a.openServices(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
	}()
	return fn(ctx, svc)
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile predefined report formats with the feed directory once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd, func(ctx context.Context, svc *services) error {
				report, err := svc.feedWatcher(a.cfg, a).SyncOnce(ctx)
				if err != nil {
					return fmt.Errorf("feed sync: %w", err)
				}
				return a.print(cmd.OutOrStdout(), report)
			})
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <report-format-id>",
		Short: "Re-check the signature of a report format and store the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd, func(ctx context.Context, svc *services) error {
				trust, err := svc.manager.Verify(asUser(ctx, ""), args[0])
				if err != nil {
					return resultError(reportformat.OpVerify, err)
				}
				return a.print(cmd.OutOrStdout(), map[string]string{"id": args[0], "trust": trust.String()})
			})
		},
	}
}

func newModifyCmd(a *app) *cobra.Command {
	var (
		name, summary, predefined string
		param, value              string
		active                    bool
	)
	cmd := &cobra.Command{
		Use:   "modify <report-format-id>",
		Short: "Change a report format, predefined ones included",
		Long: `modify runs with the system session, so it may change predefined
formats that the API refuses to touch. Only the given flags are applied.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var in reportformat.ModifyInput
			if flags.Changed("name") {
				in.Name = &name
			}
			if flags.Changed("summary") {
				in.Summary = &summary
			}
			if flags.Changed("active") {
				in.Active = &active
			}
			if flags.Changed("predefined") {
				in.Predefined = &predefined
			}
			if flags.Changed("value") && param == "" {
				return fmt.Errorf("--value needs --param")
			}
			if param != "" {
				in.ParamName = param
				if flags.Changed("value") {
					in.ParamValue = &value
				}
			}

			return a.withServices(cmd, func(ctx context.Context, svc *services) error {
				ctx = asUser(ctx, "")
				if err := svc.manager.Modify(ctx, args[0], in); err != nil {
					return resultError(reportformat.OpModify, err)
				}
				rf, err := svc.manager.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return a.print(cmd.OutOrStdout(), rf)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "New name")
	f.StringVar(&summary, "summary", "", "New summary")
	f.BoolVar(&active, "active", false, "Whether the format may be used")
	f.StringVar(&predefined, "predefined", "", "Mark as predefined (1) or not (0)")
	f.StringVar(&param, "param", "", "Name of the parameter to set")
	f.StringVar(&value, "value", "", "New parameter value; omit to reset to the default")
	return cmd
}

func newEmptyTrashCmd(a *app) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "empty-trash",
		Short: "Remove every trashed report format of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd, func(ctx context.Context, svc *services) error {
				n, err := svc.manager.EmptyTrash(asUser(ctx, user))
				if err != nil {
					return err
				}
				return a.print(cmd.OutOrStdout(), map[string]any{"user": user, "deleted": n})
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "UUID of the user whose trash is emptied")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newRenderCmd(a *app) *cobra.Command {
	var (
		report string
		out    string
		user   string
	)
	cmd := &cobra.Command{
		Use:   "render <report-format-id>",
		Short: "Generate a report document with a report format",
		Long: `render completes the report document in --report with the format's
parameters, runs the format's generator and writes the result to --out
("-" for stdout).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := os.MkdirTemp("", "rfmgr-render-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(workDir)

			return a.withServices(cmd, func(ctx context.Context, svc *services) error {
				path, err := svc.manager.Render(asUser(ctx, user), args[0], report, workDir)
				if err != nil {
					return fmt.Errorf("render %s: %w", args[0], err)
				}
				return copyOutput(cmd.OutOrStdout(), path, out)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&report, "report", "", "Path of the report document start")
	f.StringVar(&out, "out", "-", "Output file, - for stdout")
	f.StringVar(&user, "user", "", "Render as this user instead of the system session")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

func copyOutput(stdout io.Writer, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if dst == "-" {
		_, err = io.Copy(stdout, in)
		return err
	}
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, in); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newDeleteUserCmd(a *app) *cobra.Command {
	var inheritor string
	cmd := &cobra.Command{
		Use:   "delete-user <user-id>",
		Short: "Hand a removed user's report formats to another user or delete them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd, func(ctx context.Context, svc *services) error {
				ctx = asUser(ctx, "")
				if inheritor != "" {
					if err := svc.manager.InheritFormats(ctx, args[0], inheritor); err != nil {
						return err
					}
					return a.print(cmd.OutOrStdout(), map[string]string{"user": args[0], "inheritedBy": inheritor})
				}
				if err := svc.manager.DeleteUserFormats(ctx, args[0]); err != nil {
					return err
				}
				return a.print(cmd.OutOrStdout(), map[string]string{"user": args[0], "deleted": "true"})
			})
		},
	}
	cmd.Flags().StringVar(&inheritor, "inherit-to", "", "UUID of the user who takes over the formats")
	return cmd
}

// resultError prefixes err with the operation's numeric result code.
func resultError(op reportformat.Operation, err error) error {
	if code := reportformat.CodeOf(op, err); code > 0 {
		return fmt.Errorf("%s failed (code %d): %w", op, code, err)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
