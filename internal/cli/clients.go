package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sdbsm/1CSessionManager-sub000/internal/db"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
	"github.com/sdbsm/1CSessionManager-sub000/internal/registry"
	"github.com/spf13/cobra"
)

var (
	clientAddQuota     int
	clientAddStatus    string
	clientAddInfobases []string

	clientImportUpdate bool
	clientImportDryRun bool

	clientExportFormat string
)

func init() {
	rootCmd.AddCommand(clientsCmd)

	clientsCmd.AddCommand(clientsListCmd)
	clientsCmd.AddCommand(clientsShowCmd)
	clientsCmd.AddCommand(clientsAddCmd)
	clientsCmd.AddCommand(clientsRemoveCmd)
	clientsCmd.AddCommand(clientsSetQuotaCmd)
	clientsCmd.AddCommand(clientsSetStatusCmd)
	clientsCmd.AddCommand(clientsAssignCmd)
	clientsCmd.AddCommand(clientsUnassignCmd)
	clientsCmd.AddCommand(clientsImportCmd)
	clientsCmd.AddCommand(clientsExportCmd)

	clientsAddCmd.Flags().IntVar(&clientAddQuota, "quota", 0, "session quota (0 = unlimited)")
	clientsAddCmd.Flags().StringVar(&clientAddStatus, "status", string(models.ClientStatusActive), "status (active, warning, blocked)")
	clientsAddCmd.Flags().StringSliceVar(&clientAddInfobases, "infobase", nil, "infobase name to assign (repeatable)")

	clientsImportCmd.Flags().BoolVar(&clientImportUpdate, "update", false, "update quota and status of existing clients")
	clientsImportCmd.Flags().BoolVar(&clientImportDryRun, "dry-run", false, "report changes without writing")

	clientsExportCmd.Flags().StringVar(&clientExportFormat, "format", string(registry.FormatYAML), "output format (yaml, toml)")
}

var clientsCmd = &cobra.Command{
	Use:     "clients",
	Aliases: []string{"client"},
	Short:   "Manage the client registry",
	Long: `Manage client organizations, their session quotas and the infobases
they own. Infobase names are matched case-insensitively.`,
}

var clientsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List clients with their last observed session counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClientRepo(func(ctx context.Context, repo *db.ClientRepository) error {
			clients, err := repo.List(ctx)
			if err != nil {
				return err
			}
			if clients == nil {
				clients = []*models.Client{}
			}
			return WriteOutput(cmd.OutOrStdout(), clientTable(clients))
		})
	},
}

var clientsShowCmd = &cobra.Command{
	Use:   "show <client>",
	Short: "Show one client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClientRepo(func(ctx context.Context, repo *db.ClientRepository) error {
			client, err := findClient(ctx, repo, args[0])
			if err != nil {
				return err
			}
			return WriteOutput(cmd.OutOrStdout(), clientDetail{client})
		})
	},
}

var clientsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := models.ParseClientStatus(clientAddStatus)
		if err != nil {
			return fmt.Errorf("invalid --status %q: %w", clientAddStatus, err)
		}
		client := &models.Client{
			Name:      args[0],
			Quota:     clientAddQuota,
			Status:    status,
			Infobases: clientAddInfobases,
		}
		return withClientRepo(func(ctx context.Context, repo *db.ClientRepository) error {
			if err := repo.Create(ctx, client); err != nil {
				return err
			}
			return writeClientResult(cmd, client, "Added client %s", client.Name)
		})
	},
}

var clientsRemoveCmd = &cobra.Command{
	Use:     "remove <client>",
	Aliases: []string{"rm"},
	Short:   "Remove a client and its infobase assignments",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClientRepo(func(ctx context.Context, repo *db.ClientRepository) error {
			client, err := findClient(ctx, repo, args[0])
			if err != nil {
				return err
			}
			if err := repo.Delete(ctx, client.ID); err != nil {
				return err
			}
			return writeClientResult(cmd, client, "Removed client %s", client.Name)
		})
	},
}

var clientsSetQuotaCmd = &cobra.Command{
	Use:   "set-quota <client> <quota>",
	Short: "Change a client's session quota (0 = unlimited)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		quota, err := strconv.Atoi(strings.TrimSpace(args[1]))
		if err != nil || quota < 0 {
			return fmt.Errorf("invalid quota %q: must be a non-negative integer", args[1])
		}
		return withClientRepo(func(ctx context.Context, repo *db.ClientRepository) error {
			client, err := findClient(ctx, repo, args[0])
			if err != nil {
				return err
			}
			client.Quota = quota
			if err := repo.Update(ctx, client); err != nil {
				return err
			}
			return writeClientResult(cmd, client, "Quota of %s set to %s", client.Name, quotaLabel(quota))
		})
	},
}

var clientsSetStatusCmd = &cobra.Command{
	Use:   "set-status <client> <active|warning|blocked>",
	Short: "Change a client's status",
	Long: `Change a client's status. Blocked clients lose every session on the
next cycle while kill mode is on.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := models.ParseClientStatus(args[1])
		if err != nil {
			return fmt.Errorf("invalid status %q: %w", args[1], err)
		}
		return withClientRepo(func(ctx context.Context, repo *db.ClientRepository) error {
			client, err := findClient(ctx, repo, args[0])
			if err != nil {
				return err
			}
			client.Status = status
			if err := repo.Update(ctx, client); err != nil {
				return err
			}
			return writeClientResult(cmd, client, "Status of %s set to %s", client.Name, status)
		})
	},
}

var clientsAssignCmd = &cobra.Command{
	Use:   "assign <client> <infobase>...",
	Short: "Assign infobases to a client",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClientRepo(func(ctx context.Context, repo *db.ClientRepository) error {
			client, err := findClient(ctx, repo, args[0])
			if err != nil {
				return err
			}
			for _, name := range args[1:] {
				if err := repo.AssignInfobase(ctx, client.ID, name); err != nil {
					return fmt.Errorf("assign '%s': %w", name, err)
				}
			}
			updated, err := repo.Get(ctx, client.ID)
			if err != nil {
				return err
			}
			return writeClientResult(cmd, updated, "Assigned %d infobase(s) to %s", len(args)-1, client.Name)
		})
	},
}

var clientsUnassignCmd = &cobra.Command{
	Use:   "unassign <client> <infobase>...",
	Short: "Remove infobases from a client",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClientRepo(func(ctx context.Context, repo *db.ClientRepository) error {
			client, err := findClient(ctx, repo, args[0])
			if err != nil {
				return err
			}
			for _, name := range args[1:] {
				if err := repo.UnassignInfobase(ctx, client.ID, name); err != nil {
					return fmt.Errorf("unassign '%s': %w", name, err)
				}
			}
			updated, err := repo.Get(ctx, client.ID)
			if err != nil {
				return err
			}
			return writeClientResult(cmd, updated, "Removed %d infobase(s) from %s", len(args)-1, client.Name)
		})
	},
}

var clientsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import clients from a YAML or TOML file",
	Long: `Import clients from a YAML or TOML file:

  clients:
    - name: Acme
      quota: 10
      status: active
      infobases: [acme_buh, acme_zup]

Existing clients are skipped unless --update is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clients, err := registry.LoadFile(args[0])
		if err != nil {
			return err
		}
		return withClientRepo(func(ctx context.Context, repo *db.ClientRepository) error {
			result, err := registry.Import(ctx, repo, clients, registry.ImportOptions{
				Update: clientImportUpdate,
				DryRun: clientImportDryRun,
			})
			if result != nil {
				if werr := WriteOutput(cmd.OutOrStdout(), importView{result, clientImportDryRun}); werr != nil {
					return werr
				}
			}
			return err
		})
	},
}

var clientsExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the registry in import file format",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := registry.Format(strings.ToLower(clientExportFormat))
		if len(args) == 1 && !cmd.Flags().Changed("format") {
			detected, err := registry.FormatFromPath(args[0])
			if err != nil {
				return err
			}
			format = detected
		}

		return withClientRepo(func(ctx context.Context, repo *db.ClientRepository) error {
			clients, err := repo.List(ctx)
			if err != nil {
				return err
			}
			data, err := registry.Marshal(registry.FromClients(clients), format)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", args[0], err)
			}
			cmd.Printf("Exported %d client(s) to %s\n", len(clients), args[0])
			return nil
		})
	},
}

func withClientRepo(fn func(ctx context.Context, repo *db.ClientRepository) error) error {
	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(context.Background(), db.NewClientRepository(database))
}

// findClient resolves a client by name (case-insensitive) or ID.
func findClient(ctx context.Context, repo *db.ClientRepository, ref string) (*models.Client, error) {
	client, err := repo.GetByName(ctx, ref)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, db.ErrClientNotFound) {
		return nil, err
	}
	client, err = repo.Get(ctx, ref)
	if errors.Is(err, db.ErrClientNotFound) {
		return nil, fmt.Errorf("client '%s' not found: %w", ref, db.ErrClientNotFound)
	}
	return client, err
}

func writeClientResult(cmd *cobra.Command, client *models.Client, format string, args ...any) error {
	formatter := NewFormatter(cmd.OutOrStdout())
	if formatter.Structured() {
		return formatter.Write(client)
	}
	cmd.Printf(format+"\n", args...)
	return nil
}

func quotaLabel(quota int) string {
	if quota == 0 {
		return "unlimited"
	}
	return strconv.Itoa(quota)
}

type clientTable []*models.Client

func (t clientTable) RenderHuman(out io.Writer) error {
	if len(t) == 0 {
		fmt.Fprintln(out, colorize("No clients registered", styleMuted))
		return nil
	}
	w := newTable(out)
	fmt.Fprintln(w, "NAME\tSTATUS\tSESSIONS\tQUOTA\tINFOBASES")
	for _, c := range t {
		sessions := strconv.Itoa(c.ActiveSessions)
		if !c.Unlimited() && c.ActiveSessions > c.Quota {
			sessions = colorize(sessions, styleWarning)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.Name,
			colorize(string(c.Status), statusStyle(string(c.Status))),
			sessions,
			quotaLabel(c.Quota),
			orDash(strings.Join(c.Infobases, ", ")),
		)
	}
	return w.Flush()
}

type clientDetail struct {
	*models.Client
}

func (d clientDetail) RenderHuman(out io.Writer) error {
	c := d.Client
	fmt.Fprintf(out, "%s %s\n", colorize(c.Name, styleTitle), colorize("("+c.ID+")", styleMuted))
	fmt.Fprintf(out, "  status:    %s\n", colorize(string(c.Status), statusStyle(string(c.Status))))
	fmt.Fprintf(out, "  quota:     %s\n", quotaLabel(c.Quota))
	fmt.Fprintf(out, "  sessions:  %d\n", c.ActiveSessions)
	fmt.Fprintf(out, "  updated:   %s\n", formatTimestamp(c.UpdatedAt))
	if len(c.Infobases) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	w := newTable(out)
	fmt.Fprintln(w, "INFOBASE\tSESSIONS")
	for _, ib := range c.Infobases {
		fmt.Fprintf(w, "%s\t%d\n", ib, c.InfobaseSessions[ib])
	}
	return w.Flush()
}

type importView struct {
	*registry.ImportResult
	dryRun bool
}

func (v importView) RenderHuman(out io.Writer) error {
	prefix := ""
	if v.dryRun {
		prefix = "(dry run) "
	}
	fmt.Fprintf(out, "%sCreated: %d, updated: %d, skipped: %d, infobases assigned: %d\n",
		prefix, len(v.Created), len(v.Updated), len(v.Skipped), v.Assigned)
	for _, name := range v.Skipped {
		fmt.Fprintf(out, "  %s %s\n", colorize("skipped", styleMuted), name)
	}
	return nil
}
