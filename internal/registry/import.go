package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/sdbsm/1CSessionManager-sub000/internal/db"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
)

// Repository is the registry persistence used by Import.
type Repository interface {
	GetByName(ctx context.Context, name string) (*models.Client, error)
	Create(ctx context.Context, client *models.Client) error
	Update(ctx context.Context, client *models.Client) error
	AssignInfobase(ctx context.Context, clientID, name string) error
}

// ImportOptions controls Import.
type ImportOptions struct {
	// Update changes quota and status of existing clients and assigns
	// missing infobases; otherwise existing clients are skipped.
	Update bool

	// DryRun reports what would change without writing.
	DryRun bool
}

// ImportResult summarizes an import.
type ImportResult struct {
	Created  []string `json:"created"`
	Updated  []string `json:"updated"`
	Skipped  []string `json:"skipped"`
	Assigned int      `json:"assigned_infobases"`
}

// Import applies clients to repo. It stops at the first write error.
func Import(ctx context.Context, repo Repository, clients []*models.Client, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{Created: []string{}, Updated: []string{}, Skipped: []string{}}

	for _, client := range clients {
		existing, err := repo.GetByName(ctx, client.Name)
		switch {
		case errors.Is(err, db.ErrClientNotFound):
			if !opts.DryRun {
				if err := repo.Create(ctx, client); err != nil {
					return result, fmt.Errorf("create client %q: %w", client.Name, err)
				}
			}
			result.Created = append(result.Created, client.Name)
			result.Assigned += len(client.Infobases)
			continue
		case err != nil:
			return result, fmt.Errorf("lookup client %q: %w", client.Name, err)
		}

		if !opts.Update {
			result.Skipped = append(result.Skipped, client.Name)
			continue
		}

		existing.Quota = client.Quota
		existing.Status = client.Status
		var missing []string
		for _, ib := range client.Infobases {
			if !existing.OwnsInfobase(ib) {
				missing = append(missing, ib)
			}
		}

		if !opts.DryRun {
			if err := repo.Update(ctx, existing); err != nil {
				return result, fmt.Errorf("update client %q: %w", client.Name, err)
			}
			for _, ib := range missing {
				if err := repo.AssignInfobase(ctx, existing.ID, ib); err != nil {
					return result, fmt.Errorf("assign %q to %q: %w", ib, client.Name, err)
				}
			}
		}
		result.Updated = append(result.Updated, client.Name)
		result.Assigned += len(missing)
	}
	return result, nil
}
