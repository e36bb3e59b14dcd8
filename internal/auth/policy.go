package auth

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

// Policy decides role changes that follow from what a user does.
type Policy struct {
	DB *sql.DB
}

// AfterImport promotes a customer who completed an import to manager.
// It reports whether the role changed. Other roles are left alone.
func (p *Policy) AfterImport(ctx context.Context, userID int64) (bool, error) {
	user, err := store.GetUser(ctx, p.DB, userID)
	if err != nil {
		return false, err
	}
	if user == nil || user.DeletedAt != nil || user.Role != model.RoleCustomer {
		return false, nil
	}

	if err := store.UpdateUserRole(ctx, p.DB, userID, model.RoleManager); err != nil {
		return false, err
	}
	slog.Info("user promoted after import", "user", user.Email, "role", model.RoleManager)
	return true, nil
}
