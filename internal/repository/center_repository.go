package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack/lcm-api/internal/models"
)

// CenterRepository handles persistence of centers.
type CenterRepository struct {
	db *sqlx.DB
}

// NewCenterRepository constructs the repository.
func NewCenterRepository(db *sqlx.DB) *CenterRepository {
	return &CenterRepository{db: db}
}

const centerColumns = `id, name, owner_id, is_active, phone, address, logo_url, created_at, updated_at`

// FindByID returns a center by its ID.
func (r *CenterRepository) FindByID(ctx context.Context, id string) (*models.Center, error) {
	query := fmt.Sprintf(`SELECT %s FROM centers WHERE id = $1`, centerColumns)
	var center models.Center
	if err := r.db.GetContext(ctx, &center, query, id); err != nil {
		return nil, err
	}
	return &center, nil
}

// FindByOwner returns the center owned by the given user.
func (r *CenterRepository) FindByOwner(ctx context.Context, ownerID string) (*models.Center, error) {
	query := fmt.Sprintf(`SELECT %s FROM centers WHERE owner_id = $1`, centerColumns)
	var center models.Center
	if err := r.db.GetContext(ctx, &center, query, ownerID); err != nil {
		return nil, err
	}
	return &center, nil
}

// List returns centers filtered by the provided criteria.
func (r *CenterRepository) List(ctx context.Context, filter models.CenterFilter) ([]models.Center, int, error) {
	base := `FROM centers`
	var conditions []string
	var args []interface{}

	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, centerColumns, base+clause, size, offset)
	var centers []models.Center
	if err := r.db.SelectContext(ctx, &centers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list centers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count centers: %w", err)
	}
	return centers, total, nil
}

// Create persists a new center row.
func (r *CenterRepository) Create(ctx context.Context, center *models.Center) error {
	if center.ID == "" {
		center.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if center.CreatedAt.IsZero() {
		center.CreatedAt = now
	}
	center.UpdatedAt = now
	const query = `INSERT INTO centers (id, name, owner_id, is_active, phone, address, logo_url, created_at, updated_at)
        VALUES (:id, :name, :owner_id, :is_active, :phone, :address, :logo_url, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, center); err != nil {
		return fmt.Errorf("create center: %w", err)
	}
	return nil
}

// Update persists mutable center fields. owner_id is immutable here.
func (r *CenterRepository) Update(ctx context.Context, center *models.Center) error {
	center.UpdatedAt = time.Now().UTC()
	const query = `UPDATE centers SET name = :name, phone = :phone, address = :address, logo_url = :logo_url, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, center); err != nil {
		return fmt.Errorf("update center: %w", err)
	}
	return nil
}

// SetActive flips the activation flag used by the approval workflow.
func (r *CenterRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE centers SET is_active = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set center active: %w", err)
	}
	return nil
}

// Delete removes a center.
func (r *CenterRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM centers WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete center: %w", err)
	}
	return nil
}
