package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/erp/catalog-engine/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// advisoryLockNamespace occupies the top 16 bits of the per-category
// advisory lock key; category ids fill the lower 48
const advisoryLockNamespace int64 = 0x5047

// sortEntriesChunk bounds the rows written by one UPDATE statement
const sortEntriesChunk = 1000

// GormProductRepository implements ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Variants").
		Preload("Memberships", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		})
}

// FindByID finds a product by its ID
func (r *GormProductRepository) FindByID(ctx context.Context, id int64) (*catalog.Product, error) {
	var model models.ProductModel
	if err := r.preloaded(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("product %d not found", id)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs finds multiple products by their IDs. Missing ids are skipped;
// the result follows the order of ids.
func (r *GormProductRepository) FindByIDs(ctx context.Context, ids []int64) ([]*catalog.Product, error) {
	if len(ids) == 0 {
		return []*catalog.Product{}, nil
	}
	var rows []models.ProductModel
	if err := r.preloaded(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]*catalog.Product, len(rows))
	for i := range rows {
		byID[rows[i].ID] = rows[i].ToDomain()
	}
	out := make([]*catalog.Product, 0, len(rows))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
			delete(byID, id)
		}
	}
	return out, nil
}

// FindAll finds products matching the filter
func (r *GormProductRepository) FindAll(ctx context.Context, filter shared.Filter) ([]*catalog.Product, error) {
	var rows []models.ProductModel
	query := r.applyFilter(r.preloaded(ctx).Model(&models.ProductModel{}), filter)
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*catalog.Product, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// FindIDsAfter returns up to limit product ids greater than afterID, ascending
func (r *GormProductRepository) FindIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).
		Model(&models.ProductModel{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// FindByCurrency returns the ids of products having a variant quoted in currency
func (r *GormProductRepository) FindByCurrency(ctx context.Context, currency string) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).
		Model(&models.ProductVariantModel{}).
		Distinct("product_id").
		Where("currency = ?", strings.ToLower(currency)).
		Order("product_id ASC").
		Pluck("product_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Count counts products matching the filter
func (r *GormProductRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.ProductModel{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save creates or updates a product with its variants and memberships.
// The ordering columns of a membership are only written when the
// membership is new; afterwards SaveSortEntries owns them.
func (r *GormProductRepository) Save(ctx context.Context, product *catalog.Product) error {
	db := r.db.WithContext(ctx)

	row := models.ProductModelFromDomain(product)
	if err := db.Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(row).Error; err != nil {
		return fmt.Errorf("save product %d: %w", product.ID, err)
	}

	if err := r.saveVariants(db, product); err != nil {
		return err
	}
	return r.saveMemberships(db, product)
}

func (r *GormProductRepository) saveVariants(db *gorm.DB, product *catalog.Product) error {
	skus := product.SKUs()
	stale := db.Where("product_id = ?", product.ID)
	if len(skus) > 0 {
		stale = stale.Where("sku NOT IN ?", skus)
	}
	if err := stale.Delete(&models.ProductVariantModel{}).Error; err != nil {
		return fmt.Errorf("delete stale variants of product %d: %w", product.ID, err)
	}
	if len(product.Variants) == 0 {
		return nil
	}

	rows := make([]models.ProductVariantModel, len(product.Variants))
	for i, v := range product.Variants {
		rows[i] = models.ProductVariantModelFromDomain(product.ID, v)
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		UpdateAll: true,
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("save variants of product %d: %w", product.ID, err)
	}
	return nil
}

func (r *GormProductRepository) saveMemberships(db *gorm.DB, product *catalog.Product) error {
	ids := product.CategoryIDs()
	stale := db.Where("product_id = ?", product.ID)
	if len(ids) > 0 {
		stale = stale.Where("category_id NOT IN ?", ids)
	}
	if err := stale.Delete(&models.ProductCategoryModel{}).Error; err != nil {
		return fmt.Errorf("delete stale memberships of product %d: %w", product.ID, err)
	}
	if len(product.Categories) == 0 {
		return nil
	}

	rows := make([]models.ProductCategoryModel, len(product.Categories))
	for i, m := range product.Categories {
		rows[i] = models.ProductCategoryModelFromDomain(product.ID, i, m)
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "category_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"position"}),
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("save memberships of product %d: %w", product.ID, err)
	}
	return nil
}

// AppendAudit appends one audit log line without rewriting the product
func (r *GormProductRepository) AppendAudit(ctx context.Context, productID int64, text string) error {
	db := r.db.WithContext(ctx)

	var row models.ProductModel
	if err := db.Select("id", "audit_log").First(&row, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.NewNotFoundError("product %d not found", productID)
		}
		return err
	}

	p := &catalog.Product{AuditLog: row.AuditLog}
	p.AppendAudit("%s", text)

	return db.Model(&models.ProductModel{AggregateModel: models.AggregateModel{ID: productID}}).
		Select("audit_log").
		Updates(&models.ProductModel{AuditLog: p.AuditLog}).Error
}

// Delete deletes a product with its variants and memberships
func (r *GormProductRepository) Delete(ctx context.Context, id int64) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("product_id = ?", id).Delete(&models.ProductCategoryModel{}).Error; err != nil {
		return err
	}
	if err := db.Where("product_id = ?", id).Delete(&models.ProductVariantModel{}).Error; err != nil {
		return err
	}
	result := db.Delete(&models.ProductModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("product %d not found", id)
	}
	return nil
}

// sortEntryRow is the scan target of SortEntries
type sortEntryRow struct {
	ProductID                  int64
	SalesCount                 int64
	ReversedSortOrder          int
	IsSortOrderFixed           bool
	ReversedSortOrderBeforeFix int
}

// SortEntries loads the ordering state of every product in a category
func (r *GormProductRepository) SortEntries(ctx context.Context, categoryID int64) ([]catalog.SortEntry, error) {
	var rows []sortEntryRow
	if err := r.db.WithContext(ctx).
		Table("product_categories AS pc").
		Select("pc.product_id, p.sales_count, pc.reversed_sort_order, pc.is_sort_order_fixed, pc.reversed_sort_order_before_fix").
		Joins("JOIN products AS p ON p.id = pc.product_id").
		Where("pc.category_id = ?", categoryID).
		Order("pc.product_id ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]catalog.SortEntry, len(rows))
	for i, row := range rows {
		entries[i] = catalog.SortEntry{
			ProductID:      row.ProductID,
			SalesCount:     row.SalesCount,
			Order:          row.ReversedSortOrder,
			Fixed:          row.IsSortOrderFixed,
			OrderBeforeFix: row.ReversedSortOrderBeforeFix,
		}
	}
	return entries, nil
}

// SaveSortEntries writes the given ordering state back with CASE updates.
// Only existing memberships are touched, so a membership removed meanwhile
// is not brought back.
func (r *GormProductRepository) SaveSortEntries(ctx context.Context, categoryID int64, entries []catalog.SortEntry) error {
	db := r.db.WithContext(ctx)
	for start := 0; start < len(entries); start += sortEntriesChunk {
		end := min(start+sortEntriesChunk, len(entries))
		if err := saveSortChunk(db, categoryID, entries[start:end]); err != nil {
			return fmt.Errorf("save sort order of category %d: %w", categoryID, err)
		}
	}
	return nil
}

func saveSortChunk(db *gorm.DB, categoryID int64, entries []catalog.SortEntry) error {
	var order, fixed, before strings.Builder
	orderArgs := make([]any, 0, 2*len(entries))
	fixedArgs := make([]any, 0, 2*len(entries))
	beforeArgs := make([]any, 0, 2*len(entries))
	ids := make([]int64, len(entries))

	for i, e := range entries {
		order.WriteString(" WHEN ? THEN CAST(? AS INTEGER)")
		fixed.WriteString(" WHEN ? THEN CAST(? AS BOOLEAN)")
		before.WriteString(" WHEN ? THEN CAST(? AS INTEGER)")
		orderArgs = append(orderArgs, e.ProductID, e.Order)
		fixedArgs = append(fixedArgs, e.ProductID, e.Fixed)
		beforeArgs = append(beforeArgs, e.ProductID, e.OrderBeforeFix)
		ids[i] = e.ProductID
	}

	return db.Model(&models.ProductCategoryModel{}).
		Where("category_id = ? AND product_id IN ?", categoryID, ids).
		Updates(map[string]any{
			"reversed_sort_order":            gorm.Expr("CASE product_id"+order.String()+" END", orderArgs...),
			"is_sort_order_fixed":            gorm.Expr("CASE product_id"+fixed.String()+" END", fixedArgs...),
			"reversed_sort_order_before_fix": gorm.Expr("CASE product_id"+before.String()+" END", beforeArgs...),
		}).Error
}

// MaxSortOrder returns the highest reversed sort order in a category, -1 if empty
func (r *GormProductRepository) MaxSortOrder(ctx context.Context, categoryID int64) (int, error) {
	var top int
	if err := r.db.WithContext(ctx).
		Model(&models.ProductCategoryModel{}).
		Select("COALESCE(MAX(reversed_sort_order), -1)").
		Where("category_id = ?", categoryID).
		Scan(&top).Error; err != nil {
		return 0, err
	}
	return top, nil
}

// CategoryIDsInUse returns every category id that has at least one member
func (r *GormProductRepository) CategoryIDsInUse(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).
		Model(&models.ProductCategoryModel{}).
		Distinct("category_id").
		Order("category_id ASC").
		Pluck("category_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// LockCategory takes a transaction-scoped advisory lock on PostgreSQL.
// SQLite serializes writers on its own, so there it does nothing.
func (r *GormProductRepository) LockCategory(ctx context.Context, categoryID int64) error {
	if !isPostgres(r.db) {
		return nil
	}
	return r.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(?)", categoryLockKey(categoryID)).Error
}

// categoryLockKey maps a category id to its bigint advisory lock key.
// Ids are counter allocated from 1, so they never reach 2^48.
func categoryLockKey(categoryID int64) int64 {
	return advisoryLockNamespace<<48 | categoryID&(1<<48-1)
}

// applyFilter applies filter options to the query
func (r *GormProductRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	orderBy := ValidateSortField(filter.OrderBy, ProductSortFields, "id")
	orderDir := ValidateSortOrder(filter.OrderDir)
	query = query.Order(orderBy + " " + orderDir)
	if orderBy != "id" {
		query = query.Order("id " + orderDir)
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormProductRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		if isPostgres(r.db) {
			query = query.Where("name::text ILIKE ?", pattern)
		} else {
			query = query.Where("LOWER(name) LIKE ?", pattern)
		}
	}

	for key, value := range filter.Filters {
		switch key {
		case "enabled":
			query = query.Where("enabled = ?", value)
		case "category_id":
			query = query.Where("id IN (?)",
				r.db.Model(&models.ProductCategoryModel{}).Select("product_id").Where("category_id = ?", value))
		case "currency":
			query = query.Where("id IN (?)",
				r.db.Model(&models.ProductVariantModel{}).Select("product_id").Where("currency = ?", value))
		}
	}

	return query
}

// Ensure GormProductRepository implements ProductRepository
var _ catalog.ProductRepository = (*GormProductRepository)(nil)
