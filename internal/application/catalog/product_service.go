package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/inventory"
	"github.com/erp/catalog-engine/internal/domain/routing"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductService is the catalog write coordinator. Every write runs in one
// transaction spanning products, inventory, page routes and the outbox;
// search projection and notifications follow from the outbox after commit.
type ProductService struct {
	scope           TransactionScope
	products        catalog.ProductRepository
	categories      catalog.CategoryRepository
	currencies      catalog.CurrencyRepository
	ledger          inventory.Ledger
	routes          routing.Registry
	media           MediaStorage
	dispatcher      EventDispatcher
	defaultCurrency string
	logger          *zap.Logger

	// async runs fire-and-forget work after commit
	async func(func())
}

// ProductServiceDeps groups the collaborators of ProductService
type ProductServiceDeps struct {
	Scope           TransactionScope
	Products        catalog.ProductRepository
	Categories      catalog.CategoryRepository
	Currencies      catalog.CurrencyRepository
	Ledger          inventory.Ledger
	Routes          routing.Registry
	Media           MediaStorage
	Dispatcher      EventDispatcher
	DefaultCurrency string
	Logger          *zap.Logger
}

// NewProductService creates a new ProductService
func NewProductService(deps ProductServiceDeps) *ProductService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{
		scope:           deps.Scope,
		products:        deps.Products,
		categories:      deps.Categories,
		currencies:      deps.Currencies,
		ledger:          deps.Ledger,
		routes:          deps.Routes,
		media:           deps.Media,
		dispatcher:      deps.Dispatcher,
		defaultCurrency: strings.ToLower(deps.DefaultCurrency),
		logger:          logger,
		async:           func(f func()) { go f() },
	}
}

// CreateProduct creates a product with its inventory records and routes
func (s *ProductService) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	if err := validateRequest(input.Name, input.CategoryIDs, input.Variants, false); err != nil {
		return nil, err
	}
	tree, err := s.categoryTree(ctx, input.CategoryIDs)
	if err != nil {
		return nil, err
	}
	rates, err := s.rates(ctx, input.Variants)
	if err != nil {
		return nil, err
	}

	var (
		productID int64
		promoted  []string
		uploads   []string
	)
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := ensureSlugsFree(ctx, repos.Routes(), input.Variants, 0); err != nil {
			return err
		}

		id, err := repos.Counters().Next(ctx, shared.CounterProduct, 1)
		if err != nil {
			return fmt.Errorf("allocate product id: %w", err)
		}
		product, err := catalog.NewProduct(id, input.Name)
		if err != nil {
			return err
		}
		product.Enabled = input.Enabled
		product.Attributes = toAttributes(input.Attributes)

		if err := assignMemberships(ctx, repos.Products(), product, input.CategoryIDs); err != nil {
			return err
		}
		if product.Breadcrumbs, err = catalog.BuildBreadcrumbs(product.Categories, tree); err != nil {
			return err
		}

		skus, err := allocateSKUs(ctx, repos.Counters(), input.Variants, nil)
		if err != nil {
			return err
		}
		for i, in := range input.Variants {
			v := newVariant(in, skus[i], i)
			v.ApplyRate(rates[v.Currency])
			media, tmp, err := s.promoteMedia(ctx, id, in.Media, &promoted)
			if err != nil {
				return err
			}
			v.Media = media
			uploads = append(uploads, tmp...)
			product.Variants = append(product.Variants, v)
		}
		if err := product.ValidateVariants(); err != nil {
			return err
		}

		for i, v := range product.Variants {
			if err := repos.Ledger().CreateInventory(ctx, v.SKU, id, quantityOf(input.Variants[i])); err != nil {
				return err
			}
			if err := repos.Routes().Register(ctx, v.Slug, routing.PageTypeProduct, id); err != nil {
				return err
			}
		}

		if product.EnforceAvailability() {
			product.AppendAudit("disabled: no enabled variants")
		}
		product.AppendAudit("created with %d variant(s)", len(product.Variants))
		if err := repos.Products().Save(ctx, product); err != nil {
			return err
		}
		productID = id
		return repos.Events().SaveEvents(ctx, catalog.NewProductCreatedEvent(product))
	})
	if err != nil {
		s.compensateMedia(ctx, promoted)
		return nil, err
	}

	s.afterCommit(ctx, uploads)
	s.logger.Info("product created", zap.Int64("product_id", productID))
	return s.GetProduct(ctx, productID)
}

// UpdateProduct applies the full requested state to an existing product
func (s *ProductService) UpdateProduct(ctx context.Context, id int64, input UpdateProductInput) (*ProductDTO, error) {
	if err := validateRequest(input.Name, input.CategoryIDs, input.Variants, true); err != nil {
		return nil, err
	}
	tree, err := s.categoryTree(ctx, input.CategoryIDs)
	if err != nil {
		return nil, err
	}
	rates, err := s.rates(ctx, input.Variants)
	if err != nil {
		return nil, err
	}

	var (
		promoted []string
		obsolete []string
	)
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		product, err := repos.Products().FindByID(ctx, id)
		if err != nil {
			return err
		}

		existing := make(map[int64]catalog.Variant, len(product.Variants))
		for _, v := range product.Variants {
			existing[v.SKU] = v
		}
		for _, in := range input.Variants {
			if in.SKU != nil {
				if _, ok := existing[*in.SKU]; !ok {
					return shared.NewValidationError("SKU %d does not belong to product %d", *in.SKU, id)
				}
			}
		}
		if err := ensureSlugsFree(ctx, repos.Routes(), input.Variants, id); err != nil {
			return err
		}

		skus, err := allocateSKUs(ctx, repos.Counters(), input.Variants, existing)
		if err != nil {
			return err
		}

		var (
			changes []string
			renames [][2]string
			added   []int64
		)
		kept := make(map[int64]struct{}, len(input.Variants))
		requested := make(map[string]struct{}, len(input.Variants))
		for _, in := range input.Variants {
			requested[in.Slug] = struct{}{}
		}
		variants := make([]catalog.Variant, 0, len(input.Variants))
		for i, in := range input.Variants {
			v := newVariant(in, skus[i], i)
			v.ApplyRate(rates[v.Currency])
			media, tmp, err := s.promoteMedia(ctx, id, in.Media, &promoted)
			if err != nil {
				return err
			}
			v.Media = media
			obsolete = append(obsolete, tmp...)

			old, retained := existing[v.SKU]
			if !retained {
				if err := repos.Ledger().CreateInventory(ctx, v.SKU, id, quantityOf(in)); err != nil {
					return err
				}
				if err := repos.Routes().Register(ctx, v.Slug, routing.PageTypeProduct, id); err != nil {
					return err
				}
				added = append(added, v.SKU)
				changes = append(changes, fmt.Sprintf("variant %d added", v.SKU))
				variants = append(variants, v)
				continue
			}

			kept[v.SKU] = struct{}{}
			v.SalesCount = old.SalesCount
			if in.Quantity != nil {
				if err := syncQuantity(ctx, repos.Ledger(), id, v.SKU, *in.Quantity); err != nil {
					return err
				}
			}
			if old.Slug != v.Slug {
				renames = append(renames, [2]string{old.Slug, v.Slug})
				changes = append(changes, fmt.Sprintf("variant %d slug %s -> %s", v.SKU, old.Slug, v.Slug))
			}
			obsolete = append(obsolete, droppedMedia(old.Media, v.Media)...)
			variants = append(variants, v)
		}

		// Redirect every renamed slug before claiming the new ones so swaps
		// between variants end with both slugs live.
		for _, r := range renames {
			if err := repos.Routes().Redirect(ctx, r[0], r[1]); err != nil {
				return err
			}
		}
		for _, r := range renames {
			if err := repos.Routes().Register(ctx, r[1], routing.PageTypeProduct, id); err != nil {
				return err
			}
		}

		var removed []int64
		for _, old := range product.Variants {
			if _, ok := kept[old.SKU]; ok {
				continue
			}
			if err := repos.Ledger().Delete(ctx, old.SKU); err != nil {
				return err
			}
			if _, reused := requested[old.Slug]; !reused {
				if err := repos.Routes().Remove(ctx, old.Slug); err != nil {
					return err
				}
			}
			obsolete = append(obsolete, old.Media...)
			removed = append(removed, old.SKU)
			changes = append(changes, fmt.Sprintf("variant %d removed", old.SKU))
		}

		product.Variants = variants
		if err := product.ValidateVariants(); err != nil {
			return err
		}
		if err := product.Rename(input.Name); err != nil {
			return err
		}
		product.Enabled = input.Enabled
		product.Attributes = toAttributes(input.Attributes)

		membershipsChanged, err := reconcileMemberships(ctx, repos.Products(), product, input.CategoryIDs)
		if err != nil {
			return err
		}
		if membershipsChanged || len(product.Breadcrumbs) != len(product.Categories) {
			if product.Breadcrumbs, err = catalog.BuildBreadcrumbs(product.Categories, tree); err != nil {
				return err
			}
			changes = append(changes, "categories changed")
		}

		if product.EnforceAvailability() {
			changes = append(changes, "disabled: no enabled variants")
		}
		if len(changes) == 0 {
			changes = append(changes, "fields updated")
		}
		product.AppendAudit("updated: %s", strings.Join(changes, "; "))
		product.MarkSaved()
		if err := repos.Products().Save(ctx, product); err != nil {
			return err
		}
		return repos.Events().SaveEvents(ctx, catalog.NewProductUpdatedEvent(product, added, removed))
	})
	if err != nil {
		s.compensateMedia(ctx, promoted)
		return nil, err
	}

	s.afterCommit(ctx, obsolete)
	s.logger.Info("product updated", zap.Int64("product_id", id))
	return s.GetProduct(ctx, id)
}

// DeleteProduct removes a product with its inventory, routes and reviews
func (s *ProductService) DeleteProduct(ctx context.Context, id int64) error {
	var media []string
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		product, err := repos.Products().FindByID(ctx, id)
		if err != nil {
			return err
		}
		for _, v := range product.Variants {
			if err := repos.Ledger().Delete(ctx, v.SKU); err != nil {
				return err
			}
			media = append(media, v.Media...)
		}
		if err := repos.Routes().RemoveEntity(ctx, routing.PageTypeProduct, id); err != nil {
			return err
		}
		reviews, err := repos.Reviews().DeleteByProduct(ctx, id)
		if err != nil {
			return err
		}
		if err := repos.Products().Delete(ctx, id); err != nil {
			return err
		}
		s.logger.Debug("product delete cascaded",
			zap.Int64("product_id", id),
			zap.Int("variants", len(product.Variants)),
			zap.Int64("reviews", reviews),
		)
		return repos.Events().SaveEvents(ctx, catalog.NewProductDeletedEvent(product))
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, media)
	s.logger.Info("product deleted", zap.Int64("product_id", id))
	return nil
}

// GetProduct returns a product with its stock figures
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*ProductDTO, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	records, err := s.ledger.FindBySKUs(ctx, product.SKUs())
	if err != nil {
		return nil, err
	}
	dto := ToProductDTO(product, records)
	return &dto, nil
}

// GetBySlug resolves a public slug. Redirect routes yield RedirectTo.
func (s *ProductService) GetBySlug(ctx context.Context, slug string) (*SlugLookup, error) {
	route, err := s.routes.Resolve(ctx, slug)
	if err != nil {
		return nil, err
	}
	if route.IsRedirect() {
		return &SlugLookup{RedirectTo: route.RedirectTo}, nil
	}
	if route.PageType != routing.PageTypeProduct {
		return nil, shared.NewNotFoundError("no product at %q", slug)
	}
	product, err := s.GetProduct(ctx, route.EntityID)
	if err != nil {
		return nil, err
	}
	if !product.Enabled {
		return nil, shared.NewNotFoundError("no product at %q", slug)
	}
	product.AuditLog = nil
	return &SlugLookup{Product: product}, nil
}

// ListProducts returns a page of products straight from catalog storage
func (s *ProductService) ListProducts(ctx context.Context, filter shared.Filter) (*shared.Paginated[ProductDTO], error) {
	products, err := s.products.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.products.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	var skus []int64
	for _, p := range products {
		skus = append(skus, p.SKUs()...)
	}
	records, err := s.ledger.FindBySKUs(ctx, skus)
	if err != nil {
		return nil, err
	}

	items := make([]ProductDTO, len(products))
	for i, p := range products {
		items[i] = ToProductDTO(p, records)
		items[i].AuditLog = nil
	}
	page := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &page, nil
}

func syncQuantity(ctx context.Context, ledger inventory.Ledger, productID, sku, qty int64) error {
	current, err := ledger.Get(ctx, sku)
	if err != nil {
		if !shared.IsNotFound(err) {
			return err
		}
		return ledger.CreateInventory(ctx, sku, productID, qty)
	}
	if current.Quantity == qty {
		return nil
	}
	return ledger.SetQuantity(ctx, sku, qty)
}

func (s *ProductService) categoryTree(ctx context.Context, ids []int64) (*catalog.CategoryTree, error) {
	if len(ids) == 0 {
		return catalog.NewCategoryTree(nil), nil
	}
	all, err := s.categories.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	tree := catalog.NewCategoryTree(all)
	for _, id := range ids {
		if _, ok := tree.Get(id); !ok {
			return nil, shared.NewNotFoundError("category %d not found", id)
		}
	}
	return tree, nil
}

// rates resolves the exchange rate of every currency used by the request
func (s *ProductService) rates(ctx context.Context, variants []VariantInput) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal)
	for _, v := range variants {
		code := strings.ToLower(v.Currency)
		if _, done := rates[code]; done {
			continue
		}
		if code == s.defaultCurrency {
			rates[code] = decimal.NewFromInt(1)
			continue
		}
		c, err := s.currencies.FindByCode(ctx, code)
		if err != nil {
			if shared.IsNotFound(err) {
				return nil, shared.NewValidationError("unknown currency %q", v.Currency)
			}
			return nil, err
		}
		rates[code] = c.Rate
	}
	return rates, nil
}

// promoteMedia moves tmp uploads under the product. Promoted copies are
// recorded in promoted for compensation; the tmp sources are returned so
// they can be removed once the write commits.
func (s *ProductService) promoteMedia(ctx context.Context, productID int64, keys []string, promoted *[]string) ([]string, []string, error) {
	out := make([]string, 0, len(keys))
	var sources []string
	for _, key := range keys {
		if !IsTmpMedia(key) || s.media == nil {
			out = append(out, key)
			continue
		}
		dst, err := s.media.Promote(ctx, productID, key)
		if err != nil {
			return nil, nil, fmt.Errorf("promote media %s: %w", key, err)
		}
		*promoted = append(*promoted, dst)
		sources = append(sources, key)
		out = append(out, dst)
	}
	return out, sources, nil
}

// compensateMedia removes media promoted by a write that rolled back.
// Failures are logged and left for the storage lifecycle rules.
func (s *ProductService) compensateMedia(ctx context.Context, keys []string) {
	if len(keys) == 0 || s.media == nil {
		return
	}
	if err := s.media.Delete(context.WithoutCancel(ctx), keys...); err != nil {
		s.logger.Warn("media compensation failed",
			zap.Strings("keys", keys),
			zap.Error(err),
		)
	}
}

func (s *ProductService) afterCommit(ctx context.Context, obsoleteMedia []string) {
	if s.dispatcher != nil {
		s.dispatcher.Trigger()
	}
	if len(obsoleteMedia) == 0 || s.media == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	s.async(func() {
		if err := s.media.Delete(bg, obsoleteMedia...); err != nil {
			s.logger.Warn("media cleanup failed",
				zap.Strings("keys", obsoleteMedia),
				zap.Error(err),
			)
		}
	})
}

// validateRequest runs every input check that needs no storage access
func validateRequest(name catalog.LocalizedText, categoryIDs []int64, variants []VariantInput, allowSKU bool) error {
	if name.IsBlank() {
		return shared.NewValidationError("product name cannot be empty")
	}
	if len(variants) == 0 {
		return shared.NewValidationError("at least one variant is required")
	}

	seenCategory := make(map[int64]struct{}, len(categoryIDs))
	for _, id := range categoryIDs {
		if _, dup := seenCategory[id]; dup {
			return shared.NewValidationError("duplicate category %d", id)
		}
		seenCategory[id] = struct{}{}
	}

	seenSlug := make(map[string]struct{}, len(variants))
	seenSKU := make(map[int64]struct{}, len(variants))
	for _, v := range variants {
		if v.SKU != nil {
			if !allowSKU {
				return shared.NewValidationError("SKUs are allocated by the catalog")
			}
			if _, dup := seenSKU[*v.SKU]; dup {
				return shared.NewValidationError("duplicate SKU %d", *v.SKU)
			}
			seenSKU[*v.SKU] = struct{}{}
		}
		if _, dup := seenSlug[v.Slug]; dup {
			return shared.NewValidationError("duplicate slug %q", v.Slug)
		}
		seenSlug[v.Slug] = struct{}{}
		if v.Price.IsNegative() || (v.OldPrice != nil && v.OldPrice.IsNegative()) {
			return shared.NewValidationError("price of %q cannot be negative", v.Slug)
		}
		if v.Quantity != nil && *v.Quantity < 0 {
			return shared.NewValidationError("quantity of %q cannot be negative", v.Slug)
		}
	}
	return nil
}

func ensureSlugsFree(ctx context.Context, routes routing.Registry, variants []VariantInput, productID int64) error {
	slugs := make([]string, len(variants))
	for i, v := range variants {
		slugs[i] = v.Slug
	}
	taken, err := routes.TakenBy(ctx, slugs, routing.PageTypeProduct, productID)
	if err != nil {
		return err
	}
	if len(taken) > 0 {
		return shared.NewConflictError("slug %q is already in use", taken[0].Slug)
	}
	return nil
}

// allocateSKUs returns the SKU of every requested variant, drawing one
// batch from the counter for the variants that have none
func allocateSKUs(ctx context.Context, counters shared.CounterAllocator, variants []VariantInput, existing map[int64]catalog.Variant) ([]int64, error) {
	skus := make([]int64, len(variants))
	missing := 0
	for i, v := range variants {
		if v.SKU != nil {
			skus[i] = *v.SKU
			continue
		}
		missing++
	}
	if missing == 0 {
		return skus, nil
	}

	next, err := counters.Next(ctx, shared.CounterSKU, missing)
	if err != nil {
		return nil, fmt.Errorf("allocate skus: %w", err)
	}
	for i := range skus {
		if skus[i] != 0 {
			continue
		}
		if _, clash := existing[next]; clash {
			return nil, errors.New("sku counter returned an SKU already owned by the product")
		}
		skus[i] = next
		next++
	}
	return skus, nil
}

// assignMemberships places a new product at the top of each category
func assignMemberships(ctx context.Context, products catalog.ProductRepository, p *catalog.Product, categoryIDs []int64) error {
	p.Categories = make([]catalog.CategoryMembership, 0, len(categoryIDs))
	for _, id := range categoryIDs {
		m, err := topMembership(ctx, products, id)
		if err != nil {
			return err
		}
		p.Categories = append(p.Categories, m)
	}
	return nil
}

// reconcileMemberships keeps existing memberships untouched, drops the
// unrequested ones and adds new ones at the top of their category
func reconcileMemberships(ctx context.Context, products catalog.ProductRepository, p *catalog.Product, categoryIDs []int64) (bool, error) {
	current := make(map[int64]catalog.CategoryMembership, len(p.Categories))
	for _, m := range p.Categories {
		current[m.CategoryID] = m
	}

	changed := len(categoryIDs) != len(p.Categories)
	next := make([]catalog.CategoryMembership, 0, len(categoryIDs))
	for i, id := range categoryIDs {
		if m, ok := current[id]; ok {
			if i >= len(p.Categories) || p.Categories[i].CategoryID != id {
				changed = true
			}
			next = append(next, m)
			continue
		}
		m, err := topMembership(ctx, products, id)
		if err != nil {
			return false, err
		}
		next = append(next, m)
		changed = true
	}
	p.Categories = next
	return changed, nil
}

func topMembership(ctx context.Context, products catalog.ProductRepository, categoryID int64) (catalog.CategoryMembership, error) {
	if err := products.LockCategory(ctx, categoryID); err != nil {
		return catalog.CategoryMembership{}, err
	}
	top, err := products.MaxSortOrder(ctx, categoryID)
	if err != nil {
		return catalog.CategoryMembership{}, err
	}
	return catalog.CategoryMembership{CategoryID: categoryID, ReversedSortOrder: top + 1}, nil
}

func newVariant(in VariantInput, sku int64, position int) catalog.Variant {
	return catalog.Variant{
		SKU:        sku,
		Slug:       in.Slug,
		Price:      in.Price,
		OldPrice:   in.OldPrice,
		Currency:   strings.ToLower(in.Currency),
		Enabled:    in.Enabled,
		Media:      append([]string{}, in.Media...),
		Attributes: toAttributes(in.Attributes),
		Position:   position,
	}
}

func quantityOf(in VariantInput) int64 {
	if in.Quantity == nil {
		return 0
	}
	return *in.Quantity
}

func droppedMedia(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, k := range after {
		keep[k] = struct{}{}
	}
	var out []string
	for _, k := range before {
		if _, ok := keep[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
