package catalog

import (
	"strconv"

	"github.com/erp/catalog-engine/internal/domain/search"
)

// ProductIndex is the search collection holding product documents
const ProductIndex = "products"

// Script names understood by every sink implementation
const (
	ScriptReprice = "reprice"
)

// ProductSearchSchema is the field layout of ProductIndex
var ProductSearchSchema = search.Schema{Fields: map[string]search.FieldType{
	"id":                                 search.FieldLong,
	"name":                               search.FieldObject,
	"enabled":                            search.FieldBool,
	"salesCount":                         search.FieldLong,
	"viewCount":                          search.FieldLong,
	"inStock":                            search.FieldBool,
	"categories":                         search.FieldNested,
	"categories.categoryId":              search.FieldLong,
	"categories.reversedSortOrder":       search.FieldLong,
	"categories.isSortOrderFixed":        search.FieldBool,
	"variants":                           search.FieldNested,
	"variants.sku":                       search.FieldLong,
	"variants.slug":                      search.FieldKeyword,
	"variants.currency":                  search.FieldKeyword,
	"variants.price":                     search.FieldDouble,
	"variants.oldPrice":                  search.FieldDouble,
	"variants.priceInDefaultCurrency":    search.FieldDouble,
	"variants.oldPriceInDefaultCurrency": search.FieldDouble,
	"variants.enabled":                   search.FieldBool,
	"variants.available":                 search.FieldLong,
	"attributes":                         search.FieldNested,
	"attributes.attributeId":             search.FieldLong,
	"attributes.valueIds":                search.FieldLong,
	"breadcrumbs":                        search.FieldObject,
}}

// DocumentID returns the stable search document id of a product
func DocumentID(productID int64) string {
	return strconv.FormatInt(productID, 10)
}

// BuildSearchDocument denormalizes a product and its available stock per
// SKU into a search document. Missing SKUs in available count as zero.
func BuildSearchDocument(p *Product, available map[int64]int64) search.Document {
	categories := make([]map[string]any, len(p.Categories))
	for i, m := range p.Categories {
		categories[i] = map[string]any{
			"categoryId":        m.CategoryID,
			"reversedSortOrder": m.ReversedSortOrder,
			"isSortOrderFixed":  m.IsSortOrderFixed,
		}
	}

	inStock := false
	variants := make([]map[string]any, len(p.Variants))
	for i, v := range p.Variants {
		qty := available[v.SKU]
		if v.Enabled && qty > 0 {
			inStock = true
		}
		doc := map[string]any{
			"sku":                       v.SKU,
			"slug":                      v.Slug,
			"currency":                  v.Currency,
			"price":                     v.Price.InexactFloat64(),
			"oldPrice":                  nil,
			"priceInDefaultCurrency":    v.PriceInDefaultCurrency.InexactFloat64(),
			"oldPriceInDefaultCurrency": nil,
			"enabled":                   v.Enabled,
			"available":                 qty,
			"media":                     append([]string{}, v.Media...),
		}
		if v.OldPrice != nil {
			doc["oldPrice"] = v.OldPrice.InexactFloat64()
		}
		if v.OldPriceInDefaultCurrency != nil {
			doc["oldPriceInDefaultCurrency"] = v.OldPriceInDefaultCurrency.InexactFloat64()
		}
		variants[i] = doc
	}

	attributes := make([]map[string]any, len(p.Attributes))
	for i, a := range p.Attributes {
		attributes[i] = map[string]any{
			"attributeId": a.AttributeID,
			"valueIds":    append([]int64{}, a.ValueIDs...),
		}
	}

	breadcrumbs := make([]BreadcrumbsVariant, 0, 1)
	for _, b := range p.Breadcrumbs {
		if b.Active {
			breadcrumbs = append(breadcrumbs, b)
		}
	}

	return search.Document{
		ID: DocumentID(p.ID),
		Body: map[string]any{
			"id":          p.ID,
			"name":        map[string]string(p.Name.Clone()),
			"enabled":     p.Enabled,
			"salesCount":  p.SalesCount,
			"viewCount":   p.ViewCount,
			"inStock":     inStock,
			"categories":  categories,
			"variants":    variants,
			"attributes":  attributes,
			"breadcrumbs": breadcrumbs,
		},
	}
}

// CategoryListingQuery builds the storefront listing query for a category:
// enabled products ordered by the category's reversed sort order.
func CategoryListingQuery(categoryID int64, skip, limit int, extra ...search.Filter) search.Query {
	filters := []search.Filter{
		{Field: "enabled", Op: search.OpEq, Value: true},
		{Field: "categories.categoryId", Op: search.OpEq, Value: categoryID},
	}
	filters = append(filters, extra...)
	return search.Query{
		Filters: filters,
		Skip:    skip,
		Limit:   limit,
		Sort:    []search.Sort{{Field: "categories.reversedSortOrder", Desc: true}},
		SortFilterOverride: []search.Filter{
			{Field: "categories.categoryId", Op: search.OpEq, Value: categoryID},
		},
	}
}

// RepriceScript re-derives default-currency prices of every variant quoted
// in currency. Sinks that cannot run Source dispatch on the script name.
// The script computes in floating point and may round one unit above the
// stored price; PricesReprojected reprojects the repriced products from
// storage afterwards.
func RepriceScript(currency string, rate float64) search.Script {
	return search.Script{
		Name: ScriptReprice,
		Source: `for (v in ctx._source.variants) {
  if (v.currency == params.currency) {
    v.priceInDefaultCurrency = Math.ceil(v.price * params.rate);
    if (v.oldPrice != null) { v.oldPriceInDefaultCurrency = Math.ceil(v.oldPrice * params.rate); }
  }
}`,
		Params: map[string]any{"currency": currency, "rate": rate},
	}
}

// RepriceFilter selects documents holding at least one variant in currency
func RepriceFilter(currency string) []search.Filter {
	return []search.Filter{{Field: "variants.currency", Op: search.OpEq, Value: currency}}
}
