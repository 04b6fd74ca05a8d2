package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mmdatafocus/catalog_sync/utils"
)

type StockStatus string

const (
	StockStatusInStock    StockStatus = "in_stock"
	StockStatusOutOfStock StockStatus = "out_of_stock"
)

// CatalogItem is a sellable unit keyed by its remote SKU. Items are
// created on first sight of an unseen SKU and are never hard-deleted;
// the orphan sweep only zeroes availability.
type CatalogItem struct {
	ID                int                 `gorm:"primary_key" json:"id"`
	Sku               string              `gorm:"uniqueIndex;size:100;not null" json:"sku" binding:"required"`
	Name              string              `gorm:"size:255;not null" json:"name"`
	Active            *bool               `gorm:"not null;default:true" json:"active"`
	StockQty          int                 `gorm:"not null;default:0" json:"stock_qty"`
	RegularPrice      decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"regular_price"`
	SalePrice         decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"sale_price"`
	StockStatus       StockStatus         `gorm:"type:enum('in_stock','out_of_stock');default:'out_of_stock'" json:"stock_status"`
	Managed           *bool               `gorm:"not null;default:true" json:"managed"`
	LastSyncSessionId string              `gorm:"index;size:64" json:"last_sync_session_id"`
	AttributesJSON    []byte              `gorm:"type:json" json:"attributes"`
	WarehousesJSON    []byte              `gorm:"type:json" json:"warehouses"`
	BranchTerms       []BranchTerm        `gorm:"many2many:catalog_items_link_branch_terms" json:"-"`
	CreatedAt         time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// ItemAttribute is one entry of the item's ordered attribute list.
// A slice (not a map) keeps the remote field order stable.
type ItemAttribute struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// WarehouseStock is one row of the denylist-filtered warehouse
// breakdown. Never persisted standalone.
type WarehouseStock struct {
	Location string `json:"location"`
	Qty      int    `json:"qty"`
}

func EncodeAttributes(attrs []ItemAttribute) []byte {
	b, _ := json.Marshal(attrs)
	return b
}

func DecodeAttributes(raw []byte) []ItemAttribute {
	if len(raw) == 0 {
		return nil
	}
	var attrs []ItemAttribute
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil
	}
	return attrs
}

func EncodeWarehouses(rows []WarehouseStock) []byte {
	b, _ := json.Marshal(rows)
	return b
}

func DecodeWarehouses(raw []byte) []WarehouseStock {
	if len(raw) == 0 {
		return nil
	}
	var rows []WarehouseStock
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil
	}
	return rows
}

// BranchTerm is a display tag for a warehouse/location with available
// stock. Terms are auto-created the first time a name is assigned.
type BranchTerm struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// AttributeTerm is a resolved attribute/value pair shared across items.
type AttributeTerm struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Attribute string    `gorm:"uniqueIndex:idx_attribute_term,priority:1;size:100;not null" json:"attribute"`
	Value     string    `gorm:"uniqueIndex:idx_attribute_term,priority:2;size:255;not null" json:"value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GetCatalogItem serves an item by internal id through the Redis item
// cache. The sync writers invalidate the same key on every mutation,
// so a hit is never staler than the last upsert or sweep.
func GetCatalogItem(ctx context.Context, db *gorm.DB, id int) (*CatalogItem, error) {
	cached, err := utils.RetrieveRedis[CatalogItem](id)
	if err == nil && cached != nil {
		return cached, nil
	}
	var item CatalogItem
	if err := db.WithContext(ctx).Take(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	_ = utils.StoreRedis[CatalogItem](&item, item.ID)
	return &item, nil
}

// FindCatalogItemBySku returns nil without error when the SKU is
// unknown. SKU is the only external identity key; internal ids are
// never used for sync lookups.
func FindCatalogItemBySku(ctx context.Context, db *gorm.DB, sku string) (*CatalogItem, error) {
	var item CatalogItem
	err := db.WithContext(ctx).Where("sku = ?", sku).Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// ResolveAttributeTerm looks up or creates the term row for an
// attribute/value pair and returns its id.
func ResolveAttributeTerm(ctx context.Context, db *gorm.DB, attribute string, value string) (int, error) {
	var term AttributeTerm
	err := db.WithContext(ctx).
		Where("attribute = ? AND value = ?", attribute, value).
		Take(&term).Error
	if err == nil {
		return term.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	term = AttributeTerm{Attribute: attribute, Value: value}
	if err := db.WithContext(ctx).Create(&term).Error; err != nil {
		return 0, err
	}
	return term.ID, nil
}

// BranchTermNames returns the item's currently assigned term names.
func BranchTermNames(ctx context.Context, db *gorm.DB, item *CatalogItem) ([]string, error) {
	var terms []BranchTerm
	if err := db.WithContext(ctx).Model(item).Association("BranchTerms").Find(&terms); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(terms))
	for _, t := range terms {
		names = append(names, t.Name)
	}
	return names, nil
}

// ReplaceBranchTerms swaps the item's term assignment with the given
// names, creating unseen terms on the fly. Callers are expected to
// diff first and skip the call when nothing changed.
func ReplaceBranchTerms(ctx context.Context, db *gorm.DB, item *CatalogItem, names []string) error {
	terms := make([]BranchTerm, 0, len(names))
	for _, name := range names {
		var term BranchTerm
		err := db.WithContext(ctx).Where("name = ?", name).Take(&term).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			term = BranchTerm{Name: name}
			if err := db.WithContext(ctx).Create(&term).Error; err != nil {
				return err
			}
		}
		terms = append(terms, term)
	}
	return db.WithContext(ctx).Model(item).Association("BranchTerms").Replace(terms)
}
