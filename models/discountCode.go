package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// DiscountCode is a redeemable percentage code tied to a remote card
// record. Remote data always overwrites local values; codes are never
// hard-deleted, only flagged.
type DiscountCode struct {
	ID                int       `gorm:"primary_key" json:"id"`
	Code              string    `gorm:"uniqueIndex;size:100;not null" json:"code" binding:"required"`
	ExternalId        string    `gorm:"index;size:128" json:"external_id"`
	HolderName        string    `gorm:"size:255" json:"holder_name"`
	Mobile            string    `gorm:"size:50" json:"mobile"`
	DateOfBirth       string    `gorm:"size:20" json:"date_of_birth"`
	PercentAmount     int       `gorm:"not null;default:0" json:"percent_amount"`
	Deleted           *bool     `gorm:"not null;default:false" json:"deleted"`
	Managed           *bool     `gorm:"not null;default:true" json:"managed"`
	AllowedPhonesJSON []byte    `gorm:"type:json" json:"allowed_phones"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func EncodeAllowedPhones(phones []string) []byte {
	if len(phones) == 0 {
		return nil
	}
	b, _ := json.Marshal(phones)
	return b
}

func DecodeAllowedPhones(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var phones []string
	if err := json.Unmarshal(raw, &phones); err != nil {
		return nil
	}
	return phones
}

// FindDiscountCodeByCode returns nil without error when the code is
// unknown.
func FindDiscountCodeByCode(ctx context.Context, db *gorm.DB, code string) (*DiscountCode, error) {
	var dc DiscountCode
	err := db.WithContext(ctx).Where("code = ?", code).Take(&dc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dc, nil
}
