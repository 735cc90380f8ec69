package models

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// Sale is the local mirror of one CRM sale, keyed by the CRM identifier.
type Sale struct {
	bun.BaseModel `bun:"table:crm_sales,alias:s"`

	ID              string  `bun:"id,pk" json:"id"`
	CustomerName    string  `bun:"customer_name,notnull" json:"customer_name"`
	CustomerRUT     string  `bun:"customer_rut,notnull" json:"customer_rut"`
	CustomerPhone   string  `bun:"customer_phone,notnull" json:"customer_phone"`
	CustomerEmail   string  `bun:"customer_email,notnull" json:"customer_email"`
	DeliveryAddress string  `bun:"delivery_address,notnull" json:"delivery_address"`
	TotalValue      int64   `bun:"total_value,notnull,default:0" json:"total_value"`
	HouseModel      string  `bun:"house_model,notnull" json:"house_model"`
	MaterialDetail  string  `bun:"material_detail,notnull" json:"material_detail"`
	SaleDate        string  `bun:"sale_date,notnull" json:"sale_date"`
	DeliveryDate    *string `bun:"delivery_date" json:"delivery_date"`
	SalespersonID   string  `bun:"salesperson_id,notnull" json:"salesperson_id"`
	SalespersonName string  `bun:"salesperson_name,notnull" json:"salesperson_name"`
	SupervisorName  string  `bun:"supervisor_name,notnull" json:"supervisor_name"`
	CRMStatus       string  `bun:"crm_status,notnull" json:"crm_status"`
	CRMNotes        string  `bun:"crm_notes,notnull" json:"crm_notes"`
	ContractNumber  *string `bun:"contract_number" json:"contract_number,omitempty"`
	RawPayload      RawJSON `bun:"raw_payload,type:json" json:"raw_payload,omitempty"`

	SyncedAt  time.Time `bun:"synced_at,nullzero,notnull,default:current_timestamp" json:"synced_at"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// SaleStamp is the minimal projection used to classify incoming records.
type SaleStamp struct {
	ID        string    `bun:"id"`
	UpdatedAt time.Time `bun:"updated_at"`
}

// Validate checks the fields the sync engine cannot work without.
func (s *Sale) Validate() error {
	if s.ID == "" {
		return errors.New("sale id is required")
	}
	if s.TotalValue < 0 {
		return errors.New("total value cannot be negative")
	}
	return nil
}

// DeliveryPending reports whether the delivery date is still to be defined.
func (s *Sale) DeliveryPending() bool {
	return s.DeliveryDate == nil || *s.DeliveryDate == ""
}

// HasTemporaryContract reports whether the CRM assigned a placeholder contract number.
func (s *Sale) HasTemporaryContract() bool {
	if s.ContractNumber == nil {
		return false
	}
	n := *s.ContractNumber
	return len(n) >= 4 && n[:4] == "TMP-"
}
