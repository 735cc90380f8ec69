package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Contract is a construction contract drafted from a CRM sale.
type Contract struct {
	bun.BaseModel `bun:"table:contracts,alias:ct"`

	ID              int64          `bun:"id,pk,autoincrement" json:"id"`
	SaleID          string         `bun:"sale_id,notnull" json:"sale_id"`
	Number          *string        `bun:"number" json:"number,omitempty"`
	OwnerID         string         `bun:"owner_id,notnull" json:"owner_id"`
	Status          ContractStatus `bun:"status,notnull" json:"status"`
	CustomerName    string         `bun:"customer_name,notnull" json:"customer_name"`
	CustomerRUT     string         `bun:"customer_rut,notnull" json:"customer_rut"`
	CustomerEmail   string         `bun:"customer_email,notnull" json:"customer_email"`
	CustomerPhone   string         `bun:"customer_phone,notnull" json:"customer_phone"`
	DeliveryAddress string         `bun:"delivery_address,notnull" json:"delivery_address"`
	TotalValue      int64          `bun:"total_value,notnull,default:0" json:"total_value"`
	HouseModel      string         `bun:"house_model,notnull" json:"house_model"`
	MaterialDetail  string         `bun:"material_detail,notnull" json:"material_detail"`
	DeliveryDate    *string        `bun:"delivery_date" json:"delivery_date"`
	ValidatedAt     *time.Time     `bun:"validated_at" json:"validated_at,omitempty"`
	SentAt          *time.Time     `bun:"sent_at" json:"sent_at,omitempty"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt       time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// Field labels shown to users when a contract cannot be validated.
const (
	FieldCustomerName    = "Nombre del cliente"
	FieldCustomerRUT     = "RUT"
	FieldCustomerEmail   = "Email"
	FieldDeliveryAddress = "Dirección de entrega"
	FieldTotalValue      = "Valor total"
	FieldHouseModel      = "Modelo de casa"
	FieldMaterialDetail  = "Detalle de materiales"
	FieldDeliveryDate    = "Fecha de entrega"
)

// MissingFields lists, in display order, the required fields that are empty.
func (c *Contract) MissingFields() []string {
	missing := make([]string, 0)
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }

	if blank(c.CustomerName) {
		missing = append(missing, FieldCustomerName)
	}
	if blank(c.CustomerRUT) {
		missing = append(missing, FieldCustomerRUT)
	}
	if blank(c.CustomerEmail) {
		missing = append(missing, FieldCustomerEmail)
	}
	if blank(c.DeliveryAddress) {
		missing = append(missing, FieldDeliveryAddress)
	}
	if c.TotalValue <= 0 {
		missing = append(missing, FieldTotalValue)
	}
	if blank(c.HouseModel) {
		missing = append(missing, FieldHouseModel)
	}
	if blank(c.MaterialDetail) {
		missing = append(missing, FieldMaterialDetail)
	}
	if c.DeliveryDate == nil || blank(*c.DeliveryDate) {
		missing = append(missing, FieldDeliveryDate)
	}
	return missing
}

// HasCustomerEmail reports whether the contract can be dispatched to the customer.
func (c *Contract) HasCustomerEmail() bool {
	return strings.TrimSpace(c.CustomerEmail) != ""
}

// NewContractFromSale prefills a draft contract from a mirrored sale.
func NewContractFromSale(s *Sale, ownerID string) *Contract {
	c := &Contract{
		SaleID:          s.ID,
		OwnerID:         ownerID,
		Status:          ContractDraft,
		CustomerName:    s.CustomerName,
		CustomerRUT:     s.CustomerRUT,
		CustomerEmail:   s.CustomerEmail,
		CustomerPhone:   s.CustomerPhone,
		DeliveryAddress: s.DeliveryAddress,
		TotalValue:      s.TotalValue,
		HouseModel:      s.HouseModel,
		MaterialDetail:  s.MaterialDetail,
	}
	// Placeholder numbers and undefined delivery dates stay blank.
	if !s.HasTemporaryContract() {
		c.Number = s.ContractNumber
	}
	if !s.DeliveryPending() {
		c.DeliveryDate = s.DeliveryDate
	}
	return c
}
