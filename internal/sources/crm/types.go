package crm

import "encoding/json"

// wireSale is one sale as the CRM sends it. Field types drift between CRM
// releases (numbers as strings, ids as numbers), so every field is loose and
// coerced by the mapper.
type wireSale struct {
	ID              any `json:"id"`
	CustomerName    any `json:"cliente_nombre"`
	CustomerRUT     any `json:"cliente_rut"`
	CustomerPhone   any `json:"cliente_telefono"`
	CustomerEmail   any `json:"cliente_email"`
	DeliveryAddress any `json:"direccion_entrega"`
	TotalValue      any `json:"valor_total"`
	HouseModel      any `json:"modelo_casa"`
	MaterialDetail  any `json:"detalle_materiales"`
	SaleDate        any `json:"fecha_venta"`
	DeliveryDate    any `json:"fecha_entrega"`
	SalespersonID   any `json:"vendedor_id"`
	SalespersonName any `json:"vendedor_nombre"`
	SupervisorName  any `json:"supervisor_nombre"`
	Status          any `json:"estado"`
	Notes           any `json:"observaciones"`
	ContractNumber  any `json:"numero_contrato"`
}

// SalesPage is the paged envelope of GET /ventas. Older CRM versions answer
// with a bare array instead, which decodes as a single page.
type SalesPage struct {
	Data       []json.RawMessage `json:"data"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
}

// HasMore reports whether another page follows p.
func (p *SalesPage) HasMore() bool {
	return p.TotalPages > 0 && p.Page < p.TotalPages
}
