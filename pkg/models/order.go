package models

import (
	"time"

	"github.com/nvago/printshop/internal/workflow"
)

type Order struct {
	ID           string          `json:"id"`
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	Contact      string          `json:"contact"`
	Address      string          `json:"address"`
	ProductID    string          `json:"product_id"`
	VariantID    string          `json:"variant_id,omitempty"`
	Category     string          `json:"category"`
	Quantity     int             `json:"quantity"`
	Height       float64         `json:"height,omitempty"`
	Width        float64         `json:"width,omitempty"`
	HasFile      bool            `json:"has_file"`
	SolventTarp  bool            `json:"solvent_tarp"`
	Eyelets      int             `json:"eyelets"`
	FileURL      string          `json:"file_url,omitempty"`
	LayoutURL    string          `json:"layout_url,omitempty"`
	Total        float64         `json:"total"`
	Status       workflow.Status `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	MinQtyTen bool      `json:"min_qty_ten"`
	Variants  []Variant `json:"variants,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Variant struct {
	ID             string   `json:"id"`
	ProductID      string   `json:"product_id"`
	Name           string   `json:"name"`
	RetailPrice    float64  `json:"retail_price"`
	WholesalePrice *float64 `json:"wholesale_price,omitempty"`
}

type Conversation struct {
	ID        string     `json:"id"`
	OrderID   string     `json:"order_id"`
	Archived  bool       `json:"archived"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

type OrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Order   *Order `json:"order,omitempty"`
}
