package domain

import "time"

// Order is the aggregate root. Identifier fields are immutable after creation;
// only name, status, price and currency may change through an update.
type Order struct {
	ID              string      `bson:"_id,omitempty"`
	OrderID         string      `bson:"order_id"`
	OrderName       string      `bson:"order_name"`
	CustomerID      string      `bson:"customer_id"`
	CatalogID       string      `bson:"catalog_id"`
	WatchID         string      `bson:"watch_id"`
	ServicePlanID   string      `bson:"service_plan_id"`
	Price           Price       `bson:"price"`
	SaleCurrency    Currency    `bson:"sale_currency"`
	PaymentCurrency Currency    `bson:"payment_currency"`
	OrderDate       time.Time   `bson:"order_date"`
	Status          OrderStatus `bson:"status"`
	CreatedAt       time.Time   `bson:"created_at"`
	UpdatedAt       time.Time   `bson:"updated_at"`
}

type Price struct {
	MSRP             float64 `bson:"msrp"`
	Cost             float64 `bson:"cost"`
	TotalOptionsCost float64 `bson:"total_options_cost"`
}

func (p Price) IsValid() bool {
	return p.MSRP >= 0 && p.Cost >= 0 && p.TotalOptionsCost >= 0
}

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyCAD Currency = "CAD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyCAD, CurrencyEUR, CurrencyGBP:
		return true
	}
	return false
}
