package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReportQuery struct {
	BranchID int64
	From     time.Time
	To       time.Time
}

type CountSeries struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

type AmountSeries struct {
	Labels []string          `json:"labels"`
	Data   []decimal.Decimal `json:"data"`
}

type DailySales struct {
	Day    string          `json:"day"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

type TopProduct struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
}

type SalesKPIs struct {
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Transactions int             `json:"transactions"`
}

type SalesDashboard struct {
	BranchID  int64        `json:"branch_id,omitempty"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	ByDay     []DailySales `json:"by_day"`
	ByPayment AmountSeries `json:"by_payment"`
	Top       []TopProduct `json:"top_products"`
	ByHour    CountSeries  `json:"by_hour"`
	KPIs      SalesKPIs    `json:"kpis"`
}

type SalesReport struct {
	BranchID   int64           `json:"branch_id,omitempty"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	Sales      []Sale          `json:"sales"`
	ValidTotal decimal.Decimal `json:"valid_total"`
	Voided     int             `json:"voided"`
}

type ServiceKPIs struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Delivered int `json:"delivered"`
}

type ServiceDashboard struct {
	BranchID     int64       `json:"branch_id,omitempty"`
	From         string      `json:"from"`
	To           string      `json:"to"`
	ByStatus     CountSeries `json:"by_status"`
	ByBrand      CountSeries `json:"by_brand"`
	ByDay        CountSeries `json:"by_day"`
	ByTechnician CountSeries `json:"by_technician"`
	ByHour       CountSeries `json:"by_hour"`
	KPIs         ServiceKPIs `json:"kpis"`
}
