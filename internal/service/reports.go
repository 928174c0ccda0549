package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tallerpos/backend/internal/cache"
	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/store"
)

const (
	dayLayout         = "2006-01-02"
	topProductsLimit  = 10
	topBrandsLimit    = 5
	unassignedLabel   = "Unassigned"
	cacheWarnInterval = time.Minute
)

// ReportRange parses optional from/to days (inclusive, YYYY-MM-DD) in the
// business timezone. Both default to today.
func (s *Service) ReportRange(branchID int64, from string, to string) (domain.ReportQuery, error) {
	today := s.clock()
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, s.loc)
	if strings.TrimSpace(from) != "" {
		parsed, err := time.ParseInLocation(dayLayout, strings.TrimSpace(from), s.loc)
		if err != nil {
			return domain.ReportQuery{}, store.Invalid("from must be YYYY-MM-DD")
		}
		start = parsed
	}

	last := start
	if strings.TrimSpace(to) != "" {
		parsed, err := time.ParseInLocation(dayLayout, strings.TrimSpace(to), s.loc)
		if err != nil {
			return domain.ReportQuery{}, store.Invalid("to must be YYYY-MM-DD")
		}
		last = parsed
	}
	if last.Before(start) {
		return domain.ReportQuery{}, store.Invalid("to must not be before from")
	}

	return domain.ReportQuery{BranchID: branchID, From: start, To: last.AddDate(0, 0, 1)}, nil
}

// normalizeQuery applies the scope and fills a missing range with today.
func (s *Service) normalizeQuery(ctx context.Context, q domain.ReportQuery) (domain.ReportQuery, error) {
	_, sc, err := authorize(ctx, domain.PermViewReports)
	if err != nil {
		return domain.ReportQuery{}, err
	}
	if q.From.IsZero() || q.To.IsZero() {
		def, err := s.ReportRange(q.BranchID, "", "")
		if err != nil {
			return domain.ReportQuery{}, err
		}
		q.From, q.To = def.From, def.To
	}
	q.BranchID = sc.ReadFilter(q.BranchID)
	return q, nil
}

func (s *Service) cacheKey(report string, q domain.ReportQuery) string {
	return cache.Key(report, strconv.FormatInt(q.BranchID, 10), q.From.In(s.loc).Format(dayLayout), q.To.In(s.loc).Format(dayLayout))
}

func (s *Service) cached(ctx context.Context, key string, dest any) bool {
	if s.dashboardTTL <= 0 {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.WarnThrottled("cache-get", cacheWarnInterval, "dashboard cache read failed", logrus.Fields{"key": key, "error": err.Error()})
		return false
	}
	return hit
}

func (s *Service) remember(ctx context.Context, key string, value any) {
	if s.dashboardTTL <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.dashboardTTL); err != nil {
		s.logger.WarnThrottled("cache-set", cacheWarnInterval, "dashboard cache write failed", logrus.Fields{"key": key, "error": err.Error()})
	}
}

// SalesDashboard aggregates completed sales in the range.
func (s *Service) SalesDashboard(ctx context.Context, q domain.ReportQuery) (domain.SalesDashboard, error) {
	q, err := s.normalizeQuery(ctx, q)
	if err != nil {
		return domain.SalesDashboard{}, err
	}
	key := s.cacheKey("sales-dashboard", q)
	var out domain.SalesDashboard
	if s.cached(ctx, key, &out) {
		return out, nil
	}

	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{BranchID: q.BranchID, Status: domain.SaleCompleted, From: q.From, To: q.To})
	if err != nil {
		return domain.SalesDashboard{}, err
	}

	out = domain.SalesDashboard{
		BranchID: q.BranchID,
		From:     q.From.In(s.loc).Format(dayLayout),
		To:       q.To.In(s.loc).AddDate(0, 0, -1).Format(dayLayout),
		KPIs:     domain.SalesKPIs{TotalAmount: decimal.Zero},
	}

	byDay := map[string]*domain.DailySales{}
	byPayment := map[string]decimal.Decimal{}
	hours := make([]int, 24)
	type productTotals struct {
		qty    int
		amount decimal.Decimal
	}
	byProduct := map[int64]*productTotals{}

	for _, sale := range sales {
		local := sale.CreatedAt.In(s.loc)
		day := local.Format(dayLayout)
		d, ok := byDay[day]
		if !ok {
			d = &domain.DailySales{Day: day, Amount: decimal.Zero}
			byDay[day] = d
		}
		d.Amount = d.Amount.Add(sale.Total)
		d.Count++

		byPayment[sale.PaymentMethod] = byPayment[sale.PaymentMethod].Add(sale.Total)
		hours[local.Hour()]++

		out.KPIs.TotalAmount = out.KPIs.TotalAmount.Add(sale.Total)
		out.KPIs.Transactions++

		for _, line := range sale.Lines {
			p, ok := byProduct[line.ProductID]
			if !ok {
				p = &productTotals{amount: decimal.Zero}
				byProduct[line.ProductID] = p
			}
			p.qty += line.Quantity
			p.amount = p.amount.Add(line.Subtotal())
		}
	}

	out.ByDay = make([]domain.DailySales, 0, len(byDay))
	for _, d := range byDay {
		out.ByDay = append(out.ByDay, *d)
	}
	sort.Slice(out.ByDay, func(i, j int) bool { return out.ByDay[i].Day < out.ByDay[j].Day })

	methods := make([]string, 0, len(byPayment))
	for m := range byPayment {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	out.ByPayment = domain.AmountSeries{Labels: methods, Data: make([]decimal.Decimal, 0, len(methods))}
	for _, m := range methods {
		out.ByPayment.Data = append(out.ByPayment.Data, byPayment[m])
	}

	out.ByHour = hourSeries(hours)

	ids := make([]int64, 0, len(byProduct))
	for id := range byProduct {
		ids = append(ids, id)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.SalesDashboard{}, err
	}
	out.Top = make([]domain.TopProduct, 0, len(ids))
	for _, id := range ids {
		totals := byProduct[id]
		name := products[id].Name
		if name == "" {
			name = fmt.Sprintf("product %d", id)
		}
		out.Top = append(out.Top, domain.TopProduct{ProductID: id, Name: name, Quantity: totals.qty, Amount: totals.amount})
	}
	sort.Slice(out.Top, func(i, j int) bool {
		if out.Top[i].Quantity == out.Top[j].Quantity {
			return out.Top[i].ProductID < out.Top[j].ProductID
		}
		return out.Top[i].Quantity > out.Top[j].Quantity
	})
	if len(out.Top) > topProductsLimit {
		out.Top = out.Top[:topProductsLimit]
	}

	s.remember(ctx, key, out)
	return out, nil
}

// SalesReport lists every sale in the range. Voided sales are listed but
// never counted in the valid total.
func (s *Service) SalesReport(ctx context.Context, q domain.ReportQuery) (domain.SalesReport, error) {
	q, err := s.normalizeQuery(ctx, q)
	if err != nil {
		return domain.SalesReport{}, err
	}
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{BranchID: q.BranchID, From: q.From, To: q.To})
	if err != nil {
		return domain.SalesReport{}, err
	}

	out := domain.SalesReport{
		BranchID:   q.BranchID,
		From:       q.From.In(s.loc).Format(dayLayout),
		To:         q.To.In(s.loc).AddDate(0, 0, -1).Format(dayLayout),
		Sales:      sales,
		ValidTotal: decimal.Zero,
	}
	for _, sale := range sales {
		if sale.Status == domain.SaleVoided {
			out.Voided++
			continue
		}
		out.ValidTotal = out.ValidTotal.Add(sale.Total)
	}
	return out, nil
}

var ticketStatusOrder = []domain.TicketStatus{
	domain.TicketInRepair, domain.TicketReadyForPickup, domain.TicketDelivered, domain.TicketVoided,
}

// ServiceDashboard aggregates tickets received in the range.
func (s *Service) ServiceDashboard(ctx context.Context, q domain.ReportQuery) (domain.ServiceDashboard, error) {
	q, err := s.normalizeQuery(ctx, q)
	if err != nil {
		return domain.ServiceDashboard{}, err
	}
	key := s.cacheKey("service-dashboard", q)
	var out domain.ServiceDashboard
	if s.cached(ctx, key, &out) {
		return out, nil
	}

	tickets, err := s.repo.ListTickets(ctx, domain.TicketFilter{BranchID: q.BranchID, From: q.From, To: q.To})
	if err != nil {
		return domain.ServiceDashboard{}, err
	}
	users, err := s.repo.ListUsers(ctx, 0)
	if err != nil {
		return domain.ServiceDashboard{}, err
	}
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}

	out = domain.ServiceDashboard{
		BranchID: q.BranchID,
		From:     q.From.In(s.loc).Format(dayLayout),
		To:       q.To.In(s.loc).AddDate(0, 0, -1).Format(dayLayout),
	}

	byStatus := map[domain.TicketStatus]int{}
	byBrand := map[string]int{}
	byDay := map[string]int{}
	byTechnician := map[string]int{}
	hours := make([]int, 24)

	for _, t := range tickets {
		local := t.ReceivedAt.In(s.loc)
		byStatus[t.Status]++
		byBrand[t.DeviceBrand]++
		byDay[local.Format(dayLayout)]++
		hours[local.Hour()]++

		out.KPIs.Total++
		switch t.Status {
		case domain.TicketInRepair:
			out.KPIs.Pending++
		case domain.TicketDelivered:
			out.KPIs.Delivered++
			label := unassignedLabel
			if t.TechnicianID != nil {
				if name, ok := names[*t.TechnicianID]; ok {
					label = name
				}
			}
			byTechnician[label]++
		}
	}

	for _, st := range ticketStatusOrder {
		out.ByStatus.Labels = append(out.ByStatus.Labels, string(st))
		out.ByStatus.Data = append(out.ByStatus.Data, byStatus[st])
	}
	out.ByBrand = rankedSeries(byBrand, topBrandsLimit)
	out.ByTechnician = rankedSeries(byTechnician, 0)
	out.ByHour = hourSeries(hours)

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)
	out.ByDay = domain.CountSeries{Labels: days, Data: make([]int, 0, len(days))}
	for _, d := range days {
		out.ByDay.Data = append(out.ByDay.Data, byDay[d])
	}

	s.remember(ctx, key, out)
	return out, nil
}

func hourSeries(hours []int) domain.CountSeries {
	series := domain.CountSeries{Labels: make([]string, 24), Data: make([]int, 24)}
	for h := 0; h < 24; h++ {
		series.Labels[h] = fmt.Sprintf("%02d:00", h)
		series.Data[h] = hours[h]
	}
	return series
}

// rankedSeries orders counts descending with ties broken by label. A limit of
// zero keeps every entry.
func rankedSeries(counts map[string]int, limit int) domain.CountSeries {
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if counts[labels[i]] == counts[labels[j]] {
			return labels[i] < labels[j]
		}
		return counts[labels[i]] > counts[labels[j]]
	})
	if limit > 0 && len(labels) > limit {
		labels = labels[:limit]
	}
	series := domain.CountSeries{Labels: labels, Data: make([]int, 0, len(labels))}
	for _, l := range labels {
		series.Data = append(series.Data, counts[l])
	}
	return series
}
