package report

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"lojinha/backend/internal/cache"
	"lojinha/backend/internal/domain"
	"lojinha/backend/internal/store"
)

const cacheKeyPrefix = "report:sales:"

// Engine aggregates sales into period reports. Results are cached with a
// short TTL; sale mutations invalidate the cache eagerly so the dashboard
// never serves a stale total for long.
type Engine struct {
	repo     store.Repository
	cache    cache.ReportCache
	cacheTTL time.Duration
}

func NewEngine(repo store.Repository, cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		repo:     repo,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func cacheKey(from time.Time, to time.Time) string {
	return fmt.Sprintf("%s%d:%d", cacheKeyPrefix, from.UTC().Unix(), to.UTC().Unix())
}

func (e *Engine) SalesReport(ctx context.Context, from time.Time, to time.Time) (domain.SalesReport, error) {
	key := cacheKey(from, to)
	if cached, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		return *cached, nil
	}

	sales, err := e.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}
	settings, err := e.repo.GetSettings(ctx)
	if err != nil {
		return domain.SalesReport{}, err
	}

	report := build(sales, *settings, from, to)

	if err := e.cache.Set(ctx, key, &report, e.cacheTTL); err != nil {
		log.Printf("[report] WARN: failed to cache report: %v", err)
	}
	return report, nil
}

// Invalidate drops every cached report. Called after any sale mutation.
func (e *Engine) Invalidate(ctx context.Context) {
	if err := e.cache.DeletePrefix(ctx, cacheKeyPrefix); err != nil {
		log.Printf("[report] WARN: failed to invalidate report cache: %v", err)
	}
}

func build(sales []domain.Sale, settings domain.Settings, from time.Time, to time.Time) domain.SalesReport {
	report := domain.SalesReport{
		From:        from,
		To:          to,
		MonthlyGoal: settings.MonthlyGoal,
	}

	sellerTotals := map[string]*domain.SellerTotal{}
	paymentTotals := map[string]*domain.PaymentTotal{}

	for _, sale := range sales {
		if sale.TestSale {
			report.TestSaleCount++
			continue
		}
		report.SaleCount++
		report.TotalValue += sale.TotalValue

		st, ok := sellerTotals[sale.Seller]
		if !ok {
			st = &domain.SellerTotal{Seller: sale.Seller}
			sellerTotals[sale.Seller] = st
		}
		st.SaleCount++
		st.TotalValue += sale.TotalValue

		for _, split := range sale.Payments {
			pt, ok := paymentTotals[split.Method]
			if !ok {
				pt = &domain.PaymentTotal{Method: split.Method}
				paymentTotals[split.Method] = pt
			}
			pt.TotalValue += split.Amount
		}
		for _, method := range sale.PaymentMethodsUsed {
			if pt, ok := paymentTotals[method]; ok {
				pt.SaleCount++
			}
		}
	}

	if report.SaleCount > 0 {
		report.AverageValue = report.TotalValue / float64(report.SaleCount)
	}
	if report.MonthlyGoal > 0 {
		report.GoalProgress = report.TotalValue / report.MonthlyGoal
	}

	report.BySeller = make([]domain.SellerTotal, 0, len(sellerTotals))
	for _, st := range sellerTotals {
		report.BySeller = append(report.BySeller, *st)
	}
	sort.Slice(report.BySeller, func(i, j int) bool {
		if report.BySeller[i].TotalValue != report.BySeller[j].TotalValue {
			return report.BySeller[i].TotalValue > report.BySeller[j].TotalValue
		}
		return report.BySeller[i].Seller < report.BySeller[j].Seller
	})

	report.ByPayment = make([]domain.PaymentTotal, 0, len(paymentTotals))
	for _, pt := range paymentTotals {
		report.ByPayment = append(report.ByPayment, *pt)
	}
	sort.Slice(report.ByPayment, func(i, j int) bool {
		if report.ByPayment[i].TotalValue != report.ByPayment[j].TotalValue {
			return report.ByPayment[i].TotalValue > report.ByPayment[j].TotalValue
		}
		return report.ByPayment[i].Method < report.ByPayment[j].Method
	})

	return report
}
