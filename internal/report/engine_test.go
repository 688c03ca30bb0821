package report

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"lojinha/backend/internal/domain"
	"lojinha/backend/internal/store/memory"
)

// recordingCache counts cache traffic so tests can assert hit/miss behavior.
type recordingCache struct {
	mu      sync.Mutex
	entries map[string]*domain.SalesReport
	gets    int
	hits    int
	deletes int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[string]*domain.SalesReport)}
}

func (c *recordingCache) Get(_ context.Context, key string) (*domain.SalesReport, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if report, ok := c.entries[key]; ok {
		c.hits++
		return report, true, nil
	}
	return nil, false, nil
}

func (c *recordingCache) Set(_ context.Context, key string, value *domain.SalesReport, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *recordingCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			c.deletes++
		}
	}
	return nil
}

func seedSales(t *testing.T, repo *memory.Store, totals map[string]float64) {
	t.Helper()
	ctx := context.Background()
	for seller, price := range totals {
		now := time.Now().UTC()
		sale := domain.Sale{
			ID:                 "sal-rep-" + seller,
			Date:               now,
			Seller:             seller,
			Payments:           []domain.PaymentSplit{{Method: "Pix", Amount: price}},
			PaymentMethodsUsed: []string{"Pix"},
			CreatedBy:          "usr-test",
			CreatedAt:          now,
		}
		items := []domain.SaleItemInput{
			{ProductID: "prod-capinha-silicone", VariantID: "var-cap-preta", SoldPrice: price},
		}
		if _, err := repo.CreateSale(ctx, sale, items, "usr-test"); err != nil {
			t.Fatalf("seed sale for %s: %v", seller, err)
		}
	}
}

func TestSalesReportAggregatesBySellerAndPayment(t *testing.T) {
	repo := memory.NewSeeded()
	engine := NewEngine(repo, nil, time.Second)
	seedSales(t, repo, map[string]float64{"Ana": 100, "Bruno": 50})

	now := time.Now().UTC()
	report, err := engine.SalesReport(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}

	if report.SaleCount != 2 {
		t.Fatalf("expected 2 sales, got %d", report.SaleCount)
	}
	if math.Abs(report.TotalValue-150) > 0.001 {
		t.Fatalf("expected total 150, got %v", report.TotalValue)
	}
	if math.Abs(report.AverageValue-75) > 0.001 {
		t.Fatalf("expected average 75, got %v", report.AverageValue)
	}
	if len(report.BySeller) != 2 || report.BySeller[0].Seller != "Ana" {
		t.Fatalf("expected seller ranking led by Ana, got %+v", report.BySeller)
	}
	if len(report.ByPayment) != 1 || report.ByPayment[0].Method != "Pix" {
		t.Fatalf("expected single Pix payment bucket, got %+v", report.ByPayment)
	}

	// Seeded settings carry a 15000 monthly goal.
	expected := 150.0 / 15000.0
	if math.Abs(report.GoalProgress-expected) > 0.0001 {
		t.Fatalf("expected goal progress %v, got %v", expected, report.GoalProgress)
	}
}

func TestSalesReportUsesCacheUntilInvalidated(t *testing.T) {
	repo := memory.NewSeeded()
	cacheStore := newRecordingCache()
	engine := NewEngine(repo, cacheStore, time.Minute)
	seedSales(t, repo, map[string]float64{"Ana": 100})

	ctx := context.Background()
	now := time.Now().UTC()
	from, to := now.Add(-time.Hour), now.Add(time.Hour)

	if _, err := engine.SalesReport(ctx, from, to); err != nil {
		t.Fatalf("first report failed: %v", err)
	}
	if _, err := engine.SalesReport(ctx, from, to); err != nil {
		t.Fatalf("second report failed: %v", err)
	}
	if cacheStore.hits != 1 {
		t.Fatalf("expected 1 cache hit, got %d", cacheStore.hits)
	}

	engine.Invalidate(ctx)
	if cacheStore.deletes != 1 {
		t.Fatalf("expected cached report to be deleted, got %d", cacheStore.deletes)
	}

	if _, err := engine.SalesReport(ctx, from, to); err != nil {
		t.Fatalf("report after invalidate failed: %v", err)
	}
	if cacheStore.hits != 1 {
		t.Fatalf("expected cache miss after invalidate, hits %d", cacheStore.hits)
	}
}
