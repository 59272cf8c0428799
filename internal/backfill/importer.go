package backfill

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nvago/printshop/internal/pricing"
	"github.com/nvago/printshop/internal/workflow"
	"github.com/nvago/printshop/pkg/models"
)

// OrderWriter is the slice of the order store the importer needs.
type OrderWriter interface {
	SaveOrder(order *models.Order) error
	GetOrder(id string) (*models.Order, error)
}

// LegacyOrder is one record of the hosted backend's JSON export.
type LegacyOrder struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Contact     string    `json:"contact_number"`
	Address     string    `json:"address"`
	ProductID   string    `json:"product_id"`
	VariantID   string    `json:"variant_id"`
	Category    string    `json:"category"`
	RetailPrice float64   `json:"retail_price"`
	Wholesale   *float64  `json:"wholesale_price"`
	Quantity    int       `json:"quantity"`
	Height      float64   `json:"height"`
	Width       float64   `json:"width"`
	HasFile     bool      `json:"has_file"`
	SolventTarp bool      `json:"is_solvent_tarp"`
	Eyelets     int       `json:"eyelets"`
	FileURL     string    `json:"file_url"`
	LayoutURL   string    `json:"layout_url"`
	Total       float64   `json:"total"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Config struct {
	BatchSize    int
	Concurrency  int
	DryRun       bool
	SkipExisting bool
}

type Result struct {
	TotalOrders    int           `json:"total_orders"`
	Imported       int           `json:"imported"`
	Skipped        int           `json:"skipped"`
	Failed         int           `json:"failed"`
	PriceDrift     int           `json:"price_drift"`
	ProcessingTime time.Duration `json:"processing_time"`
	Errors         []ImportError `json:"errors,omitempty"`
	DryRun         bool          `json:"dry_run"`
}

type ImportError struct {
	OrderID string `json:"order_id"`
	Error   string `json:"error"`
}

// Importer loads the legacy export into the order store in concurrent
// batches. Legacy totals are kept as charged; recomputed totals that disagree
// are counted and logged as drift, since the old clients each carried their
// own copy of the pricing rules.
type Importer struct {
	store  OrderWriter
	logger *logrus.Logger
	config Config
}

func NewImporter(store OrderWriter, config Config, logger *logrus.Logger) *Importer {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}
	return &Importer{store: store, logger: logger, config: config}
}

// ImportFile reads a JSON export file and imports every order in it.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export file: %w", err)
	}
	defer f.Close()

	return im.Import(ctx, f)
}

// Import reads a JSON array of legacy orders and writes them to the store.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	start := time.Now()

	var legacy []LegacyOrder
	if err := json.NewDecoder(r).Decode(&legacy); err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}

	result := &Result{
		TotalOrders: len(legacy),
		DryRun:      im.config.DryRun,
	}

	im.logger.WithFields(logrus.Fields{
		"orders":  len(legacy),
		"dry_run": im.config.DryRun,
	}).Info("Starting legacy order import")

	batches := createBatches(legacy, im.config.BatchSize)

	var wg sync.WaitGroup
	var mu sync.Mutex
	semaphore := make(chan struct{}, im.config.Concurrency)

	for _, batch := range batches {
		wg.Add(1)
		go func(batch []LegacyOrder) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			batchResult := im.importBatch(ctx, batch)

			mu.Lock()
			result.Imported += batchResult.Imported
			result.Skipped += batchResult.Skipped
			result.Failed += batchResult.Failed
			result.PriceDrift += batchResult.PriceDrift
			result.Errors = append(result.Errors, batchResult.Errors...)
			mu.Unlock()
		}(batch)
	}

	wg.Wait()

	result.ProcessingTime = time.Since(start)

	im.logger.WithFields(logrus.Fields{
		"imported":    result.Imported,
		"skipped":     result.Skipped,
		"failed":      result.Failed,
		"price_drift": result.PriceDrift,
		"duration":    result.ProcessingTime.String(),
	}).Info("Legacy order import completed")

	return result, nil
}

func (im *Importer) importBatch(ctx context.Context, batch []LegacyOrder) *Result {
	result := &Result{}

	for _, legacy := range batch {
		if ctx.Err() != nil {
			return result
		}

		order, err := MapLegacyOrder(&legacy)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ImportError{OrderID: legacy.ID, Error: err.Error()})
			continue
		}

		if im.config.SkipExisting {
			if _, err := im.store.GetOrder(order.ID); err == nil {
				result.Skipped++
				continue
			} else if !errors.Is(err, sql.ErrNoRows) {
				result.Failed++
				result.Errors = append(result.Errors, ImportError{OrderID: order.ID, Error: err.Error()})
				continue
			}
		}

		if drift := im.checkPriceDrift(&legacy); drift {
			result.PriceDrift++
		}

		if im.config.DryRun {
			result.Imported++
			continue
		}

		if err := im.store.SaveOrder(order); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ImportError{OrderID: order.ID, Error: err.Error()})
			continue
		}
		result.Imported++
	}

	return result
}

// checkPriceDrift reprices the legacy order through the current engine and
// reports disagreement. The stored total is what the customer was actually
// charged, so it is kept either way.
func (im *Importer) checkPriceDrift(legacy *LegacyOrder) bool {
	// Without the denormalized variant prices there is nothing to reprice.
	if legacy.Total == 0 || legacy.RetailPrice == 0 {
		return false
	}

	quote := pricing.Compute(pricing.Draft{
		Category: legacy.Category,
		Variant: &pricing.Variant{
			RetailPrice:    legacy.RetailPrice,
			WholesalePrice: legacy.Wholesale,
		},
		Quantity:    strconv.Itoa(legacy.Quantity),
		Height:      formatDimension(legacy.Height),
		Width:       formatDimension(legacy.Width),
		HasFile:     legacy.HasFile,
		SolventTarp: legacy.SolventTarp,
		Eyelets:     legacy.Eyelets,
	})

	if math.Abs(quote.Total-legacy.Total) > 0.01 {
		im.logger.WithFields(logrus.Fields{
			"order_id":     legacy.ID,
			"legacy_total": legacy.Total,
			"recomputed":   quote.Total,
		}).Warn("Legacy total disagrees with current pricing rules")
		return true
	}
	return false
}

// MapLegacyOrder converts an export record to the current order shape.
func MapLegacyOrder(legacy *LegacyOrder) (*models.Order, error) {
	if legacy.ID == "" {
		return nil, errors.New("legacy order has no id")
	}

	status := workflow.Status(legacy.Status)
	if !workflow.Valid(status) {
		return nil, fmt.Errorf("unknown legacy status '%s'", legacy.Status)
	}

	updatedAt := legacy.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = legacy.CreatedAt
	}

	return &models.Order{
		ID:           legacy.ID,
		CustomerID:   legacy.UserID,
		CustomerName: legacy.Name,
		Contact:      legacy.Contact,
		Address:      legacy.Address,
		ProductID:    legacy.ProductID,
		VariantID:    legacy.VariantID,
		Category:     legacy.Category,
		Quantity:     legacy.Quantity,
		Height:       legacy.Height,
		Width:        legacy.Width,
		HasFile:      legacy.HasFile,
		SolventTarp:  legacy.SolventTarp,
		Eyelets:      legacy.Eyelets,
		FileURL:      legacy.FileURL,
		LayoutURL:    legacy.LayoutURL,
		Total:        legacy.Total,
		Status:       status,
		CreatedAt:    legacy.CreatedAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func createBatches(orders []LegacyOrder, size int) [][]LegacyOrder {
	var batches [][]LegacyOrder
	for i := 0; i < len(orders); i += size {
		end := i + size
		if end > len(orders) {
			end = len(orders)
		}
		batches = append(batches, orders[i:end])
	}
	return batches
}

func formatDimension(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
