package backfill

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nvago/printshop/pkg/models"
)

type fakeStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]*models.Order)}
}

func (f *fakeStore) SaveOrder(order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[order.ID] = order
	return nil
}

func (f *fakeStore) GetOrder(id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[id]; ok {
		return o, nil
	}
	return nil, sql.ErrNoRows
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestMapLegacyOrder(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		legacy  LegacyOrder
		wantErr bool
	}{
		{
			name: "valid_record",
			legacy: LegacyOrder{
				ID:        "ord-1",
				UserID:    "cust-1",
				Name:      "Maria Santos",
				Status:    "Printing",
				CreatedAt: created,
			},
		},
		{
			name: "denied_status_maps",
			legacy: LegacyOrder{
				ID:        "ord-2",
				Status:    "Denied",
				CreatedAt: created,
			},
		},
		{
			name:    "missing_id",
			legacy:  LegacyOrder{Status: "Validation"},
			wantErr: true,
		},
		{
			name:    "unknown_status",
			legacy:  LegacyOrder{ID: "ord-3", Status: "Shipped"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := MapLegacyOrder(&tt.legacy)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if order.ID != tt.legacy.ID {
				t.Errorf("ID = %q, want %q", order.ID, tt.legacy.ID)
			}
			if string(order.Status) != tt.legacy.Status {
				t.Errorf("Status = %q, want %q", order.Status, tt.legacy.Status)
			}
			if !order.UpdatedAt.Equal(created) {
				t.Errorf("UpdatedAt should fall back to CreatedAt, got %v", order.UpdatedAt)
			}
		})
	}
}

func TestCreateBatches(t *testing.T) {
	tests := []struct {
		name        string
		count       int
		size        int
		wantBatches int
		wantLast    int
	}{
		{"even_split", 100, 50, 2, 50},
		{"remainder", 101, 50, 3, 1},
		{"single_batch", 10, 50, 1, 10},
		{"empty", 0, 50, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := make([]LegacyOrder, tt.count)
			batches := createBatches(orders, tt.size)
			if len(batches) != tt.wantBatches {
				t.Fatalf("Got %d batches, want %d", len(batches), tt.wantBatches)
			}
			if tt.wantBatches > 0 && len(batches[len(batches)-1]) != tt.wantLast {
				t.Errorf("Last batch size = %d, want %d", len(batches[len(batches)-1]), tt.wantLast)
			}
		})
	}
}

func TestImport(t *testing.T) {
	export := `[
		{"id": "ord-1", "user_id": "cust-1", "name": "Maria Santos", "status": "Validation", "category": "Mug", "quantity": 2, "total": 200, "created_at": "2024-03-01T10:00:00Z"},
		{"id": "ord-2", "user_id": "cust-2", "name": "Jose Reyes", "status": "Finished", "category": "Tarp", "quantity": 1, "height": 3, "width": 4, "total": 480, "created_at": "2024-02-01T10:00:00Z"},
		{"id": "ord-3", "user_id": "cust-3", "name": "Bad Row", "status": "Shipped", "created_at": "2024-02-01T10:00:00Z"}
	]`

	store := newFakeStore()
	importer := NewImporter(store, Config{BatchSize: 2, Concurrency: 2, SkipExisting: true}, testLogger())

	result, err := importer.Import(context.Background(), strings.NewReader(export))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if result.TotalOrders != 3 {
		t.Errorf("TotalOrders = %d, want 3", result.TotalOrders)
	}
	if result.Imported != 2 {
		t.Errorf("Imported = %d, want 2", result.Imported)
	}
	if result.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}
	if len(store.orders) != 2 {
		t.Errorf("Store holds %d orders, want 2", len(store.orders))
	}

	// Re-running skips everything already imported.
	result, err = importer.Import(context.Background(), strings.NewReader(export))
	if err != nil {
		t.Fatalf("Second import failed: %v", err)
	}
	if result.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", result.Skipped)
	}
	if result.Imported != 0 {
		t.Errorf("Imported = %d, want 0 on re-run", result.Imported)
	}
}

func TestPriceDriftDetection(t *testing.T) {
	// One copy of the old client-side pricing omitted the layout fee; records
	// it produced no longer match the engine.
	export := `[
		{"id": "ord-1", "user_id": "cust-1", "name": "Ana Cruz", "status": "Finished", "category": "Mug", "quantity": 2, "retail_price": 100, "has_file": true, "total": 200, "created_at": "2024-01-01T10:00:00Z"},
		{"id": "ord-2", "user_id": "cust-2", "name": "Leo Tan", "status": "Finished", "category": "Mug", "quantity": 2, "retail_price": 100, "total": 200, "created_at": "2024-01-02T10:00:00Z"}
	]`

	store := newFakeStore()
	importer := NewImporter(store, Config{}, testLogger())

	result, err := importer.Import(context.Background(), strings.NewReader(export))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.PriceDrift != 1 {
		t.Errorf("PriceDrift = %d, want 1 (ord-2 is missing the layout fee)", result.PriceDrift)
	}
	if result.Imported != 2 {
		t.Errorf("Imported = %d, want 2 (drift does not block import)", result.Imported)
	}
}

func TestImportDryRun(t *testing.T) {
	export := `[{"id": "ord-1", "user_id": "cust-1", "name": "Maria Santos", "status": "Validation", "quantity": 1, "created_at": "2024-03-01T10:00:00Z"}]`

	store := newFakeStore()
	importer := NewImporter(store, Config{DryRun: true}, testLogger())

	result, err := importer.Import(context.Background(), strings.NewReader(export))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("Imported = %d, want 1", result.Imported)
	}
	if len(store.orders) != 0 {
		t.Errorf("Dry run must not write, store holds %d orders", len(store.orders))
	}
}
