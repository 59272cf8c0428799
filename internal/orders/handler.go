package orders

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nvago/printshop/internal/pricing"
	"github.com/nvago/printshop/internal/redisx"
	"github.com/nvago/printshop/internal/workflow"
	"github.com/nvago/printshop/pkg/models"
)

// OrderStore is the persistence surface the handler needs.
type OrderStore interface {
	SaveOrder(order *models.Order) error
	GetOrder(id string) (*models.Order, error)
	ListOrders(status string) ([]models.Order, error)
	GetOrderStatus(id string) (workflow.Status, error)
	UpdateStatus(id string, status workflow.Status, layoutURL string) error
	ArchiveConversation(orderID string) error
	CreateProduct(product *models.Product) error
	GetProduct(id string) (*models.Product, error)
	GetVariant(id string) (*models.Variant, error)
	ListProducts() ([]models.Product, error)
}

// FeedBroadcaster pushes order changes to connected clients.
type FeedBroadcaster interface {
	BroadcastOrderCreated(order *models.Order)
	BroadcastStatusChanged(orderID, from, to string)
}

// Publisher is the Kafka-facing side of the handler.
type Publisher interface {
	PublishOrderCreated(order *models.Order) error
	PublishApprovalRequested(order *models.Order, layoutURL string) error
	PublishPickupReady(order *models.Order) error
	PublishOrderFinished(order *models.Order) error
}

type Handler struct {
	store     OrderStore
	publisher Publisher
	cache     *redis.Client
	feed      FeedBroadcaster
	logger    *logrus.Logger
}

func NewHandler(store OrderStore, publisher Publisher, cache *redis.Client, logger *logrus.Logger) *Handler {
	return &Handler{
		store:     store,
		publisher: publisher,
		cache:     cache,
		logger:    logger,
	}
}

func (h *Handler) SetFeed(feed FeedBroadcaster) {
	h.feed = feed
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/products", h.ListProducts).Methods("GET")
	r.HandleFunc("/products", h.CreateProduct).Methods("POST")
	r.HandleFunc("/quotes", h.Quote).Methods("POST")
	r.HandleFunc("/orders", h.CreateOrder).Methods("POST")
	r.HandleFunc("/orders", h.ListOrders).Methods("GET")
	r.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET")
	r.HandleFunc("/orders/{id}/status", h.GetOrderStatus).Methods("GET")
	r.HandleFunc("/orders/{id}/status", h.UpdateOrderStatus).Methods("PUT")
	r.HandleFunc("/orders/{id}/approval", h.SendApproval).Methods("POST")
}

// DraftRequest is the order form as submitted by the mobile app, the customer
// web app or the admin console. Quantity, height and width are raw strings so
// half-typed input prices as "not yet provided" rather than erroring.
type DraftRequest struct {
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	Contact      string `json:"contact"`
	Address      string `json:"address"`
	ProductID    string `json:"product_id"`
	VariantID    string `json:"variant_id"`
	Quantity     string `json:"quantity"`
	Height       string `json:"height"`
	Width        string `json:"width"`
	HasFile      bool   `json:"has_file"`
	SolventTarp  bool   `json:"solvent_tarp"`
	Eyelets      int    `json:"eyelets"`
	FileURL      string `json:"file_url"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type approvalRequest struct {
	LayoutURL string `json:"layout_url"`
}

// Quote prices a draft without persisting anything. All three client apps use
// this for the live total, so the pricing rules exist in exactly one place.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	draft, _, err := h.buildDraft(&req)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, pricing.Compute(*draft))
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode order request")
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	draft, product, err := h.buildDraft(&req)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Clients run the same engine for live feedback; this is the
	// authoritative recomputation at submit time.
	quote := pricing.Compute(*draft)
	if !quote.FormValid {
		message := quote.DimError
		if message == "" {
			message = "Order form is incomplete or invalid"
		}
		h.respondWithError(w, http.StatusUnprocessableEntity, message)
		return
	}

	// Persist the same numbers the gate admitted; the raw field may carry
	// whitespace the engine's parser tolerates.
	quantity, _ := pricing.ParseQuantity(req.Quantity)
	height, width := parsedDimensions(draft)

	now := time.Now()
	order := &models.Order{
		ID:           uuid.New().String(),
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
		Contact:      req.Contact,
		Address:      req.Address,
		ProductID:    req.ProductID,
		VariantID:    req.VariantID,
		Category:     product.Category,
		Quantity:     quantity,
		Height:       height,
		Width:        width,
		HasFile:      req.HasFile,
		SolventTarp:  req.SolventTarp,
		Eyelets:      req.Eyelets,
		FileURL:      req.FileURL,
		Total:        quote.Total,
		Status:       workflow.StatusValidation,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.store.SaveOrder(order); err != nil {
		h.logger.WithError(err).Error("Failed to save order")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to save order")
		return
	}

	h.cacheStatus(r, order.ID, order.Status)

	if err := h.publisher.PublishOrderCreated(order); err != nil {
		h.logger.WithError(err).Error("Failed to publish order created event")
		// The order is saved; event delivery failures must not fail the request.
	}

	if h.feed != nil {
		h.feed.BroadcastOrderCreated(order)
	}

	h.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"category":    order.Category,
		"total":       order.Total,
	}).Info("Order created")

	h.respondWithJSON(w, http.StatusCreated, models.OrderResponse{
		Success: true,
		Message: "Order placed",
		Order:   order,
	})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !workflow.Valid(workflow.Status(status)) {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("unknown status '%s'", status))
		return
	}

	orders, err := h.store.ListOrders(status)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list orders")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	h.respondWithJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	order, err := h.store.GetOrder(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		h.logger.WithError(err).Error("Failed to fetch order")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to fetch order")
		return
	}
	h.respondWithJSON(w, http.StatusOK, order)
}

func (h *Handler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	if h.cache != nil {
		if cached, err := h.cache.Get(r.Context(), key).Result(); err == nil && cached != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(cached))
			return
		}
	}

	status, err := h.store.GetOrderStatus(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		h.logger.WithError(err).Error("Failed to fetch order status")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to fetch order status")
		return
	}

	h.cacheStatus(r, id, status)
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// UpdateOrderStatus is the employee console's transition action. Inadmissible
// requests are rejected before any write or side effect.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.transition(w, r, id, workflow.Status(req.Status), "")
}

// SendApproval is the approval-send action: the employee attaches the layout
// file and the order moves to Layout Approval, notifying the customer.
func (h *Handler) SendApproval(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.LayoutURL == "" {
		h.respondWithError(w, http.StatusBadRequest, "layout_url is required")
		return
	}

	h.transition(w, r, id, workflow.StatusLayoutApproval, req.LayoutURL)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, id string, target workflow.Status, layoutURL string) {
	order, err := h.store.GetOrder(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		h.logger.WithError(err).Error("Failed to fetch order")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to fetch order")
		return
	}

	if err := workflow.Transition(order.Status, target); err != nil {
		h.logger.WithFields(logrus.Fields{
			"order_id": id,
			"from":     order.Status,
			"to":       target,
		}).Warn("Status transition rejected")
		h.respondWithError(w, http.StatusConflict, err.Error())
		return
	}

	if order.Status == target {
		if layoutURL != "" {
			// Re-sending a corrected layout: the status stays put but the new
			// file must be persisted and the customer asked again.
			h.resendApproval(w, order, layoutURL)
			return
		}
		// Legal no-op, nothing to write and no effects to fire.
		h.respondWithJSON(w, http.StatusOK, models.OrderResponse{
			Success: true,
			Message: "Order already in requested status",
			Order:   order,
		})
		return
	}

	from := order.Status
	if err := h.store.UpdateStatus(id, target, layoutURL); err != nil {
		h.logger.WithError(err).Error("Failed to update order status")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to update order status")
		return
	}

	order.Status = target
	if layoutURL != "" {
		order.LayoutURL = layoutURL
	}
	order.UpdatedAt = time.Now()

	h.applyEffects(order, layoutURL)
	h.cacheStatus(r, id, target)

	if h.feed != nil {
		h.feed.BroadcastStatusChanged(id, string(from), string(target))
	}

	h.logger.WithFields(logrus.Fields{
		"order_id": id,
		"from":     from,
		"to":       target,
	}).Info("Order status updated")

	h.respondWithJSON(w, http.StatusOK, models.OrderResponse{
		Success: true,
		Message: fmt.Sprintf("Order moved to '%s'", target),
		Order:   order,
	})
}

func (h *Handler) resendApproval(w http.ResponseWriter, order *models.Order, layoutURL string) {
	if err := h.store.UpdateStatus(order.ID, order.Status, layoutURL); err != nil {
		h.logger.WithError(err).Error("Failed to update layout file")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to update layout file")
		return
	}

	order.LayoutURL = layoutURL
	order.UpdatedAt = time.Now()

	if err := h.publisher.PublishApprovalRequested(order, layoutURL); err != nil {
		h.logger.WithError(err).WithField("order_id", order.ID).
			Error("Failed to publish approval request")
	}

	h.logger.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"layout_url": layoutURL,
	}).Info("Approval request re-sent")

	h.respondWithJSON(w, http.StatusOK, models.OrderResponse{
		Success: true,
		Message: "Approval request re-sent",
		Order:   order,
	})
}

// applyEffects fires the notifications implied by entering a status. Delivery
// failures are logged, not surfaced: the transition is already committed.
func (h *Handler) applyEffects(order *models.Order, layoutURL string) {
	for _, effect := range workflow.Effects(order.Status) {
		var err error
		switch effect {
		case workflow.EffectRequestApproval:
			if layoutURL == "" {
				layoutURL = order.LayoutURL
			}
			err = h.publisher.PublishApprovalRequested(order, layoutURL)
		case workflow.EffectNotifyPickupReady:
			err = h.publisher.PublishPickupReady(order)
		case workflow.EffectNotifyFinished:
			err = h.publisher.PublishOrderFinished(order)
		case workflow.EffectArchiveConversation:
			err = h.store.ArchiveConversation(order.ID)
		}
		if err != nil {
			h.logger.WithError(err).WithFields(logrus.Fields{
				"order_id": order.ID,
				"effect":   effect,
			}).Error("Failed to apply transition side effect")
		}
	}
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list products")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to list products")
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	h.respondWithJSON(w, http.StatusOK, products)
}

// CreateProduct is the admin console's catalog maintenance action.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var product models.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if product.Name == "" || product.Category == "" {
		h.respondWithError(w, http.StatusBadRequest, "name and category are required")
		return
	}

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now()
	}
	for i := range product.Variants {
		if product.Variants[i].ID == "" {
			product.Variants[i].ID = uuid.New().String()
		}
		product.Variants[i].ProductID = product.ID
	}

	if err := h.store.CreateProduct(&product); err != nil {
		h.logger.WithError(err).Error("Failed to create product")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to create product")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"product_id": product.ID,
		"category":   product.Category,
		"variants":   len(product.Variants),
	}).Info("Product created")

	h.respondWithJSON(w, http.StatusCreated, product)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "orderd",
	})
}

// buildDraft resolves the catalog references in a request and assembles the
// pricing engine's input.
func (h *Handler) buildDraft(req *DraftRequest) (*pricing.Draft, *models.Product, error) {
	if req.ProductID == "" {
		return nil, nil, errors.New("product_id is required")
	}

	product, err := h.store.GetProduct(req.ProductID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, errors.New("unknown product")
		}
		return nil, nil, fmt.Errorf("failed to load product: %w", err)
	}

	var variant *pricing.Variant
	if req.VariantID != "" {
		v, err := h.store.GetVariant(req.VariantID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, errors.New("unknown variant")
			}
			return nil, nil, fmt.Errorf("failed to load variant: %w", err)
		}
		if v.ProductID != product.ID {
			return nil, nil, errors.New("variant does not belong to product")
		}
		variant = &pricing.Variant{
			RetailPrice:    v.RetailPrice,
			WholesalePrice: v.WholesalePrice,
		}
	}

	return &pricing.Draft{
		Category:     product.Category,
		Variant:      variant,
		Quantity:     req.Quantity,
		Height:       req.Height,
		Width:        req.Width,
		HasFile:      req.HasFile,
		SolventTarp:  req.SolventTarp,
		Eyelets:      req.Eyelets,
		CustomerName: req.CustomerName,
		Contact:      req.Contact,
		Address:      req.Address,
		HasVariants:  len(product.Variants) > 0,
		FileAttached: req.FileURL != "",
		MinQtyTen:    product.MinQtyTen,
	}, product, nil
}

func parsedDimensions(draft *pricing.Draft) (float64, float64) {
	height, _ := pricing.ParseDecimal(draft.Height)
	width, _ := pricing.ParseDecimal(draft.Width)
	return height, width
}

func (h *Handler) cacheStatus(r *http.Request, id string, status workflow.Status) {
	if h.cache == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	body, _ := json.Marshal(map[string]string{"status": string(status)})
	if err := h.cache.Set(r.Context(), key, body, redisx.TTLStatusCache).Err(); err != nil {
		h.logger.WithError(err).Debug("Failed to cache order status")
	}
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"message": message,
	})
}
