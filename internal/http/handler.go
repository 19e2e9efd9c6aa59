package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/agro-contracts/internal/http/middleware"
	"github.com/nurpe/agro-contracts/internal/model"
	"github.com/nurpe/agro-contracts/internal/service"
)

type Handler struct {
	contracts     *service.ContractService
	notifications *service.NotificationService
	listings      *service.ListingService
	documents     *service.DocumentService
	log           zerolog.Logger
}

func NewHandler(
	contracts *service.ContractService,
	notifications *service.NotificationService,
	listings *service.ListingService,
	documents *service.DocumentService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		contracts:     contracts,
		notifications: notifications,
		listings:      listings,
		documents:     documents,
		log:           log.With().Str("component", "http").Logger(),
	}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc, ws gin.HandlerFunc) {
	api := router.Group("/api/v1")
	api.Use(authMiddleware)

	contracts := api.Group("/contracts")
	contracts.POST("", h.createContract)
	contracts.GET("", h.listContracts)
	contracts.GET("/export", h.exportContracts)
	contracts.GET("/notifications", h.listNotifications)
	contracts.PATCH("/notifications/:id/read", h.markNotificationRead)
	contracts.GET("/:id", h.getContract)
	contracts.GET("/:id/pdf", h.contractPDF)
	contracts.PATCH("/:id/accept", h.acceptContract)
	contracts.PATCH("/:id/dismiss", h.dismissContract)
	contracts.POST("/:id/payment", h.initiatePayment)
	contracts.POST("/:id/verify-payment", h.verifyPayment)

	items := api.Group("/market-items")
	items.POST("", h.addMarketItem)
	items.GET("", h.listMyMarketItems)
	items.GET("/all", h.listAllMarketItems)
	items.DELETE("/:id", h.deleteMarketItem)

	if ws != nil {
		api.GET("/ws", ws)
	}
}

type createContractRequest struct {
	FarmerUsername string  `json:"farmerUsername"`
	Crop           string  `json:"crop"`
	Price          float64 `json:"price"`
	AgreementDate  string  `json:"agreementDate"`
	DeliveryDate   string  `json:"deliveryDate"`
	Terms          string  `json:"terms"`
	BuyerSignature string  `json:"buyerSignature"`
	MarketItemID   string  `json:"marketItemId"`
}

func (h *Handler) createContract(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.CreateContractInput{
		Principal:      principal,
		FarmerUsername: strings.TrimSpace(req.FarmerUsername),
		Crop:           req.Crop,
		Price:          req.Price,
		Terms:          req.Terms,
		BuyerSignature: req.BuyerSignature,
	}
	if raw := strings.TrimSpace(req.MarketItemID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, "Invalid marketItemId format")
			return
		}
		input.MarketItemID = id
	}
	if strings.TrimSpace(req.AgreementDate) != "" {
		date, err := parseDate(req.AgreementDate)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid agreementDate")
			return
		}
		input.AgreementDate = date
	}
	if strings.TrimSpace(req.DeliveryDate) != "" {
		date, err := parseDate(req.DeliveryDate)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid deliveryDate")
			return
		}
		input.DeliveryDate = date
	}

	result, err := h.contracts.Create(c.Request.Context(), input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":        true,
		"contractId":     result.ContractID,
		"contractNumber": result.ContractNumber,
		"status":         result.Status,
	})
}

func (h *Handler) listContracts(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	contracts, err := h.contracts.ListForUser(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "contracts": contracts})
}

func (h *Handler) getContract(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	contract, err := h.contracts.Get(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "contract": contract})
}

type acceptContractRequest struct {
	FarmerSignature string `json:"farmerSignature"`
}

func (h *Handler) acceptContract(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req acceptContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Farmer signature is required")
		return
	}
	result, err := h.contracts.Accept(c.Request.Context(), principal, id, req.FarmerSignature)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"message":         "Contract accepted successfully",
		"paymentDeadline": result.PaymentDeadline,
	})
}

func (h *Handler) dismissContract(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.contracts.Dismiss(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Contract dismissed"})
}

func (h *Handler) initiatePayment(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.contracts.InitiatePayment(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

type verifyPaymentRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

func (h *Handler) verifyPayment(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Missing payment details")
		return
	}
	err := h.contracts.VerifyPayment(c.Request.Context(), principal, id, service.VerifyPaymentInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment verified successfully"})
}

func (h *Handler) listNotifications(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	notifications, err := h.notifications.List(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "notifications": notifications})
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Notification marked as read"})
}

func (h *Handler) contractPDF(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	doc, err := h.documents.ContractPDF(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+doc.Filename+"\"")
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

func (h *Handler) exportContracts(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	doc, err := h.documents.Register(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+doc.Filename+"\"")
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

type addMarketItemRequest struct {
	Crop     string `json:"crop"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

func (h *Handler) addMarketItem(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req addMarketItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "All fields are required")
		return
	}
	item, err := h.listings.Add(c.Request.Context(), service.AddListingInput{
		Principal: principal,
		Crop:      req.Crop,
		Quantity:  req.Quantity,
		Price:     req.Price,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "item": item})
}

func (h *Handler) listMyMarketItems(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	items, err := h.listings.ListMine(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "items": items})
}

func (h *Handler) listAllMarketItems(c *gin.Context) {
	items, err := h.listings.ListAll(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "items": items})
}

func (h *Handler) deleteMarketItem(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.listings.DeleteMine(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Item deleted"})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		fail(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrInvalidSignature):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrContractNumberExhausted):
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		fail(c, http.StatusInternalServerError, service.ErrContractNumberExhausted.Error())
	case errors.Is(err, service.ErrUpstream):
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		fail(c, http.StatusInternalServerError, "Failed to initiate payment")
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		fail(c, http.StatusInternalServerError, "internal error")
	}
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

func principalOrAbort(c *gin.Context) (model.Principal, bool) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		fail(c, http.StatusUnauthorized, "Authenticated user not found")
	}
	return principal, ok
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid ID format")
		return uuid.Nil, false
	}
	return id, true
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, service.ErrInvalidInput
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, service.ErrInvalidInput
}
