package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	apimw "auction-marketplace/internal/api/middleware"
	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/services"
	"auction-marketplace/pkg/logger"
)

// TypingPublisher relays typing indicators to a listing's watchers.
type TypingPublisher interface {
	PublishTyping(productID, userID int64, isTyping bool)
}

type MarketplaceHandler struct {
	gateway  *services.BidGateway
	disputes *services.DisputeService
	listings *services.ListingService
	typing   TypingPublisher
	log      logger.Logger
}

func NewMarketplaceHandler(gateway *services.BidGateway, disputes *services.DisputeService,
	listings *services.ListingService, typing TypingPublisher, log logger.Logger) *MarketplaceHandler {
	return &MarketplaceHandler{
		gateway:  gateway,
		disputes: disputes,
		listings: listings,
		typing:   typing,
		log:      log,
	}
}

type SubmitBidRequest struct {
	ProductID int64   `json:"productId"`
	Amount    float64 `json:"amount"`
}

type AcceptBidRequest struct {
	ProductID int64 `json:"productId"`
}

type CreateVoidRequestRequest struct {
	TransactionID int64  `json:"transactionId"`
	Reason        string `json:"reason"`
}

type RespondVoidRequestRequest struct {
	VoidRequestID   int64  `json:"voidRequestId"`
	Action          string `json:"action"`
	RejectionReason string `json:"rejectionReason"`
}

type SellerChoiceRequest struct {
	VoidRequestID int64  `json:"voidRequestId"`
	Choice        string `json:"choice"`
}

type SecondBidderResponseRequest struct {
	VoidRequestID int64  `json:"voidRequestId"`
	Action        string `json:"action"`
}

type TypingRequest struct {
	ProductID int64 `json:"productId"`
	IsTyping  bool  `json:"isTyping"`
}

type CreateProductRequest struct {
	Title          string    `json:"title"`
	StartingPrice  float64   `json:"startingPrice"`
	BidInterval    float64   `json:"bidInterval"`
	AuctionEndDate time.Time `json:"auctionEndDate"`
}

type SubmitResponse struct {
	Status        string `json:"status"`
	JobID         string `json:"jobId"`
	BidID         int64  `json:"bidId,omitempty"`
	TransactionID int64  `json:"transactionId,omitempty"`
	Message       string `json:"message"`
}

func (h *MarketplaceHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	api := e.Group("/api/v1", apimw.RequireUser())
	api.POST("/bids", h.SubmitBid)
	api.POST("/bids/accept", h.AcceptBid)
	api.POST("/void-requests", h.CreateVoidRequest)
	api.POST("/void-requests/respond", h.RespondToVoidRequest)
	api.POST("/void-requests/seller-choice", h.SubmitSellerChoice)
	api.POST("/void-requests/second-bidder-response", h.RespondAsSecondBidder)
	api.GET("/void-requests/transaction/:transactionId", h.GetVoidRequestsForTransaction)
	api.POST("/typing", h.Typing)
	api.POST("/products", h.CreateProduct)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

func submitResponse(res *services.SubmitResult) (int, SubmitResponse) {
	body := SubmitResponse{
		JobID:         res.JobID,
		BidID:         res.BidID,
		TransactionID: res.TransactionID,
		Message:       res.Message,
	}
	if res.Queued {
		body.Status = "queued"
		return http.StatusAccepted, body
	}
	body.Status = "applied"
	return http.StatusOK, body
}

func (h *MarketplaceHandler) SubmitBid(c echo.Context) error {
	var req SubmitBidRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := h.gateway.SubmitBid(c.Request().Context(), req.ProductID, apimw.UserID(c), req.Amount)
	if err != nil {
		return h.writeError(c, "submit_bid", err)
	}
	status, body := submitResponse(res)
	return c.JSON(status, body)
}

func (h *MarketplaceHandler) AcceptBid(c echo.Context) error {
	var req AcceptBidRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := h.gateway.SubmitAcceptBid(c.Request().Context(), req.ProductID, apimw.UserID(c))
	if err != nil {
		return h.writeError(c, "accept_bid", err)
	}
	status, body := submitResponse(res)
	return c.JSON(status, body)
}

func (h *MarketplaceHandler) CreateVoidRequest(c echo.Context) error {
	var req CreateVoidRequestRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	vr, err := h.disputes.CreateVoidRequest(c.Request().Context(), apimw.UserID(c), req.TransactionID, req.Reason)
	if err != nil {
		return h.writeError(c, "create_void_request", err)
	}
	return c.JSON(http.StatusCreated, toVoidRequestView(vr))
}

func (h *MarketplaceHandler) RespondToVoidRequest(c echo.Context) error {
	var req RespondVoidRequestRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	vr, err := h.disputes.RespondToVoidRequest(c.Request().Context(), apimw.UserID(c), req.VoidRequestID,
		services.VoidResponse(req.Action), req.RejectionReason)
	if err != nil {
		return h.writeError(c, "respond_void_request", err)
	}
	return c.JSON(http.StatusOK, toVoidRequestView(vr))
}

func (h *MarketplaceHandler) SubmitSellerChoice(c echo.Context) error {
	var req SellerChoiceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	vr, err := h.disputes.SubmitSellerChoice(c.Request().Context(), apimw.UserID(c), req.VoidRequestID,
		domain.SellerChoice(req.Choice))
	if err != nil {
		return h.writeError(c, "seller_choice", err)
	}
	return c.JSON(http.StatusOK, toVoidRequestView(vr))
}

func (h *MarketplaceHandler) RespondAsSecondBidder(c echo.Context) error {
	var req SecondBidderResponseRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	vr, err := h.disputes.RespondAsSecondBidder(c.Request().Context(), apimw.UserID(c), req.VoidRequestID,
		services.OfferResponse(req.Action))
	if err != nil {
		return h.writeError(c, "second_bidder_response", err)
	}
	return c.JSON(http.StatusOK, toVoidRequestView(vr))
}

func (h *MarketplaceHandler) GetVoidRequestsForTransaction(c echo.Context) error {
	transactionID, err := strconv.ParseInt(c.Param("transactionId"), 10, 64)
	if err != nil || transactionID <= 0 {
		return badRequest(c, "Invalid transaction id")
	}

	list, err := h.disputes.GetVoidRequestsForTransaction(c.Request().Context(), apimw.UserID(c), transactionID)
	if err != nil {
		return h.writeError(c, "list_void_requests", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"voidRequests": toVoidRequestViews(list)})
}

func (h *MarketplaceHandler) Typing(c echo.Context) error {
	var req TypingRequest
	if err := c.Bind(&req); err != nil || req.ProductID <= 0 {
		return badRequest(c, "Invalid request body")
	}

	h.typing.PublishTyping(req.ProductID, apimw.UserID(c), req.IsTyping)
	return c.NoContent(http.StatusNoContent)
}

func (h *MarketplaceHandler) CreateProduct(c echo.Context) error {
	var req CreateProductRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	product, err := h.listings.CreateListing(c.Request().Context(), services.CreateListingRequest{
		SellerID:       apimw.UserID(c),
		Title:          req.Title,
		StartingPrice:  req.StartingPrice,
		BidInterval:    req.BidInterval,
		AuctionEndDate: req.AuctionEndDate,
	})
	if err != nil {
		return h.writeError(c, "create_product", err)
	}
	return c.JSON(http.StatusCreated, toProductView(product))
}

func (h *MarketplaceHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "marketplace-api",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
