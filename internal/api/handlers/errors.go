package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"auction-marketplace/internal/domain"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{domain.ErrProductNotFound, http.StatusNotFound},
	{domain.ErrTransactionNotFound, http.StatusNotFound},
	{domain.ErrVoidRequestNotFound, http.StatusNotFound},

	{domain.ErrSelfBid, http.StatusForbidden},
	{domain.ErrNotSeller, http.StatusForbidden},
	{domain.ErrNotParty, http.StatusForbidden},
	{domain.ErrOwnVoidRequest, http.StatusForbidden},
	{domain.ErrOnlySellerChooses, http.StatusForbidden},
	{domain.ErrNotOfferee, http.StatusForbidden},

	{domain.ErrPendingVoidExists, http.StatusConflict},
	{domain.ErrAlreadyResolved, http.StatusConflict},
	{domain.ErrChoiceAlreadyMade, http.StatusConflict},
	{domain.ErrOfferNotPending, http.StatusConflict},
	{domain.ErrAlreadyClosed, http.StatusConflict},

	{domain.ErrVoidRateLimited, http.StatusTooManyRequests},
	{domain.ErrQueueUnavailable, http.StatusServiceUnavailable},

	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrInvalidAmount, http.StatusBadRequest},
	{domain.ErrInvalidAction, http.StatusBadRequest},
	{domain.ErrBidTooLow, http.StatusBadRequest},
	{domain.ErrBidTooHigh, http.StatusBadRequest},
	{domain.ErrProductUnavailable, http.StatusBadRequest},
	{domain.ErrProductInactive, http.StatusBadRequest},
	{domain.ErrAuctionEnded, http.StatusBadRequest},
	{domain.ErrAuctionClosing, http.StatusBadRequest},
	{domain.ErrNoBids, http.StatusBadRequest},
	{domain.ErrNotVoidable, http.StatusBadRequest},
	{domain.ErrVoidCooldown, http.StatusBadRequest},
	{domain.ErrNotApproved, http.StatusBadRequest},
	{domain.ErrNoSecondBidder, http.StatusBadRequest},
	{domain.ErrNoOffer, http.StatusBadRequest},
}

func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// writeError renders a domain error with its status. Unknown errors are
// logged and hidden behind a generic message.
func (h *MarketplaceHandler) writeError(c echo.Context, op string, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", "op", op, "path", c.Path(), "error", err)
		return c.JSON(status, map[string]interface{}{"error": "Internal server error"})
	}

	body := map[string]interface{}{"error": err.Error()}

	var amountErr *domain.BidAmountError
	if errors.As(err, &amountErr) {
		body["minimumBid"] = amountErr.MinimumBid
		body["maximumBid"] = amountErr.MaximumBid
		body["currentBid"] = amountErr.CurrentBid
	}
	var noSecond *domain.NoSecondBidderError
	if errors.As(err, &noSecond) {
		body["onlyOption"] = string(noSecond.OnlyOption)
	}

	h.log.Debug("Request rejected", "op", op, "status", status, "reason", err.Error())
	return c.JSON(status, body)
}
