package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"paygate/internal/domain"
	"paygate/internal/service"
)

// CartHandler handles HTTP requests for carts.
type CartHandler struct {
	cartService *service.CartService
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(cartService *service.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

// CartItemRequest is one line of the cart payload.
type CartItemRequest struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Qty   int             `json:"qty"`
}

// CartResponse is the HTTP response for a received cart.
type CartResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	CartID  string `json:"cartId"`
	Total   string `json:"total"`
}

// ReceiveCart handles POST /cart
func (h *CartHandler) ReceiveCart(c *gin.Context) {
	var req []CartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "InvalidCart", "Invalid cart data")
		return
	}

	items := make([]domain.CartItem, 0, len(req))
	for _, item := range req {
		price, err := domain.AmountFromDecimal(item.Price)
		if err != nil {
			respondError(c, err)
			return
		}
		items = append(items, domain.CartItem{ID: item.ID, Name: item.Name, Price: price, Qty: item.Qty})
	}
	if req == nil {
		items = nil
	}

	cart, err := h.cartService.ReceiveCart(c.Request.Context(), items)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CartResponse{
		Success: true,
		Message: "Cart received successfully",
		CartID:  cart.ID,
		Total:   cart.Total().String(),
	})
}
