package api

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/pricing"
	"github.com/mmynk/storefront/internal/service"
)

// money renders d as a JSON number with exactly three decimals, e.g. 82.500.
func money(d decimal.Decimal) json.Number {
	return json.Number(pricing.Fixed(d))
}

type userJSON struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	CreatedAt int64       `json:"createdAt"`
}

func toUserJSON(u *models.User) *userJSON {
	if u == nil {
		return nil
	}
	return &userJSON{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

type productJSON struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Price       json.Number `json:"price"`
	Image       string      `json:"image"`
	Description string      `json:"description"`
	CategoryIDs []string    `json:"categoryIds"`
	CreatedAt   int64       `json:"createdAt"`
}

func toProductJSON(p *models.Product) productJSON {
	categories := p.CategoryIDs
	if categories == nil {
		categories = []string{}
	}
	return productJSON{
		ID:          p.ID,
		Name:        p.Name,
		Price:       money(p.Price),
		Image:       p.Image,
		Description: p.Description,
		CategoryIDs: categories,
		CreatedAt:   p.CreatedAt,
	}
}

type categoryJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// cartLineJSON is one row of GET /cart/user.
type cartLineJSON struct {
	ProductID   string      `json:"productId"`
	ProductName string      `json:"productName"`
	Price       json.Number `json:"price"`
	Quantity    int         `json:"quantity"`
	Image       string      `json:"image"`
}

type cartDetailsResponse struct {
	Success              bool           `json:"success"`
	CartID               string         `json:"cartId,omitempty"`
	CartDetails          []cartLineJSON `json:"cartDetails"`
	DiscountedPrice      json.Number    `json:"discountedPrice"`
	PriceWithoutDiscount json.Number    `json:"priceWithoutDiscount"`
	DiscountApplied      bool           `json:"discountApplied"`
	DiscountLabel        string         `json:"discountLabel"`
}

func toCartDetailsResponse(s *service.CartSummary, policy pricing.Policy) cartDetailsResponse {
	resp := cartDetailsResponse{
		Success:              true,
		CartDetails:          make([]cartLineJSON, 0, len(s.Lines)),
		DiscountedPrice:      money(s.Quote.Total),
		PriceWithoutDiscount: money(s.Quote.Subtotal),
		DiscountApplied:      s.Quote.DiscountApplied,
		DiscountLabel:        policy.Label(),
	}
	if s.Cart != nil {
		resp.CartID = s.Cart.ID
	}
	for _, l := range s.Lines {
		resp.CartDetails = append(resp.CartDetails, cartLineJSON{
			ProductID:   l.Product.ID,
			ProductName: l.Product.Name,
			Price:       money(l.Product.Price),
			Quantity:    l.Line.Quantity,
			Image:       l.Product.Image,
		})
	}
	return resp
}

type cartJSON struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt int64     `json:"createdAt"`
	PaidAt    *int64    `json:"paidAt"`
	User      *userJSON `json:"user"`
}

type reportLineJSON struct {
	Product  productJSON `json:"product"`
	Quantity int         `json:"quantity"`
}

type paidCartJSON struct {
	Cart                 cartJSON         `json:"cart"`
	Products             []reportLineJSON `json:"products"`
	DiscountedPrice      json.Number      `json:"discountedPrice"`
	PriceWithoutDiscount json.Number      `json:"priceWithoutDiscount"`
}

type paidCartsResponse struct {
	Success bool           `json:"success"`
	Carts   []paidCartJSON `json:"carts"`
}

func toPaidCartsResponse(reports []service.PaidCartReport) paidCartsResponse {
	resp := paidCartsResponse{Success: true, Carts: make([]paidCartJSON, 0, len(reports))}
	for _, r := range reports {
		entry := paidCartJSON{
			Cart: cartJSON{
				ID:        r.Cart.ID,
				UserID:    r.Cart.UserID,
				CreatedAt: r.Cart.CreatedAt,
				PaidAt:    r.Cart.PaidAt,
				User:      toUserJSON(r.Owner),
			},
			Products:             make([]reportLineJSON, 0, len(r.Lines)),
			DiscountedPrice:      money(r.Quote.Total),
			PriceWithoutDiscount: money(r.Quote.Subtotal),
		}
		for _, l := range r.Lines {
			entry.Products = append(entry.Products, reportLineJSON{
				Product:  toProductJSON(&l.Product),
				Quantity: l.Line.Quantity,
			})
		}
		resp.Carts = append(resp.Carts, entry)
	}
	return resp
}

// Request bodies. Pointer fields distinguish "missing" from zero so a
// quantity of 0 reaches the service and is reported as InvalidQuantity.

type affectProductRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  *int   `json:"quantity" binding:"required"`
}

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authenticateRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type modifyUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email" binding:"omitempty,email"`
}

type modifyPasswordRequest struct {
	OldPassword     string `json:"oldPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

type productRequest struct {
	Name        string           `json:"name" binding:"required"`
	Price       *decimal.Decimal `json:"price" binding:"required"`
	Image       string           `json:"image" binding:"required"`
	Description string           `json:"description"`
	CategoryIDs []string         `json:"categoryIds"`
}

func (r productRequest) input() service.ProductInput {
	return service.ProductInput{
		Name:        r.Name,
		Price:       *r.Price,
		Image:       r.Image,
		Description: r.Description,
		CategoryIDs: r.CategoryIDs,
	}
}

type categoryRequest struct {
	Name string `json:"name" binding:"required"`
}
