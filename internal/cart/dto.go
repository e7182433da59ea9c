package cart

import (
	"time"

	"github.com/angelmondragon/cartwatch/pkg/db/models"
	"github.com/shopspring/decimal"
)

// DefaultCartName is used when an offer is added without naming a cart.
const DefaultCartName = "default_cart"

// OfferInput carries the fields submitted for a new offer.
type OfferInput struct {
	CartName string  `json:"cart_name" validate:"max=80"`
	Name     string  `json:"name" validate:"required,max=200"`
	Price    string  `json:"price" validate:"required,max=20"`
	Image    *string `json:"image" validate:"omitempty,max=200"`
	Link     string  `json:"link" validate:"required,max=200"`
}

type cartNameInput struct {
	Name string `json:"name" validate:"required,max=80"`
}

// CartView bundles a cart with its offers and their summed price.
type CartView struct {
	Cart  *models.Cart
	Total decimal.Decimal
}

type CartDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type OfferDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Image     *string   `json:"image,omitempty"`
	Link      string    `json:"link"`
	CartID    int64     `json:"cart_id"`
	CreatedAt time.Time `json:"created_at"`
}

type CartViewDTO struct {
	CartDTO
	Offers []OfferDTO      `json:"offers"`
	Total  decimal.Decimal `json:"total"`
}

func ToCartDTO(cart *models.Cart) CartDTO {
	return CartDTO{ID: cart.ID, Name: cart.Name, CreatedAt: cart.CreatedAt}
}

func ToOfferDTO(offer *models.Offer) OfferDTO {
	return OfferDTO{
		ID:        offer.ID,
		Name:      offer.Name,
		Price:     offer.Price,
		Image:     offer.Image,
		Link:      offer.Link,
		CartID:    offer.CartID,
		CreatedAt: offer.CreatedAt,
	}
}

func ToOfferDTOs(offers []models.Offer) []OfferDTO {
	out := make([]OfferDTO, 0, len(offers))
	for i := range offers {
		out = append(out, ToOfferDTO(&offers[i]))
	}
	return out
}

func ToCartViewDTO(view *CartView) CartViewDTO {
	return CartViewDTO{
		CartDTO: ToCartDTO(view.Cart),
		Offers:  ToOfferDTOs(view.Cart.Offers),
		Total:   view.Total,
	}
}
