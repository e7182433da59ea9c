package cart

import (
	"context"

	"github.com/angelmondragon/cartwatch/pkg/db/models"
	"gorm.io/gorm"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	CreateCart(ctx context.Context, cart *models.Cart) error
	FindCartByName(ctx context.Context, name string) (*models.Cart, error)
	FindCartByID(ctx context.Context, id int64, withOffers bool) (*models.Cart, error)
	ListCarts(ctx context.Context) ([]models.Cart, error)
	DeleteCart(ctx context.Context, id int64) (int64, error)
	CreateOffer(ctx context.Context, offer *models.Offer) error
	ListOffers(ctx context.Context, cartID int64) ([]models.Offer, error)
	DeleteOffersByCart(ctx context.Context, cartID int64) (int64, error)
	DeleteOffer(ctx context.Context, id int64) (int64, error)
}
