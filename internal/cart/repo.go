package cart

import (
	"context"

	"github.com/angelmondragon/cartwatch/pkg/db/models"
	"gorm.io/gorm"
)

// Repository exposes persistence operations for carts and offers.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CreateCart inserts a cart. A duplicate name surfaces as the driver's unique violation.
func (r *Repository) CreateCart(ctx context.Context, cart *models.Cart) error {
	return r.db.WithContext(ctx).Omit("Offers").Create(cart).Error
}

// FindCartByName loads a cart by its unique name.
func (r *Repository) FindCartByName(ctx context.Context, name string) (*models.Cart, error) {
	var cart models.Cart
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindCartByID loads a cart, optionally with its offers in insertion order.
func (r *Repository) FindCartByID(ctx context.Context, id int64, withOffers bool) (*models.Cart, error) {
	var cart models.Cart
	query := r.db.WithContext(ctx)
	if withOffers {
		query = query.Preload("Offers", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		})
	}
	if err := query.Where("id = ?", id).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// ListCarts returns every cart ordered by identifier.
func (r *Repository) ListCarts(ctx context.Context) ([]models.Cart, error) {
	var carts []models.Cart
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&carts).Error; err != nil {
		return nil, err
	}
	return carts, nil
}

// DeleteCart removes the cart row and reports how many rows were affected.
func (r *Repository) DeleteCart(ctx context.Context, id int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Cart{})
	return res.RowsAffected, res.Error
}

// CreateOffer inserts an offer for an existing cart.
func (r *Repository) CreateOffer(ctx context.Context, offer *models.Offer) error {
	return r.db.WithContext(ctx).Create(offer).Error
}

// ListOffers returns the offers of a cart in insertion order.
func (r *Repository) ListOffers(ctx context.Context, cartID int64) ([]models.Offer, error) {
	var offers []models.Offer
	if err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Order("id ASC").Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}

// DeleteOffersByCart removes every offer owned by the cart.
func (r *Repository) DeleteOffersByCart(ctx context.Context, cartID int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.Offer{})
	return res.RowsAffected, res.Error
}

// DeleteOffer removes a single offer.
func (r *Repository) DeleteOffer(ctx context.Context, id int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Offer{})
	return res.RowsAffected, res.Error
}
