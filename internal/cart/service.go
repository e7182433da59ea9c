package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/cartwatch/pkg/db"
	"github.com/angelmondragon/cartwatch/pkg/db/models"
	pkgerrors "github.com/angelmondragon/cartwatch/pkg/errors"
	"github.com/angelmondragon/cartwatch/pkg/logger"
	"github.com/angelmondragon/cartwatch/pkg/price"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ensureAttempts bounds the find/create loop when concurrent callers race on one name.
const ensureAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service mediates every cart and offer mutation.
type Service interface {
	EnsureCart(ctx context.Context, name string) (*models.Cart, error)
	CreateCart(ctx context.Context, name string) (*models.Cart, error)
	AddOffer(ctx context.Context, input OfferInput) (*models.Offer, error)
	ListCarts(ctx context.Context) ([]models.Cart, error)
	GetCart(ctx context.Context, id int64) (*models.Cart, error)
	GetCartView(ctx context.Context, id int64) (*CartView, error)
	ListOffers(ctx context.Context, cartID int64) ([]models.Offer, error)
	CartTotal(cart *models.Cart) (decimal.Decimal, error)
	DeleteCart(ctx context.Context, id int64) error
	DeleteOffer(ctx context.Context, id int64) error
}

type service struct {
	repo CartRepository
	tx   txRunner
	logg *logger.Logger
}

// NewService builds a cart service backed by the provided repository and transaction runner.
func NewService(repo CartRepository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

// EnsureCart returns the cart with the given name, creating it when absent.
// The unique constraint on carts.name arbitrates concurrent creators; a loser
// re-reads the winner's row.
func (s *service) EnsureCart(ctx context.Context, name string) (*models.Cart, error) {
	name = strings.TrimSpace(name)
	if err := validateInput(cartNameInput{Name: name}); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < ensureAttempts; attempt++ {
		cart, created, err := findOrCreateCart(ctx, s.repo, name)
		if err == nil {
			if created {
				s.logg.Info(s.logg.WithCartID(ctx, cart.ID), "cart created")
			}
			return cart, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "ensure cart")
		}
		s.logg.Debug(s.logg.WithField(ctx, "attempt", attempt+1), "cart name taken concurrently; re-reading")
	}

	return nil, cartRaceConflict(name)
}

// findOrCreateCart returns the named cart, inserting it when absent. A unique
// violation is returned as-is so callers can retry.
func findOrCreateCart(ctx context.Context, repo CartRepository, name string) (*models.Cart, bool, error) {
	cart, err := repo.FindCartByName(ctx, name)
	if err == nil {
		return cart, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	cart = &models.Cart{Name: name}
	if err := repo.CreateCart(ctx, cart); err != nil {
		return nil, false, err
	}
	return cart, true, nil
}

func cartRaceConflict(name string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "cart could not be resolved after concurrent creation").
		WithDetails(map[string]any{"name": name})
}

// CreateCart inserts a new cart and fails when the name is already used.
func (s *service) CreateCart(ctx context.Context, name string) (*models.Cart, error) {
	name = strings.TrimSpace(name)
	if err := validateInput(cartNameInput{Name: name}); err != nil {
		return nil, err
	}

	cart := &models.Cart{Name: name}
	if err := s.repo.CreateCart(ctx, cart); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart name already exists").
				WithDetails(map[string]any{"name": name})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create cart")
	}
	s.logg.Info(s.logg.WithCartID(ctx, cart.ID), "cart created")
	return cart, nil
}

// AddOffer stores an offer in the named cart, creating the cart on first use.
func (s *service) AddOffer(ctx context.Context, input OfferInput) (*models.Offer, error) {
	input = trimOfferInput(input)
	if input.CartName == "" {
		input.CartName = DefaultCartName
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	// The cart and the offer commit together; a failed insert leaves no new cart.
	var (
		cart    *models.Cart
		offer   *models.Offer
		created bool
	)
	for attempt := 0; ; attempt++ {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			var err error
			cart, created, err = findOrCreateCart(ctx, repo, input.CartName)
			if err != nil {
				return err
			}
			offer = &models.Offer{
				Name:   input.Name,
				Price:  input.Price,
				Image:  input.Image,
				Link:   input.Link,
				CartID: cart.ID,
			}
			return repo.CreateOffer(ctx, offer)
		})
		if err == nil {
			break
		}
		if db.IsUniqueViolation(err, "") {
			if attempt+1 < ensureAttempts {
				s.logg.Debug(s.logg.WithField(ctx, "attempt", attempt+1), "cart name taken concurrently; retrying offer")
				continue
			}
			return nil, cartRaceConflict(input.CartName)
		}
		if db.IsForeignKeyViolation(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "cart was deleted while adding the offer").
				WithDetails(map[string]any{"cart_name": input.CartName})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "persist offer")
	}

	ctx = s.logg.WithFields(s.logg.WithCartID(ctx, cart.ID), map[string]any{
		"offer_id":     offer.ID,
		"cart_created": created,
	})
	s.logg.Info(ctx, "offer added")
	return offer, nil
}

// ListCarts returns all carts ordered by identifier.
func (s *service) ListCarts(ctx context.Context) ([]models.Cart, error) {
	carts, err := s.repo.ListCarts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list carts")
	}
	return carts, nil
}

// GetCart loads a cart with its offers in insertion order.
func (s *service) GetCart(ctx context.Context, id int64) (*models.Cart, error) {
	cart, err := s.repo.FindCartByID(ctx, id, true)
	if err != nil {
		return nil, mapLookupError(err, "cart", id)
	}
	return cart, nil
}

// GetCartView loads a cart with offers and total.
func (s *service) GetCartView(ctx context.Context, id int64) (*CartView, error) {
	cart, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}
	total, err := s.CartTotal(cart)
	if err != nil {
		return nil, err
	}
	return &CartView{Cart: cart, Total: total}, nil
}

// ListOffers returns the offers of an existing cart.
func (s *service) ListOffers(ctx context.Context, cartID int64) ([]models.Offer, error) {
	if _, err := s.repo.FindCartByID(ctx, cartID, false); err != nil {
		return nil, mapLookupError(err, "cart", cartID)
	}
	offers, err := s.repo.ListOffers(ctx, cartID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list offers")
	}
	return offers, nil
}

// CartTotal sums the normalized prices of the cart's offers.
func (s *service) CartTotal(cart *models.Cart) (decimal.Decimal, error) {
	if cart == nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "cart is required")
	}
	return Total(cart.Offers)
}

// Total sums offer prices. An unparsable price fails the whole sum and names the offer.
func Total(offers []models.Offer) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, offer := range offers {
		value, err := price.Normalize(offer.Price)
		if err != nil {
			return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err,
				fmt.Sprintf("offer %q has an unparsable price", offer.Name)).
				WithDetails(map[string]any{
					"offer_id":   offer.ID,
					"offer_name": offer.Name,
					"price":      offer.Price,
				})
		}
		total = total.Add(value)
	}
	return total, nil
}

// DeleteCart removes the cart and its offers in one transaction.
func (s *service) DeleteCart(ctx context.Context, id int64) error {
	var removedOffers int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindCartByID(ctx, id, false); err != nil {
			return err
		}
		n, err := repo.DeleteOffersByCart(ctx, id)
		if err != nil {
			return err
		}
		removedOffers = n
		deleted, err := repo.DeleteCart(ctx, id)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return mapLookupError(err, "cart", id)
	}

	ctx = s.logg.WithField(s.logg.WithCartID(ctx, id), "offers_removed", removedOffers)
	s.logg.Info(ctx, "cart deleted")
	return nil
}

// DeleteOffer removes a single offer.
func (s *service) DeleteOffer(ctx context.Context, id int64) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		deleted, err := s.repo.WithTx(tx).DeleteOffer(ctx, id)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return mapLookupError(err, "offer", id)
	}
	s.logg.Info(s.logg.WithField(ctx, "offer_id", id), "offer deleted")
	return nil
}

func mapLookupError(err error, entity string, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found").
			WithDetails(map[string]any{"id": id})
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load "+entity)
}

func trimOfferInput(in OfferInput) OfferInput {
	in.CartName = strings.TrimSpace(in.CartName)
	in.Name = strings.TrimSpace(in.Name)
	in.Price = strings.TrimSpace(in.Price)
	in.Link = strings.TrimSpace(in.Link)
	if in.Image != nil {
		image := strings.TrimSpace(*in.Image)
		if image == "" {
			in.Image = nil
		} else {
			in.Image = &image
		}
	}
	return in
}
