package controllers

import (
	"net/http"

	"github.com/angelmondragon/cartwatch/api/responses"
	"github.com/angelmondragon/cartwatch/api/validators"
	cartsvc "github.com/angelmondragon/cartwatch/internal/cart"
	"github.com/angelmondragon/cartwatch/pkg/logger"
)

type addOfferRequest struct {
	CartName string  `json:"cart_name" validate:"max=80"`
	Name     string  `json:"name" validate:"required,max=200"`
	Price    string  `json:"price" validate:"required,max=20"`
	Image    *string `json:"image" validate:"omitempty,max=200"`
	Link     string  `json:"link" validate:"required,max=200"`
}

// AddOffer stores an offer, creating the named cart (or the default cart) when needed.
func AddOffer(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addOfferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offer, err := svc.AddOffer(r.Context(), cartsvc.OfferInput{
			CartName: payload.CartName,
			Name:     payload.Name,
			Price:    payload.Price,
			Image:    payload.Image,
			Link:     payload.Link,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, cartsvc.ToOfferDTO(offer))
	}
}

func DeleteOffer(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "offerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteOffer(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "deleted": true})
	}
}
