package router

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pario-ai/larder/pkg/fetch"
	"github.com/pario-ai/larder/pkg/models"
)

// MsgMissingRecipeID is sent when a detail request carries no recipe id.
const MsgMissingRecipeID = "Missing recipe id."

var (
	ErrMissingRecipeID = errors.New("detail request without recipe id")
	ErrUnknownKind     = errors.New("unknown request kind")
)

// Endpoints builds upstream URLs from the catalog API prefix.
type Endpoints struct {
	Prefix string
}

// ListURL returns the URL of the recipe name list.
func (e Endpoints) ListURL() string {
	return strings.TrimRight(e.Prefix, "/") + "?select=name"
}

// DetailURL returns the URL of a single recipe.
func (e Endpoints) DetailURL(id string) string {
	return strings.TrimRight(e.Prefix, "/") + "/" + url.PathEscape(id)
}

// Resolver answers a URL with a response of the given kind.
type Resolver interface {
	Resolve(ctx context.Context, url string, kind models.ResponseKind) models.Response
}

// Router maps typed requests to upstream URLs and response kinds.
type Router struct {
	endpoints Endpoints
	resolver  Resolver
	log       zerolog.Logger
}

// New creates a Router.
func New(endpoints Endpoints, resolver Resolver, logger zerolog.Logger) *Router {
	return &Router{
		endpoints: endpoints,
		resolver:  resolver,
		log:       logger.With().Str("component", "router").Logger(),
	}
}

// Target returns the upstream URL and response kind for req.
func (r *Router) Target(req models.Request) (string, models.ResponseKind, error) {
	switch req.Kind {
	case models.RequestList:
		return r.endpoints.ListURL(), models.ResponseList, nil
	case models.RequestDetail:
		id := strings.TrimSpace(req.RecipeID)
		if id == "" {
			return "", "", ErrMissingRecipeID
		}
		return r.endpoints.DetailURL(id), models.ResponseDetail, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}
}

// Handle resolves req and returns the reply to send, or nil when the request
// gets no reply. Panics on the resolve path become a generic error reply.
func (r *Router) Handle(ctx context.Context, req models.Request) (resp *models.Response) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().
				Interface("panic", p).
				Str("stack", string(debug.Stack())).
				Msg("request handler panicked")
			e := models.ErrorResponse(fetch.MsgUnavailable)
			resp = &e
		}
	}()

	target, kind, err := r.Target(req)
	switch {
	case errors.Is(err, ErrMissingRecipeID):
		e := models.ErrorResponse(MsgMissingRecipeID)
		return &e
	case err != nil:
		r.log.Debug().Err(err).Msg("ignoring request")
		return nil
	}

	res := r.resolver.Resolve(ctx, target, kind)
	return &res
}
