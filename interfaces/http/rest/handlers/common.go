// Package handlers implements the REST endpoints on top of the application
// services.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gpazevedo/alex/pkg/auth"
	"github.com/gpazevedo/alex/pkg/common"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
	"github.com/gpazevedo/alex/pkg/utils"
)

// base carries what every handler needs
type base struct {
	errors *pkgerrors.ErrorHandler
}

// callerID returns the authenticated Clerk user id
func (b base) callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		b.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("Unauthorized"))
		return "", false
	}
	return user.UserID, true
}

// decode parses a JSON body and validates its tags
func (b base) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := common.ParseJSONBody(w, r, v, common.MaxBodyBytes); err != nil {
		b.errors.Handle(w, r, pkgerrors.NewValidationError("Invalid request body: "+err.Error()))
		return false
	}
	if err := utils.ValidateStruct(v); err != nil {
		b.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return false
	}
	return true
}

func (b base) fail(w http.ResponseWriter, r *http.Request, err error) {
	b.errors.Handle(w, r, err)
}

// queryTime reads an optional time query parameter. Date-only values used
// as an upper bound cover the whole day.
func queryTime(r *http.Request, name string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	t, err := utils.ParseOptionalTime(raw)
	if err != nil {
		return nil, pkgerrors.NewValidationErrorf("%s: %v", name, err)
	}
	if t != nil && endOfDay {
		end := utils.EndOfDay(raw, *t)
		t = &end
	}
	return t, nil
}
