package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/msourial/platefull/api/responses"
	"github.com/msourial/platefull/api/validators"
	"github.com/msourial/platefull/internal/history"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
	"github.com/msourial/platefull/pkg/logger"
)

var spiceLevels = []string{"mild", "medium", "hot", "spicy"}

type profileResponse struct {
	Profile         *history.Profile           `json:"profile"`
	Recommendations []history.Recommendation   `json:"recommendations"`
	Reorder         *history.ReorderSuggestion `json:"reorder"`
}

// UserProfile returns the derived order-history profile with
// recommendations. Ids without a gateway prefix are treated as HTTP users.
func UserProfile(svc history.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "history service unavailable"))
			return
		}

		userID := strings.TrimSpace(chi.URLParam(r, "userID"))
		if userID == "" || len(userID) > 96 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id"))
			return
		}
		if !strings.Contains(userID, ":") {
			userID = HTTPUserPrefix + userID
		}

		limit, err := validators.ParseQueryInt(r, "limit", 4, 1, 10)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		spice, err := validators.ParseQueryChoice(r, "spice", spiceLevels)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		prefs := history.Preferences{
			Dietary: validators.SanitizeString(r.URL.Query().Get("dietary"), 32),
			Spice:   spice,
		}

		profile, err := svc.AnalyzeOrderHistory(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		recs, err := svc.GenerateRecommendations(r.Context(), userID, prefs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(recs) > limit {
			recs = recs[:limit]
		}
		reorder, err := svc.CheckForReorderSuggestion(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, profileResponse{Profile: profile, Recommendations: recs, Reorder: reorder})
	}
}
