package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/raterudder/chargeplan/pkg/log"
	"github.com/raterudder/chargeplan/pkg/types"
)

// tokenClaims are the parts of a verified ID token the server uses.
type tokenClaims struct {
	Subject string
	Email   string
	Expiry  time.Time
}

// tokenVerifier validates a Google or Apple ID token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (tokenClaims, error)

func oidcVerifier(v *oidc.IDTokenVerifier) tokenVerifier {
	return func(ctx context.Context, rawIDToken string) (tokenClaims, error) {
		idToken, err := v.Verify(ctx, rawIDToken)
		if err != nil {
			return tokenClaims{}, err
		}
		var claims struct {
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return tokenClaims{}, fmt.Errorf("failed to parse claims: %w", err)
		}
		return tokenClaims{
			Subject: idToken.Subject,
			Email:   claims.Email,
			Expiry:  idToken.Expiry,
		}, nil
	}
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := log.WithAttrs(r.Context(), slog.String("reqPath", r.URL.Path))

		allowNoLogin := r.URL.Path == "/api/auth/login" || r.URL.Path == "/api/auth/status"
		ignoreSiteID := allowNoLogin || r.URL.Path == "/api/auth/logout" || r.URL.Path == "/api/list/utilities"

		// extract SiteID
		var siteID string
		if r.Method == http.MethodGet {
			siteID = r.URL.Query().Get("siteID")
		} else if r.Body != nil {
			// Limit body size to 1MB to prevent DoS
			r.Body = http.MaxBytesReader(w, r.Body, 1048576)
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to read request body", slog.Any("error", err))
				// since we failed to read, don't return JSON error
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}
			// restore body for next handler
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

			if len(bodyBytes) > 0 {
				var justSiteID struct {
					SiteID string `json:"siteID"`
				}
				if err := json.Unmarshal(bodyBytes, &justSiteID); err != nil {
					log.Ctx(ctx).ErrorContext(ctx, "failed to unmarshal request body", slog.Any("error", err))
					http.Error(w, "invalid request", http.StatusBadRequest)
					return
				}
				siteID = justSiteID.SiteID
			}
		}

		var user types.User
		if s.bypassAuth {
			user = types.User{
				Sites: []types.UserSite{{ID: types.SiteIDNone}},
				Admin: true,
			}
			if siteID == "" {
				siteID = types.SiteIDNone
			}
		} else {
			authCookie, err := r.Cookie(authTokenCookie)
			if err != nil && !errors.Is(err, http.ErrNoCookie) {
				log.Ctx(ctx).ErrorContext(ctx, "failed to get auth cookie", slog.Any("error", err))
				writeJSONError(w, "missing auth cookie", http.StatusBadRequest)
				return
			}
			if authCookie == nil {
				if !allowNoLogin {
					log.Ctx(ctx).WarnContext(ctx, "no auth cookie found")
					writeJSONError(w, "missing auth cookie", http.StatusUnauthorized)
					return
				}
			} else {
				claims, err := s.authenticateToken(ctx, authCookie.Value, "")
				if err != nil {
					log.Ctx(ctx).WarnContext(ctx, "auth token validation failed", slog.Any("error", err))
					s.clearCookie(w)
					if !allowNoLogin {
						writeJSONError(w, "invalid auth token", http.StatusUnauthorized)
						return
					}
				} else {
					user = types.User{
						ID:    claims.Subject,
						Email: claims.Email,
					}
				}
			}

			if user.ID != "" {
				isAdmin := s.isMultiSiteAdmin(user)
				ctx = log.WithAttrs(ctx, slog.String("authUserID", user.ID))
				if s.singleSite {
					siteID = types.SiteIDNone
					user.Sites = []types.UserSite{{ID: types.SiteIDNone}}
					user.Admin = isAdmin
				} else if siteID != "" && !ignoreSiteID {
					site, err := s.storage.GetSite(ctx, siteID)
					if err != nil {
						log.Ctx(ctx).WarnContext(ctx, "site lookup failed", slog.String("siteID", siteID), slog.Any("error", err))
						writeJSONError(w, "site access denied", http.StatusForbidden)
						return
					}
					permFound := hasPermission(site, user)
					if !permFound && !isAdmin {
						log.Ctx(ctx).WarnContext(ctx, "user does not have permission for site", slog.String("email", user.Email), slog.String("site", siteID))
						writeJSONError(w, "site access denied", http.StatusForbidden)
						return
					}
					// admins from the flag can read every site but only
					// members can change it
					user.Admin = permFound
					user.Sites = []types.UserSite{{ID: site.ID, Name: site.Name}}
				}
			}
		}

		if siteID == "" && !ignoreSiteID {
			log.Ctx(ctx).WarnContext(ctx, "siteID required")
			writeJSONError(w, "siteID required", http.StatusBadRequest)
			return
		}
		if siteID != "" {
			ctx = log.WithAttrs(ctx, slog.String("authSiteID", siteID))
		}

		log.Ctx(ctx).DebugContext(ctx, "authenticated request", slog.String("email", user.Email))

		ctx = context.WithValue(ctx, userContextKey, user)
		ctx = context.WithValue(ctx, siteIDContextKey, siteID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func hasPermission(site types.Site, user types.User) bool {
	for _, p := range site.Permissions {
		if p.UserID == user.ID || (user.Email != "" && p.UserID == user.Email) {
			return true
		}
	}
	return false
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token  string `json:"token"`
		Client string `json:"client"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// since we failed to read, don't return JSON error
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	claims, err := s.authenticateToken(r.Context(), req.Token, req.Client)
	if err != nil {
		log.Ctx(r.Context()).WarnContext(r.Context(), "failed to validate id token", slog.Any("error", err))
		writeJSONError(w, "invalid id token", http.StatusUnauthorized)
		return
	}
	if claims.Email == "" {
		log.Ctx(r.Context()).WarnContext(r.Context(), "invalid email in id token")
		writeJSONError(w, "invalid oidc claims", http.StatusUnauthorized)
		return
	}

	log.Ctx(r.Context()).InfoContext(r.Context(), "login token validated successfully", slog.String("email", claims.Email), slog.String("subject", claims.Subject))

	http.SetCookie(w, &http.Cookie{
		Name:     authTokenCookie,
		Value:    req.Token,
		Expires:  claims.Expiry,
		HttpOnly: true,
		Secure:   true,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authTokenCookie,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   true,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearCookie(w)
	w.WriteHeader(http.StatusOK)
}

type authStatusResponse struct {
	LoggedIn     bool              `json:"loggedIn"`
	Email        string            `json:"email"`
	AuthRequired bool              `json:"authRequired"`
	ClientIDs    map[string]string `json:"clientIDs"`
	Sites        []types.UserSite  `json:"sites"`
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)
	loggedIn := user.ID != "" || s.bypassAuth

	sites := user.Sites
	if user.ID != "" && !s.singleSite {
		all, err := s.storage.ListSites(ctx)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to list sites", slog.Any("error", err))
			writeJSONError(w, "failed to list sites", http.StatusInternalServerError)
			return
		}
		isAdmin := s.isMultiSiteAdmin(user)
		sites = []types.UserSite{}
		for _, site := range all {
			if isAdmin || hasPermission(site, user) {
				sites = append(sites, types.UserSite{ID: site.ID, Name: site.Name})
			}
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, authStatusResponse{
		LoggedIn:     loggedIn,
		Email:        user.Email,
		AuthRequired: len(s.oidcAudiences) > 0,
		ClientIDs:    s.oidcAudiences,
		Sites:        sites,
	})
}

func (s *Server) authenticateToken(ctx context.Context, token string, specificClient string) (tokenClaims, error) {
	var errs []error
	for providerName, verifier := range s.oidcVerifiers {
		if specificClient != "" && providerName != specificClient {
			continue
		}
		claims, err := verifier(ctx, token)
		if err == nil {
			return claims, nil
		}
		errs = append(errs, fmt.Errorf("%s verifier failed: %w", providerName, err))
	}
	if len(errs) > 0 {
		return tokenClaims{}, errors.Join(errs...)
	}
	return tokenClaims{}, errors.New("no valid audiences configured or token invalid")
}
