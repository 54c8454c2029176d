package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/raterudder/chargeplan/pkg/storage"
	"github.com/raterudder/chargeplan/pkg/storage/storagemock"
	"github.com/raterudder/chargeplan/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fakeVerifier(tokens map[string]tokenClaims) tokenVerifier {
	return func(ctx context.Context, raw string) (tokenClaims, error) {
		if c, ok := tokens[raw]; ok {
			return c, nil
		}
		return tokenClaims{}, errors.New("bad token")
	}
}

func TestAuthMiddleware(t *testing.T) {
	member := tokenClaims{Subject: "user1", Email: "member@example.com", Expiry: time.Now().Add(time.Hour)}
	stranger := tokenClaims{Subject: "user2", Email: "stranger@example.com", Expiry: time.Now().Add(time.Hour)}
	admin := tokenClaims{Subject: "user3", Email: "admin@example.com", Expiry: time.Now().Add(time.Hour)}
	site := types.Site{
		ID:          "site1",
		Name:        "Home",
		Permissions: []types.SitePermissions{{UserID: "user1"}},
	}

	newAuthServer := func(t *testing.T) (*Server, *storagemock.MockDatabase) {
		db := &storagemock.MockDatabase{}
		db.On("GetSite", mock.Anything, "site1").Return(site, nil)
		db.On("GetSite", mock.Anything, "missing").Return(types.Site{}, storage.ErrSiteNotFound)
		srv := newTestServer(t, db)
		srv.bypassAuth = false
		srv.adminEmails = []string{"admin@example.com"}
		srv.oidcAudiences = map[string]string{"google": "client-id"}
		srv.oidcVerifiers = map[string]tokenVerifier{
			"google": fakeVerifier(map[string]tokenClaims{
				"member":   member,
				"stranger": stranger,
				"admin":    admin,
			}),
		}
		return srv, db
	}

	// echo reports what the middleware put on the request
	echo := func(srv *Server) http.Handler {
		return srv.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := srv.getUser(r)
			writeJSON(w, map[string]any{
				"siteID": srv.getSiteID(r),
				"userID": user.ID,
				"admin":  user.Admin,
			})
		}))
	}

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		token      string
		singleSite bool
		wantCode   int
		wantSiteID string
		wantAdmin  bool
	}{
		{
			name:     "missing cookie",
			method:   http.MethodGet,
			path:     "/api/slots?siteID=site1",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "invalid token",
			method:   http.MethodGet,
			path:     "/api/slots?siteID=site1",
			token:    "forged",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:       "member from query",
			method:     http.MethodGet,
			path:       "/api/slots?siteID=site1",
			token:      "member",
			wantCode:   http.StatusOK,
			wantSiteID: "site1",
			wantAdmin:  true,
		},
		{
			name:       "member from body",
			method:     http.MethodPost,
			path:       "/api/plan",
			body:       `{"siteID":"site1"}`,
			token:      "member",
			wantCode:   http.StatusOK,
			wantSiteID: "site1",
			wantAdmin:  true,
		},
		{
			name:     "not a member",
			method:   http.MethodGet,
			path:     "/api/slots?siteID=site1",
			token:    "stranger",
			wantCode: http.StatusForbidden,
		},
		{
			name:       "admin email can read but not write",
			method:     http.MethodGet,
			path:       "/api/slots?siteID=site1",
			token:      "admin",
			wantCode:   http.StatusOK,
			wantSiteID: "site1",
			wantAdmin:  false,
		},
		{
			name:     "unknown site",
			method:   http.MethodGet,
			path:     "/api/slots?siteID=missing",
			token:    "member",
			wantCode: http.StatusForbidden,
		},
		{
			name:     "missing siteID",
			method:   http.MethodGet,
			path:     "/api/slots",
			token:    "member",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid body",
			method:   http.MethodPost,
			path:     "/api/plan",
			body:     `{"siteID":`,
			token:    "member",
			wantCode: http.StatusBadRequest,
		},
		{
			name:       "single site ignores siteID",
			method:     http.MethodGet,
			path:       "/api/slots",
			token:      "admin",
			singleSite: true,
			wantCode:   http.StatusOK,
			wantSiteID: types.SiteIDNone,
			wantAdmin:  true,
		},
		{
			name:     "status without login",
			method:   http.MethodGet,
			path:     "/api/auth/status",
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newAuthServer(t)
			srv.singleSite = tt.singleSite

			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			if tt.token != "" {
				req.AddCookie(&http.Cookie{Name: authTokenCookie, Value: tt.token})
			}
			w := httptest.NewRecorder()
			echo(srv).ServeHTTP(w, req)

			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantCode != http.StatusOK || tt.wantSiteID == "" {
				return
			}
			var got struct {
				SiteID string `json:"siteID"`
				Admin  bool   `json:"admin"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.wantSiteID, got.SiteID)
			assert.Equal(t, tt.wantAdmin, got.Admin)
		})
	}

	t.Run("invalid token clears cookie", func(t *testing.T) {
		srv, _ := newAuthServer(t)
		req := httptest.NewRequest(http.MethodGet, "/api/slots?siteID=site1", nil)
		req.AddCookie(&http.Cookie{Name: authTokenCookie, Value: "forged"})
		w := httptest.NewRecorder()
		echo(srv).ServeHTTP(w, req)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, authTokenCookie, cookies[0].Name)
		assert.Empty(t, cookies[0].Value)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})
}

func TestHandleLogin(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	srv := newTestServer(t, &storagemock.MockDatabase{})
	srv.oidcVerifiers = map[string]tokenVerifier{
		"google": fakeVerifier(map[string]tokenClaims{
			"good":     {Subject: "user1", Email: "member@example.com", Expiry: expiry},
			"no-email": {Subject: "user2", Expiry: expiry},
		}),
	}

	t.Run("sets cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.handleLogin(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"token":"good","client":"google"}`)))
		require.Equal(t, http.StatusOK, w.Code)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "good", cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)
	})

	t.Run("wrong client", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.handleLogin(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"token":"good","client":"apple"}`)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing email", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.handleLogin(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"token":"no-email"}`)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.handleLogin(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`nope`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleAuthStatus(t *testing.T) {
	db := &storagemock.MockDatabase{}
	db.On("ListSites", mock.Anything).Return([]types.Site{
		{ID: "site1", Name: "Home", Permissions: []types.SitePermissions{{UserID: "user1"}}},
		{ID: "site2", Name: "Cabin", Permissions: []types.SitePermissions{{UserID: "someone@example.com"}}},
	}, nil)
	srv := newTestServer(t, db)
	srv.bypassAuth = false
	srv.adminEmails = []string{"admin@example.com"}
	srv.oidcAudiences = map[string]string{"google": "client-id"}

	status := func(user types.User) authStatusResponse {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
		req = req.WithContext(context.WithValue(req.Context(), userContextKey, user))
		w := httptest.NewRecorder()
		srv.handleAuthStatus(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		var res authStatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		return res
	}

	t.Run("anonymous", func(t *testing.T) {
		res := status(types.User{})
		assert.False(t, res.LoggedIn)
		assert.True(t, res.AuthRequired)
		assert.Equal(t, "client-id", res.ClientIDs["google"])
	})

	t.Run("member sees own sites", func(t *testing.T) {
		res := status(types.User{ID: "user1", Email: "member@example.com"})
		assert.True(t, res.LoggedIn)
		assert.Equal(t, []types.UserSite{{ID: "site1", Name: "Home"}}, res.Sites)
	})

	t.Run("admin sees every site", func(t *testing.T) {
		res := status(types.User{ID: "user3", Email: "admin@example.com"})
		assert.Len(t, res.Sites, 2)
	})
}

func TestHandleLogout(t *testing.T) {
	srv := newTestServer(t, &storagemock.MockDatabase{})
	w := serve(srv, http.MethodPost, "/api/auth/logout", "")
	assert.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
}
