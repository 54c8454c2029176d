package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/raterudder/chargeplan/pkg/locale"
	"github.com/raterudder/chargeplan/pkg/log"
	"github.com/raterudder/chargeplan/pkg/slots"
	"github.com/raterudder/chargeplan/pkg/storage/storagemock"
	"github.com/raterudder/chargeplan/pkg/types"
	"github.com/raterudder/chargeplan/pkg/utility"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

type mockUtility struct {
	current types.Price
	future  []types.Price
	err     error
}

func (m *mockUtility) GetCurrentPrice(ctx context.Context) (types.Price, error) {
	if m.err != nil {
		return types.Price{}, m.err
	}
	return m.current, nil
}

func (m *mockUtility) GetFuturePrices(ctx context.Context) ([]types.Price, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.future, nil
}

func (m *mockUtility) ApplySettings(ctx context.Context, settings types.Settings) error {
	return nil
}

var errFeedDown = errors.New("feed down")

// newTestServer returns a server without authentication backed by db.
func newTestServer(t *testing.T, db *storagemock.MockDatabase) *Server {
	t.Helper()
	m, err := newMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return &Server{
		utilities:     utility.NewMap(),
		storage:       db,
		slots:         slots.NewBuilder(locale.WeekdayShort, types.DefaultHorizonHours),
		metrics:       m,
		bypassAuth:    true,
		serverName:    "chargeplan-test",
		defaultLocale: "en-US",
	}
}

func serve(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)
	return w
}

var cet = time.FixedZone("CET", 3600)

func at(day, hour, minute int) time.Time {
	return time.Date(2023, 1, day, hour, minute, 0, 0, cet)
}

func newCookieRequest(method, target, body, token string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: authTokenCookie, Value: token})
	return req
}

func serveRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)
	return w
}
