package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/db/dbtest"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/realtime"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/store"
)

var testSecret = []byte("test-secret")

type testEnv struct {
	T    *testing.T
	E    *echo.Echo
	Repo *repo.GormRepo
	Hub  *realtime.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	r := repo.New(dbtest.InitTestDB(t))
	hub := realtime.NewHub(256)
	t.Cleanup(hub.Close)

	catalog := &service.CatalogService{Repo: r, Events: hub}
	orders := &service.OrderService{Repo: r, Events: hub, Hub: hub}
	settings := &service.SettingsService{Repo: r, Events: hub, Hub: hub}

	e := echo.New()
	Register(e, &Deps{
		Catalog: &CatalogHTTP{Svc: catalog},
		Cart: &CartHTTP{
			Sessions: store.NewSessions(store.NewMemoryPersister()),
			Catalog:  catalog,
			Orders:   orders,
			Settings: settings,
		},
		Orders:    &OrderHTTP{Svc: orders},
		Chat:      &ChatHTTP{Svc: &service.ChatService{Repo: r, Events: hub, Hub: hub}},
		Affiliate: &AffiliateHTTP{Svc: &service.AffiliateService{Repo: r}, BaseURL: "https://shop.example/"},
		Settings:  &SettingsHTTP{Svc: settings},
		Auth:      auth.NewMiddleware(testSecret, nil, r),
		Ready:     r.Ping,
	})
	return &testEnv{T: t, E: e, Repo: r, Hub: hub}
}

// login returns a user id and the access cookie for it.
func (env *testEnv) login(role string) (uuid.UUID, *http.Cookie) {
	env.T.Helper()
	id := uuid.New()
	token, err := auth.CreateAccessToken(testSecret, role, id.String(), time.Now().Add(time.Hour))
	require.NoError(env.T, err)
	return id, &http.Cookie{Name: auth.AccessCookie, Value: token, Path: "/"}
}

func (env *testEnv) doJSONRequest(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	env.T.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(env.T, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		if ck != nil {
			req.AddCookie(ck)
		}
	}
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) seedProduct(name, price string, inStock bool) models.Product {
	env.T.Helper()
	p := models.Product{Name: name, Price: decimal.RequireFromString(price), InStock: inStock, Category: "misc"}
	_, err := env.Repo.CreateProduct(context.Background(), &p)
	require.NoError(env.T, err)
	return p
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}
