package httpapi

import (
	"expvar"
	"net/http"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cart", app.cartHandler)
	mux.HandleFunc("/cart/items", app.cartItemsHandler)
	mux.HandleFunc("/cart/items/", app.cartItemHandler)
	mux.HandleFunc("/checkout", app.checkoutHandler)
	mux.HandleFunc("/orders", app.ordersHandler)
	mux.HandleFunc("/orders/", app.ordersHandler)
	mux.HandleFunc("/products", app.postProductHandler)
	mux.HandleFunc("/products/", app.productsHandler)
	mux.HandleFunc("/healthz", app.healthHandler)
	mux.HandleFunc("/debug/metrics", app.metricsHandler)
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/openapi.yaml", app.openapiHandler)
	mux.HandleFunc("/docs", app.docsHandler)
	return WithRequestID(WithLogging(mux))
}
