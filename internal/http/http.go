package http

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coreos/raidsim/raid"
)

func ServeHTTP(addr string, array *raid.Array) error {
	return http.ListenAndServe(addr, NewHandler(array))
}

func NewHandler(array *raid.Array) *httprouter.Router {
	h := httprouter.New()
	h.Handler("GET", "/metrics", promhttp.Handler())
	api := &apiV0{
		array: array,
	}
	api.setupRoutes(h)
	return h
}
