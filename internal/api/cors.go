package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig describes which browsers may drive the control API.
type CORSConfig struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig allows any origin. The API only uses GET and POST.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:  "*",
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Authorization", "Accept", "Last-Event-ID", requestIDHeader},
		MaxAge:       600,
	}
}

type corsHeaders [][2]string

func (c CORSConfig) compile() corsHeaders {
	return corsHeaders{
		{"Access-Control-Allow-Origin", c.AllowOrigin},
		{"Access-Control-Allow-Methods", strings.Join(c.AllowMethods, ", ")},
		{"Access-Control-Allow-Headers", strings.Join(c.AllowHeaders, ", ")},
		{"Access-Control-Expose-Headers", requestIDHeader},
		{"Access-Control-Max-Age", strconv.Itoa(c.MaxAge)},
	}
}

func (h corsHeaders) write(set func(name, value string)) {
	for _, kv := range h {
		set(kv[0], kv[1])
	}
}

// enableCORS adds the headers to every huma response and answers
// preflight requests on the mux, which huma never routes for paths
// lacking an OPTIONS operation.
func enableCORS(mux *http.ServeMux, api huma.API, config CORSConfig) {
	headers := config.compile()

	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		headers.write(w.Header().Set)
		w.WriteHeader(http.StatusNoContent)
	})

	api.UseMiddleware(func(ctx huma.Context, next func(huma.Context)) {
		headers.write(ctx.SetHeader)
		next(ctx)
	})
}
