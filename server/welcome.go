package server

import (
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/onedata/automation-examples/lambdas"
)

// WelcomeHandler handles GET /. It names the server version and the lambdas
// which can be posted to.
func WelcomeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Onedata lambdas (%s)\n\n", Version)
	for _, name := range lambdas.Names() {
		fmt.Fprintf(w, "POST /lambda/%s\n", name)
	}
}
