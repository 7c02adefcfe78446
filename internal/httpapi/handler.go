// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpapi serves the scrape endpoint. It has no knowledge of
// authentication or TLS — those are chassis concerns wired in cmd/droxporter
// as optional middleware around this handler, per spec.md §4.G.
package httpapi

import (
	"net/http"
)

// Renderer is satisfied by *metricstore.Store.
type Renderer interface {
	Render() ([]byte, error)
}

// Handler serves GET /metrics: 200 with the store's rendered exposition
// text, or 500 if rendering fails.
func Handler(store Renderer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := store.Render()
		if err != nil {
			http.Error(w, "failed to render metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	})
}

// BasicAuth wraps next with HTTP Basic-Auth, matching spec.md §6's
// "401 with WWW-Authenticate: Basic realm=\"droxporter\"" behaviour. It is
// an ambient chassis concern, not part of Handler's own contract.
func BasicAuth(login, password string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != login || pass != password {
			w.Header().Set("WWW-Authenticate", `Basic realm="droxporter"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
