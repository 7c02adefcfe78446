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

package config

import (
	"fmt"
	"os"
	"regexp"
)

// envPattern matches ${VAR} and ${VAR:default}. No other ${...} forms are
// recognised, matching spec.md §6 exactly.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:([^}]*))?\}`)

// expandEnv substitutes every ${VAR} or ${VAR:default} occurrence in s.
// ${VAR} with no default is mandatory: a missing environment variable is
// an error. ${VAR:default} falls back to default when VAR is unset (an
// empty but *set* VAR still wins over the default, matching standard
// shell-style semantics).
func expandEnv(s string) (string, error) {
	var firstErr error
	out := envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		name, hasDefault, def := groups[1], groups[2] != "", groups[3]

		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if hasDefault {
			return def
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("required environment variable %q is not set", name)
		}
		return match
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
