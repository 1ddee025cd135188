// Copyright 2025 Tom Barlow
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

package discovery

import (
	"log/slog"
	"strconv"
	"strings"
)

// truthyStrings are the string forms that coerce to boolean true; every
// other string coerces to false.
var truthyStrings = map[string]bool{"true": true, "1": true, "yes": true, "on": true}

// CoerceParameters casts string-valued parameters (as arrive from query or
// form submission) to the type declared in params: a failed numeric
// coercion keeps the original string and logs a warning rather than
// erroring the request.
func CoerceParameters(params []Parameter, values map[string]any, log *slog.Logger) map[string]any {
	if log == nil {
		log = slog.Default()
	}
	declared := make(map[string]Parameter, len(params))
	for _, p := range params {
		declared[p.Name] = p
	}

	out := make(map[string]any, len(values))
	for name, v := range values {
		p, ok := declared[name]
		if !ok {
			out[name] = v
			continue
		}
		s, isString := v.(string)
		if !isString {
			out[name] = v
			continue
		}
		coerced, err := coerceString(p.Type, s)
		if err != nil {
			log.Warn("discovery: parameter coercion failed, keeping raw value", "parameter", name, "type", p.Type, "error", err)
			out[name] = s
			continue
		}
		out[name] = coerced
	}
	return out
}

func coerceString(paramType, s string) (any, error) {
	switch paramType {
	case "int":
		return strconv.Atoi(s)
	case "float":
		return strconv.ParseFloat(s, 64)
	case "bool":
		return truthyStrings[strings.ToLower(s)], nil
	default:
		return s, nil
	}
}
