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

/*
Package script is the bundled expression VM inline scripts and parameter
validation expressions run against, in place of the dynamic-language
interpreter the worker runtime would otherwise need.

There is no language-level frame to introspect for variable capture in a
statically compiled target, so capture is cooperative: a script calls
ctx.capture("name", value) explicitly, and RunScript returns whatever was
captured alongside the script's own return value.
*/
package script
