// Copyright 2015 Google Inc. All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mkcore

// IgnoreOptionalInclude, when non-empty, makes a "-include" directive whose
// filename matches the given make-style % pattern a silent no-op instead of an
// attempt to read the file.
var IgnoreOptionalInclude string

// UseFindEmulator gates the in-memory find/findleaves.py emulation
// for $(shell ...) invocations recognized by parseFindCommand and
// parseFindleavesCommand. When false, every $(shell ...) always forks a
// real subshell, matching plain GNU make.
var UseFindEmulator bool
