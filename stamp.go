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

import (
	"bytes"
	"crypto/sha1"
	"encoding/gob"
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// StampFile is one entry of a Stamp's accessed-file log: the filename this
// run read and the content hash it saw.
type StampFile struct {
	Filename string
	Hash     [sha1.Size]byte
}

// Stamp is the persisted state a "--regen" check reads back to decide
// whether a prior run's output is still current.
type Stamp struct {
	GeneratedAt time.Time
	Args        []string

	Files         []StampFile
	UndefinedVars []string
	EnvVars       map[string]string
	ShellResults  map[string]string
	GlobResults   map[string][]string
	FindResults   map[string]map[string]int64
}

// shellExcludedFromRecheck reports whether cmd is one of the volatile
// $(shell ...) idioms excluded from the regeneration check: its output is
// expected to differ run over run by design, e.g. "date" or "echo $RANDOM".
func shellExcludedFromRecheck(cmd string) bool {
	c := strings.TrimSpace(cmd)
	return strings.HasPrefix(c, "date") || strings.HasPrefix(c, "echo")
}

// NewStamp captures the regeneration-relevant state of a just-completed
// Load against the command line args that produced it.
func NewStamp(g *DepGraph, args []string) *Stamp {
	s := &Stamp{
		GeneratedAt:  time.Now(),
		Args:         append([]string(nil), args...),
		EnvVars:      make(map[string]string),
		ShellResults: make(map[string]string),
		GlobResults:  make(map[string][]string),
		FindResults:  make(map[string]map[string]int64),
	}
	for _, mk := range g.accessedMks {
		s.Files = append(s.Files, StampFile{Filename: mk.Filename, Hash: mk.Hash})
	}
	for name := range g.undefinedVars {
		s.UndefinedVars = append(s.UndefinedVars, name)
	}
	sort.Strings(s.UndefinedVars)
	for name, value := range usedEnvs {
		s.EnvVars[name] = value
	}
	for cmd, result := range g.shellResults {
		if shellExcludedFromRecheck(cmd) {
			continue
		}
		s.ShellResults[cmd] = result
	}
	for pat, matches := range g.globResults {
		s.GlobResults[pat] = append([]string(nil), matches...)
	}
	for cmd, dirs := range g.findResults {
		m := make(map[string]int64, len(dirs))
		for d, t := range dirs {
			m[d] = t
		}
		s.FindResults[cmd] = m
	}
	return s
}

// SaveStamp gob-encodes s to filename.
func SaveStamp(s *Stamp, filename string) error {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(s)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(filename, buf.Bytes(), 0644)
}

// LoadStamp reads back a Stamp written by SaveStamp.
func LoadStamp(filename string) (*Stamp, error) {
	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var s Stamp
	err = gob.NewDecoder(bytes.NewReader(b)).Decode(&s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CheckStamp implements the regeneration decision: the prior run
// is still current iff (a) args are unchanged, (b) every accessed file
// still exists with the same hash, (c) every consulted environment variable
// still has its previous value, (d) every $(wildcard ...) re-evaluates to
// the same set, and (e) every find invocation's directory stat-set is
// unchanged. It returns true plus an empty reason when current, or false
// plus a one-line description of the first check that failed.
func CheckStamp(prev *Stamp, args []string) (current bool, reason string) {
	if !reflect.DeepEqual(prev.Args, args) {
		return false, fmt.Sprintf("command-line args changed: %q != %q", prev.Args, args)
	}
	for _, f := range prev.Files {
		b, err := ioutil.ReadFile(f.Filename)
		if err != nil {
			return false, fmt.Sprintf("%s: %v", f.Filename, err)
		}
		if sha1.Sum(b) != f.Hash {
			return false, fmt.Sprintf("%s: content changed", f.Filename)
		}
	}
	for name, value := range prev.EnvVars {
		if os.Getenv(name) != value {
			return false, fmt.Sprintf("environment variable %s changed", name)
		}
	}
	for pat, want := range prev.GlobResults {
		got, err := fsCache.Glob(pat)
		if err != nil {
			return false, fmt.Sprintf("wildcard %s: %v", pat, err)
		}
		if !reflect.DeepEqual(got, want) {
			return false, fmt.Sprintf("wildcard %s result changed", pat)
		}
	}
	for cmd, dirs := range prev.FindResults {
		for dir, mtime := range dirs {
			fi, err := os.Stat(dir)
			var cur int64
			if err == nil {
				cur = fi.ModTime().Unix()
			}
			if cur != mtime {
				return false, fmt.Sprintf("find %q: %s mtime changed", cmd, dir)
			}
		}
	}
	return true, ""
}

// StampExplain renders a line-oriented diff, using go-diff, of each section
// that differs between two stamps among args, accessed files, environment
// values and wildcard results. Shell results, find results and undefined
// variables are not compared. It is the
// implementation backing the "stamp_dump"-style explain mode: a
// human-readable companion to the single-reason result of CheckStamp.
func StampExplain(prev, cur *Stamp) string {
	var b bytes.Buffer
	dmp := diffmatchpatch.New()

	explainLines := func(title string, prevLines, curLines []string) {
		a := strings.Join(prevLines, "\n")
		c := strings.Join(curLines, "\n")
		if a == c {
			return
		}
		fmt.Fprintf(&b, "--- %s ---\n", title)
		diffs := dmp.DiffMain(a, c, true)
		diffs = dmp.DiffCleanupSemantic(diffs)
		fmt.Fprintln(&b, dmp.DiffPrettyText(diffs))
	}

	explainLines("args", prev.Args, cur.Args)

	var prevFiles, curFiles []string
	for _, f := range prev.Files {
		prevFiles = append(prevFiles, fmt.Sprintf("%s %x", f.Filename, f.Hash))
	}
	for _, f := range cur.Files {
		curFiles = append(curFiles, fmt.Sprintf("%s %x", f.Filename, f.Hash))
	}
	sort.Strings(prevFiles)
	sort.Strings(curFiles)
	explainLines("files", prevFiles, curFiles)

	var prevEnv, curEnv []string
	for k, v := range prev.EnvVars {
		prevEnv = append(prevEnv, fmt.Sprintf("%s=%s", k, v))
	}
	for k, v := range cur.EnvVars {
		curEnv = append(curEnv, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(prevEnv)
	sort.Strings(curEnv)
	explainLines("env", prevEnv, curEnv)

	var prevGlob, curGlob []string
	for pat, matches := range prev.GlobResults {
		prevGlob = append(prevGlob, fmt.Sprintf("%s: %s", pat, strings.Join(matches, " ")))
	}
	for pat, matches := range cur.GlobResults {
		curGlob = append(curGlob, fmt.Sprintf("%s: %s", pat, strings.Join(matches, " ")))
	}
	sort.Strings(prevGlob)
	sort.Strings(curGlob)
	explainLines("wildcard", prevGlob, curGlob)

	if b.Len() == 0 {
		return "stamp unchanged\n"
	}
	return b.String()
}

// DumpStampFiles prints the accessed-files subset of s, the "--files" mode
// of the stamp_dump tool.
func DumpStampFiles(s *Stamp) []string {
	var out []string
	for _, f := range s.Files {
		out = append(out, fmt.Sprintf("%s %x", f.Filename, f.Hash))
	}
	sort.Strings(out)
	return out
}

// DumpStampEnv prints the environment-variable subset of s, the "--env"
// mode of the stamp_dump tool.
func DumpStampEnv(s *Stamp) []string {
	var out []string
	for k, v := range s.EnvVars {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}
