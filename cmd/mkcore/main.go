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

package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/mkcore/mkcore"
)

const shellDateTimeformat = time.RFC3339

var (
	makefileFlag string

	loadJSON string
	saveJSON string
	loadGOB  string
	saveGOB  string
	useCache bool

	traceEventFile      string
	syntaxCheckOnlyFlag bool
	eagerCmdEvalFlag    bool

	generateNinja bool
	regenFlag     bool
	explainFlag   bool
	stampFlag     string

	useFindEmulator       bool
	ignoreOptionalInclude string
	shellDate             string
)

func init() {
	flag.StringVar(&makefileFlag, "f", "", "Use it as a makefile")

	flag.StringVar(&loadGOB, "load", "", "")
	flag.StringVar(&saveGOB, "save", "", "")
	flag.StringVar(&loadJSON, "load_json", "", "")
	flag.StringVar(&saveJSON, "save_json", "", "")
	flag.BoolVar(&useCache, "use_cache", false, "Use cache.")

	flag.StringVar(&traceEventFile, "trace_event", "", "write trace event to `file`")
	flag.BoolVar(&syntaxCheckOnlyFlag, "c", false, "Syntax check only.")
	flag.BoolVar(&eagerCmdEvalFlag, "eager_cmd_eval", false, "Eval commands first.")

	flag.BoolVar(&generateNinja, "ninja", false, "Avoid I/O during command evaluation, for a downstream ninja writer.")
	flag.BoolVar(&regenFlag, "regen", false, "Check the stamp file and exit 0 without a full reload when current; reload when stale.")
	flag.BoolVar(&explainFlag, "explain", false, "With -regen, print a diff of what changed when the stamp is stale.")
	flag.StringVar(&stampFlag, "stamp", "", "Stamp file path (defaults to the makefile name with .stamp appended).")

	flag.BoolVar(&useFindEmulator, "use_find_emulator", false, "Use the in-process find/findleaves.py emulator.")
	flag.StringVar(&ignoreOptionalInclude, "ignore_optional_include", "", "If specified, skip reading -include directives whose filename matches this pattern.")
	flag.StringVar(&shellDate, "shell_date", "", "Pin $(shell date ...) to this time, specified as "+shellDateTimeformat)

	flag.BoolVar(&mkcore.LogFlag, "mkcore_log", false, "Verbose evaluator-specific log")
	flag.BoolVar(&mkcore.StatsFlag, "mkcore_stats", false, "Show a bunch of statistics")
	flag.BoolVar(&mkcore.PeriodicStatsFlag, "mkcore_periodic_stats", false, "Show a bunch of periodic statistics")
	flag.BoolVar(&mkcore.EvalStatsFlag, "mkcore_eval_stats", false, "Show eval statistics")
	flag.BoolVar(&mkcore.UseShellBuiltins, "use_shell_builtins", true, "Rewrite known-safe $(shell ...) idioms instead of forking a subshell.")
}

func defaultStampFile(makefile string) string {
	if makefile == "" {
		makefile = "Makefile"
	}
	return makefile + ".stamp"
}

func load(req mkcore.LoadReq) (*mkcore.DepGraph, error) {
	if loadGOB != "" {
		return mkcore.GOB.Load(loadGOB)
	}
	if loadJSON != "" {
		return mkcore.JSON.Load(loadJSON)
	}
	return mkcore.Load(req)
}

func save(g *mkcore.DepGraph, targets []string) error {
	var err error
	if saveGOB != "" {
		err = mkcore.GOB.Save(g, saveGOB, targets)
	}
	if saveJSON != "" {
		serr := mkcore.JSON.Save(g, saveJSON, targets)
		if err == nil {
			err = serr
		}
	}
	return err
}

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())
	flag.Parse()
	err := run(flag.Args())
	if err != nil {
		fmt.Println(err)
		// http://www.gnu.org/software/make/manual/html_node/Running.html
		os.Exit(2)
	}
}

func run(args []string) error {
	defer mkcore.DumpStats()
	if traceEventFile != "" {
		f, err := os.Create(traceEventFile)
		if err != nil {
			return err
		}
		mkcore.TraceEventStart(f)
		defer mkcore.TraceEventStop()
	}

	if shellDate != "" {
		if shellDate == "ref" {
			shellDate = shellDateTimeformat[:20] // until Z, drop 07:00
		}
		t, err := time.Parse(shellDateTimeformat, shellDate)
		if err != nil {
			return err
		}
		mkcore.ShellDateTimestamp = t
	}
	mkcore.UseFindEmulator = useFindEmulator
	mkcore.IgnoreOptionalInclude = ignoreOptionalInclude

	req := mkcore.FromCommandLine(args)
	if makefileFlag != "" {
		req.Makefile = makefileFlag
	}
	req.EnvironmentVars = os.Environ()
	req.UseCache = useCache
	req.EagerEvalCommand = eagerCmdEvalFlag

	stampFile := stampFlag
	if stampFile == "" {
		stampFile = defaultStampFile(req.Makefile)
	}

	if regenFlag {
		prev, err := mkcore.LoadStamp(stampFile)
		if err == nil {
			current, reason := mkcore.CheckStamp(prev, args)
			if current {
				return nil
			}
			fmt.Println("stamp stale:", reason)
			if explainFlag {
				g, lerr := load(req)
				if lerr == nil {
					fmt.Print(mkcore.StampExplain(prev, mkcore.NewStamp(g, args)))
					return nil
				}
				return lerr
			}
			// fall through and regenerate below
		}
	}

	g, err := load(req)
	if err != nil {
		return err
	}
	nodes := g.Nodes()
	vars := g.Vars()

	err = save(g, req.Targets)
	if err != nil {
		return err
	}

	stamp := mkcore.NewStamp(g, args)
	err = mkcore.SaveStamp(stamp, stampFile)
	if err != nil {
		return err
	}

	if syntaxCheckOnlyFlag {
		return nil
	}

	for name, export := range g.Exports() {
		if !export {
			os.Unsetenv(name)
			continue
		}
		ev := mkcore.NewEvaluator(vars)
		v, err := ev.EvaluateVar(name)
		if err != nil {
			return err
		}
		os.Setenv(name, v)
	}

	if generateNinja {
		// The ninja file itself is written by an external collaborator;
		// this bakes every rule's commands into static strings it can
		// consume without re-running the evaluator.
		return mkcore.EvalCommands(nodes, vars)
	}

	return nil
}
