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
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Command is one shell command line ready to hand to an external runner.
// mkcore never forks the command itself (the process executor
// is an external collaborator); this is the boundary type it hands over.
type Command struct {
	Output      string
	Text        string
	Echo        bool
	IgnoreError bool
}

// autoVarCtx is the small context struct automatic variables close over,
// instead of a back-pointer into an Executor (avoiding cyclic ownership
// avoiding cyclic ownership between the evaluator and command-time
// automatic variables).
type autoVarCtx struct {
	output string
	inputs []string
	stem   string
}

type autoVar struct{ ctx *autoVarCtx }

func (v autoVar) Flavor() string  { return "undefined" }
func (v autoVar) Origin() string  { return "automatic" }
func (v autoVar) IsDefined() bool { return true }
func (v autoVar) Append(*Evaluator, string) (Var, error) {
	return nil, fmt.Errorf("cannot append to autovar")
}
func (v autoVar) AppendVar(*Evaluator, Value) (Var, error) {
	return nil, fmt.Errorf("cannot append to autovar")
}
func (v autoVar) serialize() serializableVar {
	return serializableVar{Type: ""}
}
func (v autoVar) dump(d *dumpbuf) {
	d.err = fmt.Errorf("cannot dump auto var: %v", v)
}

type autoAtVar struct{ autoVar }

func (v autoAtVar) Eval(w evalWriter, ev *Evaluator) error {
	fmt.Fprint(w, v.ctx.output)
	return nil
}
func (v autoAtVar) String() string { return "$@" }

type autoLessVar struct{ autoVar }

func (v autoLessVar) Eval(w evalWriter, ev *Evaluator) error {
	if len(v.ctx.inputs) > 0 {
		fmt.Fprint(w, v.ctx.inputs[0])
	}
	return nil
}
func (v autoLessVar) String() string { return "$<" }

type autoHatVar struct{ autoVar }

func (v autoHatVar) Eval(w evalWriter, ev *Evaluator) error {
	var uniqueInputs []string
	seen := make(map[string]bool)
	for _, input := range v.ctx.inputs {
		if !seen[input] {
			seen[input] = true
			uniqueInputs = append(uniqueInputs, input)
		}
	}
	fmt.Fprint(w, strings.Join(uniqueInputs, " "))
	return nil
}
func (v autoHatVar) String() string { return "$^" }

type autoPlusVar struct{ autoVar }

func (v autoPlusVar) Eval(w evalWriter, ev *Evaluator) error {
	fmt.Fprint(w, strings.Join(v.ctx.inputs, " "))
	return nil
}
func (v autoPlusVar) String() string { return "$+" }

type autoStarVar struct{ autoVar }

func (v autoStarVar) Eval(w evalWriter, ev *Evaluator) error {
	if v.ctx.stem != "" {
		fmt.Fprint(w, v.ctx.stem)
		return nil
	}
	fmt.Fprint(w, stripExt(v.ctx.output))
	return nil
}
func (v autoStarVar) String() string { return "$*" }

type autoSuffixDVar struct {
	autoVar
	v Var
}

func (v autoSuffixDVar) Eval(w evalWriter, ev *Evaluator) error {
	buf := newEbuf()
	defer buf.release()
	err := v.v.Eval(buf, ev)
	if err != nil {
		return err
	}
	ws := newWordScanner(buf.Bytes())
	sw := ssvWriter{Writer: w}
	for ws.Scan() {
		sw.writeWordString(filepath.Dir(string(ws.Bytes())))
	}
	return nil
}

func (v autoSuffixDVar) String() string { return v.v.String() + "D" }

type autoSuffixFVar struct {
	autoVar
	v Var
}

func (v autoSuffixFVar) Eval(w evalWriter, ev *Evaluator) error {
	buf := newEbuf()
	defer buf.release()
	err := v.v.Eval(buf, ev)
	if err != nil {
		return err
	}
	ws := newWordScanner(buf.Bytes())
	sw := ssvWriter{Writer: w}
	for ws.Scan() {
		sw.writeWordString(filepath.Base(string(ws.Bytes())))
	}
	return nil
}

func (v autoSuffixFVar) String() string { return v.v.String() + "F" }

// installAutoVars binds $@ $< $^ $+ $* and their D/F suffix variants into
// vars, backed by ctx. Call once per command-expansion context.
func installAutoVars(vars Vars, ctx *autoVarCtx) {
	for k, v := range map[string]Var{
		"@": autoAtVar{autoVar: autoVar{ctx: ctx}},
		"<": autoLessVar{autoVar: autoVar{ctx: ctx}},
		"^": autoHatVar{autoVar: autoVar{ctx: ctx}},
		"+": autoPlusVar{autoVar: autoVar{ctx: ctx}},
		"*": autoStarVar{autoVar: autoVar{ctx: ctx}},
	} {
		vars[k] = v
		vars[k+"D"] = autoSuffixDVar{v: v}
		vars[k+"F"] = autoSuffixFVar{v: v}
	}
}

// splitCommandLines splits an expanded command buffer into physical lines,
// splitting on unescaped newlines.
func splitCommandLines(b []byte) []string {
	var lines []string
	for _, line := range bytes.Split(b, []byte{'\n'}) {
		lines = append(lines, string(line))
	}
	return lines
}

// stripLineMarkers consumes leading '@'/'-'/'+' prefix markers from a
// command line, folding them into the echo/ignoreError flags inherited from
// a possible whole-Value prefix.
func stripLineMarkers(line string, echo, ignoreError bool) (bool, bool, string) {
	s := strings.TrimLeft(line, " \t")
	for len(s) > 0 {
		switch s[0] {
		case '@':
			echo = false
		case '-':
			ignoreError = true
		case '+':
			// recursion marker: kept but noted, does not change s further
			// than consuming the marker byte itself.
		default:
			return echo, ignoreError, s
		}
		s = s[1:]
	}
	return echo, ignoreError, s
}

// evalCmd expands one rule command-line string against ev, honoring
// whole-command '@'/'-'/'+' markers on the raw (unexpanded) text and then
// per-physical-line markers after expansion, and returns zero or more
// Commands (a single source command line can expand to several, e.g. via a
// multi-line recursive variable).
func evalCmd(ev *Evaluator, output string, raw string) ([]Command, error) {
	echo, ignoreError := true, false
	s := raw
	for len(s) > 0 {
		switch s[0] {
		case '@':
			echo = false
		case '-':
			ignoreError = true
		case '+':
		default:
			goto parsed
		}
		s = s[1:]
	}
parsed:
	v, _, err := parseExpr([]byte(s), nil, parseOp{})
	if err != nil {
		return nil, err
	}
	buf := newEbuf()
	defer buf.release()
	err = v.Eval(buf, ev)
	if err != nil {
		return nil, err
	}
	var cmds []Command
	for _, out := range ev.takeDelayedOutputs() {
		cmds = append(cmds, Command{Output: output, Text: fmt.Sprintf("echo %q", out), Echo: false})
	}
	for _, line := range splitCommandLines(buf.Bytes()) {
		lEcho, lIgnore, text := stripLineMarkers(line, echo, ignoreError)
		if strings.TrimSpace(text) == "" {
			continue
		}
		cmds = append(cmds, Command{Output: output, Text: text, Echo: lEcho, IgnoreError: lIgnore})
	}
	return cmds, nil
}

// EvalNodeCommands resolves automatic variables for n and expands each of
// its rule commands into the Commands a downstream runner should execute.
// avoidIO puts the evaluator in ninja-generation mode:
// info/warning/error calls are queued instead of printed, and the second
// return value reports whether any command actually touched I/O, so a
// caller baking commands into a static ninja rule knows whether it must
// keep re-evaluating them at run time instead.
func EvalNodeCommands(vars Vars, n *DepNode, avoidIO bool) ([]Command, bool, error) {
	if len(n.Cmds) == 0 {
		return nil, false, nil
	}
	var restores []func()
	defer func() {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	}()
	ctx := &autoVarCtx{output: n.Output.String(), inputs: n.ActualInputs, stem: n.stem}
	for _, k := range []string{"@", "<", "^", "+", "*", "@D", "@F", "<D", "<F", "^D", "^F", "+D", "+F", "*D", "*F"} {
		restores = append(restores, vars.save(k))
	}
	installAutoVars(vars, ctx)
	for k, v := range n.TargetSpecificVars {
		restores = append(restores, vars.save(k))
		vars[k] = v
		logf("tsv: %s=%s", k, v)
	}

	ev := NewEvaluator(vars)
	ev.avoidIO = avoidIO
	ev.filename = n.Filename
	ev.lineno = n.Lineno
	logf("Building: %s cmds:%q", n.Output, n.Cmds)
	var cmds []Command
	for _, raw := range n.Cmds {
		cc, err := evalCmd(ev, n.Output.String(), raw)
		if err != nil {
			return nil, false, err
		}
		cmds = append(cmds, cc...)
	}
	return cmds, ev.hasIO, nil
}

// EvalCommands runs EvalNodeCommands eagerly over nodes in "avoid-IO" mode
// and bakes any node whose expansion turned out to have no I/O side effects
// back into static n.Cmds strings (with '@'/'-' markers reapplied), so a
// downstream ninja writer never needs to re-run the evaluator for it. Nodes
// that did touch I/O are left as-is for the downstream writer to handle,
// e.g. by re-checking ShellScriptHasNoIO itself at ninja-build time.
func EvalCommands(nodes []*DepNode, vars Vars) error {
	startTime := time.Now()
	ioCnt := 0
	for i, n := range nodes {
		cmds, hasIO, err := EvalNodeCommands(vars, n, true)
		if err != nil {
			return err
		}
		if hasIO {
			ioCnt++
			if ioCnt%100 == 0 {
				logStats("%d/%d rules have IO", ioCnt, i+1)
			}
			continue
		}
		n.Cmds = n.Cmds[:0]
		n.TargetSpecificVars = make(Vars)
		for _, c := range cmds {
			text := c.Text
			if !c.Echo {
				text = "@" + text
			}
			if c.IgnoreError {
				text = "-" + text
			}
			n.Cmds = append(n.Cmds, text)
		}
	}
	logStats("%d/%d rules have IO", ioCnt, len(nodes))
	logStats("eager eval command time: %q", time.Since(startTime))
	return nil
}
