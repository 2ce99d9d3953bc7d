package container

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ertembiyik/rlm-engine/internal/model"
)

const (
	stateSentinel = "\x00RLM_STATE\x00"
	callsSentinel = "\x00RLM_CALLS\x00"
)

type programInput struct {
	Priors     map[string]any
	Candidates []string
	ProxyURL   string
	Depth      int
	Source     string
}

// materializeProgram assembles the complete Node.js script run inside
// the container: a preamble defining the four hook functions against
// the host-side proxy, the prior execution's variables bound as plain
// top-level declarations, the user's source verbatim, and an epilogue
// that snapshots the post-execution locals and any llm_query calls
// through two sentinel-prefixed stdout lines.
func materializeProgram(in programInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "'use strict';\n")
	fmt.Fprintf(&b, "const __rlm_proxy = %s;\n", mustJSON(in.ProxyURL))
	fmt.Fprintf(&b, "const __rlm_depth = %d;\n", in.Depth)
	fmt.Fprintf(&b, "const __rlm_candidates = %s;\n", mustJSON(in.Candidates))
	fmt.Fprintf(&b, "const __rlm_calls = [];\n")
	fmt.Fprintf(&b, "const MAX_STDOUT = %d;\n", maxStdoutBytes)
	b.WriteString(preamble)

	for name, value := range in.Priors {
		if isReservedWord(name) || isReservedIdentifier(name) {
			continue
		}
		fmt.Fprintf(&b, "var %s = %s;\n", name, mustJSON(value))
	}

	b.WriteString("\n// --- begin user program ---\n")
	b.WriteString(in.Source)
	b.WriteString("\n// --- end user program ---\n\n")
	b.WriteString(epilogue)

	return b.String()
}

const preamble = `
function __rlm_textForm(v) {
  if (typeof v === 'string') return v;
  if (v === null || v === undefined) return '';
  if (typeof v === 'number' || typeof v === 'boolean') return String(v);
  try { return JSON.stringify(v); } catch (e) { return String(v); }
}

function __rlm_post(path, body) {
  const { execFileSync } = require('child_process');
  const payload = JSON.stringify(body);
  try {
    const out = execFileSync('wget', [
      '-q', '-O', '-',
      '--header=Content-Type: application/json',
      '--post-data=' + payload,
      __rlm_proxy + path,
    ], { encoding: 'utf8', maxBuffer: 64 * 1024 * 1024 });
    return JSON.parse(out);
  } catch (e) {
    return null;
  }
}

function llm_query(prompt, modelName) {
  const res = __rlm_post('/llm_query', { prompt: prompt, model: modelName || '', depth: __rlm_depth });
  if (!res) return 'Error: request failed';
  __rlm_calls.push(res.rlm_call);
  return res.response;
}

function llm_query_batched(prompts, modelName) {
  const res = __rlm_post('/llm_query_batched', { prompts: prompts, model: modelName || '', depth: __rlm_depth });
  if (!res) return prompts.map(function () { return 'Error: request failed'; });
  for (const c of res.rlm_calls) { __rlm_calls.push(c); }
  return res.responses;
}

function FINAL_VAR(name) {
  try {
    const v = eval(name);
    if (v === undefined) {
      return 'variable "' + name + '" is not defined; assign it first.';
    }
    return __rlm_textForm(v);
  } catch (e) {
    return 'variable "' + name + '" is not defined; assign it first.';
  }
}

function SHOW_VARS() {
  const out = {};
  for (const name of __rlm_candidates) {
    try {
      const v = eval(name);
      if (v === undefined) continue;
      if (Array.isArray(v)) out[name] = 'array';
      else if (v === null) out[name] = 'undefined';
      else out[name] = typeof v;
    } catch (e) {
      // not yet defined
    }
  }
  return out;
}

let __rlm_stdout_len = 0;
function __rlm_print() {
  const parts = Array.prototype.map.call(arguments, function (a) { return __rlm_textForm(a); });
  const line = parts.join(' ');
  if (__rlm_stdout_len + line.length < MAX_STDOUT) {
    process.stdout.write(line + '\n');
    __rlm_stdout_len += line.length + 1;
  }
}
const print = __rlm_print;
const console = { log: __rlm_print };

const re = {
  findAll: function (pattern, text) { return text.match(new RegExp(pattern, 'g')) || []; },
  search: function (pattern, text) { const m = text.match(new RegExp(pattern)); return m ? m[0] : ''; },
  split: function (pattern, text, n) {
    const parts = text.split(new RegExp(pattern));
    return (typeof n === 'number' && n >= 0) ? parts.slice(0, n) : parts;
  },
  replace: function (pattern, text, repl) { return text.replace(new RegExp(pattern, 'g'), repl); },
};
`

const epilogue = `
const __rlm_locals = {};
for (const __rlm_name of __rlm_candidates) {
  try {
    const __rlm_val = eval(__rlm_name);
    if (__rlm_val === undefined) continue;
    JSON.stringify(__rlm_val);
    __rlm_locals[__rlm_name] = __rlm_val;
  } catch (e) {
    // not defined, or not JSON-serializable: dropped, not an error
  }
}
process.stdout.write('\x00RLM_STATE\x00' + JSON.stringify(__rlm_locals) + '\n');
process.stdout.write('\x00RLM_CALLS\x00' + JSON.stringify(__rlm_calls) + '\n');
`

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// splitSentinels separates the two sentinel-prefixed bookkeeping lines
// the epilogue writes from the program's ordinary, user-visible stdout.
// It tolerates a malformed or missing sentinel line by returning a nil
// locals map and calls slice, leaving the prior state file untouched.
func splitSentinels(raw string) (locals map[string]any, calls []model.SubLMCall, visible string) {
	lines := strings.Split(raw, "\n")
	var kept []string
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, stateSentinel):
			payload := strings.TrimPrefix(line, stateSentinel)
			var parsed map[string]any
			if json.Unmarshal([]byte(payload), &parsed) == nil {
				locals = parsed
			}
		case strings.HasPrefix(line, callsSentinel):
			payload := strings.TrimPrefix(line, callsSentinel)
			var parsed []model.SubLMCall
			if json.Unmarshal([]byte(payload), &parsed) == nil {
				calls = parsed
			}
		default:
			kept = append(kept, line)
		}
	}
	visible = strings.Join(kept, "\n")
	visible = strings.TrimSuffix(visible, "\n")
	return locals, calls, visible
}
