package local

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/ertembiyik/rlm-engine/internal/model"
	"github.com/ertembiyik/rlm-engine/internal/router"
)

var hookHTTPClient = &http.Client{Timeout: 4 * time.Minute}

type queryBody struct {
	Prompt any    `json:"prompt"`
	Model  string `json:"model,omitempty"`
	Depth  int    `json:"depth"`
}

type queryResp struct {
	Response string          `json:"response"`
	RLMCall  model.SubLMCall `json:"rlm_call"`
}

type batchedBody struct {
	Prompts []any  `json:"prompts"`
	Model   string `json:"model,omitempty"`
	Depth   int    `json:"depth"`
}

type batchedResp struct {
	Responses []string          `json:"responses"`
	RLMCalls  []model.SubLMCall `json:"rlm_calls"`
}

// hookSet binds the four injected hook functions to one execution's
// router address, depth, and call accumulator.
type hookSet struct {
	addr   router.Address
	depth  int
	calls  *[]model.SubLMCall
	priors []string // identifiers known before this execution started
	source string   // the executing program, for SHOW_VARS's live-name scan
}

func (h *hookSet) llmQuery(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		prompt := call.Argument(0).Export()
		modelName := ""
		if len(call.Arguments) > 1 && !goja.IsUndefined(call.Argument(1)) {
			modelName = call.Argument(1).String()
		}

		body, _ := json.Marshal(queryBody{Prompt: prompt, Model: modelName, Depth: h.depth})
		resp, err := hookHTTPClient.Post(h.addr.URL()+"/llm_query", "application/json", bytes.NewReader(body))
		if err != nil {
			return vm.ToValue(fmt.Sprintf("Error: %v", err))
		}
		defer resp.Body.Close()

		var out queryResp
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return vm.ToValue(fmt.Sprintf("Error: %v", err))
		}
		if resp.StatusCode != http.StatusOK {
			return vm.ToValue(fmt.Sprintf("Error: %s", out.Response))
		}
		*h.calls = append(*h.calls, out.RLMCall)
		return vm.ToValue(out.Response)
	}
}

func (h *hookSet) llmQueryBatched(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		raw := call.Argument(0).Export()
		prompts, _ := raw.([]any)
		modelName := ""
		if len(call.Arguments) > 1 && !goja.IsUndefined(call.Argument(1)) {
			modelName = call.Argument(1).String()
		}

		body, _ := json.Marshal(batchedBody{Prompts: prompts, Model: modelName, Depth: h.depth})
		resp, err := hookHTTPClient.Post(h.addr.URL()+"/llm_query_batched", "application/json", bytes.NewReader(body))
		if err != nil {
			errs := make([]string, len(prompts))
			for i := range errs {
				errs[i] = fmt.Sprintf("Error: %v", err)
			}
			return vm.ToValue(errs)
		}
		defer resp.Body.Close()

		var out batchedResp
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			errs := make([]string, len(prompts))
			for i := range errs {
				errs[i] = fmt.Sprintf("Error: %v", err)
			}
			return vm.ToValue(errs)
		}
		h.appendCalls(out.RLMCalls)
		return vm.ToValue(out.Responses)
	}
}

func (h *hookSet) appendCalls(calls []model.SubLMCall) {
	*h.calls = append(*h.calls, calls...)
}

func (h *hookSet) finalVar(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		name := stripNameQuotes(call.Argument(0).String())
		val := vm.Get(name)
		if val == nil || goja.IsUndefined(val) {
			available := "(none)"
			if len(h.priors) > 0 {
				sorted := append([]string(nil), h.priors...)
				sort.Strings(sorted)
				available = strings.Join(sorted, ", ")
			}
			return vm.ToValue(fmt.Sprintf(
				"variable %q is not defined; assign it first. available identifiers: %s", name, available))
		}
		return vm.ToValue(textForm(val.Export()))
	}
}

func (h *hookSet) showVars(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		names := append([]string(nil), h.priors...)
		names = append(names, extractAssignmentTargets(h.source)...)

		seen := make(map[string]bool, len(names))
		out := make(map[string]string)
		for _, name := range names {
			if seen[name] || isReservedIdentifier(name) {
				continue
			}
			seen[name] = true
			val := vm.Get(name)
			if val == nil || goja.IsUndefined(val) {
				continue
			}
			out[name] = displayableType(val.Export())
		}
		return vm.ToValue(out)
	}
}

func stripNameQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func textForm(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case float64, int, int64, bool:
		return fmt.Sprintf("%v", val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
