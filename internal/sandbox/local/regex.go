package local

import (
	"regexp"

	"github.com/dop251/goja"
)

// installRegexModule injects the "re" object into vm: a small set of
// regex helpers (findAll, search, split, replace) over Go's regexp,
// additive to the four spec-mandated hooks.
func installRegexModule(vm *goja.Runtime) error {
	re := vm.NewObject()

	findAll := func(call goja.FunctionCall) goja.Value {
		pattern, text := twoStringArgs(vm, call, "findAll")
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(compiled.FindAllString(text, -1))
	}
	if err := re.Set("findAll", findAll); err != nil {
		return err
	}

	search := func(call goja.FunctionCall) goja.Value {
		pattern, text := twoStringArgs(vm, call, "search")
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(compiled.FindString(text))
	}
	if err := re.Set("search", search); err != nil {
		return err
	}

	split := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(vm.NewTypeError("split requires at least 2 arguments: pattern, text"))
		}
		pattern := call.Argument(0).String()
		text := call.Argument(1).String()
		n := -1
		if len(call.Arguments) >= 3 && !goja.IsUndefined(call.Argument(2)) {
			n = int(call.Argument(2).ToInteger())
		}
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(compiled.Split(text, n))
	}
	if err := re.Set("split", split); err != nil {
		return err
	}

	replace := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 3 {
			panic(vm.NewTypeError("replace requires 3 arguments: pattern, text, replacement"))
		}
		pattern := call.Argument(0).String()
		text := call.Argument(1).String()
		repl := call.Argument(2).String()
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(compiled.ReplaceAllString(text, repl))
	}
	if err := re.Set("replace", replace); err != nil {
		return err
	}

	return vm.Set("re", re)
}

func twoStringArgs(vm *goja.Runtime, call goja.FunctionCall, name string) (string, string) {
	if len(call.Arguments) < 2 {
		panic(vm.NewTypeError(name + " requires 2 arguments: pattern, text"))
	}
	return call.Argument(0).String(), call.Argument(1).String()
}
