//go:build wasm

// Package main provides a WebAssembly interface to xpk.
// This allows packed assets to be loaded in browser and edge JavaScript
// runtimes.
//
// Build with: GOOS=js GOARCH=wasm go build -tags wasm -o xpk.wasm ./wasm
package main

import (
	"context"
	"encoding/json"
	"syscall/js"

	"github.com/nxengine/xpk"
)

var store *xpk.AssetStore

func main() {
	var err error
	store, err = xpk.NewAssetStore(xpk.NewMemoryBackend(), xpk.DefaultStoreConfig())
	if err != nil {
		panic(err)
	}

	js.Global().Set("xpk", js.ValueOf(map[string]interface{}{
		"pack":     js.FuncOf(jsPack),
		"unpack":   js.FuncOf(jsUnpack),
		"isPacked": js.FuncOf(jsIsPacked),
		"advise":   js.FuncOf(jsAdvise),
		"put":      js.FuncOf(jsPut),
		"get":      js.FuncOf(jsGet),
	}))

	// Keep the Go runtime alive
	select {}
}

// jsPack packs bytes. Input that does not pack is returned unchanged.
// xpk.pack(data: Uint8Array, mode?: string): Promise<Uint8Array>
func jsPack(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return wrapError("data is required")
	}
	src := bytesFromJS(args[0])
	mode := xpk.ModeNestedRank
	if len(args) > 1 && args[1].Type() == js.TypeString {
		m, err := xpk.ParseMode(args[1].String())
		if err != nil {
			return wrapError(err.Error())
		}
		mode = m
	}

	return promisify(func() (interface{}, error) {
		out, _, err := xpk.NewCodec(xpk.Config{}).PackOrStore(src, mode)
		return out, err
	})
}

// jsUnpack returns the data xpk.pack was given. Unpacked input is returned
// unchanged.
// xpk.unpack(data: Uint8Array): Promise<Uint8Array>
func jsUnpack(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return wrapError("data is required")
	}
	buf := bytesFromJS(args[0])
	return promisify(func() (interface{}, error) {
		return xpk.NewCodec(xpk.Config{}).Restore(buf)
	})
}

// xpk.isPacked(data: Uint8Array): boolean
func jsIsPacked(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return false
	}
	return xpk.IsPacked(bytesFromJS(args[0]))
}

// jsAdvise benchmarks every mode.
// xpk.advise(data: Uint8Array): Promise<object>
func jsAdvise(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return wrapError("data is required")
	}
	src := bytesFromJS(args[0])
	return promisify(func() (interface{}, error) {
		advice, err := xpk.NewCodec(xpk.Config{}).Advise(src)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(advice)
		if err != nil {
			return nil, err
		}
		return js.Global().Get("JSON").Call("parse", string(encoded)), nil
	})
}

// jsPut stores an asset in the in-memory store.
// xpk.put(key: string, data: Uint8Array): Promise<object>
func jsPut(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return wrapError("key and data are required")
	}
	key := args[0].String()
	data := bytesFromJS(args[1])
	return promisify(func() (interface{}, error) {
		info, err := store.Put(context.Background(), key, data)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"key":     info.Key,
			"packed":  info.Packed,
			"mode":    info.Mode.String(),
			"size":    info.Size,
			"rawSize": info.RawSize,
		}, nil
	})
}

// xpk.get(key: string): Promise<Uint8Array>
func jsGet(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return wrapError("key is required")
	}
	key := args[0].String()
	return promisify(func() (interface{}, error) {
		return store.Get(context.Background(), key)
	})
}

func bytesFromJS(v js.Value) []byte {
	buf := make([]byte, v.Get("length").Int())
	js.CopyBytesToGo(buf, v)
	return buf
}

func promisify(fn func() (interface{}, error)) js.Value {
	handler := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolve := args[0]
		reject := args[1]

		go func() {
			result, err := fn()
			if err != nil {
				reject.Invoke(js.Global().Get("Error").New(err.Error()))
				return
			}
			resolve.Invoke(toJS(result))
		}()

		return nil
	})

	return js.Global().Get("Promise").New(handler)
}

func toJS(v interface{}) js.Value {
	switch val := v.(type) {
	case nil:
		return js.Undefined()
	case js.Value:
		return val
	case []byte:
		arr := js.Global().Get("Uint8Array").New(len(val))
		js.CopyBytesToJS(arr, val)
		return arr
	case map[string]interface{}:
		obj := js.Global().Get("Object").New()
		for k, item := range val {
			obj.Set(k, item)
		}
		return obj
	default:
		return js.ValueOf(val)
	}
}

func wrapError(msg string) js.Value {
	return js.Global().Get("Promise").Call("reject",
		js.Global().Get("Error").New(msg))
}
