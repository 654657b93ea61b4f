package runtime

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Container is the function registry. Functions are registered directly or
// discovered from plugin methods as "<plugin>.<method>".
type Container struct {
	mu        sync.RWMutex
	functions map[string]Function
	plugins   map[string]any
	order     []string // plugin registration order, for lifecycle calls

	defaultProvider ResourceProvider
}

func NewContainer() *Container {
	return &Container{
		functions: make(map[string]Function),
		plugins:   make(map[string]any),
	}
}

// Register adds or replaces a function.
func (c *Container) Register(name string, fn Function) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.functions[name] = fn
}

func (c *Container) Lookup(name string) (Function, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.functions[name]
	return fn, ok
}

// Functions returns the registered function names, sorted.
func (c *Container) Functions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.functions))
	for name := range c.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Container) Plugin(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.plugins[name]
	return p, ok
}

// RegisterPlugin applies rawConfig to the plugin's Config field, then
// registers every exported method with a function signature:
//
//	func (p *P) Name(call *Call, args map[string]any) (map[string]any | any, error)
//	func (p *P) Name(call *Call, input SomeStruct) (SomeOutput, error)
//
// Typed inputs are decoded by json tag and validated before the call.
func (c *Container) RegisterPlugin(pluginName string, plugin any, rawConfig map[string]any) error {
	if plugin == nil {
		return errors.New("plugin cannot be nil")
	}
	if pluginName == "" {
		return errors.New("plugin name cannot be empty")
	}

	if err := configurePlugin(plugin, rawConfig); err != nil {
		return fmt.Errorf("plugin %s: %w", pluginName, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.plugins[pluginName]; !exists {
		c.order = append(c.order, pluginName)
	}
	c.plugins[pluginName] = plugin

	pluginType := reflect.TypeOf(plugin)
	pluginValue := reflect.ValueOf(plugin)

	for i := 0; i < pluginType.NumMethod(); i++ {
		method := pluginType.Method(i)
		if !method.IsExported() {
			continue
		}

		input, ok := functionInput(method.Type)
		if !ok {
			continue
		}

		name := fmt.Sprintf("%s.%s", pluginName, toLowerFirst(method.Name))
		c.functions[name] = &methodFunction{
			name:     name,
			receiver: pluginValue,
			method:   method,
			input:    input,
		}
	}
	return nil
}

// UseDefaultProvider makes the named plugin supply the default resource.
func (c *Container) UseDefaultProvider(pluginName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.plugins[pluginName]
	if !ok {
		return fmt.Errorf("default resource: plugin %q is not registered", pluginName)
	}
	provider, ok := p.(ResourceProvider)
	if !ok {
		return fmt.Errorf("default resource: plugin %q cannot provide resources", pluginName)
	}
	c.defaultProvider = provider
	return nil
}

func (c *Container) SetDefaultProvider(provider ResourceProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultProvider = provider
}

func (c *Container) DefaultProvider() ResourceProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultProvider
}

// Initialize calls Initialize on plugins in registration order and stops at
// the first failure.
func (c *Container) Initialize(ctx context.Context) error {
	for _, name := range c.pluginOrder() {
		p, _ := c.Plugin(name)
		if initializer, ok := p.(Initializer); ok {
			if err := initializer.Initialize(ctx); err != nil {
				return fmt.Errorf("plugin %s initialization failed: %w", name, err)
			}
		}
	}
	return nil
}

// Shutdown calls Shutdown on plugins in reverse registration order.
func (c *Container) Shutdown(ctx context.Context) error {
	order := c.pluginOrder()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		p, _ := c.Plugin(order[i])
		if s, ok := p.(Shutdowner); ok {
			if err := s.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("plugin %s shutdown failed: %w", order[i], err))
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Container) pluginOrder() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// configurePlugin feeds rawConfig into an exported Config struct field.
func configurePlugin(plugin any, rawConfig map[string]any) error {
	v := reflect.ValueOf(plugin)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		if len(rawConfig) > 0 {
			return fmt.Errorf("config given but %T has no Config field", plugin)
		}
		return nil
	}

	field := v.Elem().FieldByName("Config")
	if !field.IsValid() || field.Kind() != reflect.Struct || !field.CanAddr() {
		if len(rawConfig) > 0 {
			return fmt.Errorf("config given but %T has no Config field", plugin)
		}
		return nil
	}
	return InitializeConfig(field.Addr().Interface(), rawConfig)
}

var (
	callPtrType = reflect.TypeOf((*Call)(nil))
	mapType     = reflect.TypeOf(map[string]any(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// functionInput reports the parameter type of a method usable as a function.
func functionInput(methodType reflect.Type) (reflect.Type, bool) {
	// receiver, *Call, input
	if methodType.NumIn() != 3 || methodType.NumOut() != 2 {
		return nil, false
	}
	if methodType.In(1) != callPtrType || methodType.Out(1) != errorType {
		return nil, false
	}

	input := methodType.In(2)
	if input != mapType && input.Kind() != reflect.Struct {
		return nil, false
	}

	switch out := methodType.Out(0); out.Kind() {
	case reflect.Map, reflect.Struct, reflect.Interface:
	default:
		return nil, false
	}
	return input, true
}

// toLowerFirst converts first character of string to lowercase
func toLowerFirst(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// methodFunction wraps a plugin method to implement Function.
type methodFunction struct {
	name     string
	receiver reflect.Value
	method   reflect.Method
	input    reflect.Type
}

func (w *methodFunction) Execute(call *Call, params map[string]any) (any, error) {
	var arg reflect.Value
	if w.input == mapType {
		if params == nil {
			params = map[string]any{}
		}
		arg = reflect.ValueOf(params)
	} else {
		ptr := reflect.New(w.input)
		if err := DecodeParams(params, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("%s: %w", w.name, err)
		}
		arg = ptr.Elem()
	}

	results := w.method.Func.Call([]reflect.Value{w.receiver, reflect.ValueOf(call), arg})

	var err error
	if e, ok := results[1].Interface().(error); ok && e != nil {
		err = e
	}
	if err != nil {
		return nil, err
	}

	out := results[0]
	if out.Kind() == reflect.Struct {
		m, convErr := structToMap(out.Interface())
		if convErr != nil {
			return nil, fmt.Errorf("%s: failed to convert output: %w", w.name, convErr)
		}
		return m, nil
	}
	return out.Interface(), nil
}
