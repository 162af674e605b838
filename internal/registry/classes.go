package registry

import (
	"fmt"
	"strings"
	"sync"
)

// Class loader error codes.
const (
	CodeModuleNotRegistered = "module_not_registered"
	CodeMissingClass        = "missing_class"
	CodeLoadClassException  = "load_class_exception"
)

// ClassResolver looks up the constructor of an externally supplied runner.
type ClassResolver interface {
	Resolve(module, class string) (Constructor, error)
}

// ClassError is a failed class lookup.
type ClassError struct {
	Code   string
	Module string
	Class  string
}

func (e *ClassError) Error() string {
	return fmt.Sprintf("%s: %s.%s", e.Code, e.Module, e.Class)
}

// SplitClass splits "<module>.<Class>" at the last dot. Modules may be dotted.
func SplitClass(s string) (module, class string, ok bool) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// Classes is the default ClassResolver: a table applications populate with
// Register before the run starts.
type Classes struct {
	mu      sync.RWMutex
	modules map[string]map[string]Constructor
}

// NewClasses returns an empty class table.
func NewClasses() *Classes {
	return &Classes{modules: make(map[string]map[string]Constructor)}
}

// Register adds a runner class to a module.
func (c *Classes) Register(module, class string, ctor Constructor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	classes, ok := c.modules[module]
	if !ok {
		classes = make(map[string]Constructor)
		c.modules[module] = classes
	}
	if _, exists := classes[class]; exists {
		panic(fmt.Sprintf("class '%s.%s' already registered", module, class))
	}
	classes[class] = ctor
}

// Resolve implements ClassResolver.
func (c *Classes) Resolve(module, class string) (Constructor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	classes, ok := c.modules[module]
	if !ok {
		return nil, &ClassError{Code: CodeModuleNotRegistered, Module: module, Class: class}
	}
	ctor, ok := classes[class]
	if !ok {
		return nil, &ClassError{Code: CodeMissingClass, Module: module, Class: class}
	}
	return ctor, nil
}
