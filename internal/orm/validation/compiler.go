package validation

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// formats asserted by compiled checkers
var knownFormats = map[string]bool{
	"date-time": true,
	"date":      true,
	"email":     true,
	"uri":       true,
	"uuid":      true,
}

var resourceSeq atomic.Int64

// Checker is a compiled schema. It is immutable and safe for concurrent use.
type Checker struct {
	source   *Schema
	compiled *jsonschema.Schema
}

// Compile compiles s into a Checker. A nil schema compiles to a checker that
// accepts everything.
func Compile(s *Schema) (*Checker, error) {
	if s == nil {
		return &Checker{}, nil
	}
	if err := checkDeclarations(s, ""); err != nil {
		return nil, err
	}

	doc, err := json.Marshal(s.document())
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	url := fmt.Sprintf("mem://rowmodel/schema-%d.json", resourceSeq.Add(1))
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Checker{source: s, compiled: compiled}, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(s *Schema) *Checker {
	c, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return c
}

// checkDeclarations rejects type and format names the checker would
// otherwise ignore
func checkDeclarations(s *Schema, path string) error {
	for _, t := range s.Type {
		switch t {
		case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray, TypeNull:
		default:
			return fmt.Errorf("schema %s: unknown type %q", displayPath(path), t)
		}
	}
	if s.Format != "" && !knownFormats[s.Format] {
		return fmt.Errorf("schema %s: unknown format %q", displayPath(path), s.Format)
	}
	for name, child := range s.Properties {
		if child == nil {
			continue
		}
		if err := checkDeclarations(child, joinPath(path, name)); err != nil {
			return err
		}
	}
	if s.Items != nil {
		return checkDeclarations(s.Items, path+"[]")
	}
	return nil
}

// Check validates data and returns *ValidationErrors describing every
// violation, sorted by path, or nil when data is valid
func (c *Checker) Check(data map[string]interface{}) error {
	if c == nil || c.compiled == nil {
		return nil
	}

	instance, err := jsonValue(data)
	if err != nil {
		errs := NewValidationErrors()
		errs.Add("", "cannot be encoded as JSON: "+err.Error())
		return errs
	}

	err = c.compiled.Validate(instance)
	if err == nil {
		return nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err
	}

	collector := &issueCollector{root: c.source, instance: instance, seen: make(map[FieldError]bool)}
	collector.collect(verr)
	sort.SliceStable(collector.issues, func(i, j int) bool {
		return collector.issues[i].Path < collector.issues[j].Path
	})
	return &ValidationErrors{Issues: collector.issues}
}

// Valid reports whether data satisfies the schema
func (c *Checker) Valid(data map[string]interface{}) bool {
	return c.Check(data) == nil
}

// jsonValue converts data to the plain JSON value tree the validator
// understands: times and ids become strings, typed maps and slices become
// generic ones and numbers become json.Number
func jsonValue(data map[string]interface{}) (interface{}, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var value interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

// issueCollector turns the leaves of a validation error tree into field
// errors. Messages are rebuilt from the declared schema so they do not
// depend on the validator's wording.
type issueCollector struct {
	root     *Schema
	instance interface{}
	issues   []FieldError
	seen     map[FieldError]bool
}

func (ic *issueCollector) collect(verr *jsonschema.ValidationError) {
	if len(verr.Causes) > 0 {
		for _, cause := range verr.Causes {
			ic.collect(cause)
		}
		return
	}

	tokens := pointerTokens(verr.KeywordLocation)
	if len(tokens) == 0 {
		ic.add(ic.path(verr.InstanceLocation), verr.Message)
		return
	}
	keyword := tokens[len(tokens)-1]
	node := schemaAt(ic.root, tokens[:len(tokens)-1])
	path := ic.path(verr.InstanceLocation)
	if node == nil {
		ic.add(path, verr.Message)
		return
	}

	switch keyword {
	case "required":
		obj, _ := ic.valueAt(verr.InstanceLocation).(map[string]interface{})
		for _, name := range node.Required {
			if _, ok := obj[name]; !ok {
				ic.add(joinPath(path, name), "is required")
			}
		}
	case "additionalProperties":
		obj, _ := ic.valueAt(verr.InstanceLocation).(map[string]interface{})
		extra := make([]string, 0, len(obj))
		for name := range obj {
			if _, ok := node.Properties[name]; !ok {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		for _, name := range extra {
			ic.add(joinPath(path, name), "is not allowed")
		}
	case "type":
		ic.add(path, "must be "+strings.Join(node.Type, ","))
	case "minimum":
		ic.add(path, fmt.Sprintf("must be >= %v", *node.Minimum))
	case "maximum":
		ic.add(path, fmt.Sprintf("must be <= %v", *node.Maximum))
	case "minLength":
		ic.add(path, fmt.Sprintf("must NOT have fewer than %d characters", *node.MinLength))
	case "maxLength":
		ic.add(path, fmt.Sprintf("must NOT have more than %d characters", *node.MaxLength))
	case "minItems":
		ic.add(path, fmt.Sprintf("must NOT have fewer than %d items", *node.MinItems))
	case "maxItems":
		ic.add(path, fmt.Sprintf("must NOT have more than %d items", *node.MaxItems))
	case "pattern":
		ic.add(path, fmt.Sprintf("must match pattern %q", node.Pattern))
	case "format":
		ic.add(path, fmt.Sprintf("must match format %q", node.Format))
	case "enum":
		ic.add(path, "must be equal to one of the allowed values")
	default:
		ic.add(path, verr.Message)
	}
}

func (ic *issueCollector) add(path, message string) {
	issue := NewFieldError(path, message)
	if ic.seen[issue] {
		return
	}
	ic.seen[issue] = true
	ic.issues = append(ic.issues, issue)
}

// path renders a JSON pointer into the instance as "a.b[1].c"
func (ic *issueCollector) path(pointer string) string {
	var b strings.Builder
	current := ic.instance
	for _, token := range pointerTokens(pointer) {
		switch v := current.(type) {
		case []interface{}:
			b.WriteString("[" + token + "]")
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(v) {
				current = nil
				continue
			}
			current = v[idx]
		case map[string]interface{}:
			if b.Len() > 0 {
				b.WriteString(".")
			}
			b.WriteString(token)
			current = v[token]
		default:
			if b.Len() > 0 {
				b.WriteString(".")
			}
			b.WriteString(token)
			current = nil
		}
	}
	return b.String()
}

func (ic *issueCollector) valueAt(pointer string) interface{} {
	current := ic.instance
	for _, token := range pointerTokens(pointer) {
		switch v := current.(type) {
		case []interface{}:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil
			}
			current = v[idx]
		case map[string]interface{}:
			current = v[token]
		default:
			return nil
		}
	}
	return current
}

// schemaAt follows keyword tokens ("properties", name, "items") from root
func schemaAt(root *Schema, tokens []string) *Schema {
	node := root
	for i := 0; i < len(tokens) && node != nil; i++ {
		switch tokens[i] {
		case "properties":
			if i+1 >= len(tokens) {
				return nil
			}
			i++
			node = node.Properties[tokens[i]]
		case "items":
			node = node.Items
		default:
			return nil
		}
	}
	return node
}

// pointerTokens splits and unescapes a JSON pointer. Absolute keyword
// locations ("mem://...#/a") are reduced to their fragment.
func pointerTokens(pointer string) []string {
	if idx := strings.Index(pointer, "#"); idx >= 0 {
		pointer = pointer[idx+1:]
	}
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return nil
	}
	tokens := strings.Split(pointer, "/")
	for i, token := range tokens {
		token = strings.ReplaceAll(token, "~1", "/")
		tokens[i] = strings.ReplaceAll(token, "~0", "~")
	}
	return tokens
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func displayPath(path string) string {
	if path == "" {
		return "root"
	}
	return path
}
