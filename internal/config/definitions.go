package config

import (
	"fmt"
	"sort"

	"github.com/25smoking/ovalprobe/internal/oval"
)

// ========== Definitions ==========

type Definitions struct {
	Objects   []ObjectDef   `yaml:"objects"`
	Variables []VariableDef `yaml:"variables"`
}

type ObjectDef struct {
	ID       string      `yaml:"id"`
	Type     string      `yaml:"type"`
	Comment  string      `yaml:"comment"`
	Entities []EntityDef `yaml:"entities"`
}

type EntityDef struct {
	Name      string            `yaml:"name"`
	Datatype  string            `yaml:"datatype"`
	Operation string            `yaml:"operation"`
	Value     *string           `yaml:"value"` // nil 与空串不同
	VarRef    string            `yaml:"var_ref"`
	Attrs     map[string]string `yaml:"attrs"`
}

type VariableDef struct {
	ID        string        `yaml:"id"`
	Kind      string        `yaml:"kind"`
	Datatype  string        `yaml:"datatype"`
	Values    []string      `yaml:"values"`
	Component *ComponentDef `yaml:"component"`
}

type ComponentDef struct {
	ObjectRef string `yaml:"object_ref"`
	ItemField string `yaml:"item_field"`
}

var variableKinds = map[string]oval.VariableKind{
	"constant": oval.VariableConstant,
	"external": oval.VariableExternal,
	"local":    oval.VariableLocal,
}

var subtypes = map[string]oval.Subtype{
	string(oval.SubtypeEnvironmentVariable): oval.SubtypeEnvironmentVariable,
	string(oval.SubtypeFileMD5):             oval.SubtypeFileMD5,
	string(oval.SubtypeFileHash):            oval.SubtypeFileHash,
	string(oval.SubtypeVariable):            oval.SubtypeVariable,
}

// Build 把 YAML 定义转换为对象和变量模型，并按 id 链接 var_ref
func (d *Definitions) Build() ([]*oval.Object, map[string]*oval.Variable, error) {
	vars := make(map[string]*oval.Variable, len(d.Variables))
	for _, vd := range d.Variables {
		v, err := vd.build()
		if err != nil {
			return nil, nil, err
		}
		if _, dup := vars[v.ID]; dup {
			return nil, nil, fmt.Errorf("duplicate variable id %q", v.ID)
		}
		vars[v.ID] = v
	}

	seen := make(map[string]bool, len(d.Objects))
	objects := make([]*oval.Object, 0, len(d.Objects))
	for _, od := range d.Objects {
		obj, err := od.build(vars)
		if err != nil {
			return nil, nil, err
		}
		if seen[obj.ID] {
			return nil, nil, fmt.Errorf("duplicate object id %q", obj.ID)
		}
		seen[obj.ID] = true
		objects = append(objects, obj)
	}

	for _, v := range vars {
		if v.Kind == oval.VariableLocal && !seen[v.Component.ObjectRef] {
			return nil, nil, fmt.Errorf("variable %s: unknown object_ref %q", v.ID, v.Component.ObjectRef)
		}
	}
	return objects, vars, nil
}

func (vd VariableDef) build() (*oval.Variable, error) {
	if vd.ID == "" {
		return nil, fmt.Errorf("variable without id")
	}
	kind, ok := variableKinds[vd.Kind]
	if !ok {
		return nil, fmt.Errorf("variable %s: unknown kind %q", vd.ID, vd.Kind)
	}
	dt, err := oval.ParseDatatype(vd.Datatype)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", vd.ID, err)
	}

	v := &oval.Variable{ID: vd.ID, Kind: kind, Datatype: dt, Values: vd.Values}
	if kind == oval.VariableLocal {
		if vd.Component == nil || vd.Component.ObjectRef == "" || vd.Component.ItemField == "" {
			return nil, fmt.Errorf("variable %s: local variable needs component object_ref and item_field", vd.ID)
		}
		v.Component = &oval.Component{ObjectRef: vd.Component.ObjectRef, ItemField: vd.Component.ItemField}
	}
	return v, nil
}

func (od ObjectDef) build(vars map[string]*oval.Variable) (*oval.Object, error) {
	st, ok := subtypes[od.Type]
	if !ok {
		return nil, fmt.Errorf("object %s: unsupported type %q", od.ID, od.Type)
	}
	obj := &oval.Object{ID: od.ID, Subtype: st, Comment: od.Comment}
	for _, ed := range od.Entities {
		e, err := ed.build(vars)
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", od.ID, err)
		}
		obj.Entities = append(obj.Entities, e)
	}
	if err := obj.Validate(); err != nil {
		return nil, err
	}
	return obj, nil
}

func (ed EntityDef) build(vars map[string]*oval.Variable) (*oval.Entity, error) {
	if ed.Value != nil && ed.VarRef != "" {
		return nil, fmt.Errorf("%s: %w", ed.Name, oval.ErrAmbiguousEntity)
	}
	dt, err := oval.ParseDatatype(ed.Datatype)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ed.Name, err)
	}
	e := &oval.Entity{Name: ed.Name, Datatype: dt, Operation: oval.Operation(ed.Operation)}
	if e.Operation == "" {
		e.Operation = oval.OpEquals
	}

	switch {
	case ed.Value != nil:
		if e.Value, err = dt.Coerce(*ed.Value); err != nil {
			return nil, fmt.Errorf("%s: %w", ed.Name, err)
		}
	case ed.VarRef != "":
		v, ok := vars[ed.VarRef]
		if !ok {
			return nil, fmt.Errorf("%s: unknown var_ref %q", ed.Name, ed.VarRef)
		}
		e.Variable = v
	}

	// map 无序，按键排序保证编码稳定
	names := make([]string, 0, len(ed.Attrs))
	for k := range ed.Attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		e.Attrs = append(e.Attrs, oval.Attr{Name: k, Value: ed.Attrs[k]})
	}
	return e, nil
}
