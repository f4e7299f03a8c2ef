package core

// templates.go loads Template seed files and renders template downloads.
//
// Seeds are YAML documents, one template per file:
//
//	id: experience-v1
//	name: Experiences
//	target_type: experience
//	version: 1
//	active: true
//	required_fields: [title, description, price_number]
//	optional_fields:
//	  city: City slug
//	validation_rules:
//	  title: {type: string, max_length: 120}
//	default_values:
//	  currency: EUR

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var templateValidate = newTemplateValidator()

func newTemplateValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.Split(f.Tag.Get("yaml"), ",")[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidateTemplate checks a template definition before it is registered.
func ValidateTemplate(t Template) error {
	var problems []string

	if err := templateValidate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, e := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %s", e.Namespace(), e.Tag()))
		}
	}

	seen := make(map[string]bool, len(t.RequiredFields))
	for _, f := range t.RequiredFields {
		if seen[f] {
			problems = append(problems, fmt.Sprintf("required field %q listed twice", f))
		}
		seen[f] = true
		if _, dup := t.OptionalFields[f]; dup {
			problems = append(problems, fmt.Sprintf("field %q is both required and optional", f))
		}
	}

	for _, field := range sortedKeys(t.ValidationRules) {
		rs := t.ValidationRules[field]
		if rs.Pattern != "" {
			if _, err := regexp.Compile(rs.Pattern); err != nil {
				problems = append(problems, fmt.Sprintf("%s: invalid pattern: %v", field, err))
			}
		}
		if rs.MinLength != nil && rs.MaxLength != nil && *rs.MinLength > *rs.MaxLength {
			problems = append(problems, fmt.Sprintf("%s: min_length exceeds max_length", field))
		}
		if rs.Min != nil && rs.Max != nil && *rs.Min > *rs.Max {
			problems = append(problems, fmt.Sprintf("%s: min exceeds max", field))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid template: %s", strings.Join(problems, "; "))
	}
	return nil
}

// templateFile is the YAML shape of a seed. Default values are decoded
// loosely and converted to Values.
type templateFile struct {
	Template      `yaml:",inline"`
	DefaultValues map[string]any `yaml:"default_values"`
}

// ParseTemplateYAML decodes one template seed.
func ParseTemplateYAML(data []byte) (Template, error) {
	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return Template{}, fmt.Errorf("decode template: %w", err)
	}

	tmpl := tf.Template
	if len(tf.DefaultValues) > 0 {
		tmpl.DefaultValues = make(map[string]Value, len(tf.DefaultValues))
		for k, raw := range tf.DefaultValues {
			tmpl.DefaultValues[k] = valueFromAny(raw)
		}
	}
	return tmpl, nil
}

// LoadTemplates reads every *.yaml / *.yml file in dir of fsys, sorted by name.
func LoadTemplates(fsys fs.FS, dir string) ([]Template, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read template dir: %w", err)
	}

	var out []Template
	for _, e := range entries {
		ext := path.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		tmpl, err := ParseTemplateYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, tmpl)
	}
	return out, nil
}

// LoadRegistry builds a registry from the seeds in dir of fsys.
func LoadRegistry(fsys fs.FS, dir string) (*TemplateRegistry, error) {
	tmpls, err := LoadTemplates(fsys, dir)
	if err != nil {
		return nil, err
	}
	reg := NewTemplateRegistry()
	for _, t := range tmpls {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// SkeletonColumns is the template download header: required fields in
// declared order, then optional fields sorted.
func SkeletonColumns(t Template) []string {
	cols := append([]string(nil), t.RequiredFields...)
	optional := make([]string, 0, len(t.OptionalFields))
	for k := range t.OptionalFields {
		if !t.IsRequired(k) {
			optional = append(optional, k)
		}
	}
	sort.Strings(optional)
	return append(cols, optional...)
}

// Skeleton renders the template download: a header row and one empty data row.
func Skeleton(t Template) ([]byte, error) {
	cols := SkeletonColumns(t)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cols); err != nil {
		return nil, err
	}
	if err := w.Write(make([]string, len(cols))); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SkeletonFilename is the download name for t.
func SkeletonFilename(t Template) string {
	return fmt.Sprintf("%s-template.csv", t.ID)
}

func valueFromAny(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case float64:
		return Number(x)
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = valueFromAny(item)
		}
		return List(items...)
	default:
		return JSON(x)
	}
}
