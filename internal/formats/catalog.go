// Package formats classifies structure file extensions into rendering styles.
//
// Classification is total: every input, including unknown or empty
// extensions, maps to exactly one style. The catalog is loaded once from an
// embedded YAML file and never changes afterwards.
package formats

import (
	"embed"
	"fmt"
	"maps"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/catalog.yaml
var configFiles embed.FS

// StyleClass names a family of rendering directives.
type StyleClass string

const (
	Macromolecule StyleClass = "macromolecule"
	SmallMolecule StyleClass = "small_molecule"
)

// Directive is one representation the rendering engine draws, with its options.
type Directive struct {
	Representation string         `yaml:"representation" json:"representation"`
	Options        map[string]any `yaml:"options" json:"options,omitempty"`
}

// Style is the classifier's result.
type Style struct {
	Class      StyleClass  `json:"class"`
	Directives []Directive `json:"directives"`
}

// Spec flattens directives into the representation → options object
// understood by the browser engine.
func (s Style) Spec() map[string]map[string]any {
	spec := make(map[string]map[string]any, len(s.Directives))
	for _, d := range s.Directives {
		opts := maps.Clone(d.Options)
		if opts == nil {
			opts = map[string]any{}
		}
		spec[d.Representation] = opts
	}
	return spec
}

// Format describes one known extension.
type Format struct {
	Ext       string     `yaml:"ext" json:"ext"`
	Name      string     `yaml:"name" json:"name"`
	Style     StyleClass `yaml:"style" json:"style"`
	Upload    bool       `yaml:"upload" json:"upload"`
	MediaType string     `yaml:"media_type" json:"media_type"`
}

type styleConfig struct {
	Description string      `yaml:"description"`
	Directives  []Directive `yaml:"directives"`
}

type catalogFile struct {
	DefaultStyle StyleClass                 `yaml:"default_style"`
	Styles       map[StyleClass]styleConfig `yaml:"styles"`
	Formats      []Format                   `yaml:"formats"`
}

// Catalog is an immutable extension → style table.
type Catalog struct {
	defaultClass StyleClass
	styles       map[StyleClass][]Directive
	formats      map[string]Format
	ordered      []Format
}

// Load parses and validates a catalog document.
func Load(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}

	if _, ok := file.Styles[file.DefaultStyle]; !ok {
		return nil, fmt.Errorf("default style %q is not defined", file.DefaultStyle)
	}

	c := &Catalog{
		defaultClass: file.DefaultStyle,
		styles:       make(map[StyleClass][]Directive, len(file.Styles)),
		formats:      make(map[string]Format, len(file.Formats)),
	}

	for class, style := range file.Styles {
		if len(style.Directives) == 0 {
			return nil, fmt.Errorf("style %q has no directives", class)
		}
		c.styles[class] = style.Directives
	}

	for _, f := range file.Formats {
		f.Ext = Normalize(f.Ext)
		if f.Ext == "" {
			return nil, fmt.Errorf("format %q has no extension", f.Name)
		}
		if _, ok := c.styles[f.Style]; !ok {
			return nil, fmt.Errorf("format %s uses undefined style %q", f.Ext, f.Style)
		}
		if _, dup := c.formats[f.Ext]; dup {
			return nil, fmt.Errorf("format %s listed twice", f.Ext)
		}
		c.formats[f.Ext] = f
		c.ordered = append(c.ordered, f)
	}

	return c, nil
}

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	data, err := configFiles.ReadFile("config/catalog.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Load(data)
})

// Default returns the embedded catalog. Call it at startup to surface a
// broken catalog as a startup error.
func Default() (*Catalog, error) {
	return defaultCatalog()
}

func mustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Normalize lower-cases an extension and strips whitespace and a leading dot.
func Normalize(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// Classify maps an extension to its style. Unknown extensions get the
// default style.
func (c *Catalog) Classify(ext string) Style {
	class := c.defaultClass
	if f, ok := c.formats[Normalize(ext)]; ok {
		class = f.Style
	}

	src := c.styles[class]
	directives := make([]Directive, len(src))
	for i, d := range src {
		directives[i] = Directive{Representation: d.Representation, Options: maps.Clone(d.Options)}
	}
	return Style{Class: class, Directives: directives}
}

// Lookup returns the catalog entry for an extension.
func (c *Catalog) Lookup(ext string) (Format, bool) {
	f, ok := c.formats[Normalize(ext)]
	return f, ok
}

// Accepted lists the upload picker extensions with leading dots, in catalog order.
func (c *Catalog) Accepted() []string {
	var exts []string
	for _, f := range c.ordered {
		if f.Upload {
			exts = append(exts, "."+f.Ext)
		}
	}
	return exts
}

// IsAccepted reports whether an extension is offered for upload. Uploads of
// other extensions are still stored; this is a display hint.
func (c *Catalog) IsAccepted(ext string) bool {
	f, ok := c.formats[Normalize(ext)]
	return ok && f.Upload
}

// MediaType returns the content type to store a file under.
func (c *Catalog) MediaType(ext string) string {
	if f, ok := c.formats[Normalize(ext)]; ok && f.MediaType != "" {
		return f.MediaType
	}
	return "application/octet-stream"
}

// Classify maps an extension to its style using the embedded catalog.
func Classify(ext string) Style {
	return mustDefault().Classify(ext)
}
