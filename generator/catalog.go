package generator

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// EmotionCategory 情绪清单中的一个大类。
type EmotionCategory struct {
	Name  string   `yaml:"name" json:"name"`
	Items []string `yaml:"items" json:"items"`
}

// EmotionTaxonomy 情绪清单，按类别有序。
type EmotionTaxonomy []EmotionCategory

// Count returns the total number of emotions across all categories.
func (t EmotionTaxonomy) Count() int {
	n := 0
	for _, c := range t {
		n += len(c.Items)
	}
	return n
}

// String renders the taxonomy in the numbered form embedded into prompts.
func (t EmotionTaxonomy) String() string {
	var sb strings.Builder
	for i, c := range t {
		sb.WriteString(fmt.Sprintf("%d. %s: %s\n", i+1, c.Name, strings.Join(c.Items, ", ")))
	}
	return sb.String()
}

// KeywordCategory 爆款标题八大词类之一。Key 与 KeywordLibrary 的字段一一对应。
type KeywordCategory struct {
	Key         string   `yaml:"key" json:"key"`
	Label       string   `yaml:"label" json:"label"`
	Description string   `yaml:"description" json:"description"`
	Examples    []string `yaml:"examples" json:"examples"`
}

// TitleFormula 爆款标题公式。
type TitleFormula struct {
	Name    string `yaml:"name" json:"name"`
	Pattern string `yaml:"pattern" json:"pattern"`
	Example string `yaml:"example" json:"example"`
}

// Catalog 进程级只读参考表，启动时构建一次后注入各个 prompt builder。
type Catalog struct {
	Emotions EmotionTaxonomy   `yaml:"emotions" json:"emotions"`
	Keywords []KeywordCategory `yaml:"keyword_categories" json:"keyword_categories"`
	Formulas []TitleFormula    `yaml:"title_formulas" json:"title_formulas"`
}

// DefaultCatalog parses the embedded reference tables.
func DefaultCatalog() Catalog {
	c, err := parseCatalog(defaultCatalogYAML)
	if err != nil {
		panic("generator: embedded catalog is invalid: " + err.Error())
	}
	return c
}

// LoadCatalog 从 YAML 文件读取参考表，用于替换内置版本。
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	c, err := parseCatalog(data)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

func parseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, err
	}
	if err := c.validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func (c Catalog) validate() error {
	if c.Emotions.Count() == 0 {
		return errors.New("emotions must not be empty")
	}
	if len(c.Formulas) == 0 {
		return errors.New("title_formulas must not be empty")
	}
	if len(c.Keywords) != len(KeywordKeys) {
		return fmt.Errorf("keyword_categories must define exactly %d categories, got %d", len(KeywordKeys), len(c.Keywords))
	}
	for i, key := range KeywordKeys {
		if c.Keywords[i].Key != key {
			return fmt.Errorf("keyword_categories[%d]: want key %q, got %q", i, key, c.Keywords[i].Key)
		}
	}
	return nil
}

// RenderKeywordCategories 渲染八大词类定义。
func RenderKeywordCategories(cats []KeywordCategory) string {
	var sb strings.Builder
	for i, c := range cats {
		sb.WriteString(fmt.Sprintf("%d. %s: %s", i+1, c.Label, c.Description))
		if len(c.Examples) > 0 {
			sb.WriteString(fmt.Sprintf(" (如: %s)", strings.Join(c.Examples, "、")))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderFormulas 渲染公式库。
func RenderFormulas(formulas []TitleFormula) string {
	var sb strings.Builder
	for _, f := range formulas {
		sb.WriteString(fmt.Sprintf("%s: %s", f.Name, f.Pattern))
		if f.Example != "" {
			sb.WriteString(fmt.Sprintf(" (例: %s)", f.Example))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
