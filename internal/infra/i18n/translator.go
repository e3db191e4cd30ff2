package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// DefaultLanguage is served when Accept-Language matches nothing we ship.
const DefaultLanguage = "en"

type Translator struct {
	lang         string
	translations map[string]string
}

// NewTranslator loads locales/<langCode>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", langCode+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	t.lang = langCode
	return t, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// T returns the message for key, formatted with args. Unknown keys come back verbatim.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

func (t *Translator) Lang() string { return t.lang }

// Catalog holds one translator per shipped language.
type Catalog struct {
	byLang  map[string]*Translator
	tags    []language.Tag
	matcher language.Matcher
}

// NewCatalog loads every locales/*.yaml in fsys. The default language must be present.
func NewCatalog(fsys fs.FS) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, "locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	c := &Catalog{byLang: map[string]*Translator{}}
	// default first so the matcher falls back to it
	c.tags = append(c.tags, language.Make(DefaultLanguage))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		lang := strings.TrimSuffix(e.Name(), ".yaml")
		t, err := NewTranslator(fsys, lang)
		if err != nil {
			return nil, err
		}
		c.byLang[lang] = t
		if lang != DefaultLanguage {
			c.tags = append(c.tags, language.Make(lang))
		}
	}
	if _, ok := c.byLang[DefaultLanguage]; !ok {
		return nil, fmt.Errorf("locale %q missing", DefaultLanguage)
	}
	c.matcher = language.NewMatcher(c.tags)
	return c, nil
}

// MustDefaultCatalog loads the embedded locales and panics if they are broken.
func MustDefaultCatalog() *Catalog {
	c, err := NewCatalog(LocalesFS)
	if err != nil {
		panic(err)
	}
	return c
}

// For picks the best translator for an Accept-Language header value.
func (c *Catalog) For(acceptLanguage string) *Translator {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return c.byLang[DefaultLanguage]
	}
	_, idx, conf := c.matcher.Match(tags...)
	if conf == language.No {
		return c.byLang[DefaultLanguage]
	}
	base, _ := c.tags[idx].Base()
	if t, ok := c.byLang[base.String()]; ok {
		return t
	}
	return c.byLang[DefaultLanguage]
}
