package banners

import (
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var messagesYAML []byte

// Message is a banner worded for one language.
type Message struct {
	Kind  Kind
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

type Catalogue struct {
	messages map[string]map[Kind]Message
	matcher  language.Matcher
	langs    []string
}

// DefaultLanguage is used when nothing in Accept-Language matches.
const DefaultLanguage = "en"

var supported = []language.Tag{language.English, language.French}

// LoadCatalogue parses the embedded messages and checks that every kind is
// worded in every language.
func LoadCatalogue() (*Catalogue, error) {
	return parseCatalogue(messagesYAML)
}

func parseCatalogue(raw []byte) (*Catalogue, error) {
	var messages map[string]map[Kind]Message
	if err := yaml.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("parse banner catalogue: %w", err)
	}
	c := &Catalogue{messages: messages, matcher: language.NewMatcher(supported)}
	for _, tag := range supported {
		base, _ := tag.Base()
		lang := base.String()
		c.langs = append(c.langs, lang)
		for _, k := range Kinds {
			if _, ok := messages[lang][k]; !ok {
				return nil, fmt.Errorf("banner catalogue: %s has no %q message", lang, k)
			}
		}
	}
	return c, nil
}

// Negotiate picks a catalogue language from an Accept-Language header.
func (c *Catalogue) Negotiate(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}
	_, index, confidence := c.matcher.Match(tags...)
	if confidence == language.No {
		return DefaultLanguage
	}
	return c.langs[index]
}

// Render words b in lang, falling back to English.
func (c *Catalogue) Render(b *Banner, lang string) Message {
	byKind, ok := c.messages[lang]
	if !ok {
		byKind = c.messages[DefaultLanguage]
	}
	msg, ok := byKind[b.Kind]
	if !ok {
		msg = byKind[BackendUnavailable]
	}
	r := strings.NewReplacer(b.params()...)
	return Message{Kind: b.Kind, Title: r.Replace(msg.Title), Body: r.Replace(msg.Body)}
}
