package locale

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Key names a user-facing message.
type Key string

// Message keys. Each one exists in both localizations.
const (
	Welcome        Key = "welcome"
	AskBoth        Key = "ask_both"
	AskName        Key = "ask_name"
	AskID          Key = "ask_id"
	Greeting       Key = "greeting"
	NotFound       Key = "not_found"
	ParseError     Key = "parse_error"
	SystemError    Key = "system_error"
	CannotModify   Key = "cannot_modify"
	OwnDataOnly    Key = "own_data_only"
	OutOfScope     Key = "out_of_scope"
	SessionRevoked Key = "session_revoked"
	RateLimited    Key = "rate_limited"
	EmptyResult    Key = "empty_result"
	AnswerWithheld Key = "answer_withheld"
)

// AllKeys lists every key the catalog must define.
var AllKeys = []Key{
	Welcome, AskBoth, AskName, AskID, Greeting, NotFound, ParseError, SystemError,
	CannotModify, OwnDataOnly, OutOfScope, SessionRevoked, RateLimited, EmptyResult,
	AnswerWithheld,
}

//go:embed messages.yaml
var defaultMessages []byte

type entry struct {
	Other string `yaml:"other"`
	RTL   string `yaml:"rtl"`
}

// Catalog maps (key, script) to message text.
type Catalog struct {
	entries map[Key]entry
}

// Default returns the embedded catalog. It panics if the embedded file is
// incomplete, which is a build defect.
func Default() *Catalog {
	c, err := Parse(defaultMessages)
	if err != nil {
		panic("locale: embedded catalog: " + err.Error())
	}
	return c
}

// Parse loads a catalog from YAML and checks that every key has both texts.
func Parse(data []byte) (*Catalog, error) {
	raw := make(map[string]entry)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	entries := make(map[Key]entry, len(raw))
	for k, v := range raw {
		entries[Key(k)] = v
	}

	var missing []string
	for _, k := range AllKeys {
		e, ok := entries[k]
		if !ok || strings.TrimSpace(e.Other) == "" || strings.TrimSpace(e.RTL) == "" {
			missing = append(missing, string(k))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("catalog missing localizations for: %s", strings.Join(missing, ", "))
	}
	return &Catalog{entries: entries}, nil
}

// Message returns the text for key in the given script with {name}
// substituted.
func (c *Catalog) Message(key Key, script Script, name string) string {
	e, ok := c.entries[key]
	if !ok {
		e = c.entries[SystemError]
	}
	text := e.Other
	if script == ScriptRTL {
		text = e.RTL
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "{name}", name))
}

// For detects the script of userText and returns the matching message.
func (c *Catalog) For(key Key, userText, name string) string {
	return c.Message(key, Detect(userText), name)
}
