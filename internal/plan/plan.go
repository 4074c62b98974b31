// Package plan models the research plan the planner stage writes to
// plan_json and every retrieval branch reads.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/scout/internal/helpers"
)

// Persona is the audience the report is written for.
type Persona string

const (
	PersonaVC         Persona = "VC"
	PersonaCTO        Persona = "CTO"
	PersonaTechLeader Persona = "tech_leader"
)

// ParsePersona accepts case and separator variants such as "tech leader".
func ParsePersona(s string) (Persona, bool) {
	norm := strings.ToLower(strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	}), "_"))
	switch norm {
	case "vc":
		return PersonaVC, true
	case "cto":
		return PersonaCTO, true
	case "tech_leader":
		return PersonaTechLeader, true
	}
	return "", false
}

// Plan drives the three retrieval branches. It is created once per run and
// not modified afterwards.
type Plan struct {
	PrimaryTopic string   `json:"primary_topic"`
	Subtopics    []string `json:"subtopics"`
	Persona      Persona  `json:"persona"`
	PaperQuery   string   `json:"paper_query"`
	RepoQuery    string   `json:"repo_query"`
	BlogQuery    string   `json:"blog_query"`
	DaysBack     int      `json:"days_back"`
	MaxPapers    int      `json:"max_papers"`
	MaxRepos     int      `json:"max_repos"`
	MaxBlogs     int      `json:"max_blogs"`
}

// Defaults used when the planner leaves a field out.
const (
	DefaultDaysBack = 28
	DefaultMax      = 3
)

// Default returns a plan that searches every branch for query.
func Default(query string) Plan {
	query = strings.TrimSpace(query)
	return Plan{
		PrimaryTopic: query,
		Subtopics:    []string{},
		Persona:      PersonaVC,
		PaperQuery:   query,
		RepoQuery:    query,
		BlogQuery:    query,
		DaysBack:     DefaultDaysBack,
		MaxPapers:    DefaultMax,
		MaxRepos:     DefaultMax,
		MaxBlogs:     DefaultMax,
	}
}

var ErrNotObject = errors.New("plan is not a JSON object")

// Parse reads planner output leniently. Missing or unusable fields fall back
// to Default(query); numbers may arrive as floats or numeric strings.
func Parse(text, query string) (Plan, error) {
	p := Default(query)
	v, err := helpers.ExtractFirstJSONValue(text)
	if err != nil {
		return p, err
	}
	obj, ok := v.(*helpers.Object)
	if !ok {
		return p, ErrNotObject
	}

	setString(obj, "primary_topic", &p.PrimaryTopic)
	setString(obj, "paper_query", &p.PaperQuery)
	setString(obj, "repo_query", &p.RepoQuery)
	setString(obj, "blog_query", &p.BlogQuery)
	if raw, ok := obj.Get("persona"); ok {
		if s, ok := raw.(string); ok {
			if persona, ok := ParsePersona(s); ok {
				p.Persona = persona
			}
		}
	}
	if raw, ok := obj.Get("subtopics"); ok {
		if arr, ok := raw.([]any); ok {
			subs := make([]string, 0, len(arr))
			for _, el := range arr {
				if s, ok := el.(string); ok && strings.TrimSpace(s) != "" {
					subs = append(subs, strings.TrimSpace(s))
				}
			}
			p.Subtopics = subs
		}
	}
	setNonNegative(obj, "days_back", &p.DaysBack)
	setNonNegative(obj, "max_papers", &p.MaxPapers)
	setNonNegative(obj, "max_repos", &p.MaxRepos)
	setNonNegative(obj, "max_blogs", &p.MaxBlogs)
	return p, nil
}

// JSON encodes the plan compactly.
func (p Plan) JSON() string {
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func setString(obj *helpers.Object, key string, dst *string) {
	raw, ok := obj.Get(key)
	if !ok {
		return
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
		*dst = strings.TrimSpace(s)
	}
}

func setNonNegative(obj *helpers.Object, key string, dst *int) {
	raw, ok := obj.Get(key)
	if !ok {
		return
	}
	n, err := toInt(raw)
	if err != nil || n < 0 {
		return
	}
	*dst = n
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, err
		}
		return int(math.Round(f)), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", t)
		}
		return i, nil
	case float64:
		return int(math.Round(t)), nil
	case int:
		return t, nil
	}
	return 0, fmt.Errorf("unsupported number type %T", v)
}
