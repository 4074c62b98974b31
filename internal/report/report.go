// Package report checks the analyst's plain-text report against the layout
// the analyst is instructed to produce.
package report

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/scout/internal/helpers"
)

// Top-level headings, in the order they must appear.
const (
	HeadingSummary   = "Executive Summary"
	HeadingLandscape = "Technical Landscape"
	HeadingSignals   = "Signals & Recommendations"
)

var requiredHeadings = []string{HeadingSummary, HeadingLandscape, HeadingSignals}

// Theme count bounds under the landscape heading.
const (
	MinThemes = 2
	MaxThemes = 4
)

var (
	headingRe = regexp.MustCompile(`^#\s+(\S.*?)\s*$`)
	themeRe   = regexp.MustCompile(`^##\s+Theme\s+(\d+)\s*:\s*(\S.*?)\s*$`)
	bulletRe  = regexp.MustCompile(`^\s*[-*]\s+(Paper|Repo|Blog)\s+\(([A-Za-z])(\d+)\)`)
)

// Kind is the source type a bullet cites.
type Kind string

const (
	KindPaper Kind = "Paper"
	KindRepo  Kind = "Repo"
	KindBlog  Kind = "Blog"
)

func (k Kind) letter() string {
	switch k {
	case KindPaper:
		return "P"
	case KindRepo:
		return "R"
	default:
		return "B"
	}
}

// Ref is one source bullet inside a theme.
type Ref struct {
	Kind   Kind   `json:"kind"`
	Label  string `json:"label"`
	Index  int    `json:"index"`
	LineNo int    `json:"line"`
}

type Theme struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	LineNo int    `json:"line"`
	Refs   []Ref  `json:"refs"`
}

type Heading struct {
	Title  string `json:"title"`
	LineNo int    `json:"line"`
}

// Document is the outline of a report.
type Document struct {
	Headings []Heading `json:"headings"`
	// Themes found under the landscape heading.
	Themes []Theme `json:"themes"`
	// Themes found anywhere else.
	StrayThemes []Theme `json:"stray_themes,omitempty"`
	HasFence    bool    `json:"has_fence"`
}

// Parse builds the outline of text. It never fails; unrecognised lines are
// ignored.
func Parse(text string) Document {
	var doc Document
	section := ""
	var current *Theme

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \t\r")
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			doc.HasFence = true
			continue
		}
		if m := headingRe.FindStringSubmatch(line); m != nil {
			section = m[1]
			doc.Headings = append(doc.Headings, Heading{Title: m[1], LineNo: lineNo})
			current = nil
			continue
		}
		if m := themeRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			t := Theme{Number: n, Title: m[2], LineNo: lineNo}
			if section == HeadingLandscape {
				doc.Themes = append(doc.Themes, t)
				current = &doc.Themes[len(doc.Themes)-1]
			} else {
				doc.StrayThemes = append(doc.StrayThemes, t)
				current = nil
			}
			continue
		}
		if strings.HasPrefix(line, "## ") {
			current = nil
			continue
		}
		if current == nil {
			continue
		}
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			idx, err := strconv.Atoi(m[3])
			if err != nil {
				continue
			}
			current.Refs = append(current.Refs, Ref{Kind: Kind(m[1]), Label: m[2], Index: idx, LineNo: lineNo})
		}
	}
	return doc
}

// Counts is how many items each branch returned. A negative count means the
// branch output could not be read and references to it are not checked.
type Counts struct {
	Papers int
	Repos  int
	Blogs  int
}

func (c Counts) of(k Kind) int {
	switch k {
	case KindPaper:
		return c.Papers
	case KindRepo:
		return c.Repos
	default:
		return c.Blogs
	}
}

// CountItems returns the length of the array stored under field in a branch
// output, 0 when the branch produced nothing, and -1 when raw is not JSON
// with that shape.
func CountItems(raw string, ok bool, field string) int {
	if !ok || strings.TrimSpace(raw) == "" {
		return 0
	}
	v, err := helpers.ExtractFirstJSONValue(raw)
	if err != nil {
		return -1
	}
	obj, isObj := v.(*helpers.Object)
	if !isObj {
		return -1
	}
	items, found := obj.Get(field)
	if !found {
		return -1
	}
	arr, isArr := items.([]any)
	if !isArr {
		return -1
	}
	return len(arr)
}

// Issue is one way a report breaks the layout.
type Issue struct {
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("line %d: %s", i.Line, i.Message)
	}
	return i.Message
}

// Validate checks text and returns every issue found, or nil.
func Validate(text string, counts Counts) []Issue {
	if strings.TrimSpace(text) == "" {
		return []Issue{{Message: "report is empty"}}
	}
	doc := Parse(text)
	var issues []Issue

	if doc.HasFence {
		issues = append(issues, Issue{Message: "report contains a code fence"})
	}
	issues = append(issues, checkHeadings(doc.Headings)...)

	if n := len(doc.Themes); n < MinThemes || n > MaxThemes {
		issues = append(issues, Issue{Message: fmt.Sprintf("%q has %d themes, want %d to %d", HeadingLandscape, n, MinThemes, MaxThemes)})
	}
	for _, t := range doc.StrayThemes {
		issues = append(issues, Issue{Line: t.LineNo, Message: fmt.Sprintf("theme %d is outside %q", t.Number, HeadingLandscape)})
	}
	for i, t := range doc.Themes {
		if t.Number != i+1 {
			issues = append(issues, Issue{Line: t.LineNo, Message: fmt.Sprintf("theme numbered %d, want %d", t.Number, i+1)})
		}
		for _, r := range t.Refs {
			if r.Label != r.Kind.letter() {
				issues = append(issues, Issue{Line: r.LineNo, Message: fmt.Sprintf("%s bullet labelled %s%d", r.Kind, r.Label, r.Index)})
				continue
			}
			if n := counts.of(r.Kind); n >= 0 && r.Index >= n {
				issues = append(issues, Issue{Line: r.LineNo, Message: fmt.Sprintf("%s%d cites a %s that was not retrieved (%d available)", r.Label, r.Index, strings.ToLower(string(r.Kind)), n)})
			}
		}
	}
	if len(issues) == 0 {
		return nil
	}
	return issues
}

func checkHeadings(headings []Heading) []Issue {
	var issues []Issue
	seen := make(map[string][]int)
	for _, h := range headings {
		seen[h.Title] = append(seen[h.Title], h.LineNo)
	}
	last := 0
	for _, want := range requiredHeadings {
		lines := seen[want]
		switch {
		case len(lines) == 0:
			issues = append(issues, Issue{Message: fmt.Sprintf("missing heading %q", "# "+want)})
		case len(lines) > 1:
			issues = append(issues, Issue{Line: lines[1], Message: fmt.Sprintf("heading %q repeated", "# "+want)})
		default:
			if lines[0] < last {
				issues = append(issues, Issue{Line: lines[0], Message: fmt.Sprintf("heading %q out of order", "# "+want)})
			}
			last = lines[0]
		}
	}
	return issues
}

// ContractError carries the issues of a report that must not be accepted.
type ContractError struct {
	Issues []Issue
}

func (e *ContractError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return "report layout: " + strings.Join(parts, "; ")
}
