package agent

import (
	"github.com/mohammad-safakhou/scout/internal/llm"
	"github.com/mohammad-safakhou/scout/internal/sources"
	"github.com/mohammad-safakhou/scout/internal/state"
)

type Role string

const (
	RolePlanner Role = "planner"
	RolePaper   Role = "paper"
	RoleRepo    Role = "repo"
	RoleBlog    Role = "blog"
	RoleAnalyst Role = "analyst"
)

// Output token budgets per role.
const (
	PlannerBudget = 400
	PaperBudget   = 2600
	RepoBudget    = 2400
	BlogBudget    = 2200
	AnalystBudget = 2600
)

// RosterConfig wires the stages of a run. A nil Blogs searcher makes the
// blog stage rely on the generator's own web grounding.
type RosterConfig struct {
	Generator    llm.Generator
	FastModel    string
	AnalystModel string
	Papers       sources.PaperSearcher
	Repos        sources.RepoSearcher
	Blogs        sources.BlogSearcher
}

// Roster holds the five stages in pipeline order.
type Roster struct {
	Planner *Stage
	Papers  *Stage
	Repos   *Stage
	Blogs   *Stage
	Analyst *Stage
}

// Branches returns the retrieval stages that run concurrently.
func (r Roster) Branches() []*Stage {
	return []*Stage{r.Papers, r.Repos, r.Blogs}
}

func NewRoster(cfg RosterConfig) Roster {
	blogs := &Stage{
		Name:            "blogs",
		Role:            RoleBlog,
		Model:           cfg.FastModel,
		Instruction:     blogInstruction,
		InputKeys:       []string{state.KeyPlan},
		OutputKey:       state.KeyBlogs,
		MaxOutputTokens: BlogBudget,
		Format:          llm.FormatJSON,
		Hook:            SanitizeJSONOutput,
		Generator:       cfg.Generator,
	}
	if cfg.Blogs != nil {
		blogs.Tools = []llm.Tool{NewWebTool(cfg.Blogs)}
	} else {
		blogs.Grounding = true
	}

	var paperTools, repoTools []llm.Tool
	if cfg.Papers != nil {
		paperTools = []llm.Tool{NewPaperTool(cfg.Papers)}
	}
	if cfg.Repos != nil {
		repoTools = []llm.Tool{NewRepoTool(cfg.Repos)}
	}

	return Roster{
		Planner: &Stage{
			Name:            "planner",
			Role:            RolePlanner,
			Model:           cfg.FastModel,
			Instruction:     plannerInstruction,
			OutputKey:       state.KeyPlan,
			MaxOutputTokens: PlannerBudget,
			Format:          llm.FormatJSON,
			Hook:            SanitizeJSONOutput,
			Generator:       cfg.Generator,
		},
		Papers: &Stage{
			Name:            "papers",
			Role:            RolePaper,
			Model:           cfg.FastModel,
			Instruction:     paperInstruction,
			InputKeys:       []string{state.KeyPlan},
			OutputKey:       state.KeyPapers,
			Tools:           paperTools,
			MaxOutputTokens: PaperBudget,
			Format:          llm.FormatJSON,
			Hook:            SanitizeJSONOutput,
			Generator:       cfg.Generator,
		},
		Repos: &Stage{
			Name:            "repos",
			Role:            RoleRepo,
			Model:           cfg.FastModel,
			Instruction:     repoInstruction,
			InputKeys:       []string{state.KeyPlan},
			OutputKey:       state.KeyRepos,
			Tools:           repoTools,
			MaxOutputTokens: RepoBudget,
			Format:          llm.FormatJSON,
			Hook:            SanitizeJSONOutput,
			Generator:       cfg.Generator,
		},
		Blogs: blogs,
		Analyst: &Stage{
			Name:            "analyst",
			Role:            RoleAnalyst,
			Model:           cfg.AnalystModel,
			Instruction:     analystInstruction,
			InputKeys:       []string{state.KeyPlan, state.KeyPapers, state.KeyRepos, state.KeyBlogs},
			OutputKey:       state.KeyFinalSummary,
			MaxOutputTokens: AnalystBudget,
			Format:          llm.FormatText,
			Hook:            TrimOutput,
			Generator:       cfg.Generator,
		},
	}
}
