package plan

import "testing"

func TestValidateDocument(t *testing.T) {
	payload := []byte(`{
        "primary_topic": "RAG",
        "subtopics": ["eval"],
        "persona": "CTO",
        "paper_query": "rag",
        "repo_query": "rag",
        "blog_query": "rag",
        "days_back": 30,
        "max_papers": 3,
        "max_repos": 3,
        "max_blogs": 3,
        "notes": "extra fields are allowed"
    }`)
	if err := ValidateDocument(payload); err != nil {
		t.Fatalf("expected payload to validate: %v", err)
	}
	if err := ValidateDocument([]byte(Default("q").JSON())); err != nil {
		t.Fatalf("expected default plan to validate: %v", err)
	}
}

func TestValidateDocumentFails(t *testing.T) {
	cases := map[string]string{
		"missing fields":   `{"primary_topic": "RAG"}`,
		"bad persona":      `{"primary_topic":"x","persona":"investor","paper_query":"","repo_query":"","blog_query":""}`,
		"negative days":    `{"primary_topic":"x","persona":"VC","paper_query":"","repo_query":"","blog_query":"","days_back":-1}`,
		"fractional count": `{"primary_topic":"x","persona":"VC","paper_query":"","repo_query":"","blog_query":"","max_papers":2.5}`,
		"not json":         `plan: rag`,
	}
	for name, payload := range cases {
		if err := ValidateDocument([]byte(payload)); err == nil {
			t.Fatalf("%s: expected schema validation to fail", name)
		}
	}
}
