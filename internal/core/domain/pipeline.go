package domain

// PipelineState is the single-request record threaded through the stage
// graph. Each stage writes only the fields it owns: classify sets
// Intent, reformulate sets ReformulatedQuery, retrieve sets Candidates,
// rerank sets Selection, generate sets Answer and Sources.
type PipelineState struct {
	ThreadID string
	Query    string
	History  []ConversationTurn

	Intent            Intent
	ReformulatedQuery string
	Candidates        []Candidate
	Selection         *Selection
	Answer            string
	Sources           []Source
}

// EffectiveQuery is the query the retrieval stages operate on.
func (s *PipelineState) EffectiveQuery() string {
	if s.ReformulatedQuery != "" {
		return s.ReformulatedQuery
	}
	return s.Query
}
