package domain

import (
	"encoding/json"
	"fmt"
)

// Params is the closed set of per-type task parameters.
type Params interface {
	Kind() TaskType
	isParams()
}

type ResearchParams struct {
	Bucket string `json:"bucket,omitempty"`
}

type GenerationParams struct {
	ResearchID string `json:"research_id,omitempty"`
	Style      string `json:"style,omitempty"`
}

type ReviewParams struct {
	ArticleID string `json:"article_id"`
}

type PublishParams struct {
	ArticleID  string `json:"article_id"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

type AggregateParams struct {
	Limit int `json:"limit,omitempty"`
}

func (ResearchParams) Kind() TaskType   { return TypeResearch }
func (GenerationParams) Kind() TaskType { return TypeGeneration }
func (ReviewParams) Kind() TaskType     { return TypeReview }
func (PublishParams) Kind() TaskType    { return TypePublish }
func (AggregateParams) Kind() TaskType  { return TypeAggregate }

func (ResearchParams) isParams()   {}
func (GenerationParams) isParams() {}
func (ReviewParams) isParams()     {}
func (PublishParams) isParams()    {}
func (AggregateParams) isParams()  {}

// Result is the closed set of per-type task outputs.
type Result interface {
	Kind() TaskType
	// ArtifactID is the id of the research record or article produced, if any.
	ArtifactID() string
	isResult()
}

type ResearchResult struct {
	ResearchID  string   `json:"research_id"`
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	SourceCount int      `json:"source_count"`
}

type ArticleResult struct {
	ArticleID string `json:"article_id"`
	Title     string `json:"title"`
	Slug      string `json:"slug"`
	WordCount int    `json:"word_count"`
}

type ReviewResult struct {
	ArticleID string `json:"article_id"`
	Approved  bool   `json:"approved"`
	Notes     string `json:"notes,omitempty"`
}

type PublishResult struct {
	ArticleID  string `json:"article_id"`
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
}

type AggregateResult struct {
	ResearchID string `json:"research_id"`
	ItemCount  int    `json:"item_count"`
}

func (ResearchResult) Kind() TaskType  { return TypeResearch }
func (ArticleResult) Kind() TaskType   { return TypeGeneration }
func (ReviewResult) Kind() TaskType    { return TypeReview }
func (PublishResult) Kind() TaskType   { return TypePublish }
func (AggregateResult) Kind() TaskType { return TypeAggregate }

func (r ResearchResult) ArtifactID() string  { return r.ResearchID }
func (r ArticleResult) ArtifactID() string   { return r.ArticleID }
func (r ReviewResult) ArtifactID() string    { return r.ArticleID }
func (r PublishResult) ArtifactID() string   { return r.ArticleID }
func (r AggregateResult) ArtifactID() string { return r.ResearchID }

func (ResearchResult) isResult()  {}
func (ArticleResult) isResult()   {}
func (ReviewResult) isResult()    {}
func (PublishResult) isResult()   {}
func (AggregateResult) isResult() {}

// envelope is the persisted form of a Params or Result: the kind tag plus the
// variant's own JSON.
type envelope struct {
	Kind TaskType        `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func wrap(kind TaskType, v any) (*envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &envelope{Kind: kind, Data: data}, nil
}

func decodeParams(env *envelope) (Params, error) {
	if env == nil {
		return nil, nil
	}
	var p Params
	switch env.Kind {
	case TypeResearch:
		var v ResearchParams
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		p = v
	case TypeGeneration:
		var v GenerationParams
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		p = v
	case TypeReview:
		var v ReviewParams
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		p = v
	case TypePublish:
		var v PublishParams
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		p = v
	case TypeAggregate:
		var v AggregateParams
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		p = v
	default:
		return nil, fmt.Errorf("unknown params kind %q", env.Kind)
	}
	return p, nil
}

func decodeResult(env *envelope) (Result, error) {
	if env == nil {
		return nil, nil
	}
	var r Result
	switch env.Kind {
	case TypeResearch:
		var v ResearchResult
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		r = v
	case TypeGeneration:
		var v ArticleResult
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		r = v
	case TypeReview:
		var v ReviewResult
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		r = v
	case TypePublish:
		var v PublishResult
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		r = v
	case TypeAggregate:
		var v AggregateResult
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		r = v
	default:
		return nil, fmt.Errorf("unknown result kind %q", env.Kind)
	}
	return r, nil
}

type taskInputJSON struct {
	Topic  string    `json:"topic"`
	Tags   []string  `json:"tags"`
	Params *envelope `json:"params,omitempty"`
}

func (in TaskInput) MarshalJSON() ([]byte, error) {
	out := taskInputJSON{Topic: in.Topic, Tags: in.Tags}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if in.Params != nil {
		env, err := wrap(in.Params.Kind(), in.Params)
		if err != nil {
			return nil, err
		}
		out.Params = env
	}
	return json.Marshal(out)
}

func (in *TaskInput) UnmarshalJSON(b []byte) error {
	var raw taskInputJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	params, err := decodeParams(raw.Params)
	if err != nil {
		return fmt.Errorf("decode task params: %w", err)
	}
	*in = TaskInput{Topic: raw.Topic, Tags: raw.Tags, Params: params}
	return nil
}

type taskOutputJSON struct {
	ArtifactID string    `json:"artifact_id,omitempty"`
	Result     *envelope `json:"result,omitempty"`
}

func (o TaskOutput) MarshalJSON() ([]byte, error) {
	var out taskOutputJSON
	if o.Result != nil {
		env, err := wrap(o.Result.Kind(), o.Result)
		if err != nil {
			return nil, err
		}
		out.Result = env
		out.ArtifactID = o.Result.ArtifactID()
	}
	return json.Marshal(out)
}

func (o *TaskOutput) UnmarshalJSON(b []byte) error {
	var raw taskOutputJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	result, err := decodeResult(raw.Result)
	if err != nil {
		return fmt.Errorf("decode task result: %w", err)
	}
	o.Result = result
	return nil
}
