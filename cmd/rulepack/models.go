package main

import (
	"github.com/liamcoop/rulepack/rules"
)

// JSON output models for --format json

// ProcessResponse is the outcome of one processed rule pack
type ProcessResponse struct {
	RequestID  string   `json:"requestId,omitempty"`
	Identifier string   `json:"identifier"`
	LoadType   string   `json:"loadType"`
	Mode       string   `json:"mode"`
	Result     string   `json:"result,omitempty"`
	Rules      []string `json:"rules,omitempty"`
	Error      *string  `json:"error,omitempty"`
	ErrorKind  string   `json:"errorKind,omitempty"`
	Duration   string   `json:"duration,omitempty"`
}

// BatchResponse holds the outcome of every request in a batch, in request order
type BatchResponse struct {
	Results []ProcessResponse `json:"results"`
	Failed  int               `json:"failed"`
}

// EvaluationResultResponse represents a single rule evaluation result
type EvaluationResultResponse struct {
	RuleID   string  `json:"ruleId"`
	Priority int     `json:"priority"`
	Matched  bool    `json:"matched"`
	Error    *string `json:"error,omitempty"`
}

// EvaluateResponse represents the response for rule evaluation
type EvaluateResponse struct {
	Identifier     string                     `json:"identifier"`
	Results        []EvaluationResultResponse `json:"results"`
	Matched        int                        `json:"matched"`
	EvaluationTime string                     `json:"evaluationTime"`
}

// StoreListResponse lists the names held in the named pack store
type StoreListResponse struct {
	Names []string `json:"names"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func newProcessResponse(req rules.Request, result *rules.ProcessedResult, err error) ProcessResponse {
	resp := ProcessResponse{
		Identifier: req.Identifier,
		LoadType:   req.LoadType.String(),
		Mode:       req.Mode.String(),
	}
	if err != nil {
		msg := err.Error()
		resp.Error = &msg
		resp.ErrorKind = rules.KindOf(err).String()
		return resp
	}
	resp.Result = result.String()
	if result.Pack != nil {
		resp.Rules = result.Pack.IDs()
	}
	return resp
}

func newEvaluationResultResponse(r *rules.EvaluationResult) EvaluationResultResponse {
	resp := EvaluationResultResponse{
		RuleID:   r.RuleID,
		Priority: r.Priority,
		Matched:  r.Matched,
	}
	if r.Error != nil {
		msg := r.Error.Error()
		resp.Error = &msg
	}
	return resp
}
