/*
PURPOSE:
  Interactive custom modes: one request in, one store call, one response out,
  repeated until the input source stops. Used to see a cache hit (cost 0) or
  miss by hand.

REQUIREMENTS:
  User-specified:
  - Custom write upserts a record whose id and name come from input.
  - Custom point read / query take an id or query text plus a cache toggle.
  - Nothing is aggregated; each response carries its own cost.

  Implementation-discovered:
  - "Use cache" maps to eventual consistency, "bypass" to session; the choice
    sticks on the descriptor until the next request changes it.

ARCHITECTURE INTEGRATION:
  - Called by: Suite.RunAll (when an input source is set), internal/cli
  - Input: InputSource (console, scripted)

ERROR HANDLING:
  - A failed request is a *RecoverableOperationError inside the response;
    the loop continues.
  - Provisioning failures and input source errors end the loop.

IMPLEMENTATION RULES:
  - One request in flight at a time.
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/daryltucker/cache-bench/internal/model"
	"github.com/daryltucker/cache-bench/internal/output"
	"github.com/daryltucker/cache-bench/internal/store"
)

// ErrStop ends a custom loop without error.
var ErrStop = errors.New("custom session stopped")

// CustomRequest is one line of interactive input. Which fields matter
// depends on the descriptor kind.
type CustomRequest struct {
	ID       string
	Name     string
	Query    string
	UseCache bool
}

// CustomResponse reports one request. Err is a *RecoverableOperationError.
type CustomResponse struct {
	Descriptor  string
	Kind        model.Kind
	Consistency store.Consistency
	Latency     time.Duration
	Cost        float64
	Items       int
	Customer    *model.Customer
	Err         error
}

// InputSource feeds a custom loop. Next returns ErrStop or io.EOF when done.
type InputSource interface {
	Next(ctx context.Context, d *model.Descriptor) (CustomRequest, error)
}

// InputFunc adapts a function to InputSource.
type InputFunc func(ctx context.Context, d *model.Descriptor) (CustomRequest, error)

func (f InputFunc) Next(ctx context.Context, d *model.Descriptor) (CustomRequest, error) {
	return f(ctx, d)
}

// Script replays fixed requests, then stops.
type Script struct {
	Requests []CustomRequest
	pos      int
}

func NewScript(reqs ...CustomRequest) *Script {
	return &Script{Requests: reqs}
}

func (s *Script) Next(context.Context, *model.Descriptor) (CustomRequest, error) {
	if s.pos >= len(s.Requests) {
		return CustomRequest{}, ErrStop
	}
	req := s.Requests[s.pos]
	s.pos++
	return req, nil
}

// Session is an open custom-mode descriptor with its container resolved.
type Session struct {
	runner *Runner
	d      *model.Descriptor
	c      store.Container
}

// OpenSession provisions d and returns a session for single requests.
func (r *Runner) OpenSession(ctx context.Context, d *model.Descriptor) (*Session, error) {
	if !d.Kind.IsCustom() {
		return nil, fmt.Errorf("%s benchmark %q is not interactive", d.Kind, d.Name)
	}
	c, err := r.prepare(ctx, d)
	if err != nil {
		return nil, err
	}
	return &Session{runner: r, d: d, c: c}, nil
}

func (s *Session) Descriptor() *model.Descriptor { return s.d }

func (s *Session) respond(start time.Time, input string, cost float64, err error) CustomResponse {
	resp := CustomResponse{
		Descriptor:  s.d.Name,
		Kind:        s.d.Kind,
		Consistency: s.d.RequestConsistency,
		Latency:     s.runner.now().Sub(start),
		Cost:        cost,
	}
	if err != nil {
		resp.Err = &RecoverableOperationError{Descriptor: s.d.Name, Kind: s.d.Kind, Input: input, Err: err}
		output.Logger.Warn("Custom request failed", "descriptor", s.d.Name, "kind", s.d.Kind, "error", err)
	} else {
		output.Logger.Info(fmt.Sprintf("%s request charge %.2f", s.d.Kind.Label(), cost),
			"descriptor", s.d.Name, "input", input, "consistency", resp.Consistency)
	}
	return resp
}

// setCache switches the descriptor's consistency for this and later requests.
func (s *Session) setCache(useCache bool) {
	if useCache {
		s.d.RequestConsistency = store.ConsistencyEventual
	} else {
		s.d.RequestConsistency = store.ConsistencySession
	}
}

// Write upserts a synthetic customer with the given id and name.
func (s *Session) Write(ctx context.Context, id, name string) CustomResponse {
	start := s.runner.now()
	if id == "" {
		return s.respond(start, name, 0, errors.New("an id is required"))
	}
	customer := s.runner.gen.Single(s.d.PartitionKeyValue, id, name)
	cost, err := s.c.UpsertItem(ctx, customer, s.d.PartitionKeyValue)
	resp := s.respond(start, id, cost, err)
	if err == nil {
		resp.Customer = &customer
		resp.Items = 1
	}
	return resp
}

// Read fetches one customer by id.
func (s *Session) Read(ctx context.Context, id string, useCache bool) CustomResponse {
	s.setCache(useCache)
	start := s.runner.now()
	if id == "" {
		return s.respond(start, id, 0, errors.New("an id is required"))
	}
	var customer model.Customer
	cost, err := s.c.ReadItem(ctx, id, s.d.PartitionKeyValue, s.d.RequestConsistency, &customer)
	resp := s.respond(start, id, cost, err)
	if err == nil {
		resp.Customer = &customer
		resp.Items = 1
	}
	return resp
}

// Query runs text to completion and reports the summed page cost.
func (s *Session) Query(ctx context.Context, text string, useCache bool) CustomResponse {
	s.setCache(useCache)
	start := s.runner.now()
	if text == "" {
		return s.respond(start, text, 0, errors.New("query text is empty"))
	}
	pager := s.c.Query(ctx, text, s.d.PartitionKeyValue, s.d.RequestConsistency)
	cost, items, err := drain(ctx, pager)
	resp := s.respond(start, text, cost, err)
	resp.Items = items
	return resp
}

// Do dispatches req according to the descriptor kind.
func (s *Session) Do(ctx context.Context, req CustomRequest) CustomResponse {
	switch s.d.Kind {
	case model.KindCustomWrite:
		return s.Write(ctx, req.ID, req.Name)
	case model.KindCustomPointRead:
		return s.Read(ctx, req.ID, req.UseCache)
	default:
		return s.Query(ctx, req.Query, req.UseCache)
	}
}

// RunCustom loops over src until it stops, handing each response to sink.
// It returns the number of requests performed.
func (r *Runner) RunCustom(ctx context.Context, d *model.Descriptor, src InputSource, sink func(CustomResponse)) (int, error) {
	sess, err := r.OpenSession(ctx, d)
	if err != nil {
		return 0, err
	}

	output.Logger.Info("Starting custom session", "descriptor", d.Name, "kind", d.Kind, "description", d.Description)

	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		req, err := src.Next(ctx, d)
		if errors.Is(err, ErrStop) || errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("reading input for %q: %w", d.Name, err)
		}
		resp := sess.Do(ctx, req)
		n++
		if sink != nil {
			sink(resp)
		}
	}
}
