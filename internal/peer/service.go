// Package peer carries the validate and sign requests between oracle nodes
// as JSON-RPC 2.0 over HTTP.
package peer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"oracle/internal/metrics"
	"oracle/internal/models"
)

// ServiceName is the JSON-RPC namespace, so methods are "oracle.Validate" and "oracle.Sign"
const ServiceName = "oracle"

// Handler answers peer requests with this node's own logic
type Handler interface {
	HandleValidate(ctx context.Context, call *models.Call) models.ValidationResult
	HandleSign(ctx context.Context, req models.SignRequest) (models.OracleSignature, error)
}

type ValidateArgs struct {
	Call models.Call `json:"call"`
}

type ValidateReply struct {
	Validation models.ValidationResult `json:"validation"`
}

type SignArgs = models.SignRequest

type SignReply struct {
	Signature models.OracleSignature `json:"signature"`
}

// Service exposes a Handler over JSON-RPC
type Service struct {
	handler Handler
}

// NewServer builds the JSON-RPC server for h
func NewServer(h Handler) (*rpc.Server, error) {
	server := rpc.NewServer()
	codec := json2.NewCodec()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")
	if err := server.RegisterService(&Service{handler: h}, ServiceName); err != nil {
		return nil, fmt.Errorf("failed to register %s service: %w", ServiceName, err)
	}
	return server, nil
}

// Validate returns this node's independent validation of the call
func (s *Service) Validate(r *http.Request, args *ValidateArgs, reply *ValidateReply) error {
	metrics.PeerRequestsServed.WithLabelValues("validate").Inc()
	reply.Validation = s.handler.HandleValidate(r.Context(), &args.Call)
	return nil
}

// Sign returns this node's signature over the requested triple
func (s *Service) Sign(r *http.Request, args *SignArgs, reply *SignReply) error {
	metrics.PeerRequestsServed.WithLabelValues("sign").Inc()
	sig, err := s.handler.HandleSign(r.Context(), *args)
	if err != nil {
		return err
	}
	reply.Signature = sig
	return nil
}
