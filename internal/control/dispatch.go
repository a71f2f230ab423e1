package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vk/opgraph/internal/executor"
	"github.com/vk/opgraph/internal/reconcile"
	"github.com/vk/opgraph/internal/snapshot"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

type errorPayload struct {
	Error string `json:"error"`
}

type connectReply struct {
	SessionID string   `json:"sessionId"`
	Version   string   `json:"version"`
	Types     []string `json:"types"`
}

type applyReply struct {
	Operators        []string          `json:"operators"`
	ConnectionErrors map[string]string `json:"connectionErrors,omitempty"`
}

type evalRequest struct {
	IDs []string `json:"ids,omitempty"`
}

type evalReply struct {
	Results map[string]evalResult `json:"results"`
}

type evalResult struct {
	Outputs map[string]json.RawMessage `json:"outputs,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

type stateReply struct {
	Operators []operatorState `json:"operators"`
	Levels    [][]string      `json:"levels"`
}

type operatorState struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	ContainerID string `json:"containerId"`
	Status      string `json:"status"`
	Locked      bool   `json:"locked,omitempty"`
}

// dispatch routes one control message to the engine and builds the reply.
func (s *Server) dispatch(ctx context.Context, sessionID string, msg *Message) Message {
	switch msg.Type {
	case "connect":
		return reply("connected", connectReply{
			SessionID: sessionID,
			Version:   "1.0.0",
			Types:     s.reg.Types(),
		})

	case "graph_apply":
		var snap snapshot.Snapshot
		if err := json.Unmarshal(msg.Payload, &snap); err != nil {
			return errorReply(fmt.Errorf("decoding snapshot: %w", err))
		}
		ops, err := reconcile.TransformGraph(ctx, s.pop, s.reg, &snap)
		if err != nil {
			return errorReply(err)
		}
		out := applyReply{ConnectionErrors: map[string]string{}}
		for _, o := range ops {
			out.Operators = append(out.Operators, o.ID)
			for edgeID, cerr := range o.ConnectionErrors() {
				out.ConnectionErrors[edgeID] = cerr.Error()
			}
		}
		if len(out.ConnectionErrors) == 0 {
			out.ConnectionErrors = nil
		}
		return reply("graph_applied", out)

	case "graph_eval":
		var req evalRequest
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				return errorReply(fmt.Errorf("decoding eval request: %w", err))
			}
		}
		results, err := executor.Evaluate(ctx, s.pop, req.IDs)
		if err != nil {
			return errorReply(err)
		}
		out := evalReply{Results: make(map[string]evalResult, len(results))}
		for id, r := range results {
			er := evalResult{}
			if r.Err != nil {
				er.Error = r.Err.Error()
			}
			if len(r.Outputs) > 0 {
				er.Outputs = make(map[string]json.RawMessage, len(r.Outputs))
				for name, v := range r.Outputs {
					raw, merr := ctyjson.Marshal(v, v.Type())
					if merr != nil {
						raw = []byte("null")
					}
					er.Outputs[name] = raw
				}
			}
			out.Results[id] = er
		}
		return reply("graph_evaluated", out)

	case "graph_state":
		out := stateReply{Levels: executor.Levels(s.pop)}
		for _, o := range s.pop.All() {
			out.Operators = append(out.Operators, operatorState{
				ID:          o.ID,
				Type:        o.Type,
				ContainerID: o.ContainerID,
				Status:      o.Status().String(),
				Locked:      o.Locked,
			})
		}
		return reply("graph_state", out)

	default:
		return errorReply(fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func reply(msgType string, payload any) Message {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errorReply(fmt.Errorf("encoding reply: %w", err))
	}
	return Message{Type: msgType, Payload: raw}
}

func errorReply(err error) Message {
	raw, _ := json.Marshal(errorPayload{Error: err.Error()})
	return Message{Type: "error", Payload: raw}
}
